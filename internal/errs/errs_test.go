package errs_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/tutorstack/tutorstack/engine/internal/errs"
)

func TestKindOf(t *testing.T) {
	err := errs.New(errs.KindNotFound, "assistant not found")
	if got := errs.KindOf(err); got != errs.KindNotFound {
		t.Fatalf("expected not_found, got %s", got)
	}

	wrapped := fmt.Errorf("handler: %w", err)
	if got := errs.KindOf(wrapped); got != errs.KindNotFound {
		t.Fatalf("expected not_found through wrapping, got %s", got)
	}

	if got := errs.KindOf(errors.New("plain")); got != errs.KindInternal {
		t.Fatalf("expected internal for unclassified, got %s", got)
	}
}

func TestMessageOf(t *testing.T) {
	inner := errors.New("dial tcp 10.0.0.1:443: i/o timeout")
	err := errs.Wrap(errs.KindConnector, inner, "provider request failed")

	if got := errs.MessageOf(err); got != "provider request failed" {
		t.Fatalf("unexpected message %q", got)
	}
	if !errors.Is(err, inner) {
		t.Fatal("expected wrapped error to unwrap")
	}
	if got := errs.MessageOf(errors.New("raw")); got != "internal error" {
		t.Fatalf("unclassified errors must not leak detail, got %q", got)
	}
}

func TestErrorString(t *testing.T) {
	err := errs.Wrapf(errs.KindToolExecution, errors.New("status 502"), "tool %s failed", "web_search")
	want := "tool web_search failed: status 502"
	if err.Error() != want {
		t.Fatalf("got %q want %q", err.Error(), want)
	}
}
