// Package stream emits the engine's frame protocol for one request:
// status frames during tool work, a role frame, content deltas, and a
// single terminal frame. Frame order is fixed and enforced here.
package stream

import (
	"strings"

	"github.com/tutorstack/tutorstack/engine/internal/errs"
	"github.com/tutorstack/tutorstack/engine/pkg/models"
)

// maxStatusRunes caps the sanitized text of one status frame.
const maxStatusRunes = 160

// Writer delivers one frame to the caller. Returning an error means the
// caller is gone; the broadcaster stops and reports the interruption.
type Writer func(models.Frame) error

// Broadcaster serializes the frame sequence for one streaming request.
// Not safe for concurrent use: one request, one goroutine, one
// broadcaster.
type Broadcaster struct {
	write   Writer
	verbose bool
	started bool // role frame sent
	done    bool // terminal frame sent
}

// NewBroadcaster creates a broadcaster. verbose controls whether status
// frames are delivered at all; the rest of the sequence is unaffected.
func NewBroadcaster(w Writer, verbose bool) *Broadcaster {
	return &Broadcaster{write: w, verbose: verbose}
}

// SendStatus delivers tool status frames. Silently dropped when verbose
// is off or when content frames have already started.
func (b *Broadcaster) SendStatus(events []models.StatusEvent) error {
	if !b.verbose || b.started || b.done {
		return nil
	}
	for _, ev := range events {
		frame := models.Frame{
			Type: models.FrameStatus,
			Tool: ev.Tool,
			Text: sanitize(ev.Text),
		}
		if err := b.write(frame); err != nil {
			return errs.Wrap(errs.KindStreamInterrupted, err, "client disconnected during status frames")
		}
	}
	return nil
}

// SendDelta delivers one content fragment, emitting the role frame
// first if it has not gone out yet.
func (b *Broadcaster) SendDelta(content string) error {
	if b.done {
		return nil
	}
	if !b.started {
		b.started = true
		if err := b.write(models.Frame{Type: models.FrameRole, Role: "assistant"}); err != nil {
			return errs.Wrap(errs.KindStreamInterrupted, err, "client disconnected at role frame")
		}
	}
	if err := b.write(models.Frame{Type: models.FrameDelta, Content: content}); err != nil {
		return errs.Wrap(errs.KindStreamInterrupted, err, "client disconnected mid-stream")
	}
	return nil
}

// SendTerminal closes the sequence with finish reason, usage, and
// sources. Idempotent: the second call is a no-op.
func (b *Broadcaster) SendTerminal(finishReason string, usage models.TokenUsage, sources []models.SourceRef) error {
	if b.done {
		return nil
	}
	if !b.started {
		b.started = true
		if err := b.write(models.Frame{Type: models.FrameRole, Role: "assistant"}); err != nil {
			return errs.Wrap(errs.KindStreamInterrupted, err, "client disconnected at role frame")
		}
	}
	b.done = true
	frame := models.Frame{
		Type:         models.FrameTerminal,
		FinishReason: finishReason,
		Usage:        &usage,
		Sources:      sources,
	}
	if err := b.write(frame); err != nil {
		return errs.Wrap(errs.KindStreamInterrupted, err, "client disconnected at terminal frame")
	}
	return nil
}

// sanitize flattens status text to a single bounded line. Status frames
// carry operational notes, never raw tool payloads.
func sanitize(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if r := []rune(text); len(r) > maxStatusRunes {
		text = string(r[:maxStatusRunes]) + "..."
	}
	return text
}
