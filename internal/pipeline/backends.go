package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/tutorstack/tutorstack/engine/internal/assemble"
	"github.com/tutorstack/tutorstack/engine/internal/errs"
	"github.com/tutorstack/tutorstack/engine/pkg/models"
)

// HTTPBackend calls an out-of-process tool service. The request body is
// {"messages": [...], "query": "...", "config": {...}} and the expected
// response is {"text": "...", "sources": [...]}.
type HTTPBackend struct {
	toolType models.ToolType
	endpoint string
	client   *http.Client
	limiter  *rate.Limiter
}

// NewHTTPBackend creates a backend for one tool type. endpoint is the
// default URL; a descriptor may override it via config["endpoint"].
func NewHTTPBackend(toolType models.ToolType, endpoint string, perSec float64, burst int) *HTTPBackend {
	return &HTTPBackend{
		toolType: toolType,
		endpoint: endpoint,
		client:   &http.Client{Timeout: 30 * time.Second},
		limiter:  rate.NewLimiter(rate.Limit(perSec), burst),
	}
}

func (b *HTTPBackend) Type() models.ToolType { return b.toolType }

type toolRequest struct {
	Messages []models.Message       `json:"messages"`
	Query    string                 `json:"query,omitempty"`
	Config   map[string]interface{} `json:"config,omitempty"`
}

type toolResponse struct {
	Text    string             `json:"text"`
	Sources []models.SourceRef `json:"sources,omitempty"`
}

func (b *HTTPBackend) Run(ctx context.Context, messages []models.Message, cfg map[string]interface{}) (*models.ToolOutput, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, errs.Wrapf(errs.KindToolExecution, err, "tool %s rate wait", b.toolType)
	}

	endpoint := b.endpoint
	if v, ok := cfg["endpoint"].(string); ok && v != "" {
		endpoint = v
	}

	// Retrieval-style services key off the latest user message, so it
	// travels as a dedicated query field alongside the full history.
	body, err := json.Marshal(toolRequest{
		Messages: messages,
		Query:    assemble.LastUserText(messages),
		Config:   cfg,
	})
	if err != nil {
		return nil, errs.Wrapf(errs.KindToolExecution, err, "tool %s encode", b.toolType)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errs.Wrapf(errs.KindToolExecution, err, "tool %s request", b.toolType)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, errs.Wrapf(errs.KindToolExecution, err, "tool %s call", b.toolType)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, errs.Newf(errs.KindToolExecution, "tool %s returned status %d", b.toolType, resp.StatusCode)
	}

	var tr toolResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, errs.Wrapf(errs.KindToolExecution, err, "tool %s decode", b.toolType)
	}
	return &models.ToolOutput{Text: tr.Text, Sources: tr.Sources}, nil
}

// SummaryBackend condenses older conversation turns into a compact
// digest placeholder. It runs in-process: no network, no rate limit.
type SummaryBackend struct {
	// KeepRecent is how many trailing messages stay out of the summary.
	KeepRecent int
	// MaxChars caps each summarized line.
	MaxChars int
}

func NewSummaryBackend() *SummaryBackend {
	return &SummaryBackend{KeepRecent: 4, MaxChars: 200}
}

func (b *SummaryBackend) Type() models.ToolType { return models.ToolConversationSummary }

func (b *SummaryBackend) Run(ctx context.Context, messages []models.Message, cfg map[string]interface{}) (*models.ToolOutput, error) {
	cutoff := len(messages) - b.KeepRecent
	if cutoff <= 0 {
		return &models.ToolOutput{}, nil
	}

	var sb strings.Builder
	for _, msg := range messages[:cutoff] {
		text := strings.TrimSpace(msg.TextContent())
		if text == "" {
			continue
		}
		if r := []rune(text); len(r) > b.MaxChars {
			text = string(r[:b.MaxChars]) + "..."
		}
		fmt.Fprintf(&sb, "%s: %s\n", msg.Role, text)
	}
	return &models.ToolOutput{Text: strings.TrimRight(sb.String(), "\n")}, nil
}
