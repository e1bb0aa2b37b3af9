package connector

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tutorstack/tutorstack/engine/pkg/contracts"
	"github.com/tutorstack/tutorstack/engine/pkg/models"
)

const anthropicVersion = "2023-06-01"

// AnthropicDriver speaks the Anthropic Messages API directly over the
// pooled HTTP client. The system prompt travels in the top-level
// "system" field, not as a message.
type AnthropicDriver struct {
	// MaxTokens is the per-request output cap sent to the API.
	MaxTokens int
}

func NewAnthropicDriver() *AnthropicDriver {
	return &AnthropicDriver{MaxTokens: 4096}
}

func (d *AnthropicDriver) Kind() string { return "anthropic" }

type anthropicContentBlock struct {
	Type   string                `json:"type"`
	Text   string                `json:"text,omitempty"`
	Source *anthropicImageSource `json:"source,omitempty"`
}

type anthropicImageSource struct {
	Type      string `json:"type"` // "base64" or "url"
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
	URL       string `json:"url,omitempty"`
}

type anthropicMessage struct {
	Role    string                  `json:"role"`
	Content []anthropicContentBlock `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
	MaxTokens int                `json:"max_tokens"`
	Stream    bool               `json:"stream,omitempty"`
}

type anthropicResponse struct {
	ID      string `json:"id"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int64 `json:"input_tokens"`
		OutputTokens int64 `json:"output_tokens"`
	} `json:"usage"`
}

func (d *AnthropicDriver) endpoint(rc *models.ResolvedProviderConfig) string {
	if rc.BaseURL != "" {
		return strings.TrimRight(rc.BaseURL, "/")
	}
	return "https://api.anthropic.com"
}

func (d *AnthropicDriver) newRequest(ctx context.Context, rc *models.ResolvedProviderConfig, model string, messages []models.Message, stream bool) (*http.Request, error) {
	system, rest := splitSystem(messages)
	body, err := json.Marshal(anthropicRequest{
		Model:     model,
		System:    system,
		Messages:  toAnthropicMessages(rest),
		MaxTokens: d.MaxTokens,
		Stream:    stream,
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint(rc)+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("anthropic: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", rc.APIKey)
	req.Header.Set("anthropic-version", anthropicVersion)
	return req, nil
}

func (d *AnthropicDriver) Complete(ctx context.Context, client *contracts.PooledClient, rc *models.ResolvedProviderConfig, model string, messages []models.Message) (*models.CompletionResult, error) {
	req, err := d.newRequest(ctx, rc, model, messages, false)
	if err != nil {
		return nil, err
	}

	resp, err := client.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("anthropic: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("anthropic: status %d: %s", resp.StatusCode, string(respBody))
	}

	var ar anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
		return nil, fmt.Errorf("anthropic: decode response: %w", err)
	}

	content := ""
	for _, c := range ar.Content {
		if c.Type == "text" {
			content += c.Text
		}
	}
	return &models.CompletionResult{
		Content:      content,
		FinishReason: finishReason(ar.StopReason),
		Model:        model,
		Usage: models.TokenUsage{
			InputTokens:  ar.Usage.InputTokens,
			OutputTokens: ar.Usage.OutputTokens,
			TotalTokens:  ar.Usage.InputTokens + ar.Usage.OutputTokens,
		},
	}, nil
}

// streamEvent covers the SSE payloads we care about: content deltas,
// the final usage, and the stop reason.
type streamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type       string `json:"type"`
		Text       string `json:"text"`
		StopReason string `json:"stop_reason"`
	} `json:"delta"`
	Message struct {
		Usage struct {
			InputTokens int64 `json:"input_tokens"`
		} `json:"usage"`
	} `json:"message"`
	Usage struct {
		OutputTokens int64 `json:"output_tokens"`
	} `json:"usage"`
}

func (d *AnthropicDriver) Stream(ctx context.Context, client *contracts.PooledClient, rc *models.ResolvedProviderConfig, model string, messages []models.Message, emit contracts.DeltaFunc) (*models.CompletionResult, error) {
	req, err := d.newRequest(ctx, rc, model, messages, true)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := client.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("anthropic: stream request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("anthropic: status %d: %s", resp.StatusCode, string(respBody))
	}

	res := &models.CompletionResult{Model: model, FinishReason: "stop"}
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev streamEvent
		if err := json.Unmarshal([]byte(line[len("data: "):]), &ev); err != nil {
			continue
		}
		switch ev.Type {
		case "message_start":
			res.Usage.InputTokens = ev.Message.Usage.InputTokens
		case "content_block_delta":
			if ev.Delta.Text != "" {
				res.Content += ev.Delta.Text
				emit(ev.Delta.Text)
			}
		case "message_delta":
			if ev.Delta.StopReason != "" {
				res.FinishReason = finishReason(ev.Delta.StopReason)
			}
			res.Usage.OutputTokens = ev.Usage.OutputTokens
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("anthropic: stream read: %w", err)
	}
	res.Usage.TotalTokens = res.Usage.InputTokens + res.Usage.OutputTokens
	return res, nil
}

// splitSystem pulls leading system messages out of the list; Anthropic
// takes the system prompt as a top-level field.
func splitSystem(messages []models.Message) (string, []models.Message) {
	var system []string
	var rest []models.Message
	for _, msg := range messages {
		if msg.Role == "system" {
			system = append(system, msg.TextContent())
			continue
		}
		rest = append(rest, msg)
	}
	return strings.Join(system, "\n"), rest
}

func toAnthropicMessages(messages []models.Message) []anthropicMessage {
	out := make([]anthropicMessage, 0, len(messages))
	for _, msg := range messages {
		am := anthropicMessage{Role: msg.Role}
		if len(msg.Parts) == 0 {
			am.Content = []anthropicContentBlock{{Type: "text", Text: msg.Content}}
			out = append(out, am)
			continue
		}
		for _, p := range msg.Parts {
			switch p.Type {
			case "text":
				am.Content = append(am.Content, anthropicContentBlock{Type: "text", Text: p.Text})
			case "image":
				src := &anthropicImageSource{}
				if p.InlineData != "" {
					src.Type = "base64"
					src.MediaType = p.MimeType
					src.Data = p.InlineData
				} else {
					src.Type = "url"
					src.URL = p.URL
				}
				am.Content = append(am.Content, anthropicContentBlock{Type: "image", Source: src})
			}
		}
		out = append(out, am)
	}
	return out
}

// finishReason maps Anthropic stop reasons onto the engine's wire values.
func finishReason(stop string) string {
	switch stop {
	case "", "end_turn", "stop_sequence":
		return "stop"
	case "max_tokens":
		return "length"
	default:
		return stop
	}
}
