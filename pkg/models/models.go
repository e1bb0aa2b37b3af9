// Package models defines the shared domain types for the TutorStack
// completion engine: assistant configuration, completion requests and
// responses, resolved provider configuration, streaming frames, and
// usage records.
package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// ── Tool Descriptors ─────────────────────────────────────────

// ToolType identifies one of the known context-augmentation tool types.
// The set is closed: the pipeline registry is built at startup and an
// enabled descriptor with a type outside this set aborts the request.
type ToolType string

const (
	ToolKnowledgeBase       ToolType = "knowledge_base"
	ToolStructuredDocument  ToolType = "structured_document"
	ToolRubric              ToolType = "rubric"
	ToolWebSearch           ToolType = "web_search"
	ToolConversationSummary ToolType = "conversation_summary"
)

// ToolDescriptor configures one tool slot on an assistant.
// Placeholder names need not be unique: when two enabled descriptors
// target the same placeholder, the later one in declared order wins.
type ToolDescriptor struct {
	Type        ToolType               `json:"type" yaml:"type"`
	Enabled     bool                   `json:"enabled" yaml:"enabled"`
	Placeholder string                 `json:"placeholder" yaml:"placeholder"` // e.g. "{context}", "{rubric}"
	Config      map[string]interface{} `json:"config,omitempty" yaml:"config,omitempty"`
}

// ── Assistant Configuration ──────────────────────────────────

// AssistantConfig is the read-only per-assistant configuration loaded
// from the Assistant Registry. It is immutable for the duration of one
// request: the dispatcher loads it once and only reads from it.
type AssistantConfig struct {
	ID             string           `json:"id" yaml:"id"`
	Owner          string           `json:"owner" yaml:"owner"`
	Name           string           `json:"name" yaml:"name"`
	SystemPrompt   string           `json:"system_prompt" yaml:"system_prompt"`
	PromptTemplate string           `json:"prompt_template" yaml:"prompt_template"` // contains {placeholder} tokens and {user_input}
	Tools          []ToolDescriptor `json:"tools" yaml:"tools"`
	Connector      string           `json:"connector,omitempty" yaml:"connector,omitempty"` // provider name
	Model          string           `json:"model,omitempty" yaml:"model,omitempty"`
	VisionEnabled  bool             `json:"vision_enabled" yaml:"vision_enabled"`
	Verbose        bool             `json:"verbose" yaml:"verbose"` // emit tool status frames when streaming
	CreatedAt      time.Time        `json:"created_at" yaml:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at" yaml:"updated_at"`
}

// EnabledTools returns the enabled descriptors in declared order.
func (a *AssistantConfig) EnabledTools() []ToolDescriptor {
	var out []ToolDescriptor
	for _, td := range a.Tools {
		if td.Enabled {
			out = append(out, td)
		}
	}
	return out
}

// ── Messages ─────────────────────────────────────────────────

// ContentPart is one typed piece of a multimodal message.
type ContentPart struct {
	Type       string `json:"type"` // "text" or "image"
	Text       string `json:"text,omitempty"`
	URL        string `json:"url,omitempty"`
	InlineData string `json:"inline_data,omitempty"` // base64-encoded image bytes
	MimeType   string `json:"mime_type,omitempty"`
}

// Message is one conversation message. Content is either plain text
// (Content set, Parts nil) or an ordered list of typed parts.
type Message struct {
	Role    string        `json:"role"`
	Content string        `json:"content,omitempty"`
	Parts   []ContentPart `json:"-"`
}

// messageWire mirrors the external JSON shape, where "content" is
// either a string or an array of typed parts.
type messageWire struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// UnmarshalJSON accepts both content shapes from the wire.
func (m *Message) UnmarshalJSON(data []byte) error {
	var w messageWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	m.Role = w.Role
	m.Content = ""
	m.Parts = nil
	if len(w.Content) == 0 {
		return nil
	}
	if w.Content[0] == '"' {
		return json.Unmarshal(w.Content, &m.Content)
	}
	if w.Content[0] == '[' {
		return json.Unmarshal(w.Content, &m.Parts)
	}
	return fmt.Errorf("message content must be a string or an array of parts")
}

// MarshalJSON emits the array form only when typed parts are present.
func (m Message) MarshalJSON() ([]byte, error) {
	if len(m.Parts) > 0 {
		return json.Marshal(struct {
			Role    string        `json:"role"`
			Content []ContentPart `json:"content"`
		}{m.Role, m.Parts})
	}
	return json.Marshal(struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}{m.Role, m.Content})
}

// HasImages reports whether the message carries any image parts.
func (m Message) HasImages() bool {
	for _, p := range m.Parts {
		if p.Type == "image" {
			return true
		}
	}
	return false
}

// TextContent flattens the message to plain text, concatenating the
// text parts of a multimodal message.
func (m Message) TextContent() string {
	if len(m.Parts) == 0 {
		return m.Content
	}
	text := ""
	for _, p := range m.Parts {
		if p.Type == "text" {
			if text != "" {
				text += "\n"
			}
			text += p.Text
		}
	}
	return text
}

// ── Completion Request / Response ────────────────────────────

// RequestPurpose classifies a completion request for the connector's
// intent routing. Set by the caller (or the dispatcher), never inferred
// by the connector itself.
type RequestPurpose string

const (
	PurposeChat  RequestPurpose = "chat"
	PurposeTitle RequestPurpose = "title" // routed to the cheap title model
	PurposeImage RequestPurpose = "image" // routed to the image-capable model
)

// ModelOverride is an explicit provider/model override on one request.
type ModelOverride struct {
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
}

// CompletionRequest is the inbound chat-completion request.
type CompletionRequest struct {
	AssistantRef string         `json:"assistant_ref"`
	Messages     []Message      `json:"messages"`
	Stream       bool           `json:"stream,omitempty"`
	Purpose      RequestPurpose `json:"purpose,omitempty"`
	Override     *ModelOverride `json:"override,omitempty"`
}

// TokenUsage counts tokens for one provider call.
type TokenUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
	TotalTokens  int64 `json:"total_tokens"`
}

// CompletionResponse is the non-streaming response shape.
type CompletionResponse struct {
	Message      Message     `json:"message"`
	FinishReason string      `json:"finish_reason"`
	Usage        TokenUsage  `json:"usage"`
	Sources      []SourceRef `json:"sources,omitempty"`
}

// CompletionResult is the provider-level outcome of one connector call.
type CompletionResult struct {
	Content      string
	FinishReason string
	Usage        TokenUsage
	Provider     string
	Model        string
	Degraded     bool // true when the multimodal fallback path produced this result
}

// ── Provider / Tenant Configuration ──────────────────────────

// ProviderConfig is one provider entry in a tenant's configuration.
type ProviderConfig struct {
	Name            string   `json:"name" yaml:"name"`
	Kind            string   `json:"kind" yaml:"kind"` // openai | azure-openai | openrouter | ollama | anthropic
	BaseURL         string   `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	APIKey          string   `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	Models          []string `json:"models,omitempty" yaml:"models,omitempty"`
	DefaultModel    string   `json:"default_model,omitempty" yaml:"default_model,omitempty"`
	FallbackModel   string   `json:"fallback_model,omitempty" yaml:"fallback_model,omitempty"` // text model used after multimodal failure
	TitleModel      string   `json:"title_model,omitempty" yaml:"title_model,omitempty"`       // cheap model for title/summary requests
	ImageModel      string   `json:"image_model,omitempty" yaml:"image_model,omitempty"`       // image-capable model
	MaxConns        int      `json:"max_conns,omitempty" yaml:"max_conns,omitempty"`
	ConnectTimeoutS int      `json:"connect_timeout_s,omitempty" yaml:"connect_timeout_s,omitempty"`
	RequestTimeoutS int      `json:"request_timeout_s,omitempty" yaml:"request_timeout_s,omitempty"`
}

// TenantConfig is a tenant's provider configuration, read from the
// Tenant Configuration Store.
type TenantConfig struct {
	Tenant          string           `json:"tenant" yaml:"tenant"`
	DefaultProvider string           `json:"default_provider,omitempty" yaml:"default_provider,omitempty"`
	DefaultModel    string           `json:"default_model,omitempty" yaml:"default_model,omitempty"`
	Providers       []ProviderConfig `json:"providers" yaml:"providers"`
}

// Provider returns the named provider entry, or nil.
func (t *TenantConfig) Provider(name string) *ProviderConfig {
	for i := range t.Providers {
		if t.Providers[i].Name == name {
			return &t.Providers[i]
		}
	}
	return nil
}

// ResolvedProviderConfig is the effective provider/model/credential
// selection for one request. Produced fresh by the Configuration
// Resolver and never mutated afterwards.
type ResolvedProviderConfig struct {
	Provider       string
	Kind           string
	BaseURL        string
	APIKey         string
	CredentialFP   string // short fingerprint of the credential, used as a pool key component
	Model          string
	FallbackModel  string
	TitleModel     string
	ImageModel     string
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
	MaxConns       int
}

// PoolKey identifies the pooled outbound client this config maps to.
func (rc *ResolvedProviderConfig) PoolKey() string {
	return rc.Provider + "|" + rc.CredentialFP + "|" + rc.BaseURL
}

// ── Pipeline Output ──────────────────────────────────────────

// SourceRef is one citation attached to a tool's output.
type SourceRef struct {
	Title   string `json:"title,omitempty"`
	URI     string `json:"uri,omitempty"`
	Snippet string `json:"snippet,omitempty"`
}

// StatusEvent is one short operational note emitted by the pipeline.
// Status events carry only human-readable text and safe identifiers,
// never credentials or raw tool payloads.
type StatusEvent struct {
	Tool string    `json:"tool,omitempty"`
	Text string    `json:"text"`
	At   time.Time `json:"-"`
}

// ToolOutput is the uniform result of one tool backend run.
type ToolOutput struct {
	Text    string
	Sources []SourceRef
	Status  []StatusEvent
}

// ── Streaming Frames ─────────────────────────────────────────

// FrameType tags one unit of the streaming wire protocol.
type FrameType string

const (
	FrameStatus   FrameType = "status"
	FrameRole     FrameType = "role"
	FrameDelta    FrameType = "delta"
	FrameTerminal FrameType = "terminal"
)

// Frame is one streaming event. Frames are emitted strictly in the
// order produced: all status frames, then role, then deltas, then one
// terminal frame.
type Frame struct {
	Type         FrameType   `json:"type"`
	Tool         string      `json:"tool,omitempty"`    // status frames
	Text         string      `json:"text,omitempty"`    // status frames
	Role         string      `json:"role,omitempty"`    // role frame
	Content      string      `json:"content,omitempty"` // delta frames
	FinishReason string      `json:"finish_reason,omitempty"`
	Usage        *TokenUsage `json:"usage,omitempty"`
	Sources      []SourceRef `json:"sources,omitempty"`
}

// ── Usage Records ────────────────────────────────────────────

// UsageRecord is the fire-and-forget event sent to the usage log sink
// after a completed request.
type UsageRecord struct {
	ID           string    `json:"id"`
	RequestID    string    `json:"request_id"`
	Tenant       string    `json:"tenant"`
	AssistantID  string    `json:"assistant_id"`
	Provider     string    `json:"provider"`
	Model        string    `json:"model"`
	InputTokens  int64     `json:"input_tokens"`
	OutputTokens int64     `json:"output_tokens"`
	TotalTokens  int64     `json:"total_tokens"`
	DurationMs   int64     `json:"duration_ms"`
	Outcome      string    `json:"outcome"` // "completed", "degraded"
	Streamed     bool      `json:"streamed"`
	CreatedAt    time.Time `json:"created_at"`
}
