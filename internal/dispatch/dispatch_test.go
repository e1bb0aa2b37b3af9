package dispatch_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutorstack/tutorstack/engine/internal/config"
	"github.com/tutorstack/tutorstack/engine/internal/dispatch"
	"github.com/tutorstack/tutorstack/engine/internal/errs"
	"github.com/tutorstack/tutorstack/engine/internal/pipeline"
	"github.com/tutorstack/tutorstack/engine/internal/store"
	"github.com/tutorstack/tutorstack/engine/pkg/contracts"
	"github.com/tutorstack/tutorstack/engine/pkg/models"
)

// stubCompleter records the messages it was handed and replies with a
// canned result.
type stubCompleter struct {
	lastMessages []models.Message
	lastPurpose  models.RequestPurpose
	result       *models.CompletionResult
	err          error
	deltas       []string
}

func (s *stubCompleter) Complete(ctx context.Context, rc *models.ResolvedProviderConfig, purpose models.RequestPurpose, messages []models.Message) (*models.CompletionResult, error) {
	s.lastMessages = messages
	s.lastPurpose = purpose
	return s.result, s.err
}

func (s *stubCompleter) Stream(ctx context.Context, rc *models.ResolvedProviderConfig, purpose models.RequestPurpose, messages []models.Message, emit contracts.DeltaFunc) (*models.CompletionResult, error) {
	s.lastMessages = messages
	s.lastPurpose = purpose
	if s.err != nil {
		return nil, s.err
	}
	for _, d := range s.deltas {
		emit(d)
	}
	return s.result, nil
}

// stubBackend is a fixed-output tool backend.
type stubBackend struct {
	toolType models.ToolType
	text     string
	err      error
}

func (s *stubBackend) Type() models.ToolType { return s.toolType }
func (s *stubBackend) Run(ctx context.Context, messages []models.Message, cfg map[string]interface{}) (*models.ToolOutput, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.ToolOutput{
		Text:    s.text,
		Sources: []models.SourceRef{{Title: "Stub Doc"}},
	}, nil
}

// memorySink collects records synchronously.
type memorySink struct{ records []*models.UsageRecord }

func (m *memorySink) Record(rec *models.UsageRecord) { m.records = append(m.records, rec) }
func (m *memorySink) Close() error                   { return nil }

func fixtureStore(t *testing.T) contracts.Store {
	t.Helper()
	s := store.NewMemoryStore()
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()

	require.NoError(t, s.UpsertTenantConfig(ctx, &models.TenantConfig{
		Tenant:          "acme",
		DefaultProvider: "openai",
		Providers: []models.ProviderConfig{
			{Name: "openai", Kind: "openai", APIKey: "sk-test", DefaultModel: "gpt-4o"},
		},
	}))
	require.NoError(t, s.CreateAssistant(ctx, &models.AssistantConfig{
		ID:             "tutor",
		Owner:          "acme",
		SystemPrompt:   "You are a tutor.",
		PromptTemplate: "Context: {context}\nQuestion: {user_input}",
		Verbose:        true,
		VisionEnabled:  true,
		Tools: []models.ToolDescriptor{
			{Type: models.ToolKnowledgeBase, Enabled: true, Placeholder: "context"},
		},
	}))
	return s
}

func newDispatcher(t *testing.T, st contracts.Store, completer contracts.Completer, sink contracts.UsageSink, backends ...contracts.ToolBackend) *dispatch.Dispatcher {
	t.Helper()
	registry := pipeline.NewRegistry(backends...)
	pipe := pipeline.New(registry, time.Second, false)
	return dispatch.New(st, registry, pipe, completer, sink,
		config.ProviderDefaults{ConnectTimeout: time.Second, RequestTimeout: 10 * time.Second, MaxConns: 4})
}

func TestComplete_EndToEnd(t *testing.T) {
	st := fixtureStore(t)
	completer := &stubCompleter{result: &models.CompletionResult{
		Content: "The answer.", FinishReason: "stop", Provider: "openai", Model: "gpt-4o",
		Usage: models.TokenUsage{InputTokens: 12, OutputTokens: 3, TotalTokens: 15},
	}}
	sink := &memorySink{}
	d := newDispatcher(t, st, completer, sink,
		&stubBackend{toolType: models.ToolKnowledgeBase, text: "Paris is the capital of France."})

	resp, err := d.Complete(context.Background(), "acme", &models.CompletionRequest{
		AssistantRef: "tutor",
		Messages:     []models.Message{{Role: "user", Content: "What is the capital?"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "The answer.", resp.Message.Content)
	assert.Equal(t, "stop", resp.FinishReason)
	require.Len(t, resp.Sources, 1)
	assert.Equal(t, "Stub Doc", resp.Sources[0].Title)

	// The provider saw the rendered template, not the raw user text.
	require.Len(t, completer.lastMessages, 2)
	assert.Equal(t, "system", completer.lastMessages[0].Role)
	assert.Equal(t, "Context: Paris is the capital of France.\nQuestion: What is the capital?",
		completer.lastMessages[1].Content)

	require.Len(t, sink.records, 1)
	assert.Equal(t, "acme", sink.records[0].Tenant)
	assert.Equal(t, "completed", sink.records[0].Outcome)
	assert.EqualValues(t, 15, sink.records[0].TotalTokens)
	assert.False(t, sink.records[0].Streamed)
}

func TestComplete_UnknownAssistant(t *testing.T) {
	st := fixtureStore(t)
	d := newDispatcher(t, st, &stubCompleter{}, &memorySink{})

	_, err := d.Complete(context.Background(), "acme", &models.CompletionRequest{AssistantRef: "ghost"})
	require.Error(t, err)
	assert.Equal(t, errs.KindNotFound, errs.KindOf(err))
}

func TestComplete_UnknownToolTypeAborts(t *testing.T) {
	st := fixtureStore(t)
	ctx := context.Background()
	require.NoError(t, st.CreateAssistant(ctx, &models.AssistantConfig{
		ID: "broken", Owner: "acme",
		Tools: []models.ToolDescriptor{{Type: "bogus", Enabled: true}},
	}))
	completer := &stubCompleter{result: &models.CompletionResult{}}
	d := newDispatcher(t, st, completer, &memorySink{})

	_, err := d.Complete(ctx, "acme", &models.CompletionRequest{AssistantRef: "broken"})
	require.Error(t, err)
	assert.Equal(t, errs.KindConfiguration, errs.KindOf(err))
	assert.Nil(t, completer.lastMessages, "provider must not be called")
}

func TestComplete_ToolFailureDegradesGracefully(t *testing.T) {
	st := fixtureStore(t)
	completer := &stubCompleter{result: &models.CompletionResult{Content: "ok", FinishReason: "stop"}}
	d := newDispatcher(t, st, completer, &memorySink{},
		&stubBackend{toolType: models.ToolKnowledgeBase, err: errors.New("backend down")})

	_, err := d.Complete(context.Background(), "acme", &models.CompletionRequest{
		AssistantRef: "tutor",
		Messages:     []models.Message{{Role: "user", Content: "Q?"}},
	})
	require.NoError(t, err)

	// Placeholder substituted with the empty string.
	assert.Equal(t, "Context: \nQuestion: Q?", completer.lastMessages[1].Content)
}

func TestStream_FrameSequence(t *testing.T) {
	st := fixtureStore(t)
	completer := &stubCompleter{
		deltas: []string{"Hel", "lo"},
		result: &models.CompletionResult{FinishReason: "stop", Provider: "openai", Model: "gpt-4o",
			Usage: models.TokenUsage{TotalTokens: 6}},
	}
	sink := &memorySink{}
	d := newDispatcher(t, st, completer, sink,
		&stubBackend{toolType: models.ToolKnowledgeBase, text: "ctx"})

	var frames []models.Frame
	err := d.Stream(context.Background(), "acme", &models.CompletionRequest{
		AssistantRef: "tutor",
		Messages:     []models.Message{{Role: "user", Content: "hi"}},
	}, func(f models.Frame) error {
		frames = append(frames, f)
		return nil
	})
	require.NoError(t, err)

	require.Len(t, frames, 4) // role, 2 deltas, terminal (no tool status events from stub)
	assert.Equal(t, models.FrameRole, frames[0].Type)
	assert.Equal(t, "Hel", frames[1].Content)
	assert.Equal(t, "lo", frames[2].Content)
	assert.Equal(t, models.FrameTerminal, frames[3].Type)

	require.Len(t, sink.records, 1)
	assert.True(t, sink.records[0].Streamed)
}

func TestStream_VerboseStatusFrames(t *testing.T) {
	st := fixtureStore(t)
	completer := &stubCompleter{
		result: &models.CompletionResult{FinishReason: "stop"},
	}
	d := newDispatcher(t, st, completer, &memorySink{},
		&stubBackend{toolType: models.ToolKnowledgeBase, err: errors.New("kb down")})

	var frames []models.Frame
	err := d.Stream(context.Background(), "acme", &models.CompletionRequest{
		AssistantRef: "tutor",
		Messages:     []models.Message{{Role: "user", Content: "hi"}},
	}, func(f models.Frame) error {
		frames = append(frames, f)
		return nil
	})
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(frames), 3)
	assert.Equal(t, models.FrameStatus, frames[0].Type)
	assert.Contains(t, frames[0].Text, "tool knowledge_base failed")
}

func TestStream_WriterFailureInterrupts(t *testing.T) {
	st := fixtureStore(t)
	completer := &stubCompleter{
		deltas: []string{"a", "b", "c"},
		result: &models.CompletionResult{FinishReason: "stop"},
	}
	d := newDispatcher(t, st, completer, &memorySink{},
		&stubBackend{toolType: models.ToolKnowledgeBase, text: "ctx"})

	calls := 0
	err := d.Stream(context.Background(), "acme", &models.CompletionRequest{
		AssistantRef: "tutor",
		Messages:     []models.Message{{Role: "user", Content: "hi"}},
	}, func(f models.Frame) error {
		calls++
		if calls > 2 {
			return errors.New("broken pipe")
		}
		return nil
	})
	require.Error(t, err)
	assert.Equal(t, errs.KindStreamInterrupted, errs.KindOf(err))
}

func TestComplete_PurposeInference(t *testing.T) {
	st := fixtureStore(t)
	completer := &stubCompleter{result: &models.CompletionResult{FinishReason: "stop"}}
	d := newDispatcher(t, st, completer, &memorySink{},
		&stubBackend{toolType: models.ToolKnowledgeBase, text: "ctx"})

	_, err := d.Complete(context.Background(), "acme", &models.CompletionRequest{
		AssistantRef: "tutor",
		Messages: []models.Message{{
			Role: "user",
			Parts: []models.ContentPart{
				{Type: "text", Text: "describe"},
				{Type: "image", URL: "https://example.com/x.png"},
			},
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, models.PurposeImage, completer.lastPurpose)

	_, err = d.Complete(context.Background(), "acme", &models.CompletionRequest{
		AssistantRef: "tutor",
		Purpose:      models.PurposeTitle,
		Messages:     []models.Message{{Role: "user", Content: "name this chat"}},
	})
	require.NoError(t, err)
	assert.Equal(t, models.PurposeTitle, completer.lastPurpose)
}

func TestComplete_VisionDisabledDropsImages(t *testing.T) {
	st := fixtureStore(t)
	ctx := context.Background()
	require.NoError(t, st.CreateAssistant(ctx, &models.AssistantConfig{
		ID: "novision", Owner: "acme", VisionEnabled: false,
	}))
	completer := &stubCompleter{result: &models.CompletionResult{FinishReason: "stop"}}
	d := newDispatcher(t, st, completer, &memorySink{})

	_, err := d.Complete(ctx, "acme", &models.CompletionRequest{
		AssistantRef: "novision",
		Messages: []models.Message{{
			Role: "user",
			Parts: []models.ContentPart{
				{Type: "text", Text: "look at this"},
				{Type: "image", URL: "https://example.com/x.png"},
			},
		}},
	})
	require.NoError(t, err)
	require.Len(t, completer.lastMessages, 1)
	assert.Empty(t, completer.lastMessages[0].Parts)
	assert.Equal(t, "look at this", completer.lastMessages[0].Content)
}
