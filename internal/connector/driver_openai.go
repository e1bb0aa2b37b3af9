package connector

import (
	"context"
	"errors"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"

	"github.com/tutorstack/tutorstack/engine/pkg/contracts"
	"github.com/tutorstack/tutorstack/engine/pkg/models"
)

// OpenAIDriver serves every OpenAI-compatible provider kind through the
// same chat-completions API.
type OpenAIDriver struct {
	kind string
}

// NewOpenAIDriver creates a driver for one compatible kind ("openai",
// "azure-openai", "openrouter", "ollama").
func NewOpenAIDriver(kind string) *OpenAIDriver {
	return &OpenAIDriver{kind: kind}
}

func (d *OpenAIDriver) Kind() string { return d.kind }

func (d *OpenAIDriver) Complete(ctx context.Context, client *contracts.PooledClient, rc *models.ResolvedProviderConfig, model string, messages []models.Message) (*models.CompletionResult, error) {
	resp, err := client.OpenAI.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    model,
		Messages: toOpenAIMessages(messages),
	})
	if err != nil {
		return nil, fmt.Errorf("%s: chat completion: %w", d.kind, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%s: empty choice list", d.kind)
	}
	choice := resp.Choices[0]
	return &models.CompletionResult{
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
		Model:        resp.Model,
		Usage: models.TokenUsage{
			InputTokens:  int64(resp.Usage.PromptTokens),
			OutputTokens: int64(resp.Usage.CompletionTokens),
			TotalTokens:  int64(resp.Usage.TotalTokens),
		},
	}, nil
}

func (d *OpenAIDriver) Stream(ctx context.Context, client *contracts.PooledClient, rc *models.ResolvedProviderConfig, model string, messages []models.Message, emit contracts.DeltaFunc) (*models.CompletionResult, error) {
	stream, err := client.OpenAI.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    model,
		Messages: toOpenAIMessages(messages),
		Stream:   true,
		StreamOptions: &openai.StreamOptions{
			IncludeUsage: true,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%s: open stream: %w", d.kind, err)
	}
	defer stream.Close()

	res := &models.CompletionResult{Model: model, FinishReason: "stop"}
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: stream recv: %w", d.kind, err)
		}
		if chunk.Usage != nil {
			res.Usage = models.TokenUsage{
				InputTokens:  int64(chunk.Usage.PromptTokens),
				OutputTokens: int64(chunk.Usage.CompletionTokens),
				TotalTokens:  int64(chunk.Usage.TotalTokens),
			}
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		if choice.Delta.Content != "" {
			res.Content += choice.Delta.Content
			emit(choice.Delta.Content)
		}
		if choice.FinishReason != "" {
			res.FinishReason = string(choice.FinishReason)
		}
	}
	return res, nil
}

// toOpenAIMessages converts domain messages to the wire shape, using
// MultiContent for multimodal parts.
func toOpenAIMessages(messages []models.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		if len(msg.Parts) == 0 {
			out = append(out, openai.ChatCompletionMessage{Role: msg.Role, Content: msg.Content})
			continue
		}
		var parts []openai.ChatMessagePart
		for _, p := range msg.Parts {
			switch p.Type {
			case "text":
				parts = append(parts, openai.ChatMessagePart{
					Type: openai.ChatMessagePartTypeText,
					Text: p.Text,
				})
			case "image":
				url := p.URL
				if url == "" && p.InlineData != "" {
					url = "data:" + p.MimeType + ";base64," + p.InlineData
				}
				parts = append(parts, openai.ChatMessagePart{
					Type:     openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{URL: url},
				})
			}
		}
		out = append(out, openai.ChatCompletionMessage{Role: msg.Role, MultiContent: parts})
	}
	return out
}
