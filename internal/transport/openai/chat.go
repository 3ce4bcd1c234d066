package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"math"

	openai "github.com/sashabaranov/go-openai"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragchat/internal/domain"
)

// ChatModel is a domain.ChatModel backed by the chat completions API.
type ChatModel struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

// NewChatModel creates an OpenAI-compatible chat model.
func NewChatModel(cfg *Config) *ChatModel {
	return &ChatModel{
		client: newClient(cfg),
		model:  cfg.Model,
		logger: cfg.Logger,
	}
}

// Complete returns the first choice's message content.
func (m *ChatModel) Complete(ctx context.Context, req domain.ModelRequest) (string, error) {
	resp, err := m.client.CreateChatCompletion(ctx, m.request(req))
	if err != nil {
		return "", parseAPIError("chat", err, domain.ErrChatProviderError)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat response has no choices: %w", domain.ErrChatProviderError)
	}
	return resp.Choices[0].Message.Content, nil
}

// Stream yields choices[0].delta.content of every chunk. Chunks that are not
// valid JSON are yielded as ErrMalformedChunk.
func (m *ChatModel) Stream(ctx context.Context, req domain.ModelRequest) (iter.Seq2[string, error], error) {
	creq := m.request(req)
	creq.Stream = true

	stream, err := m.client.CreateChatCompletionStream(ctx, creq)
	if err != nil {
		return nil, parseAPIError("chat", err, domain.ErrChatProviderError)
	}

	return func(yield func(string, error) bool) {
		defer stream.Close()
		for {
			raw, err := stream.RecvRaw()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield("", parseAPIError("chat stream", err, domain.ErrChatProviderError))
				return
			}
			if !gjson.ValidBytes(raw) {
				if !yield("", fmt.Errorf("%w: %.120s", domain.ErrMalformedChunk, raw)) {
					return
				}
				continue
			}
			text := gjson.GetBytes(raw, "choices.0.delta.content").String()
			if text == "" {
				continue
			}
			if !yield(text, nil) {
				return
			}
		}
	}, nil
}

// HealthCheck verifies API availability via ListModels.
func (m *ChatModel) HealthCheck(ctx context.Context) error {
	if _, err := m.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

func (m *ChatModel) request(req domain.ModelRequest) openai.ChatCompletionRequest {
	msgs := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	for _, msg := range req.Messages {
		role := openai.ChatMessageRoleAssistant
		if msg.Role == domain.RoleUser {
			role = openai.ChatMessageRoleUser
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: msg.Content})
	}
	return openai.ChatCompletionRequest{
		Model:       m.model,
		Messages:    msgs,
		MaxTokens:   req.MaxTokens,
		Temperature: temperature(req.Temperature),
	}
}

// temperature keeps an explicit 0 on the wire; the field is omitempty in go-openai.
func temperature(t float64) float32 {
	if t == 0 {
		return math.SmallestNonzeroFloat32
	}
	return float32(t)
}
