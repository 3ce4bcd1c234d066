package bedrock

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/tidwall/gjson"

	"github.com/kailas-cloud/ragchat/internal/domain"
)

const anthropicVersion = "bedrock-2023-05-31"

// ChatModel calls Anthropic models through the Bedrock messages API.
type ChatModel struct {
	rt    runtimeAPI
	model string
}

// NewChatModel creates an Anthropic chat model.
func NewChatModel(rt runtimeAPI, model string) *ChatModel {
	return &ChatModel{rt: rt, model: model}
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicMessage struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type anthropicRequest struct {
	AnthropicVersion string             `json:"anthropic_version"`
	System           string             `json:"system,omitempty"`
	Messages         []anthropicMessage `json:"messages"`
	MaxTokens        int                `json:"max_tokens"`
	Temperature      float64            `json:"temperature"`
}

// Complete returns the text of the first content block.
func (m *ChatModel) Complete(ctx context.Context, req domain.ModelRequest) (string, error) {
	body, err := encodeRequest(req)
	if err != nil {
		return "", err
	}
	out, err := m.rt.Invoke(ctx, m.model, body)
	if err != nil {
		return "", parseAPIError("chat", err, domain.ErrChatProviderError)
	}

	text := gjson.GetBytes(out, "content.0.text")
	if !text.Exists() {
		return "", fmt.Errorf("chat response has no content.0.text: %w", domain.ErrChatProviderError)
	}
	return text.String(), nil
}

// Stream yields delta.text of every content_block_delta event. Payloads that
// are not valid JSON are yielded as ErrMalformedChunk.
func (m *ChatModel) Stream(ctx context.Context, req domain.ModelRequest) (iter.Seq2[string, error], error) {
	body, err := encodeRequest(req)
	if err != nil {
		return nil, err
	}
	stream, err := m.rt.InvokeStream(ctx, m.model, body)
	if err != nil {
		return nil, parseAPIError("chat stream", err, domain.ErrChatProviderError)
	}

	return func(yield func(string, error) bool) {
		defer stream.Close()
		for ev := range stream.Events() {
			chunk, ok := ev.(*types.ResponseStreamMemberChunk)
			if !ok {
				continue
			}
			payload := chunk.Value.Bytes
			if !gjson.ValidBytes(payload) {
				if !yield("", fmt.Errorf("%w: %.120s", domain.ErrMalformedChunk, payload)) {
					return
				}
				continue
			}
			if gjson.GetBytes(payload, "type").String() != "content_block_delta" {
				continue
			}
			text := gjson.GetBytes(payload, "delta.text").String()
			if text == "" {
				continue
			}
			if !yield(text, nil) {
				return
			}
		}
		if err := stream.Err(); err != nil {
			yield("", parseAPIError("chat stream", err, domain.ErrChatProviderError))
		}
	}, nil
}

// HealthCheck verifies that AWS credentials resolve.
func (m *ChatModel) HealthCheck(ctx context.Context) error {
	return m.rt.CheckCredentials(ctx)
}

func encodeRequest(req domain.ModelRequest) ([]byte, error) {
	ar := anthropicRequest{
		AnthropicVersion: anthropicVersion,
		System:           req.System,
		Messages:         toAnthropicMessages(req.Messages),
		MaxTokens:        req.MaxTokens,
		Temperature:      req.Temperature,
	}
	body, err := json.Marshal(ar)
	if err != nil {
		return nil, fmt.Errorf("encode anthropic request: %w", err)
	}
	return body, nil
}

// toAnthropicMessages converts turns into single text content blocks.
func toAnthropicMessages(msgs []domain.Message) []anthropicMessage {
	out := make([]anthropicMessage, len(msgs))
	for i, msg := range msgs {
		out[i] = anthropicMessage{
			Role:    string(msg.Role),
			Content: []contentBlock{{Type: "text", Text: msg.Content}},
		}
	}
	return out
}
