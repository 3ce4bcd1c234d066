package domain

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
)

// Role of a conversation turn.
type Role string

const (
	// RoleUser is a turn written by the human.
	RoleUser Role = "user"
	// RoleAssistant is a turn produced by the model.
	RoleAssistant Role = "assistant"
)

// NormalizeRole keeps "user" and maps every other value to assistant.
func NormalizeRole(r string) Role {
	if r == string(RoleUser) {
		return RoleUser
	}
	return RoleAssistant
}

// Message is a single conversation turn.
type Message struct {
	Role    Role
	Content string
}

// Chat defaults.
const (
	DefaultSystemPrompt = "You are a helpful assistant."
	DefaultTemperature  = 0.2
	DefaultMaxTokens    = 512
	DefaultTopK         = 4

	// HistoryWindow is how many prior turns are forwarded to the model.
	HistoryWindow = 6
)

// ChatRequest is the single configuration record for a chat turn.
// The chat endpoints and the augment debug endpoint both build one.
type ChatRequest struct {
	Message      string
	SystemPrompt string
	Temperature  float64
	MaxTokens    int
	UseRAG       bool
	TopK         int
	History      []Message
}

// NewChatRequest returns a request for message with every other field at its default.
func NewChatRequest(message string) ChatRequest {
	return ChatRequest{
		Message:      message,
		SystemPrompt: DefaultSystemPrompt,
		Temperature:  DefaultTemperature,
		MaxTokens:    DefaultMaxTokens,
		UseRAG:       true,
		TopK:         DefaultTopK,
	}
}

// Validate rejects requests that cannot be sent upstream.
func (r ChatRequest) Validate() error {
	if strings.TrimSpace(r.Message) == "" {
		return fmt.Errorf("%w: message is required", ErrInvalidArgument)
	}
	if r.MaxTokens < 1 {
		return fmt.Errorf("%w: max_tokens must be positive, got %d", ErrInvalidArgument, r.MaxTokens)
	}
	if r.Temperature < 0 {
		return fmt.Errorf("%w: temperature must not be negative", ErrInvalidArgument)
	}
	if r.UseRAG && r.TopK < 1 {
		return fmt.Errorf("%w: top_k must be at least 1, got %d", ErrInvalidArgument, r.TopK)
	}
	return nil
}

// RecentHistory returns the last HistoryWindow turns with normalized roles.
func (r ChatRequest) RecentHistory() []Message {
	h := r.History
	if len(h) > HistoryWindow {
		h = h[len(h)-HistoryWindow:]
	}
	out := make([]Message, len(h))
	for i, m := range h {
		out[i] = Message{Role: NormalizeRole(string(m.Role)), Content: m.Content}
	}
	return out
}

// ModelRequest is what a ChatModel receives: a fully assembled conversation.
type ModelRequest struct {
	System      string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// ErrMalformedChunk marks a stream chunk that could not be parsed.
// Streams yield it and keep going; consumers skip such chunks.
var ErrMalformedChunk = errors.New("malformed stream chunk")

// ChatModel is a hosted language model.
//
// Stream returns an error only if the stream cannot be opened. After that, the
// sequence yields text deltas; a non-nil error wrapping ErrMalformedChunk is
// skippable, any other error ends the stream. Breaking out of the loop releases
// the upstream connection.
type ChatModel interface {
	Complete(ctx context.Context, req ModelRequest) (string, error)
	Stream(ctx context.Context, req ModelRequest) (iter.Seq2[string, error], error)
}

// StreamEvent is one item delivered to a streaming client.
type StreamEvent struct {
	Token string
	Err   string
	Done  bool
}
