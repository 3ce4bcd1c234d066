package embedding

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragchat/internal/domain"
)

type mockEmbedder struct {
	result  domain.EmbeddingResult
	err     error
	calls   []string
	failAt  int
	healthy error
}

func (m *mockEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	m.calls = append(m.calls, text)
	if m.err != nil && (m.failAt == 0 || len(m.calls) == m.failAt) {
		return domain.EmbeddingResult{}, m.err
	}
	if m.result.Embedding != nil {
		return m.result, nil
	}
	return domain.EmbeddingResult{Embedding: []float32{float32(len(text))}}, nil
}

func (m *mockEmbedder) HealthCheck(context.Context) error { return m.healthy }

func TestInstrumentedEmbedder_Success(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{
		Embedding: []float32{0.1, 0.2, 0.3},
	}}
	p := NewInstrumentedEmbedder(inner, "test", "test-model", zap.NewNop())

	result, err := p.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Embedding) != 3 {
		t.Fatalf("expected 3 dimensions, got %d", len(result.Embedding))
	}
}

func TestInstrumentedEmbedder_WithUsage(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{
		Embedding:    []float32{0.1, 0.2},
		PromptTokens: 100,
		TotalTokens:  100,
	}}
	p := NewInstrumentedEmbedder(inner, "test-usage", "test-model-u", zap.NewNop())

	result, err := p.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.TotalTokens != 100 {
		t.Errorf("expected usage to pass through, got %d", result.TotalTokens)
	}
}

func TestInstrumentedEmbedder_InnerError(t *testing.T) {
	inner := &mockEmbedder{err: errors.New("API error")}
	p := NewInstrumentedEmbedder(inner, "test", "test-model", zap.NewNop())

	_, err := p.Embed(context.Background(), "hello")
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, inner.err) {
		t.Errorf("expected wrapped inner error, got %v", err)
	}
}

func TestInstrumentedEmbedder_HealthCheck(t *testing.T) {
	inner := &mockEmbedder{healthy: errors.New("unreachable")}
	p := NewInstrumentedEmbedder(inner, "test", "m", zap.NewNop())
	if err := p.HealthCheck(context.Background()); err == nil {
		t.Error("expected health error to propagate")
	}

	plain := NewInstrumentedEmbedder(embedderFunc(nil), "test", "m", zap.NewNop())
	if err := plain.HealthCheck(context.Background()); err != nil {
		t.Errorf("embedder without health check should be healthy, got %v", err)
	}
}

type embedderFunc func(ctx context.Context, text string) (domain.EmbeddingResult, error)

func (f embedderFunc) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	return f(ctx, text)
}
