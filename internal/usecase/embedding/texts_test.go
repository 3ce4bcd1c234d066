package embedding

import (
	"context"
	"errors"
	"testing"

	"github.com/kailas-cloud/ragchat/internal/domain"
)

func TestEmbedTexts_PreservesOrder(t *testing.T) {
	m := &mockEmbedder{}
	got, err := EmbedTexts(context.Background(), m, []string{"a", "bbb", "cc"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 vectors, got %d", len(got))
	}
	for i, want := range []float32{1, 3, 2} {
		if got[i][0] != want {
			t.Errorf("vector %d = %v, want [%v]", i, got[i], want)
		}
	}
	if len(m.calls) != 3 {
		t.Errorf("expected one call per text, got %d", len(m.calls))
	}
}

func TestEmbedTexts_Empty(t *testing.T) {
	got, err := EmbedTexts(context.Background(), &mockEmbedder{}, nil)
	if err != nil || len(got) != 0 {
		t.Errorf("EmbedTexts(nil) = %v, %v", got, err)
	}
}

func TestEmbedTexts_FirstFailureAborts(t *testing.T) {
	m := &mockEmbedder{err: errors.New("throttled"), failAt: 2}
	_, err := EmbedTexts(context.Background(), m, []string{"a", "b", "c"})
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Errorf("expected ErrEmbeddingProviderError, got %v", err)
	}
	if len(m.calls) != 2 {
		t.Errorf("expected abort after second call, got %d calls", len(m.calls))
	}
}

func TestEmbedTexts_EmptyVector(t *testing.T) {
	e := embedderFunc(func(context.Context, string) (domain.EmbeddingResult, error) {
		return domain.EmbeddingResult{}, nil
	})
	if _, err := EmbedTexts(context.Background(), e, []string{"a"}); !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Errorf("expected ErrEmbeddingProviderError, got %v", err)
	}
}
