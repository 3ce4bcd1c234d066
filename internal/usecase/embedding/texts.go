package embedding

import (
	"context"
	"errors"
	"fmt"

	"github.com/kailas-cloud/ragchat/internal/domain"
)

// EmbedTexts embeds each text with one provider call, preserving order.
// The first failure aborts; no retries beyond the provider client's own.
func EmbedTexts(ctx context.Context, e domain.Embedder, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for i, text := range texts {
		res, err := e.Embed(ctx, text)
		if err != nil {
			if !errors.Is(err, domain.ErrEmbeddingProviderError) {
				err = fmt.Errorf("%w: %w", domain.ErrEmbeddingProviderError, err)
			}
			return nil, fmt.Errorf("text %d of %d: %w", i+1, len(texts), err)
		}
		if len(res.Embedding) == 0 {
			return nil, fmt.Errorf("text %d of %d: %w: empty embedding", i+1, len(texts), domain.ErrEmbeddingProviderError)
		}
		out = append(out, res.Embedding)
	}
	return out, nil
}
