// Package retrieval finds the chunks most similar to a query and renders them as prompt context.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kailas-cloud/ragchat/internal/domain"
)

// Service embeds a query and asks the vector store for its neighbours.
type Service struct {
	store VectorStore
	embed Embedder
}

// New creates a retrieval service.
func New(store VectorStore, embed Embedder) *Service {
	return &Service{store: store, embed: embed}
}

// Retrieve returns up to k hits, closest first. Fewer are returned when the
// collection is smaller than k.
func (s *Service) Retrieve(ctx context.Context, query string, k int) ([]domain.Hit, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: k must be >= 1, got %d", domain.ErrInvalidArgument, k)
	}
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query is empty", domain.ErrInvalidArgument)
	}

	res, err := s.embed.Embed(ctx, query)
	if err != nil {
		if !errors.Is(err, domain.ErrEmbeddingProviderError) {
			err = fmt.Errorf("%w: %w", domain.ErrEmbeddingProviderError, err)
		}
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := s.store.Query(ctx, res.Embedding, k)
	if err != nil {
		return nil, fmt.Errorf("query store: %w", err)
	}
	return hits, nil
}

// FormatContext renders hits as "[source] text" blocks separated by a blank line.
func FormatContext(hits []domain.Hit) string {
	if len(hits) == 0 {
		return ""
	}
	blocks := make([]string, len(hits))
	for i, h := range hits {
		blocks[i] = "[" + h.Metadata.Source + "] " + h.Text
	}
	return strings.Join(blocks, "\n\n")
}
