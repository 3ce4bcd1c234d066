package retrieval

import (
	"context"

	"github.com/kailas-cloud/ragchat/internal/domain"
)

// VectorStore answers nearest-neighbour queries.
type VectorStore interface {
	Query(ctx context.Context, vector []float32, k int) ([]domain.Hit, error)
}

// Embedder vectorizes text into embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}
