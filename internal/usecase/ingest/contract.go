package ingest

import (
	"context"

	"github.com/kailas-cloud/ragchat/internal/domain"
)

// VectorStore persists chunk batches, overwriting rows with the same id.
type VectorStore interface {
	Upsert(ctx context.Context, batch domain.UpsertBatch) error
}

// Embedder vectorizes text into embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}
