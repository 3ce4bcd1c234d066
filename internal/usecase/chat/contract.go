package chat

import (
	"context"

	"github.com/kailas-cloud/ragchat/internal/domain"
)

// Retriever finds the chunks nearest to a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]domain.Hit, error)
}
