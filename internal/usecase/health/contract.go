package health

import "context"

// StorePinger checks vector store availability.
type StorePinger interface {
	Ping(ctx context.Context) error
}

// ProviderChecker checks a model provider's availability.
type ProviderChecker interface {
	HealthCheck(ctx context.Context) error
}

// ChunkCounter reports how many chunks the collection holds.
type ChunkCounter interface {
	Count(ctx context.Context) (int, error)
}
