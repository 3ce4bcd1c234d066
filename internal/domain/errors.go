package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument signals a malformed request (empty message, k < 1, mismatched batch).
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrChatProviderError signals a chat model failure or an unexpected response shape.
	ErrChatProviderError = errors.New("chat provider error")
	// ErrVectorStore signals a vector store failure.
	ErrVectorStore = errors.New("vector store error")
)

// PartialIngestError reports how many chunks were persisted before ingestion stopped.
type PartialIngestError struct {
	Ingested int
	Err      error
}

func (e *PartialIngestError) Error() string {
	return fmt.Sprintf("ingestion stopped after %d chunks: %v", e.Ingested, e.Err)
}

func (e *PartialIngestError) Unwrap() error { return e.Err }
