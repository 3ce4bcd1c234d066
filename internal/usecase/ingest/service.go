// Package ingest loads a knowledge folder into the vector store.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragchat/internal/domain"
	"github.com/kailas-cloud/ragchat/internal/logger"
	"github.com/kailas-cloud/ragchat/internal/metrics"
	"github.com/kailas-cloud/ragchat/internal/usecase/embedding"
)

// Result summarizes one ingestion run.
type Result struct {
	RunID    string
	Files    int
	Ingested int
}

// Service runs chunk, embed and upsert per file.
type Service struct {
	store   VectorStore
	embed   Embedder
	size    int
	overlap int
	logger  *zap.Logger
}

// New creates an ingestion service with the default chunking policy.
func New(store VectorStore, embed Embedder, logger *zap.Logger) *Service {
	return &Service{
		store:   store,
		embed:   embed,
		size:    domain.DefaultChunkSize,
		overlap: domain.DefaultChunkOverlap,
		logger:  logger,
	}
}

// WithChunking overrides the chunk size and overlap.
func (s *Service) WithChunking(size, overlap int) *Service {
	if size > 0 {
		s.size = size
	}
	if overlap >= 0 {
		s.overlap = overlap
	}
	return s
}

// IngestFolder indexes every supported file under root. Re-running is safe:
// chunk ids are stable, so existing rows are overwritten.
// Once loading succeeds, any failure stops the run with a *domain.PartialIngestError
// reporting how many chunks were already persisted.
func (s *Service) IngestFolder(ctx context.Context, root string) (Result, error) {
	res := Result{RunID: uuid.NewString()}
	log := logger.FromContextOr(ctx, s.logger).With(
		zap.String("run_id", res.RunID),
		zap.String("root", root),
	)
	start := time.Now()

	files, err := LoadFolderByFile(root, s.size, s.overlap)
	if err != nil {
		return res, fmt.Errorf("load folder: %w", err)
	}

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return res, s.partial(res, err)
		}
		n, err := s.ingestFile(ctx, f)
		if err != nil {
			log.Error("Ingestion stopped",
				zap.String("path", f.Path),
				zap.Int("ingested_chunks", res.Ingested),
				zap.Error(err),
			)
			return res, s.partial(res, fmt.Errorf("ingest %s: %w", f.Path, err))
		}
		res.Files++
		res.Ingested += n
		metrics.IngestedChunksTotal.Add(float64(n))
	}

	log.Info("Ingestion completed",
		zap.Int("files", res.Files),
		zap.Int("ingested_chunks", res.Ingested),
		zap.Duration("duration", time.Since(start)),
	)
	return res, nil
}

func (s *Service) ingestFile(ctx context.Context, f FileChunks) (int, error) {
	texts := make([]string, len(f.Chunks))
	for i, c := range f.Chunks {
		texts[i] = c.Text
	}

	vectors, err := embedding.EmbedTexts(ctx, s.embed, texts)
	if err != nil {
		return 0, err
	}
	if err := s.store.Upsert(ctx, domain.BatchFromChunks(f.Chunks, vectors)); err != nil {
		return 0, err
	}
	return len(f.Chunks), nil
}

func (s *Service) partial(res Result, err error) error {
	return &domain.PartialIngestError{Ingested: res.Ingested, Err: err}
}
