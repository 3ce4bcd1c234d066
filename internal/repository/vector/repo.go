// Package vector stores chunk embeddings as hashes under one FT index per collection.
package vector

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/kailas-cloud/ragchat/internal/db"
	"github.com/kailas-cloud/ragchat/internal/domain"
)

const (
	keyPrefix = "ragchat:"

	fieldContent = "__content"
	fieldVector  = "__vector"
	fieldSource  = "source"
	fieldChunk   = "chunk"
	fieldPath    = "path"
)

var returnFields = []string{fieldContent, fieldSource, fieldChunk, fieldPath}

// store is the consumer interface for collection operations (ISP).
type store interface {
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	SearchCount(ctx context.Context, index string) (int, error)
}

// HNSWConfig holds HNSW index parameters.
type HNSWConfig struct {
	M           int
	EFConstruct int
}

// Repo is a single named collection of chunks with cosine distance.
type Repo struct {
	store      store
	collection string
	hnsw       HNSWConfig

	mu    sync.Mutex
	ready bool
}

// New creates a collection repository. The index is created lazily on the first upsert.
func New(s store, collection string, hnsw HNSWConfig) *Repo {
	return &Repo{store: s, collection: collection, hnsw: hnsw}
}

// Collection returns the collection name.
func (r *Repo) Collection() string { return r.collection }

// Upsert writes the batch, overwriting rows with the same id.
func (r *Repo) Upsert(ctx context.Context, batch domain.UpsertBatch) error {
	if err := batch.Validate(); err != nil {
		return err
	}
	if batch.Len() == 0 {
		return nil
	}
	if err := r.ensure(ctx, len(batch.Embeddings[0])); err != nil {
		return err
	}

	items := make([]db.HashSetItem, batch.Len())
	for i, id := range batch.IDs {
		items[i] = db.HashSetItem{
			Key:    r.key(id),
			Fields: buildHashFields(batch.Documents[i], batch.Metadatas[i], batch.Embeddings[i]),
		}
	}
	if err := r.store.HSetMulti(ctx, items); err != nil {
		return fmt.Errorf("%w: upsert %d rows into %s: %w", domain.ErrVectorStore, len(items), r.collection, err)
	}
	return nil
}

// Query returns up to k hits closest to vector, ascending by distance.
// A collection that was never written to yields no hits.
func (r *Repo) Query(ctx context.Context, vector []float32, k int) ([]domain.Hit, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: k must be >= 1, got %d", domain.ErrInvalidArgument, k)
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("%w: query vector is empty", domain.ErrInvalidArgument)
	}

	sr, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    r.indexName(),
		Vector:       vector,
		K:            k,
		ReturnFields: returnFields,
	})
	if errors.Is(err, db.ErrIndexNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: query %s: %w", domain.ErrVectorStore, r.collection, err)
	}

	return r.parseHits(sr), nil
}

// Count returns the number of stored chunks.
func (r *Repo) Count(ctx context.Context) (int, error) {
	n, err := r.store.SearchCount(ctx, r.indexName())
	if errors.Is(err, db.ErrIndexNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: count %s: %w", domain.ErrVectorStore, r.collection, err)
	}
	return n, nil
}

// ensure opens or creates the index once. A concurrent creator winning the race is fine.
func (r *Repo) ensure(ctx context.Context, dim int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ready {
		return nil
	}

	exists, err := r.store.IndexExists(ctx, r.indexName())
	if err != nil {
		return fmt.Errorf("%w: check index %s: %w", domain.ErrVectorStore, r.indexName(), err)
	}
	if !exists {
		def, err := r.buildIndex(dim)
		if err != nil {
			return fmt.Errorf("%w: %w", domain.ErrVectorStore, err)
		}
		if err := r.store.CreateIndex(ctx, def); err != nil && !errors.Is(err, db.ErrIndexExists) {
			return fmt.Errorf("%w: create index %s: %w", domain.ErrVectorStore, def.Name, err)
		}
	}

	r.ready = true
	return nil
}

func (r *Repo) buildIndex(dim int) (*db.IndexDefinition, error) {
	return db.NewIndex(r.indexName()).
		Prefix(r.prefix()).
		Tag(fieldSource).
		Numeric(fieldChunk).
		VectorHNSW(fieldVector, "vector", dim, db.DistanceCosine, r.hnsw.M, r.hnsw.EFConstruct).
		Build()
}

func (r *Repo) parseHits(sr *db.SearchResult) []domain.Hit {
	if sr == nil || len(sr.Entries) == 0 {
		return nil
	}
	hits := make([]domain.Hit, 0, len(sr.Entries))
	for _, e := range sr.Entries {
		hits = append(hits, parseHit(strings.TrimPrefix(e.Key, r.prefix()), e))
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	return hits
}

func (r *Repo) prefix() string    { return keyPrefix + r.collection + ":" }
func (r *Repo) indexName() string { return r.prefix() + "idx" }
func (r *Repo) key(id string) string {
	return r.prefix() + id
}

// buildHashFields flattens one row into hash fields.
func buildHashFields(text string, md domain.Metadata, vec []float32) map[string]string {
	return map[string]string{
		fieldContent: text,
		fieldVector:  db.EncodeVector(vec),
		fieldSource:  md.Source,
		fieldChunk:   strconv.Itoa(md.Chunk),
		fieldPath:    md.Path,
	}
}

func parseHit(id string, e db.SearchEntry) domain.Hit {
	chunk, _ := strconv.Atoi(e.Fields[fieldChunk])
	return domain.Hit{
		ID:   id,
		Text: e.Fields[fieldContent],
		Metadata: domain.Metadata{
			Source: e.Fields[fieldSource],
			Chunk:  chunk,
			Path:   e.Fields[fieldPath],
		},
		Distance: e.Score,
	}
}
