// Package pgvector stores a chunk collection in a Postgres table with a pgvector column.
package pgvector

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	"github.com/kailas-cloud/ragchat/internal/domain"
)

// undefinedTable is the SQLSTATE for a missing relation.
const undefinedTable = "42P01"

// pool is the subset of *pgxpool.Pool the repository needs.
type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Ping(ctx context.Context) error
}

// Repo is one collection backed by the table ragchat_<collection>.
type Repo struct {
	pool       pool
	collection string
	table      string

	mu    sync.Mutex
	ready bool
}

// New creates a repository. The extension and table are created on the first upsert.
func New(p pool, collection string) *Repo {
	return &Repo{
		pool:       p,
		collection: collection,
		table:      pgx.Identifier{"ragchat_" + collection}.Sanitize(),
	}
}

// Collection returns the collection name.
func (r *Repo) Collection() string { return r.collection }

// Ping checks database connectivity.
func (r *Repo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Upsert writes the batch in one round trip, overwriting rows with the same id.
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

	b := &pgx.Batch{}
	for i, id := range batch.IDs {
		md := batch.Metadatas[i]
		b.Queue(
			`INSERT INTO `+r.table+` (id, document, source, chunk, path, embedding)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (id) DO UPDATE SET
			   document = EXCLUDED.document, source = EXCLUDED.source, chunk = EXCLUDED.chunk,
			   path = EXCLUDED.path, embedding = EXCLUDED.embedding`,
			id, batch.Documents[i], md.Source, md.Chunk, md.Path, pgvector.NewVector(batch.Embeddings[i]),
		)
	}

	br := r.pool.SendBatch(ctx, b)
	for i := range batch.IDs {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("%w: upsert %s: %w", domain.ErrVectorStore, batch.IDs[i], err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("%w: upsert batch: %w", domain.ErrVectorStore, err)
	}
	return nil
}

// Query returns up to k rows nearest by cosine distance.
func (r *Repo) Query(ctx context.Context, vector []float32, k int) ([]domain.Hit, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: k must be >= 1, got %d", domain.ErrInvalidArgument, k)
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("%w: query vector is empty", domain.ErrInvalidArgument)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, document, source, chunk, path, embedding <=> $1 AS distance
		 FROM `+r.table+`
		 ORDER BY distance, id
		 LIMIT $2`,
		pgvector.NewVector(vector), k,
	)
	if isUndefinedTable(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: query %s: %w", domain.ErrVectorStore, r.collection, err)
	}
	defer rows.Close()

	var hits []domain.Hit
	for rows.Next() {
		var h domain.Hit
		if err := rows.Scan(&h.ID, &h.Text, &h.Metadata.Source, &h.Metadata.Chunk, &h.Metadata.Path, &h.Distance); err != nil {
			return nil, fmt.Errorf("%w: scan hit: %w", domain.ErrVectorStore, err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		if isUndefinedTable(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: query %s: %w", domain.ErrVectorStore, r.collection, err)
	}
	return hits, nil
}

// Count returns the number of stored chunks.
func (r *Repo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM `+r.table).Scan(&n)
	if isUndefinedTable(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: count %s: %w", domain.ErrVectorStore, r.collection, err)
	}
	return n, nil
}

func (r *Repo) ensure(ctx context.Context, dim int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ready {
		return nil
	}

	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			document TEXT NOT NULL,
			source TEXT NOT NULL,
			chunk INTEGER NOT NULL,
			path TEXT NOT NULL,
			embedding vector(%d) NOT NULL
		)`, r.table, dim),
	}
	for _, stmt := range stmts {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("%w: create collection %s: %w", domain.ErrVectorStore, r.collection, err)
		}
	}

	r.ready = true
	return nil
}

func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == undefinedTable
}
