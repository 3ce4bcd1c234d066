package vector

import (
	"context"
	"testing"

	"github.com/kailas-cloud/ragchat/internal/db"
)

// mockStore implements the consumer interface for tests.
type mockStore struct {
	hsetMultiFn   func(ctx context.Context, items []db.HashSetItem) error
	createIndexFn func(ctx context.Context, def *db.IndexDefinition) error
	indexExistsFn func(ctx context.Context, name string) (bool, error)
	searchKNNFn   func(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	searchCountFn func(ctx context.Context, index string) (int, error)

	createCalls int
}

func (m *mockStore) HSetMulti(ctx context.Context, items []db.HashSetItem) error {
	if m.hsetMultiFn != nil {
		return m.hsetMultiFn(ctx, items)
	}
	return nil
}

func (m *mockStore) CreateIndex(ctx context.Context, def *db.IndexDefinition) error {
	m.createCalls++
	if m.createIndexFn != nil {
		return m.createIndexFn(ctx, def)
	}
	return nil
}

func (m *mockStore) IndexExists(ctx context.Context, name string) (bool, error) {
	if m.indexExistsFn != nil {
		return m.indexExistsFn(ctx, name)
	}
	return false, nil
}

func (m *mockStore) SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	if m.searchKNNFn != nil {
		return m.searchKNNFn(ctx, q)
	}
	return &db.SearchResult{}, nil
}

func (m *mockStore) SearchCount(ctx context.Context, index string) (int, error) {
	if m.searchCountFn != nil {
		return m.searchCountFn(ctx, index)
	}
	return 0, nil
}

func newTestRepo(t *testing.T) (*Repo, *mockStore) {
	t.Helper()
	ms := &mockStore{}
	return New(ms, "kb_main", HNSWConfig{M: 16, EFConstruct: 200}), ms
}
