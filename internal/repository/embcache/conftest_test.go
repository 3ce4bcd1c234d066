package embcache

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragchat/internal/db"
	"github.com/kailas-cloud/ragchat/internal/domain"
)

type mockEmbedder struct {
	result domain.EmbeddingResult
	err    error
	calls  int
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	m.calls++
	return m.result, m.err
}

// mapStore is an in-memory store with optional failure injection.
type mapStore struct {
	data   map[string][]byte
	getErr error
	setErr error
	keys   []string
}

func (m *mapStore) Get(_ context.Context, key string) ([]byte, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	v, ok := m.data[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (m *mapStore) Set(_ context.Context, key string, value []byte) error {
	if m.setErr != nil {
		return m.setErr
	}
	if m.data == nil {
		m.data = make(map[string][]byte)
	}
	m.data[key] = value
	m.keys = append(m.keys, key)
	return nil
}

func newTestCachedEmbedder(t *testing.T, inner *mockEmbedder, model string) (*CachedEmbedder, *mapStore) {
	t.Helper()
	ms := &mapStore{}
	return New(inner, ms, model, nil, zap.NewNop()), ms
}
