package ingest

import (
	"context"
	"errors"
	"os"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragchat/internal/db/filestore"
	"github.com/kailas-cloud/ragchat/internal/domain"
	"github.com/kailas-cloud/ragchat/internal/metrics"
	"github.com/kailas-cloud/ragchat/internal/repository/embcache"
	"github.com/kailas-cloud/ragchat/internal/repository/vector"
)

func TestMain(m *testing.M) {
	metrics.RegisterChatMetrics()
	os.Exit(m.Run())
}

// --- Mocks ---

type mockStore struct {
	batches []domain.UpsertBatch
	err     error
	failOn  int // 1-based call that fails; 0 = every call when err is set
}

func (m *mockStore) Upsert(_ context.Context, b domain.UpsertBatch) error {
	if m.err != nil && (m.failOn == 0 || len(m.batches)+1 == m.failOn) {
		return m.err
	}
	m.batches = append(m.batches, b)
	return nil
}

type mockEmbedder struct {
	err   error
	calls int
}

func (m *mockEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	m.calls++
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return domain.EmbeddingResult{Embedding: []float32{float32(len(text)), 1}}, nil
}

func newTestService(store VectorStore, emb Embedder) *Service {
	return New(store, emb, zap.NewNop())
}

func TestIngestFolder_Success(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "one two three four five")
	writeFile(t, dir, "b.md", "six seven")

	store := &mockStore{}
	emb := &mockEmbedder{}
	svc := newTestService(store, emb).WithChunking(3, 1)

	res, err := svc.IngestFolder(context.Background(), dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// a.txt -> [one two three] [three four five]; b.md -> [six seven]
	if res.Ingested != 3 || res.Files != 2 {
		t.Errorf("unexpected result: %+v", res)
	}
	if res.RunID == "" {
		t.Error("expected run id")
	}
	if len(store.batches) != 2 {
		t.Fatalf("expected one upsert per file, got %d", len(store.batches))
	}
	if emb.calls != 3 {
		t.Errorf("expected 3 embed calls, got %d", emb.calls)
	}
	for _, b := range store.batches {
		if err := b.Validate(); err != nil {
			t.Errorf("invalid batch: %v", err)
		}
	}
}

func TestIngestFolder_EmptyFolder(t *testing.T) {
	store := &mockStore{}
	res, err := newTestService(store, &mockEmbedder{}).IngestFolder(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Ingested != 0 || len(store.batches) != 0 {
		t.Errorf("expected nothing ingested, got %+v", res)
	}
}

func TestIngestFolder_MissingFolder(t *testing.T) {
	_, err := newTestService(&mockStore{}, &mockEmbedder{}).IngestFolder(context.Background(), "/does/not/exist")
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
	var partial *domain.PartialIngestError
	if errors.As(err, &partial) {
		t.Error("load failure should not be a partial ingest")
	}
}

func TestIngestFolder_EmbeddingFailure(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "hello")

	store := &mockStore{}
	_, err := newTestService(store, &mockEmbedder{err: errors.New("throttled")}).IngestFolder(context.Background(), dir)

	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Errorf("expected ErrEmbeddingProviderError, got %v", err)
	}
	var partial *domain.PartialIngestError
	if !errors.As(err, &partial) || partial.Ingested != 0 {
		t.Errorf("expected partial ingest of 0, got %v", err)
	}
	if len(store.batches) != 0 {
		t.Error("nothing should be upserted")
	}
}

func TestIngestFolder_PartialStoreFailure(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "one")
	writeFile(t, dir, "b.txt", "two")

	store := &mockStore{err: domain.ErrVectorStore, failOn: 2}
	_, err := newTestService(store, &mockEmbedder{}).IngestFolder(context.Background(), dir)

	var partial *domain.PartialIngestError
	if !errors.As(err, &partial) {
		t.Fatalf("expected PartialIngestError, got %v", err)
	}
	if partial.Ingested != 1 {
		t.Errorf("expected 1 chunk persisted before failure, got %d", partial.Ingested)
	}
	if !errors.Is(err, domain.ErrVectorStore) {
		t.Errorf("expected ErrVectorStore cause, got %v", err)
	}
}

func TestIngestFolder_Cancelled(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "one")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestService(&mockStore{}, &mockEmbedder{}).IngestFolder(ctx, dir)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestIngestFolder_ReingestIsIdempotent(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeFile(t, dir, "notes.txt", "alpha beta gamma delta epsilon")
	writeFile(t, dir, "sub/more.md", "zeta eta")

	fs, err := filestore.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(fs.Close)
	repo := vector.New(fs, "kb_main", vector.HNSWConfig{})
	svc := newTestService(repo, &mockEmbedder{}).WithChunking(3, 1)

	first, err := svc.IngestFolder(ctx, dir)
	if err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	second, err := svc.IngestFolder(ctx, dir)
	if err != nil {
		t.Fatalf("second ingest: %v", err)
	}
	if first.Ingested != second.Ingested {
		t.Errorf("runs differ: %d vs %d", first.Ingested, second.Ingested)
	}
	if first.RunID == second.RunID {
		t.Error("each run should get its own id")
	}

	n, err := repo.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != first.Ingested {
		t.Errorf("store holds %d chunks after re-ingest, want %d", n, first.Ingested)
	}
}

func TestIngestFolder_DuplicateFileNames(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a/notes.txt", "alpha")
	writeFile(t, dir, "b/notes.txt", "beta")

	store := &mockStore{}
	emb := &mockEmbedder{}
	res, err := newTestService(store, emb).IngestFolder(context.Background(), dir)

	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	if res.Ingested != 0 || len(store.batches) != 0 || emb.calls != 0 {
		t.Errorf("nothing should be embedded or stored: ingested=%d batches=%d calls=%d",
			res.Ingested, len(store.batches), emb.calls)
	}
}

func TestIngestFolder_FileStoreWritesPerFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	files := []string{"a.txt", "b.txt", "c.md", "sub/d.md"}
	for _, f := range files {
		writeFile(t, dir, f, "one two three four five six seven eight nine ten")
	}

	fs, err := filestore.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(fs.Close)
	repo := vector.New(fs, "kb_main", vector.HNSWConfig{})
	emb := embcache.New(&mockEmbedder{}, fs, "test-model", nil, zap.NewNop())
	svc := newTestService(repo, emb).WithChunking(3, 1)

	res, err := svc.IngestFolder(ctx, dir)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if res.Ingested <= len(files) {
		t.Fatalf("expected several chunks per file, got %d", res.Ingested)
	}
	// One write per file batch plus the index definition.
	if got, limit := fs.SnapshotWritesForTest(), len(files)+1; got > limit {
		t.Errorf("%d snapshot writes for %d chunks in %d files, want at most %d",
			got, res.Ingested, len(files), limit)
	}
}
