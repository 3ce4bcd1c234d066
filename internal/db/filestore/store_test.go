package filestore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/kailas-cloud/ragchat/internal/db"
)

func testIndex(t *testing.T, dim int) *db.IndexDefinition {
	t.Helper()
	def, err := db.NewIndex("ragchat:kb:idx").
		Prefix("ragchat:kb:").
		Tag("source").
		VectorHNSW("__vector", "vector", dim, db.DistanceCosine, 0, 0).
		Build()
	if err != nil {
		t.Fatalf("build index: %v", err)
	}
	return def
}

func item(key, source string, vec ...float32) db.HashSetItem {
	return db.HashSetItem{Key: key, Fields: map[string]string{
		"__content": "text of " + key,
		"source":    source,
		"__vector":  db.EncodeVector(vec),
	}}
}

func openStore(t *testing.T, dir string) *Store {
	t.Helper()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestOpen_RequiresDir(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Fatal("expected error")
	}
}

func TestCreateIndex_Idempotency(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, t.TempDir())

	if err := s.CreateIndex(ctx, testIndex(t, 2)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.CreateIndex(ctx, testIndex(t, 2)); !errors.Is(err, db.ErrIndexExists) {
		t.Errorf("expected ErrIndexExists, got %v", err)
	}
	ok, err := s.IndexExists(ctx, "ragchat:kb:idx")
	if err != nil || !ok {
		t.Errorf("IndexExists = %v, %v", ok, err)
	}
}

func TestCreateIndex_Invalid(t *testing.T) {
	s := openStore(t, t.TempDir())
	err := s.CreateIndex(context.Background(), &db.IndexDefinition{Name: "x"})
	var dbErr *db.Error
	if !errors.As(err, &dbErr) {
		t.Errorf("expected db.Error, got %v", err)
	}
}

func TestSearchKNN_OrdersByDistance(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, t.TempDir())
	if err := s.CreateIndex(ctx, testIndex(t, 2)); err != nil {
		t.Fatalf("create: %v", err)
	}
	err := s.HSetMulti(ctx, []db.HashSetItem{
		item("ragchat:kb:far", "a.txt", 0, 1),
		item("ragchat:kb:near", "b.txt", 1, 0.1),
		item("ragchat:kb:exact", "c.txt", 2, 0),
		item("other:skip", "d.txt", 1, 0),
	})
	if err != nil {
		t.Fatalf("hset: %v", err)
	}

	res, err := s.SearchKNN(ctx, &db.KNNQuery{IndexName: "ragchat:kb:idx", Vector: []float32{1, 0}, K: 2})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if res.Total != 3 {
		t.Errorf("expected 3 candidates, got %d", res.Total)
	}
	if len(res.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(res.Entries))
	}
	if res.Entries[0].Key != "ragchat:kb:exact" || res.Entries[1].Key != "ragchat:kb:near" {
		t.Errorf("unexpected order: %s, %s", res.Entries[0].Key, res.Entries[1].Key)
	}
	if res.Entries[0].Score > 1e-6 {
		t.Errorf("expected ~0 distance for identical direction, got %f", res.Entries[0].Score)
	}
	if _, ok := res.Entries[0].Fields["__vector"]; ok {
		t.Error("vector should not be returned by default")
	}
	if res.Entries[0].Fields["source"] != "c.txt" {
		t.Errorf("unexpected fields: %v", res.Entries[0].Fields)
	}
}

func TestSearchKNN_FewerThanK(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, t.TempDir())
	if err := s.CreateIndex(ctx, testIndex(t, 2)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.HSetMulti(ctx, []db.HashSetItem{item("ragchat:kb:one", "a", 1, 1)}); err != nil {
		t.Fatalf("hset: %v", err)
	}
	res, err := s.SearchKNN(ctx, &db.KNNQuery{IndexName: "ragchat:kb:idx", Vector: []float32{1, 0}, K: 10})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(res.Entries) != 1 {
		t.Errorf("expected 1 entry, got %d", len(res.Entries))
	}
}

func TestSearchKNN_ReturnFields(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, t.TempDir())
	if err := s.CreateIndex(ctx, testIndex(t, 2)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.HSetMulti(ctx, []db.HashSetItem{item("ragchat:kb:one", "a", 1, 1)}); err != nil {
		t.Fatalf("hset: %v", err)
	}
	res, err := s.SearchKNN(ctx, &db.KNNQuery{
		IndexName: "ragchat:kb:idx", Vector: []float32{1, 0}, K: 1, ReturnFields: []string{"source"},
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(res.Entries[0].Fields) != 1 || res.Entries[0].Fields["source"] != "a" {
		t.Errorf("unexpected projection: %v", res.Entries[0].Fields)
	}
}

func TestSearchKNN_Errors(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, t.TempDir())
	if err := s.CreateIndex(ctx, testIndex(t, 2)); err != nil {
		t.Fatalf("create: %v", err)
	}

	_, err := s.SearchKNN(ctx, &db.KNNQuery{IndexName: "missing", Vector: []float32{1, 0}, K: 1})
	if !errors.Is(err, db.ErrIndexNotFound) {
		t.Errorf("expected ErrIndexNotFound, got %v", err)
	}
	if _, err := s.SearchKNN(ctx, &db.KNNQuery{IndexName: "ragchat:kb:idx", Vector: []float32{1, 0, 0}, K: 1}); err == nil {
		t.Error("expected dimension error")
	}
	if _, err := s.SearchKNN(ctx, &db.KNNQuery{IndexName: "ragchat:kb:idx", Vector: []float32{1, 0}}); err == nil {
		t.Error("expected k error")
	}
}

func TestHSetMulti_OverwritesAndPersists(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s := openStore(t, dir)
	if err := s.CreateIndex(ctx, testIndex(t, 2)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.HSetMulti(ctx, []db.HashSetItem{item("ragchat:kb:a", "old", 1, 0)}); err != nil {
		t.Fatalf("hset: %v", err)
	}
	if err := s.HSetMulti(ctx, []db.HashSetItem{item("ragchat:kb:a", "new", 0, 1)}); err != nil {
		t.Fatalf("hset: %v", err)
	}
	s.Close()

	reopened := openStore(t, dir)
	n, err := reopened.SearchCount(ctx, "ragchat:kb:idx")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 document after overwrite, got %d", n)
	}
	res, err := reopened.SearchKNN(ctx, &db.KNNQuery{IndexName: "ragchat:kb:idx", Vector: []float32{0, 1}, K: 1})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if res.Entries[0].Fields["source"] != "new" {
		t.Errorf("expected overwritten source, got %v", res.Entries[0].Fields)
	}

	leftovers, _ := filepath.Glob(filepath.Join(dir, "*.tmp"))
	if len(leftovers) != 0 {
		t.Errorf("temp files left behind: %v", leftovers)
	}
}

func TestOpen_CorruptSnapshot(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, snapshotName), []byte("not gob"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(dir); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestClosedStore(t *testing.T) {
	s := openStore(t, t.TempDir())
	s.Close()
	if err := s.Ping(context.Background()); err == nil {
		t.Error("expected ping error on closed store")
	}
	if err := s.HSetMulti(context.Background(), []db.HashSetItem{item("k", "s", 1)}); err == nil {
		t.Error("expected write error on closed store")
	}
}

func TestCosineDistance(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2}, []float32{2, 4}, 0},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 1},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, 2},
		{"zero", []float32{0, 0}, []float32{1, 0}, 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := cosineDistance(tc.a, tc.b)
			if got < tc.want-1e-6 || got > tc.want+1e-6 {
				t.Errorf("cosineDistance = %f, want %f", got, tc.want)
			}
		})
	}
}

func TestGetSet_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := openStore(t, dir)

	if _, err := s.Get(ctx, "cache:a"); !errors.Is(err, db.ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
	if err := s.Set(ctx, "cache:a", []byte{1, 2, 3}); err != nil {
		t.Fatalf("set: %v", err)
	}
	s.Close()

	reopened := openStore(t, dir)
	got, err := reopened.Get(ctx, "cache:a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 3 || got[2] != 3 {
		t.Errorf("unexpected value: %v", got)
	}
}

func TestSet_NotCountedByIndex(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, t.TempDir())
	if err := s.CreateIndex(ctx, testIndex(t, 2)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Set(ctx, "ragchat:kb:stray", []byte("x")); err != nil {
		t.Fatalf("set: %v", err)
	}
	n, err := s.SearchCount(ctx, "ragchat:kb:idx")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Errorf("plain values must not be indexed, got %d", n)
	}
}

func TestSet_DefersWriteToNextHashWrite(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := openStore(t, dir)

	for i := range 50 {
		key := "cache:" + string(rune('a'+i%26)) + string(rune('a'+i/26))
		if err := s.Set(ctx, key, []byte{byte(i)}); err != nil {
			t.Fatalf("set %d: %v", i, err)
		}
	}
	if got := s.SnapshotWritesForTest(); got != 0 {
		t.Fatalf("Set wrote %d snapshots, want 0", got)
	}

	if err := s.HSetMulti(ctx, []db.HashSetItem{item("ragchat:kb:a", "a.txt", 1, 0)}); err != nil {
		t.Fatalf("hset: %v", err)
	}
	if got := s.SnapshotWritesForTest(); got != 1 {
		t.Fatalf("expected one snapshot write, got %d", got)
	}

	reopened, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if v, err := reopened.Get(ctx, "cache:aa"); err != nil || len(v) != 1 || v[0] != 0 {
		t.Errorf("cached value not carried by the hash write: %v, %v", v, err)
	}
}

func TestClose_WritesOnlyWhenDirty(t *testing.T) {
	ctx := context.Background()

	clean, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	clean.Close()
	if got := clean.SnapshotWritesForTest(); got != 0 {
		t.Errorf("clean close wrote %d snapshots", got)
	}

	dirty, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := dirty.Set(ctx, "cache:x", []byte("v")); err != nil {
		t.Fatalf("set: %v", err)
	}
	dirty.Close()
	dirty.Close()
	if got := dirty.SnapshotWritesForTest(); got != 1 {
		t.Errorf("dirty close wrote %d snapshots, want 1", got)
	}
}
