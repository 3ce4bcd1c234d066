// Package filestore is a single-process db.Store persisted to a folder.
// Index and hash writes rewrite one snapshot file atomically; plain values ride
// along with the next such write or Close. Searches are exact scans.
package filestore

import (
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/kailas-cloud/ragchat/internal/db"
)

// Compile-time check: Store implements db.Store.
var _ db.Store = (*Store)(nil)

const snapshotName = "vectors.gob"

var errClosed = errors.New("filestore: closed")

// snapshot is the on-disk layout.
type snapshot struct {
	Indexes map[string]db.IndexDefinition
	Hashes  map[string]map[string]string
	Values  map[string][]byte
}

// Store keeps hashes and index definitions in memory and mirrors them to dir.
type Store struct {
	mu      sync.RWMutex
	dir     string
	indexes map[string]db.IndexDefinition
	hashes  map[string]map[string]string
	values  map[string][]byte
	dirty   bool // values changed since the last snapshot
	writes  int
	closed  bool
}

// Open loads the snapshot in dir, creating the folder if needed.
func Open(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("dir is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}

	s := &Store{
		dir:     dir,
		indexes: make(map[string]db.IndexDefinition),
		hashes:  make(map[string]map[string]string),
		values:  make(map[string][]byte),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Ping reports whether the store is open and its folder is reachable.
func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errClosed
	}
	if _, err := os.Stat(s.dir); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// WaitForReady returns immediately; a local folder has nothing to wait for.
func (s *Store) WaitForReady(ctx context.Context, _ time.Duration) error {
	return s.Ping(ctx)
}

// Close writes pending values and marks the store closed.
// A failed final write only loses cached values.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.dirty {
		_ = s.persist(snapshot{Indexes: s.indexes, Hashes: s.hashes, Values: s.values})
	}
	s.closed = true
}

// HSetMulti sets fields on each hash, creating hashes as needed.
// The whole batch is persisted at once; on failure nothing changes.
func (s *Store) HSetMulti(_ context.Context, items []db.HashSetItem) error {
	if len(items) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return &db.Error{Op: db.OpHSet, Err: errClosed}
	}

	next := make(map[string]map[string]string, len(s.hashes)+len(items))
	for k, v := range s.hashes {
		next[k] = v
	}
	for _, item := range items {
		merged := make(map[string]string, len(next[item.Key])+len(item.Fields))
		for k, v := range next[item.Key] {
			merged[k] = v
		}
		for k, v := range item.Fields {
			merged[k] = v
		}
		next[item.Key] = merged
	}

	if err := s.persist(snapshot{Indexes: s.indexes, Hashes: next, Values: s.values}); err != nil {
		return &db.Error{Op: db.OpHSet, Err: err}
	}
	s.hashes = next
	return nil
}

// Get returns a copy of the value at key or db.ErrKeyNotFound.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return append([]byte(nil), v...), nil
}

// Set stores value at key in memory. It reaches disk with the next hash or
// index write, or on Close.
func (s *Store) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return &db.Error{Op: db.OpSet, Err: errClosed}
	}
	s.values[key] = append([]byte(nil), value...)
	s.dirty = true
	return nil
}

// CreateIndex registers an index definition.
func (s *Store) CreateIndex(_ context.Context, def *db.IndexDefinition) error {
	if err := def.Validate(); err != nil {
		return &db.Error{Op: db.OpCreateIndex, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return &db.Error{Op: db.OpCreateIndex, Err: errClosed}
	}
	if _, ok := s.indexes[def.Name]; ok {
		return db.ErrIndexExists
	}

	next := make(map[string]db.IndexDefinition, len(s.indexes)+1)
	for k, v := range s.indexes {
		next[k] = v
	}
	next[def.Name] = cloneDefinition(def)

	if err := s.persist(snapshot{Indexes: next, Hashes: s.hashes, Values: s.values}); err != nil {
		return &db.Error{Op: db.OpCreateIndex, Err: err}
	}
	s.indexes = next
	return nil
}

// IndexExists reports whether an index with name is defined.
func (s *Store) IndexExists(_ context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.indexes[name]
	return ok, nil
}

// SearchCount returns the number of hashes covered by the index.
func (s *Store) SearchCount(_ context.Context, index string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, ok := s.indexes[index]
	if !ok {
		return 0, &db.Error{Op: db.OpSearch, Err: db.ErrIndexNotFound}
	}
	n := 0
	for key := range s.hashes {
		if hasAnyPrefix(key, def.Prefixes) {
			n++
		}
	}
	return n, nil
}

func (s *Store) load() error {
	f, err := os.Open(filepath.Join(s.dir, snapshotName))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return &db.Error{Op: db.OpLoad, Err: err}
	}
	defer f.Close()

	var snap snapshot
	if err := gob.NewDecoder(f).Decode(&snap); err != nil {
		return &db.Error{Op: db.OpLoad, Err: fmt.Errorf("decode %s: %w", f.Name(), err)}
	}
	if snap.Indexes != nil {
		s.indexes = snap.Indexes
	}
	if snap.Hashes != nil {
		s.hashes = snap.Hashes
	}
	if snap.Values != nil {
		s.values = snap.Values
	}
	return nil
}

// persist writes snap to a temp file in the same folder and renames it over the snapshot.
func (s *Store) persist(snap snapshot) error {
	tmp, err := os.CreateTemp(s.dir, "vectors-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := gob.NewEncoder(tmp).Encode(&snap); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(s.dir, snapshotName)); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	s.writes++
	s.dirty = false
	return nil
}

func cloneDefinition(def *db.IndexDefinition) db.IndexDefinition {
	c := *def
	c.Prefixes = append([]string(nil), def.Prefixes...)
	c.Fields = append([]db.IndexField(nil), def.Fields...)
	return c
}

func hasAnyPrefix(key string, prefixes []string) bool {
	if len(prefixes) == 0 {
		return true
	}
	for _, p := range prefixes {
		if strings.HasPrefix(key, p) {
			return true
		}
	}
	return false
}
