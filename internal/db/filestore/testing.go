package filestore

// SnapshotWritesForTest reports how many snapshot files were written (test-only).
func (s *Store) SnapshotWritesForTest() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}
