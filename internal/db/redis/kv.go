package redis

import (
	"context"
	"fmt"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/ragchat/internal/db"
)

// Get returns the raw value at key or db.ErrKeyNotFound.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	cmd := s.b().Get().Key(key).Build()
	data, err := s.do(ctx, cmd).AsBytes()
	if rueidis.IsRedisNil(err) {
		return nil, db.ErrKeyNotFound
	}
	if err != nil {
		return nil, &db.Error{Op: db.OpGet, Err: fmt.Errorf("key %s: %w", key, err)}
	}
	return data, nil
}

// Set stores value at key without expiry.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	cmd := s.b().Set().Key(key).Value(rueidis.BinaryString(value)).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		return &db.Error{Op: db.OpSet, Err: fmt.Errorf("key %s: %w", key, err)}
	}
	return nil
}
