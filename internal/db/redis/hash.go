package redis

import (
	"context"
	"fmt"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/ragchat/internal/db"
)

// HSetMulti stores multiple hashes in a single DoMulti round-trip.
func (s *Store) HSetMulti(ctx context.Context, items []db.HashSetItem) error {
	if len(items) == 0 {
		return nil
	}

	cmds := make([]rueidis.Completed, len(items))
	for i, item := range items {
		cmd := s.b().Hset().Key(item.Key).FieldValue()
		for k, v := range item.Fields {
			cmd = cmd.FieldValue(k, v)
		}
		cmds[i] = cmd.Build()
	}

	results := s.client.DoMulti(ctx, cmds...)
	for i, res := range results {
		if err := res.Error(); err != nil {
			return &db.Error{Op: db.OpHSet, Err: fmt.Errorf("key %s: %w", items[i].Key, err)}
		}
	}
	return nil
}

// scan iterates keys matching a pattern.
func (s *Store) scan(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	var cursor uint64

	for {
		cmd := s.b().Scan().Cursor(cursor).Match(pattern).Count(100).Build()
		res, err := s.do(ctx, cmd).AsScanEntry()
		if err != nil {
			return nil, &db.Error{Op: db.OpScan, Err: err}
		}
		keys = append(keys, res.Elements...)
		cursor = res.Cursor
		if cursor == 0 {
			break
		}
	}

	return keys, nil
}
