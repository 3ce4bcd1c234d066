package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/ragchat/internal/db"
)

// SearchKNN runs a KNN vector similarity search via FT.SEARCH.
// Entry scores are the raw __vector_score (cosine distance, lower is closer).
func (s *Store) SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	if q.IndexName == "" {
		return nil, fmt.Errorf("index name is required")
	}
	if len(q.Vector) == 0 {
		return nil, fmt.Errorf("vector is required")
	}
	if q.K <= 0 {
		return nil, fmt.Errorf("k must be positive")
	}

	queryStr := fmt.Sprintf("*=>[KNN %d @vector $BLOB]", q.K)

	args := []string{q.IndexName, queryStr}

	if len(q.ReturnFields) > 0 {
		args = append(args, "RETURN", strconv.Itoa(len(q.ReturnFields)))
		args = append(args, q.ReturnFields...)
	}

	// Default LIMIT is 10; without this k > 10 would be truncated.
	args = append(args,
		"LIMIT", "0", strconv.Itoa(q.K),
		"PARAMS", "2", "BLOB", db.EncodeVector(q.Vector),
		"DIALECT", "2",
	)

	cmd := s.b().Arbitrary("FT.SEARCH").Args(args...).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		if isMissingIndex(err) {
			return nil, &db.Error{Op: db.OpSearch, Err: db.ErrIndexNotFound}
		}
		return nil, &db.Error{Op: db.OpSearch, Err: err}
	}

	return parseKNNResult(raw)
}

// SearchCount returns the number of documents covered by the index.
// valkey-search does not support FT.SEARCH without KNN, so Valkey counts keys via SCAN.
func (s *Store) SearchCount(ctx context.Context, index string) (int, error) {
	if s.flavor == FlavorValkey {
		keys, err := s.scan(ctx, indexToKeyPrefix(index)+"*")
		if err != nil {
			return 0, fmt.Errorf("scan for count: %w", err)
		}
		return len(keys), nil
	}

	cmd := s.b().Arbitrary("FT.SEARCH").Args(index, "*", "LIMIT", "0", "0").Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		if isMissingIndex(err) {
			return 0, &db.Error{Op: db.OpSearch, Err: db.ErrIndexNotFound}
		}
		return 0, &db.Error{Op: db.OpSearch, Err: err}
	}
	if len(raw) == 0 {
		return 0, nil
	}
	total, err := raw[0].AsInt64()
	if err != nil {
		return 0, fmt.Errorf("parse count: %w", err)
	}
	return int(total), nil
}

// indexToKeyPrefix converts an index name to its key prefix.
// "ragchat:kb_main:idx" -> "ragchat:kb_main:"
func indexToKeyPrefix(index string) string {
	if strings.HasSuffix(index, ":idx") {
		return index[:len(index)-3]
	}
	return index + ":"
}

func parseKNNResult(raw []rueidis.RedisMessage) (*db.SearchResult, error) {
	if len(raw) == 0 {
		return &db.SearchResult{}, nil
	}

	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}
	if total == 0 {
		return &db.SearchResult{}, nil
	}

	entries := make([]db.SearchEntry, 0, total)
	// 2-stride: [total, key1, fields1, key2, fields2, ...]
	for i := 1; i+1 < len(raw); i += 2 {
		key, err := raw[i].ToString()
		if err != nil {
			continue
		}

		fields, err := raw[i+1].ToArray()
		if err != nil {
			continue
		}

		entry := db.SearchEntry{
			Key:    key,
			Fields: parseFieldPairs(fields),
		}

		if scoreStr, ok := entry.Fields["__vector_score"]; ok {
			if d, err := strconv.ParseFloat(scoreStr, 64); err == nil {
				entry.Score = d
			}
			delete(entry.Fields, "__vector_score")
		}

		entries = append(entries, entry)
	}

	return &db.SearchResult{Total: int(total), Entries: entries}, nil
}

func parseFieldPairs(fields []rueidis.RedisMessage) map[string]string {
	m := make(map[string]string, len(fields)/2)
	for j := 0; j+1 < len(fields); j += 2 {
		name, err := fields[j].ToString()
		if err != nil {
			continue
		}
		value, err := fields[j+1].ToString()
		if err != nil {
			continue
		}
		m[name] = value
	}
	return m
}
