package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/ragchat/internal/db"
)

// Compile-time check: Store implements db.Store.
var _ db.Store = (*Store)(nil)

// Flavor selects server-specific behavior.
type Flavor string

const (
	// FlavorRedis targets Redis 8+ with the query engine.
	FlavorRedis Flavor = "redis"
	// FlavorValkey targets Valkey with valkey-search, which only answers KNN queries.
	FlavorValkey Flavor = "valkey"
)

// Config holds connection parameters.
type Config struct {
	Addrs    []string
	Username string
	Password string
	DB       int
	Flavor   Flavor
}

// Store implements db.Store via rueidis for Redis 8+ and Valkey.
type Store struct {
	client rueidis.Client
	flavor Flavor
}

// NewStore creates a store via rueidis.
func NewStore(cfg Config) (*Store, error) {
	if len(cfg.Addrs) == 0 {
		return nil, fmt.Errorf("addrs is required")
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  cfg.Addrs,
		Username:     cfg.Username,
		Password:     cfg.Password,
		SelectDB:     cfg.DB,
		DisableCache: true,
		AlwaysRESP2:  true, // FT.SEARCH result parsing expects RESP2 array format
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	flavor := cfg.Flavor
	if flavor == "" {
		flavor = FlavorRedis
	}
	return &Store{client: client, flavor: flavor}, nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	cmd := s.client.B().Ping().Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Close shuts down the client.
func (s *Store) Close() {
	s.client.Close()
}

// WaitForReady polls Ping until the store responds or timeout expires.
func (s *Store) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for database: %w", ctx.Err())
		case <-ticker.C:
			if err := s.Ping(ctx); err == nil {
				return nil
			}
		}
	}
}

func (s *Store) do(ctx context.Context, cmd rueidis.Completed) rueidis.RedisResult {
	return s.client.Do(ctx, cmd)
}

func (s *Store) b() rueidis.Builder {
	return s.client.B()
}

// isRedisErr checks if err is a server error containing substr (case-insensitive).
func isRedisErr(err error, substr string) bool {
	re, ok := rueidis.IsRedisErr(err)
	if !ok {
		return false
	}
	return strings.Contains(strings.ToLower(re.Error()), strings.ToLower(substr))
}

// isMissingIndex matches the "no such index" replies of Redis and valkey-search.
func isMissingIndex(err error) bool {
	return isRedisErr(err, "unknown index name") || isRedisErr(err, "no such index") || isRedisErr(err, "not found")
}
