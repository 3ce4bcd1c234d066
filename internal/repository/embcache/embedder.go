// Package embcache memoizes embeddings in the vector store's key space so
// re-ingesting unchanged chunks does not call the provider again.
package embcache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragchat/internal/db"
	"github.com/kailas-cloud/ragchat/internal/domain"
)

const keyPrefix = "ragchat:emb_cache:"

// store is the consumer interface for the embedding cache.
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// CachedEmbedder wraps an embedder with a key-value cache keyed by model and text.
type CachedEmbedder struct {
	inner      domain.Embedder
	store      store
	namespace  string
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

// New creates a caching decorator. model scopes the keys so a model switch
// never serves vectors of the wrong size. cacheTotal may be nil.
func New(
	inner domain.Embedder,
	s store,
	model string,
	cacheTotal *prometheus.CounterVec,
	logger *zap.Logger,
) *CachedEmbedder {
	return &CachedEmbedder{
		inner:      inner,
		store:      s,
		namespace:  keyPrefix + model + ":",
		cacheTotal: cacheTotal,
		logger:     logger,
	}
}

// Embed returns a cached vector or calls the inner embedder.
// A hit reports zero tokens.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	key := c.cacheKey(text)

	if vec, ok := c.get(ctx, key); ok {
		c.inc("hit")
		return domain.EmbeddingResult{Embedding: vec}, nil
	}
	c.inc("miss")

	result, err := c.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed text: %w", err)
	}

	c.put(ctx, key, result.Embedding)
	return result, nil
}

// HealthCheck proxies to the inner embedder when it supports health checks.
func (c *CachedEmbedder) HealthCheck(ctx context.Context) error {
	if hc, ok := c.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}

func (c *CachedEmbedder) inc(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(result).Inc()
	}
}

func (c *CachedEmbedder) cacheKey(text string) string {
	h := sha256.Sum256([]byte(text))
	return c.namespace + hex.EncodeToString(h[:])
}

func (c *CachedEmbedder) get(ctx context.Context, key string) ([]float32, bool) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.logger.Warn("Failed to read cached embedding", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	if len(data) == 0 {
		return nil, false
	}

	vec, err := decode(data)
	if err != nil {
		c.logger.Warn("Discarding corrupt cached embedding", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return vec, true
}

// put is best effort; a failed write only costs a provider call next time.
func (c *CachedEmbedder) put(ctx context.Context, key string, vec []float32) {
	if len(vec) == 0 {
		return
	}
	if err := c.store.Set(ctx, key, encode(vec)); err != nil {
		c.logger.Warn("Failed to cache embedding", zap.String("key", key), zap.Error(err))
	}
}

func encode(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decode(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("length %d is not a multiple of 4", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}
