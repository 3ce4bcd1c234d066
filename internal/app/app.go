// Package app is the composition root shared by the ragchat binaries.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragchat/internal/config"
	"github.com/kailas-cloud/ragchat/internal/db"
	"github.com/kailas-cloud/ragchat/internal/db/filestore"
	dbRedis "github.com/kailas-cloud/ragchat/internal/db/redis"
	"github.com/kailas-cloud/ragchat/internal/domain"
	"github.com/kailas-cloud/ragchat/internal/metrics"
	"github.com/kailas-cloud/ragchat/internal/repository/embcache"
	pgrepo "github.com/kailas-cloud/ragchat/internal/repository/pgvector"
	vectorrepo "github.com/kailas-cloud/ragchat/internal/repository/vector"
	bedrockTransport "github.com/kailas-cloud/ragchat/internal/transport/bedrock"
	openaiTransport "github.com/kailas-cloud/ragchat/internal/transport/openai"
	chatuc "github.com/kailas-cloud/ragchat/internal/usecase/chat"
	embeddinguc "github.com/kailas-cloud/ragchat/internal/usecase/embedding"
	healthuc "github.com/kailas-cloud/ragchat/internal/usecase/health"
	ingestuc "github.com/kailas-cloud/ragchat/internal/usecase/ingest"
	retrievaluc "github.com/kailas-cloud/ragchat/internal/usecase/retrieval"
)

// VectorStore is what the services need from a backend.
type VectorStore interface {
	Upsert(ctx context.Context, batch domain.UpsertBatch) error
	Query(ctx context.Context, vector []float32, k int) ([]domain.Hit, error)
	Count(ctx context.Context) (int, error)
}

// App holds the wired services.
type App struct {
	Store     VectorStore
	Embedder  domain.Embedder // query path, never cached
	Chat      domain.ChatModel
	Ingest    *ingestuc.Service
	Retrieval *retrievaluc.Service
	ChatSvc   *chatuc.Service
	Health    *healthuc.Service

	closers []func()
}

// Close releases backend connections.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// Build connects the configured vector store and providers and wires the services.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	a := &App{}

	store, pinger, kv, err := a.openStore(ctx, cfg.VectorStore, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Store = store

	if cfg.Embedding.DisableCache {
		kv = nil
	}
	ingestEmbedder, queryEmbedder, err := buildEmbedders(ctx, cfg.Embedding, kv, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Embedder = queryEmbedder

	chat, err := buildChatModel(ctx, cfg.Chat, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Chat = chat

	a.Ingest = ingestuc.New(store, ingestEmbedder, logger).WithChunking(cfg.Chunking.Size, cfg.Chunking.Overlap)
	a.Retrieval = retrievaluc.New(store, queryEmbedder)
	a.ChatSvc = chatuc.New(chat, a.Retrieval, logger).WithLabels(cfg.Chat.Provider, cfg.Chat.Model)

	var embCheck, chatCheck healthuc.ProviderChecker
	if hc, ok := queryEmbedder.(domain.HealthChecker); ok {
		embCheck = hc
	}
	if hc, ok := chat.(domain.HealthChecker); ok {
		chatCheck = hc
	}
	a.Health = healthuc.New(pinger, embCheck, chatCheck).WithCounter(store)

	return a, nil
}

func (a *App) openStore(
	ctx context.Context, vs config.VectorStoreConfig, logger *zap.Logger,
) (VectorStore, healthuc.StorePinger, db.KVStore, error) {
	readiness := time.Duration(vs.ReadinessTimeout) * time.Second
	hnsw := vectorrepo.HNSWConfig{M: vs.HNSWM, EFConstruct: vs.HNSWEFConstruct}

	switch vs.Driver {
	case "postgres":
		pool, err := pgrepo.Connect(ctx, vs.DSN, readiness)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		repo := pgrepo.New(pool, vs.Collection)
		logger.Info("Vector store ready", zap.String("driver", vs.Driver), zap.String("collection", vs.Collection))
		return repo, repo, nil, nil

	case "redis", "valkey":
		store, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    vs.Addrs,
			Password: vs.Password,
			Flavor:   dbRedis.Flavor(vs.Driver),
		})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("create %s store: %w", vs.Driver, err)
		}
		a.closers = append(a.closers, store.Close)
		if err := store.WaitForReady(ctx, readiness); err != nil {
			return nil, nil, nil, fmt.Errorf("%s not ready: %w", vs.Driver, err)
		}
		logger.Info("Vector store ready",
			zap.String("driver", vs.Driver),
			zap.Strings("addrs", vs.Addrs),
			zap.String("collection", vs.Collection),
		)
		return vectorrepo.New(store, vs.Collection, hnsw), store, store, nil

	default:
		store, err := filestore.Open(vs.Dir)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open file store: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		logger.Info("Vector store ready",
			zap.String("driver", "file"),
			zap.String("dir", vs.Dir),
			zap.String("collection", vs.Collection),
		)
		var s db.Store = store
		return vectorrepo.New(s, vs.Collection, hnsw), s, s, nil
	}
}

// buildEmbedders assembles two decorator chains over one provider:
// ingestion gets provider -> Cached -> Instrumented, queries get provider -> Instrumented.
// The cache is skipped when kv is nil.
func buildEmbedders(
	ctx context.Context, ec config.EmbeddingConfig, kv db.KVStore, logger *zap.Logger,
) (ingest, query domain.Embedder, err error) {
	var base domain.Embedder
	switch ec.Provider {
	case "openai":
		base = openaiTransport.NewEmbedder(&openaiTransport.Config{
			APIKey:     ec.OpenAI.APIKey,
			BaseURL:    ec.OpenAI.BaseURL,
			Model:      ec.Model,
			Dimensions: ec.Dimensions,
			Provider:   ec.Provider,
			Logger:     logger,
		})
	default:
		rt, err := bedrockTransport.NewRuntime(ctx, bedrockTransport.Options{
			Region:      ec.Bedrock.Region,
			MaxAttempts: ec.Bedrock.MaxAttempts,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("embedding runtime: %w", err)
		}
		base = bedrockTransport.NewEmbedder(rt, ec.Model, ec.Dimensions)
	}

	cached := base
	if kv != nil {
		cached = embcache.New(base, kv, ec.Model, metrics.EmbeddingCacheTotal, logger)
	}

	logger.Info("Embedder created",
		zap.String("provider", ec.Provider),
		zap.String("model", ec.Model),
		zap.Int("dimensions", ec.Dimensions),
		zap.Bool("cache", kv != nil),
	)
	ingest = embeddinguc.NewInstrumentedEmbedder(cached, ec.Provider, ec.Model, logger)
	query = embeddinguc.NewInstrumentedEmbedder(base, ec.Provider, ec.Model, logger)
	return ingest, query, nil
}

func buildChatModel(ctx context.Context, cc config.ChatConfig, logger *zap.Logger) (domain.ChatModel, error) {
	var model domain.ChatModel
	switch cc.Provider {
	case "openai":
		model = openaiTransport.NewChatModel(&openaiTransport.Config{
			APIKey:   cc.OpenAI.APIKey,
			BaseURL:  cc.OpenAI.BaseURL,
			Model:    cc.Model,
			Provider: cc.Provider,
			Logger:   logger,
		})
	default:
		rt, err := bedrockTransport.NewRuntime(ctx, bedrockTransport.Options{
			Region:      cc.Bedrock.Region,
			MaxAttempts: cc.Bedrock.MaxAttempts,
		})
		if err != nil {
			return nil, fmt.Errorf("chat runtime: %w", err)
		}
		model = bedrockTransport.NewChatModel(rt, cc.Model)
	}

	logger.Info("Chat model created", zap.String("provider", cc.Provider), zap.String("model", cc.Model))
	return model, nil
}
