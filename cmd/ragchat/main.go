package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragchat/internal/app"
	"github.com/kailas-cloud/ragchat/internal/config"
	logpkg "github.com/kailas-cloud/ragchat/internal/logger"
	"github.com/kailas-cloud/ragchat/internal/metrics"
	chiTransport "github.com/kailas-cloud/ragchat/internal/transport/chi"
	"github.com/kailas-cloud/ragchat/internal/version"
)

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting ragchat API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("vector_store", cfg.VectorStore.Driver),
		zap.String("knowledge_dir", cfg.Knowledge.Dir),
	)

	// Register metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterChatMetrics()

	ctx := context.Background()
	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to build services", zap.Error(err))
	}
	defer a.Close()

	server := chiTransport.NewServer(a.Ingest, a.ChatSvc, a.Retrieval, a.Health, chiTransport.Options{
		KnowledgeDir: cfg.Knowledge.Dir,
		DebugTopK:    cfg.Retrieval.DebugTopK,
		AugmentTopK:  cfg.Retrieval.AugmentTopK,
		PreviewChars: cfg.Retrieval.PreviewChars,
	}, logger)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           chiTransport.NewRouter(server, cfg.Auth.APIKeys, logger),
		ReadHeaderTimeout: time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		ReadTimeout:       time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout:      time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}
