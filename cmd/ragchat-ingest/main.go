// Command ragchat-ingest indexes a knowledge folder once and prints the chunk count.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragchat/internal/app"
	"github.com/kailas-cloud/ragchat/internal/config"
	"github.com/kailas-cloud/ragchat/internal/domain"
	logpkg "github.com/kailas-cloud/ragchat/internal/logger"
	"github.com/kailas-cloud/ragchat/internal/metrics"
	"github.com/kailas-cloud/ragchat/internal/version"
)

func main() {
	os.Exit(run())
}

func run() int {
	_ = godotenv.Load()

	var (
		cfgPath  = flag.String("config", "", "path to a YAML config (default: config/$ENV.yaml)")
		dir      = flag.String("dir", "", "knowledge folder (default: knowledge.dir from config)")
		logLevel = flag.String("log-level", "info", "log level: debug, info, warn, error")
		showVer  = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVer {
		fmt.Println(version.String("ragchat-ingest"))
		return 0
	}

	var (
		cfg config.Config
		err error
	)
	if *cfgPath != "" {
		cfg, err = config.LoadFile(*cfgPath)
	} else {
		cfg, err = config.Load(config.GetEnv())
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "ragchat-ingest:", err)
		return 2
	}
	root := cfg.Knowledge.Dir
	if *dir != "" {
		root = *dir
	}

	logger, err := logpkg.NewCLILogger(*logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ragchat-ingest:", err)
		return 2
	}
	defer func() { _ = logger.Sync() }()

	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterChatMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to build services", zap.Error(err))
		return 1
	}
	defer a.Close()

	res, err := a.Ingest.IngestFolder(ctx, root)
	if err != nil {
		var partial *domain.PartialIngestError
		if errors.As(err, &partial) {
			fmt.Printf("Ingested %d chunks before failure.\n", partial.Ingested)
		}
		logger.Error("Ingestion failed", zap.String("dir", root), zap.Error(err))
		return 1
	}

	fmt.Printf("Ingested %d chunks from %d files into %q (run %s).\n",
		res.Ingested, res.Files, cfg.VectorStore.Collection, res.RunID)
	return 0
}
