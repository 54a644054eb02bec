package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spendlens/spendlens/internal/benchmark"
	"github.com/spendlens/spendlens/internal/benchmark/jobs"
	"github.com/spendlens/spendlens/internal/config"
	"github.com/spendlens/spendlens/internal/llm"
	"github.com/spendlens/spendlens/internal/observability"
	s3store "github.com/spendlens/spendlens/internal/storage/s3"
	"github.com/spendlens/spendlens/internal/warehouse"
)

func main() {
	cfg, err := config.LoadFromEnv("spendlens-benchmark")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)

	jobsDB, err := jobs.Open(context.Background(), jobs.DBConfig{
		DSN:             cfg.Jobs.DSN,
		MaxOpenConns:    cfg.Jobs.MaxOpenConns,
		MaxIdleConns:    cfg.Jobs.MaxIdleConns,
		ConnMaxIdleTime: cfg.Jobs.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.Jobs.ConnMaxLifetime,
	})
	if err != nil {
		logger.Error("failed to open jobs db", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = jobsDB.Close() }()

	objectStore, err := s3store.New(context.Background(), s3store.Config{
		Endpoint:         cfg.ObjectStore.Endpoint,
		Region:           cfg.ObjectStore.Region,
		Bucket:           cfg.ObjectStore.Bucket,
		AccessKeyID:      cfg.ObjectStore.AccessKeyID,
		SecretAccessKey:  cfg.ObjectStore.SecretAccessKey,
		UseSSL:           cfg.ObjectStore.UseSSL,
		Prefix:           cfg.ObjectStore.Prefix,
		AutoCreateBucket: cfg.ObjectStore.AutoCreateBucket,
	})
	if err != nil {
		logger.Error("failed to initialize object store", slog.Any("error", err))
		os.Exit(1)
	}

	engine, err := warehouse.NewDuckDB(cfg.Warehouse.Path, cfg.Warehouse.QueryTimeout)
	if err != nil {
		logger.Error("failed to initialize warehouse", slog.Any("error", err))
		os.Exit(1)
	}

	llmClient, err := llm.NewOpenAIClient(llm.OpenAIConfig{
		BaseURL:        cfg.LLM.BaseURL,
		APIKey:         cfg.LLM.APIKey,
		Model:          cfg.LLM.Model,
		EmbeddingModel: cfg.LLM.EmbeddingModel,
		Timeout:        cfg.LLM.Timeout,
	})
	if err != nil {
		logger.Error("failed to initialize llm client", slog.Any("error", err))
		os.Exit(1)
	}

	runner := &benchmark.Runner{
		Jobs:      jobs.NewStore(jobsDB),
		Store:     objectStore,
		Warehouse: engine,
		Matcher: &benchmark.Matcher{
			LLM:    llm.NewRetrying(llmClient, cfg.LLM.MaxRetries),
			Logger: logger,
			Options: benchmark.Options{
				ClusterParallelism: cfg.Benchmark.ClusterParallelism,
				BatchSize:          cfg.Benchmark.BatchSize,
				CandidateCap:       cfg.Benchmark.CandidateCap,
				LLMWeight:          cfg.Benchmark.LLMWeight,
				CosineWeight:       cfg.Benchmark.CosineWeight,
				MinScore:           cfg.Benchmark.MinScore,
			},
		},
		Logger:       logger,
		PollInterval: cfg.Benchmark.PollInterval,
		TempDir:      cfg.Benchmark.TempDir,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("benchmark worker started")
	if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("benchmark worker failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("benchmark worker stopped")
}
