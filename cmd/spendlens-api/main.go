package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spendlens/spendlens/internal/api"
	"github.com/spendlens/spendlens/internal/ask"
	"github.com/spendlens/spendlens/internal/auth"
	"github.com/spendlens/spendlens/internal/benchmark/jobs"
	"github.com/spendlens/spendlens/internal/cache"
	"github.com/spendlens/spendlens/internal/config"
	"github.com/spendlens/spendlens/internal/enginecheck"
	"github.com/spendlens/spendlens/internal/llm"
	"github.com/spendlens/spendlens/internal/observability"
	"github.com/spendlens/spendlens/internal/vectorstore/qdrant"
	"github.com/spendlens/spendlens/internal/warehouse"
)

func main() {
	cfg, err := config.LoadFromEnv("spendlens-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)

	tenants, err := ask.ParseTenants(cfg.Ask.Tenants)
	if err != nil {
		logger.Error("failed to parse tenant mappings", slog.Any("error", err))
		os.Exit(1)
	}

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
	jobStore := jobs.NewStore(jobsDB)

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

	vectors, err := qdrant.NewClient(qdrant.Config{
		BaseURL: cfg.VectorStore.BaseURL,
		APIKey:  cfg.VectorStore.APIKey,
		Timeout: cfg.VectorStore.Timeout,
	})
	if err != nil {
		logger.Error("failed to initialize vector store", slog.Any("error", err))
		os.Exit(1)
	}

	cacheStore, err := cache.NewRedis(cache.RedisConfig{
		Address:  cfg.Cache.Address,
		Password: cfg.Cache.Password,
		DB:       cfg.Cache.DB,
	})
	if err != nil {
		logger.Error("failed to initialize cache", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = cacheStore.Close() }()

	engine, err := warehouse.NewDuckDB(cfg.Warehouse.Path, cfg.Warehouse.QueryTimeout)
	if err != nil {
		logger.Error("failed to initialize warehouse", slog.Any("error", err))
		os.Exit(1)
	}

	validator, err := enginecheck.NewHTTPValidator(enginecheck.HTTPConfig{
		BaseURL: cfg.Engine.BaseURL,
		Timeout: cfg.Engine.Timeout,
	})
	if err != nil {
		logger.Error("failed to initialize engine validator", slog.Any("error", err))
		os.Exit(1)
	}

	pipeline := &ask.Pipeline{
		LLM:       llm.NewRetrying(llmClient, cfg.LLM.MaxRetries),
		Vectors:   vectors,
		Cache:     cacheStore,
		Warehouse: engine,
		Validator: validator,
		Logger:    logger,
		Options: ask.Options{
			RetrievalTopK:   cfg.Ask.RetrievalTopK,
			RerankThreshold: cfg.Ask.RerankThreshold,
			EntityTopK:      cfg.Ask.EntityTopK,
			EntityThreshold: cfg.Ask.EntityThreshold,
			DDLTokenBudget:  cfg.Ask.DDLTokenBudget,
			RulesDir:        cfg.Ask.RulesDir,
			HistoryTTL:      cfg.Cache.HistoryTTL,
			TokenModel:      cfg.LLM.Model,
		},
	}

	deps := api.Dependencies{
		Logger:            logger,
		Pipeline:          pipeline,
		Tenants:           tenants,
		AskTimeout:        cfg.Ask.RequestTimeout,
		Jobs:              jobStore,
		Readiness:         api.CombineReadinessChecks(api.CheckJobsStore(jobStore)),
		DependencyTimeout: time.Second,
	}
	if cfg.Auth.Required {
		keyValidator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, keyValidator)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server", slog.String("addr", cfg.HTTP.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}
