package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/consultra/engine/internal/analysis"
	"github.com/consultra/engine/internal/cache"
	"github.com/consultra/engine/internal/orchestrator"
	"github.com/consultra/engine/internal/queue/tasks"
	"github.com/consultra/engine/internal/sandbox"
	"github.com/consultra/engine/internal/store"
	"github.com/consultra/engine/pkg/config"
	"github.com/consultra/engine/pkg/database"
	"github.com/consultra/engine/pkg/logger"
)

func main() {
	cfg := config.MustLoad()
	log, err := logger.Init(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx := context.Background()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal("redis connection failed", zap.Error(err))
	}

	db, err := database.OpenPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("failed to open database", zap.Error(err))
	}

	st := store.New(db, cache.NewRedis(rdb), cfg.CacheTTL)

	var llm analysis.Completer
	if cfg.LLMAPIKey != "" {
		llm, err = analysis.NewLLMCompleter(ctx, analysis.LLMConfig{
			APIKey:  cfg.LLMAPIKey,
			Model:   cfg.LLMModel,
			BaseURL: cfg.LLMBaseURL,
		})
		if err != nil {
			log.Fatal("llm completer init failed", zap.Error(err))
		}
	} else {
		log.Warn("LLM_API_KEY not set, analysis runs on deterministic fallbacks")
	}

	sandboxDir := cfg.SandboxDir
	if sandboxDir == "" {
		sandboxDir = os.TempDir()
	} else {
		if err := os.MkdirAll(sandboxDir, 0o755); err != nil {
			log.Fatal("failed to create sandbox dir", zap.Error(err))
		}
	}
	sb := sandbox.NewExecutor(sandboxDir, cfg.SandboxTimeout)

	orc := orchestrator.New(st, llm, sb)
	handler := tasks.NewExecuteTaskHandler(orc)

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       0,
		},
		asynq.Config{
			Concurrency: cfg.AsynqConcurrency,
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeExecuteEngagement, handler.HandleExecute)

	errCh := make(chan error, 1)
	go func() {
		logger.L().Info("asynq worker starting", zap.Int("concurrency", cfg.AsynqConcurrency))
		if err := srv.Run(mux); err != nil {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.L().Info("shutdown signal received", zap.String("signal", sig.String()))
	case err := <-errCh:
		logger.L().Error("worker stopped with error", zap.Error(err))
	}

	// Allow in-flight tasks to finish gracefully.
	srv.Shutdown()

	if err := st.Close(); err != nil {
		logger.L().Warn("store close error", zap.Error(err))
	}
}
