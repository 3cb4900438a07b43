package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/consultra/engine/internal/analysis"
	"github.com/consultra/engine/internal/api"
	"github.com/consultra/engine/internal/api/handlers"
	"github.com/consultra/engine/internal/cache"
	"github.com/consultra/engine/internal/orchestrator"
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

	log.Info("starting engagement engine api",
		zap.String("env", cfg.AppEnv),
		zap.String("addr", cfg.HTTPAddr),
	)

	ctx := context.Background()
	db, err := database.OpenPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal("redis connection failed", zap.Error(err))
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

	sb := sandbox.NewExecutor(cfg.SandboxDir, cfg.SandboxTimeout)
	orc := orchestrator.New(st, llm, sb)

	queueClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	defer queueClient.Close()

	jwtSecret := []byte(cfg.JWTSecret)
	if len(jwtSecret) == 0 {
		log.Warn("JWT_SECRET not set, using default (INSECURE for production)")
		jwtSecret = []byte("change-me-in-production-please")
	}

	v := validator.New(validator.WithRequiredStructEnabled())
	router := api.NewRouter(api.Dependencies{
		HMACSecret:         jwtSecret,
		HealthHandler:      handlers.NewHealthHandler(st, rdb),
		EngagementsHandler: handlers.NewEngagementsHandler(orc, st, queueClient, v),
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server starting", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("shutdown signal received", zap.String("signal", sig.String()))
	case err := <-errCh:
		log.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown error", zap.Error(err))
	} else {
		log.Info("server exited gracefully")
	}

	if err := st.Close(); err != nil {
		log.Warn("store close error", zap.Error(err))
	}
}
