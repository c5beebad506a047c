package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/crypto/bcrypt"

	"radix/backend/internal/config"
	"radix/backend/internal/httpapi"
	"radix/backend/internal/lock"
	"radix/backend/internal/logger"
	"radix/backend/internal/metrics"
	"radix/backend/internal/settlement"
	"radix/backend/internal/store"
	"radix/backend/internal/store/memory"
	"radix/backend/internal/store/sqlstore"
)

// memoryDBPath selects the seeded in-memory store instead of SQLite.
const memoryDBPath = "memory"

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Options{
		ServiceName: "radix-server",
		Level:       logger.ParseLevel(cfg.LogLevel),
		Format:      cfg.LogFormat,
		WarnStack:   cfg.LogWarnStack,
	})
	ctx := context.Background()

	if err := validateSecurityConfig(cfg); err != nil {
		log.Error(ctx, "invalid security configuration", err)
		os.Exit(1)
	}

	startCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	closers := make([]func() error, 0, 2)

	repo, closeRepo, err := openRepository(startCtx, cfg, log)
	if err != nil {
		log.Error(ctx, "repository unavailable", err)
		os.Exit(1)
	}
	closers = append(closers, closeRepo)

	var locker lock.Locker = lock.NewLocal()
	if cfg.RedisAddr != "" {
		redisLocker := lock.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.LockTTL)
		if err := redisLocker.Ping(startCtx); err != nil {
			log.Error(ctx, "redis unavailable and REDIS_ADDR is set; refusing to start with a process-local lock", err)
			os.Exit(1)
		}
		redisLocker.OnReleaseError = func(key string, err error) {
			log.Error(log.WithTxID(ctx, key), "settlement lock release failed", err)
		}
		locker = redisLocker
		closers = append(closers, redisLocker.Close)
		log.Info(log.WithField(ctx, "addr", cfg.RedisAddr), "settlement lock: redis")
	} else {
		log.Info(ctx, "settlement lock: in-process")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	engine := settlement.New(repo,
		settlement.WithLocker(locker),
		settlement.WithMetrics(metrics.NewSettlement(registry)),
		settlement.WithLogger(log),
	)

	tokens, err := httpapi.NewTokenChecker(cfg.AuthToken, bcrypt.DefaultCost)
	if err != nil {
		log.Error(ctx, "hash auth token", err)
		os.Exit(1)
	}

	api := httpapi.New(engine, repo, tokens, log, httpapi.Options{
		AllowedOrigin: cfg.AllowedOrigin,
		Metrics:       promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	})

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info(log.WithField(ctx, "addr", cfg.Address()), "settlement server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "server error", err)
			os.Exit(1)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "shutdown error", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Error(ctx, "close error", err)
		}
	}

	log.Info(ctx, "server stopped")
}

func openRepository(ctx context.Context, cfg config.Config, log *logger.Logger) (store.Repository, func() error, error) {
	if !cfg.UsesPostgres() && cfg.DBPath == memoryDBPath {
		log.Warn(ctx, "repository: in-memory, data is lost on restart")
		repo := memory.NewSeeded()
		return repo, repo.Close, nil
	}

	dialect, dsn := sqlstore.SQLite, cfg.DBPath
	if cfg.UsesPostgres() {
		dialect, dsn = sqlstore.Postgres, cfg.DatabaseURL
	}

	db, err := sqlstore.Open(ctx, dialect, dsn)
	if err != nil {
		return nil, nil, err
	}
	if cfg.AutoMigrate {
		if err := db.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
	}
	log.Info(log.WithField(ctx, "dialect", dialect.String()), "repository: sql")
	return db, db.Close, nil
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthToken) < 16 {
		return fmt.Errorf("AUTH_TOKEN must be set and at least 16 characters")
	}
	if err := validateTokenStrength(cfg.AuthToken); err != nil {
		return fmt.Errorf("AUTH_TOKEN is too weak: %w", err)
	}
	return nil
}

// validateTokenStrength rejects placeholder secrets and tokens made of a
// single repeated character.
func validateTokenStrength(token string) error {
	lowered := strings.ToLower(token)
	for _, placeholder := range []string{"changeme", "change-me", "password", "secret", "example"} {
		if strings.Contains(lowered, placeholder) {
			return fmt.Errorf("placeholder token not allowed")
		}
	}

	allSame := true
	for i := 1; i < len(token); i++ {
		if token[i] != token[0] {
			allSame = false
			break
		}
	}
	if allSame {
		return fmt.Errorf("single-character token not allowed")
	}
	return nil
}
