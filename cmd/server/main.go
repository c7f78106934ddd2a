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

	"go.uber.org/zap"

	"medshelf/backend/internal/alert"
	"medshelf/backend/internal/cache"
	"medshelf/backend/internal/config"
	"medshelf/backend/internal/httpapi"
	"medshelf/backend/internal/logger"
	"medshelf/backend/internal/receipt"
	"medshelf/backend/internal/service"
	"medshelf/backend/internal/store"
	"medshelf/backend/internal/store/memory"
	"medshelf/backend/internal/store/sqlstore"
)

func main() {
	cfg := config.Load()
	logCfg := logger.DefaultConfig()
	logCfg.Level = cfg.LogLevel
	logCfg.Format = cfg.LogFormat
	log := logger.New(logCfg)
	defer func() { _ = log.Sync() }()

	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatal("invalid security configuration", zap.Error(err))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	closers := make([]func() error, 0, 2)

	repo, closeRepo, err := openRepository(ctx, cfg, log)
	if err != nil {
		log.Fatal("repository unavailable", zap.String("driver", cfg.DatabaseDriver), zap.Error(err))
	}
	if closeRepo != nil {
		closers = append(closers, closeRepo)
	}

	opts := []service.Option{
		service.WithLogger(log),
		service.WithAlertOptions(alert.Options{
			WindowDays:        cfg.ExpiryWindowDays,
			LowStockThreshold: cfg.LowStockThreshold,
		}),
		service.WithPurgeInterval(time.Duration(cfg.PurgeIntervalSeconds) * time.Second),
		service.WithAlertCacheTTL(time.Duration(cfg.AlertCacheTTLSeconds) * time.Second),
	}

	if cfg.RedisAddr != "" {
		redisClient := cache.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisClient.Ping(ctx); err != nil {
			log.Warn("redis unavailable, using in-process purge gate", zap.Error(err))
			_ = redisClient.Close()
		} else {
			opts = append(opts,
				service.WithAlertCache(redisClient.AlertCache()),
				service.WithPurgeGate(redisClient.PurgeGate()),
			)
			closers = append(closers, redisClient.Close)
			log.Info("cache: redis", zap.String("addr", cfg.RedisAddr))
		}
	} else {
		log.Info("cache: none")
	}

	sink, err := openReceiptSink(ctx, cfg, log)
	if err != nil {
		log.Fatal("receipt sink unavailable", zap.String("sink", cfg.ReceiptSink), zap.Error(err))
	}
	opts = append(opts, service.WithReceiptSink(sink))

	svc := service.New(repo, opts...)
	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin, log)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("medshelf backend listening", zap.String("addr", cfg.Address()), zap.String("env", cfg.Env))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", zap.Error(err))
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Error("close error", zap.Error(err))
		}
	}

	log.Info("server stopped")
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.IsProduction() && strings.TrimSpace(cfg.AllowedOrigin) == "*" {
		return fmt.Errorf("ALLOWED_ORIGIN must name an origin in production")
	}
	return nil
}

// openRepository refuses to fall back to memory when a database was asked
// for and cannot be reached.
func openRepository(ctx context.Context, cfg config.Config, log *zap.Logger) (store.Repository, func() error, error) {
	if strings.EqualFold(cfg.DatabaseDriver, "memory") || cfg.DatabaseDriver == "" {
		log.Info("repository: in-memory")
		return memory.New(log), nil, nil
	}

	dialect, err := sqlstore.ParseDialect(cfg.DatabaseDriver)
	if err != nil {
		return nil, nil, err
	}
	if cfg.DatabaseURL == "" {
		return nil, nil, fmt.Errorf("DATABASE_URL is required for driver %s", dialect)
	}

	db, err := sqlstore.Open(ctx, sqlstore.Options{
		Dialect: dialect,
		URL:     cfg.DatabaseURL,
		Migrate: cfg.MigrateOnStart,
		Logger:  log,
	})
	if err != nil {
		return nil, nil, err
	}
	log.Info("repository: sql", zap.String("dialect", string(dialect)), zap.Bool("migrated", cfg.MigrateOnStart))
	return db, db.Close, nil
}

func openReceiptSink(ctx context.Context, cfg config.Config, log *zap.Logger) (receipt.Sink, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.ReceiptSink)) {
	case "none", "":
		log.Info("receipt sink: none")
		return receipt.DiscardSink{}, nil
	case "file":
		sink, err := receipt.NewFileSink(cfg.ReceiptDir)
		if err != nil {
			return nil, err
		}
		log.Info("receipt sink: file", zap.String("dir", cfg.ReceiptDir))
		return sink, nil
	case "s3":
		sink, err := receipt.NewS3Sink(ctx, receipt.S3Config{
			Endpoint:     cfg.S3Endpoint,
			Region:       cfg.S3Region,
			Bucket:       cfg.S3Bucket,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			Prefix:       cfg.S3Prefix,
			UsePathStyle: cfg.S3UsePathStyle,
			UseSSL:       cfg.S3UseSSL,
		}, receipt.WithLogger(log))
		if err != nil {
			return nil, err
		}
		if err := sink.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		log.Info("receipt sink: s3", zap.String("bucket", cfg.S3Bucket))
		return sink, nil
	}
	return nil, fmt.Errorf("unsupported receipt sink %q", cfg.ReceiptSink)
}
