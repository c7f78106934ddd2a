package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"medshelf/backend/internal/config"
	"medshelf/backend/internal/receipt"
	"medshelf/backend/internal/store/memory"
	"medshelf/backend/internal/store/sqlstore"
)

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "short"})
	if err == nil {
		t.Fatalf("expected weak security config to be rejected")
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "0123456789abcdef0123456789abcdef", AllowedOrigin: "*"})
	if err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}

func TestValidateSecurityConfigRejectsWildcardOriginInProduction(t *testing.T) {
	err := validateSecurityConfig(config.Config{
		Env:           "production",
		AuthSecret:    "0123456789abcdef0123456789abcdef",
		AllowedOrigin: "*",
	})
	if err == nil {
		t.Fatalf("expected wildcard origin to be rejected in production")
	}
}

func TestOpenRepositoryMemory(t *testing.T) {
	repo, closeFn, err := openRepository(context.Background(), config.Config{DatabaseDriver: "memory"}, zaptest.NewLogger(t))

	require.NoError(t, err)
	assert.Nil(t, closeFn)
	assert.IsType(t, &memory.Store{}, repo)
}

func TestOpenRepositorySQLite(t *testing.T) {
	cfg := config.Config{
		DatabaseDriver: "sqlite",
		DatabaseURL:    filepath.Join(t.TempDir(), "medshelf.db"),
		MigrateOnStart: true,
	}

	repo, closeFn, err := openRepository(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NotNil(t, closeFn)
	t.Cleanup(func() { _ = closeFn() })
	assert.IsType(t, &sqlstore.Store{}, repo)
}

func TestOpenRepositoryRejectsBadDriver(t *testing.T) {
	_, _, err := openRepository(context.Background(), config.Config{DatabaseDriver: "oracle", DatabaseURL: "x"}, zaptest.NewLogger(t))
	assert.Error(t, err)

	_, _, err = openRepository(context.Background(), config.Config{DatabaseDriver: "postgres"}, zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestOpenReceiptSink(t *testing.T) {
	logger := zaptest.NewLogger(t)

	sink, err := openReceiptSink(context.Background(), config.Config{ReceiptSink: "none"}, logger)
	require.NoError(t, err)
	assert.IsType(t, receipt.DiscardSink{}, sink)

	sink, err = openReceiptSink(context.Background(), config.Config{ReceiptSink: "file", ReceiptDir: t.TempDir()}, logger)
	require.NoError(t, err)
	assert.IsType(t, &receipt.FileSink{}, sink)

	_, err = openReceiptSink(context.Background(), config.Config{ReceiptSink: "s3"}, logger)
	assert.Error(t, err, "s3 sink without a bucket must not start")

	_, err = openReceiptSink(context.Background(), config.Config{ReceiptSink: "ftp"}, logger)
	assert.Error(t, err)
}
