// Package sqlstore implements store.Repository on PostgreSQL (pgx) or SQLite
// (modernc) through sqlx. Queries are written with ? placeholders and rebound
// for the active driver.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"medshelf/backend/internal/store"
)

type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

func (d Dialect) driverName() string {
	if d == DialectPostgres {
		return "pgx"
	}
	return "sqlite"
}

func ParseDialect(raw string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "postgres", "postgresql", "pgx":
		return DialectPostgres, nil
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	}
	return "", fmt.Errorf("unsupported database driver %q", raw)
}

type Options struct {
	Dialect Dialect
	URL     string
	Migrate bool
	Logger  *zap.Logger
}

type Store struct {
	db      *sqlx.DB
	dialect Dialect
	logger  *zap.Logger
}

// Open connects, optionally applies the embedded migrations, and verifies the
// connection.
func Open(ctx context.Context, opts Options) (*Store, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	dsn := opts.URL
	if opts.Dialect == DialectSQLite {
		dsn = sqliteDSN(dsn)
	}

	if opts.Migrate {
		if err := Migrate(opts.Dialect, dsn, logger); err != nil {
			return nil, err
		}
	}

	db, err := sqlx.Open(opts.Dialect.driverName(), dsn)
	if err != nil {
		return nil, err
	}

	switch opts.Dialect {
	case DialectPostgres:
		db.SetMaxIdleConns(8)
		db.SetMaxOpenConns(30)
		db.SetConnMaxLifetime(30 * time.Minute)
	case DialectSQLite:
		// One writer; transactions queue on the pool instead of failing with SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return New(db, opts.Dialect, logger), nil
}

// New wraps an existing handle. The handle's driver name decides placeholder
// rebinding.
func New(db *sqlx.DB, dialect Dialect, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, dialect: dialect, logger: logger.Named("sql-store")}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func sqliteDSN(dsn string) string {
	dsn = strings.TrimSpace(dsn)
	dsn = strings.TrimPrefix(dsn, "sqlite://")
	if strings.Contains(dsn, "_pragma=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

// isRetryable reports a PostgreSQL deadlock (40P01) or serialization failure
// (40001). Both abort the transaction without applying any of it.
func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40P01" || pgErr.Code == "40001"
	}
	return false
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}
