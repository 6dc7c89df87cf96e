package postgres

import (
	"context"
	"errors"
	"log/slog"

	"github.com/DanielPopoola/ficmart-checkout/internal/config"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Executor defines the common interface for pgxpool.Pool and pgx.Tx.
// This allows repositories to work seamlessly with both standalone connections and transactions.
type Executor interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Pool is the part of *pgxpool.Pool the repositories use.
type Pool interface {
	Executor
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// SQLSTATE codes the adapters react to.
const (
	codeUniqueViolation       = "23505"
	codeInsufficientPrivilege = "42501"
)

type DB struct {
	Pool   *pgxpool.Pool
	logger *slog.Logger
}

// Connect establishes a connection to the PostgreSQL database using the provided configuration.
// It creates a connection pool with the specified settings and verifies connectivity by pinging the database.
func Connect(ctx context.Context, cfg *config.DatabaseConfig, logger *slog.Logger) (*DB, error) {
	pgxCfg, err := cfg.PgxConfig(ctx)
	if err != nil {
		logger.Error("failed to build pgx config", "error", err)
		return nil, err
	}

	logger.Info("connecting to database",
		"host", cfg.Host,
		"port", cfg.Port,
		"database", cfg.Name,
	)

	return open(ctx, pgxCfg, logger)
}

// ConnectFallback opens the elevated pool used by the order fallback path.
// It returns nil, nil when no fallback credential is configured.
func ConnectFallback(ctx context.Context, cfg *config.DatabaseConfig, fb config.FallbackDatabaseConfig, logger *slog.Logger) (*DB, error) {
	if !fb.Enabled() {
		logger.Warn("fallback database credential not configured, order fallback path disabled")
		return nil, nil
	}

	pgxCfg, err := cfg.FallbackPgxConfig(ctx, fb)
	if err != nil {
		logger.Error("failed to build fallback pgx config", "error", err)
		return nil, err
	}

	logger.Info("connecting to database with fallback credential",
		"host", cfg.Host,
		"database", cfg.Name,
	)

	return open(ctx, pgxCfg, logger)
}

func open(ctx context.Context, pgxCfg *pgxpool.Config, logger *slog.Logger) (*DB, error) {
	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		logger.Error("failed to create connection pool", "error", err)
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		logger.Error("failed to ping database", "error", err)
		pool.Close()
		return nil, err
	}

	logger.Info("successfully connected to database",
		"max_conns", pgxCfg.MaxConns,
		"min_conns", pgxCfg.MinConns,
	)

	return &DB{
		Pool:   pool,
		logger: logger,
	}, nil
}

func (db *DB) Close() {
	db.logger.Info("closing database connection pool")
	db.Pool.Close()
}

// WithinTransaction runs fn in a transaction, committing when fn returns nil.
func WithinTransaction(ctx context.Context, pool Pool, fn func(pgx.Tx) error) (err error) {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			err = tx.Commit(ctx)
		}
	}()

	err = fn(tx)
	return err
}

// IsUniqueViolation checks if the given error is a PostgreSQL unique constraint violation.
func IsUniqueViolation(err error) bool {
	return hasCode(err, codeUniqueViolation)
}

// IsInsufficientPrivilege reports a permission or row-level security rejection.
func IsInsufficientPrivilege(err error) bool {
	return hasCode(err, codeInsufficientPrivilege)
}

func hasCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
