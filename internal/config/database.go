package config

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PgxConfig creates and returns a pgxpool.Config with the database connection settings from the DatabaseConfig.
func (c *DatabaseConfig) PgxConfig(ctx context.Context) (*pgxpool.Config, error) {
	return c.pgxConfig(c.User, c.Password)
}

// FallbackPgxConfig builds a pool config for the same database using the
// elevated fallback credential.
func (c *DatabaseConfig) FallbackPgxConfig(ctx context.Context, fb FallbackDatabaseConfig) (*pgxpool.Config, error) {
	if !fb.Enabled() {
		return nil, fmt.Errorf("fallback database credential not configured")
	}
	return c.pgxConfig(fb.User, fb.Password)
}

func (c *DatabaseConfig) pgxConfig(user, password string) (*pgxpool.Config, error) {
	connString := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(user), url.QueryEscape(password), c.Host, c.Port, c.Name, c.SSLMode,
	)

	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, err
	}

	cfg.MaxConns = int32(c.MaxOpenConns)
	cfg.MinConns = int32(c.MaxIdleConns)
	cfg.MaxConnLifetime = c.ConnMaxLifetime
	cfg.MaxConnIdleTime = c.ConnMaxIdleTime
	cfg.HealthCheckPeriod = 30 * time.Second

	return cfg, nil
}
