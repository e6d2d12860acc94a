package internal

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lychee-technology/dynaform"
)

// ValidatePostgresConfig performs basic sanity checks on Postgres-related settings.
func ValidatePostgresConfig(cfg dynaform.DatabaseConfig) error {
	if cfg.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("database.port must be a valid TCP port")
	}
	if cfg.Database == "" {
		return fmt.Errorf("database.database is required")
	}
	if cfg.MaxConnections <= 0 {
		return fmt.Errorf("database.maxConnections must be greater than 0")
	}
	if cfg.UseIAMAuth && cfg.Region == "" {
		return fmt.Errorf("database.region is required with useIAMAuth")
	}
	return nil
}

// healthPool is the subset of *pgxpool.Pool used by the health check.
type healthPool interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresHealthCheck pings the pool and checks the metadata tables are readable.
// timeout may be 0 to use a sensible default (5s).
func PostgresHealthCheck(ctx context.Context, pool healthPool, timeout time.Duration) error {
	if pool == nil {
		return fmt.Errorf("postgres pool not configured")
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres ping failed: %w", err)
	}

	// fails until the metadata migrations have run
	if _, err := pool.Exec(ctx, "SELECT 1 FROM "+collectionsTable+" LIMIT 1"); err != nil {
		return fmt.Errorf("metadata tables not readable: %w", err)
	}
	return nil
}
