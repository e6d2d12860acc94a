package internal

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// executorPool is the subset of *pgxpool.Pool the executor needs.
type executorPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresExecutor is the pgx-backed DataStoreExecutor.
type PostgresExecutor struct {
	pool executorPool
}

func NewPostgresExecutor(pool executorPool) *PostgresExecutor {
	return &PostgresExecutor{pool: pool}
}

var _ DataStoreExecutor = (*PostgresExecutor)(nil)

func (e *PostgresExecutor) ExecDDL(ctx context.Context, stmt string) error {
	start := time.Now()
	zap.S().Debugw("executing ddl", "sql", stmt)
	_, err := e.pool.Exec(ctx, stmt)
	EmitStatementLatency(ctx, "ddl", time.Since(start).Milliseconds(), err != nil)
	if err != nil {
		zap.S().Warnw("ddl failed", "sql", stmt, "error", err)
		return err
	}
	return nil
}

func (e *PostgresExecutor) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	start := time.Now()
	tag, err := e.pool.Exec(ctx, sql, args...)
	EmitStatementLatency(ctx, "exec", time.Since(start).Milliseconds(), err != nil)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (e *PostgresExecutor) Query(ctx context.Context, sql string, args ...any) ([]map[string]any, error) {
	start := time.Now()
	rows, err := e.pool.Query(ctx, sql, args...)
	if err != nil {
		EmitStatementLatency(ctx, "query", time.Since(start).Milliseconds(), true)
		return nil, err
	}
	out, err := pgx.CollectRows(rows, pgx.RowToMap)
	EmitStatementLatency(ctx, "query", time.Since(start).Milliseconds(), err != nil)
	if err != nil {
		return nil, err
	}
	return out, nil
}
