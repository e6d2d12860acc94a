package factory

import (
	"context"
	"fmt"
	"slices"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lychee-technology/dynaform"
	"github.com/lychee-technology/dynaform/internal"
	"go.uber.org/zap"
)

// Pool is the subset of *pgxpool.Pool the services need.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// Services bundles the collection manager and record engine sharing one pool.
type Services struct {
	Collections dynaform.CollectionManager
	Records     dynaform.RecordEngine
	Notifier    dynaform.Notifier
}

// NewServicesWithConfig creates the collection manager and record engine over pool.
// This is the primary way for external projects to embed dynaform.
//
// The metadata tables must exist (run internal migrations or `tools migrate`
// first). notifier may be nil, in which case events are only logged.
//
// Usage:
//
//	config := dynaform.DefaultConfig()
//	notifier, err := factory.NewNotifier(ctx, config)
//	svc, err := factory.NewServicesWithConfig(ctx, config, pool, notifier)
//	if err != nil {
//	    // handle error
//	}
//	c, err := svc.Collections.CreateCollection(ctx, req)
func NewServicesWithConfig(ctx context.Context, config *dynaform.Config, pool Pool, notifier dynaform.Notifier) (*Services, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	if err := verifyMetadataTables(ctx, pool); err != nil {
		return nil, err
	}

	if notifier == nil {
		notifier = internal.LogNotifier{}
	}

	store := internal.NewPostgresMetadataStore(pool)
	executor := internal.NewPostgresExecutor(pool)

	return &Services{
		Collections: internal.NewCollectionManager(store, executor, internal.DefaultFieldTypeRegistry(), notifier),
		Records:     internal.NewRecordEngine(store, executor, notifier, config.Query),
		Notifier:    notifier,
	}, nil
}

func verifyMetadataTables(ctx context.Context, pool Pool) error {
	rows, err := pool.Query(ctx, `SELECT table_name FROM information_schema.tables
		WHERE table_schema = current_schema() AND table_type = 'BASE TABLE'`)
	if err != nil {
		return fmt.Errorf("failed to verify database connection: %w", err)
	}
	defer rows.Close()

	tables := []string{}
	for rows.Next() {
		var tableName string
		if err := rows.Scan(&tableName); err != nil {
			return fmt.Errorf("failed to scan table name: %w", err)
		}
		tables = append(tables, tableName)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating rows: %w", err)
	}

	for _, required := range internal.MetadataTables() {
		if !slices.Contains(tables, required) {
			return fmt.Errorf("required table %s is missing in the database; run the metadata migrations", required)
		}
	}
	zap.S().Debugw("metadata tables present", "tables", len(tables))
	return nil
}

// NewNotifier builds the event notifier described by config: events are always
// logged, archived to S3 when events.s3Bucket is set, and guarded by a circuit
// breaker when notification.enabled is true.
func NewNotifier(ctx context.Context, config *dynaform.Config) (dynaform.Notifier, error) {
	sinks := internal.MultiNotifier{internal.LogNotifier{}}

	if config.Events.Enabled() {
		sink, err := internal.NewS3EventSink(ctx, config.Events)
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 event sink: %w", err)
		}
		if err := sink.EnsureBucket(ctx); err != nil {
			zap.S().Warnw("event archive bucket not available", "bucket", config.Events.S3Bucket, "error", err)
		}
		sinks = append(sinks, sink)
	}

	if !config.Notification.Enabled {
		return sinks, nil
	}
	breaker := internal.NewCircuitBreaker(
		config.Notification.FailureThreshold,
		config.Notification.FailureWindow,
		config.Notification.OpenDuration,
	)
	return internal.NewGuardedNotifier(sinks, breaker), nil
}
