package e2e_harness

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/lychee-technology/dynaform"
	"github.com/lychee-technology/dynaform/factory"
	"github.com/lychee-technology/dynaform/internal"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	pgImage = "postgres:16"
	pgPort  = "5432/tcp"
	s3Image = "rustfs/rustfs:latest"
	s3Port  = "9000/tcp"

	startupTimeout = 30 * time.Second

	// S3 credentials configured on the archive container.
	S3AccessKey = "minio"
	S3SecretKey = "minio"
)

// TestHarness owns the containers and handles one E2E test runs against.
type TestHarness struct {
	PGContainer testcontainers.Container
	PGDSN       string
	PGDB        *sql.DB
	Pool        *pgxpool.Pool
	S3Container testcontainers.Container
	S3Endpoint  string
}

// startContainer runs image with port exposed and returns the container and
// its host:port address once ready is satisfied.
func startContainer(ctx context.Context, image, port string, ready wait.Strategy, env map[string]string) (testcontainers.Container, string, error) {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        image,
			ExposedPorts: []string{port},
			Env:          env,
			WaitingFor:   ready,
		},
		Started: true,
	})
	if err != nil {
		return nil, "", fmt.Errorf("start %s: %w", image, err)
	}

	addr, err := container.Endpoint(ctx, "")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, "", fmt.Errorf("resolve %s endpoint: %w", image, err)
	}
	return container, addr, nil
}

// StartPostgres starts Postgres 16 and opens a database/sql handle once the
// server answers pings. Callers stop it with StopPostgres.
func (h *TestHarness) StartPostgres(ctx context.Context) (string, error) {
	container, addr, err := startContainer(ctx, pgImage, pgPort, wait.ForListeningPort(pgPort).WithStartupTimeout(startupTimeout), map[string]string{
		"POSTGRES_USER":     "postgres",
		"POSTGRES_PASSWORD": "password",
		"POSTGRES_DB":       "dynaform",
	})
	if err != nil {
		return "", err
	}
	h.PGContainer = container
	h.PGDSN = fmt.Sprintf("postgres://postgres:password@%s/dynaform?sslmode=disable", addr)

	db, err := internal.OpenSQLDB(h.PGDSN)
	if err != nil {
		return "", err
	}
	if err := waitForPing(ctx, db, 20*time.Second); err != nil {
		db.Close()
		return "", err
	}
	h.PGDB = db
	return h.PGDSN, nil
}

// The listening port opens before initdb finishes, so readiness is a ping.
func waitForPing(ctx context.Context, db *sql.DB, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		err := db.PingContext(ctx)
		if err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("postgres did not become ready: %w", err)
		}
		time.Sleep(200 * time.Millisecond)
	}
}

// StopPostgres closes the pool and sql handle, then terminates the container.
func (h *TestHarness) StopPostgres(ctx context.Context) error {
	if h.Pool != nil {
		h.Pool.Close()
		h.Pool = nil
	}
	if h.PGDB != nil {
		h.PGDB.Close()
		h.PGDB = nil
	}
	return terminate(ctx, &h.PGContainer)
}

// Services migrates the metadata tables and wires the collection manager and
// record engine against the running Postgres container.
func (h *TestHarness) Services(ctx context.Context, notifier dynaform.Notifier) (*factory.Services, error) {
	if h.PGDB == nil {
		return nil, fmt.Errorf("postgres not started")
	}
	if err := internal.MigrateMetadata(h.PGDB); err != nil {
		return nil, err
	}
	if h.Pool == nil {
		pool, err := pgxpool.New(ctx, h.PGDSN)
		if err != nil {
			return nil, fmt.Errorf("create pool: %w", err)
		}
		h.Pool = pool
	}
	return factory.NewServicesWithConfig(ctx, dynaform.DefaultConfig(), h.Pool, notifier)
}

// StartS3 starts an S3-compatible object store for the event archive.
func (h *TestHarness) StartS3(ctx context.Context) (string, error) {
	container, addr, err := startContainer(ctx, s3Image, s3Port, wait.ForListeningPort(s3Port).WithStartupTimeout(startupTimeout), map[string]string{
		"RUSTFS_ACCESS_KEY": S3AccessKey,
		"RUSTFS_SECRET_KEY": S3SecretKey,
	})
	if err != nil {
		return "", err
	}
	h.S3Container = container
	h.S3Endpoint = "http://" + addr
	return h.S3Endpoint, nil
}

// StopS3 terminates the object store container.
func (h *TestHarness) StopS3(ctx context.Context) error {
	return terminate(ctx, &h.S3Container)
}

func terminate(ctx context.Context, c *testcontainers.Container) error {
	if *c == nil {
		return nil
	}
	if err := (*c).Terminate(ctx); err != nil {
		return err
	}
	*c = nil
	return nil
}
