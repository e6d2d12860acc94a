package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/lychee-technology/dynaform"
	"github.com/lychee-technology/dynaform/factory"
	"github.com/lychee-technology/dynaform/internal"
	"go.uber.org/zap"
)

// actorHeader carries the id of the user performing a request.
const actorHeader = "X-User-ID"

// Server represents the HTTP server over the collection manager and record engine
type Server struct {
	collections dynaform.CollectionManager
	records     dynaform.RecordEngine
	registry    *internal.FieldTypeRegistry
	health      func(ctx context.Context) error
	router      chi.Router
}

// NewServer creates a new Server instance. health may be nil.
func NewServer(collections dynaform.CollectionManager, records dynaform.RecordEngine, health func(ctx context.Context) error) *Server {
	s := &Server{
		collections: collections,
		records:     records,
		registry:    internal.DefaultFieldTypeRegistry(),
		health:      health,
		router:      chi.NewRouter(),
	}
	s.RegisterRoutes()
	return s
}

// RegisterRoutes registers all API routes
func (s *Server) RegisterRoutes() {
	s.router.Use(middleware.RequestID, middleware.Recoverer, withActor)

	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Route("/collections", func(r chi.Router) {
			r.Post("/", s.handleCreateCollection)
			r.Get("/", s.handleListCollections)
			r.Get("/{id}", s.handleGetCollection)
			r.Delete("/{id}", s.handleDeleteCollection)
			r.Patch("/{id}/status", s.handleSetCollectionStatus)
			r.Post("/{id}/fields", s.handleAddField)
			r.Patch("/{id}/fields/{fieldID}", s.handleUpdateField)
			r.Delete("/{id}/fields/{fieldID}", s.handleDeleteField)
			r.Post("/{id}/relations", s.handleAddRelation)
		})
		r.Route("/records/{collection}", func(r chi.Router) {
			r.Get("/", s.handleListRecords)
			r.Post("/", s.handleCreateRecord)
			r.Get("/{id}", s.handleGetRecord)
			r.Patch("/{id}", s.handleUpdateRecord)
			r.Delete("/{id}", s.handleDeleteRecord)
		})
		r.Get("/field-types", s.handleFieldTypes)
		r.Post("/validate", s.handleValidate)
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func withActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if actor := r.Header.Get(actorHeader); actor != "" {
			r = r.WithContext(dynaform.WithActor(r.Context(), actor))
		}
		next.ServeHTTP(w, r)
	})
}

func newLogger(cfg dynaform.LoggingConfig) (*zap.Logger, error) {
	if cfg.Level == "debug" || cfg.Format == "console" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func main() {
	configPath := flag.String("config", os.Getenv("DYNAFORM_CONFIG"), "path to a YAML config file")
	flag.Parse()

	// .env is optional
	_ = godotenv.Load()

	config, err := dynaform.LoadConfig(*configPath)
	if err != nil {
		panic(err)
	}

	logger, err := newLogger(config.Logging)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	sugar := logger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := internal.ValidateEventsConfig(config.Events); err != nil {
		sugar.Fatalf("invalid events config: %v", err)
	}

	if config.Database.AutoMigrate {
		if err := migrate(ctx, config.Database); err != nil {
			sugar.Fatalf("failed to migrate metadata tables: %v", err)
		}
	}

	pool, err := internal.NewPostgresPool(ctx, config.Database)
	if err != nil {
		sugar.Fatalf("failed to create database pool: %v", err)
	}
	defer pool.Close()

	notifier, err := factory.NewNotifier(ctx, config)
	if err != nil {
		sugar.Fatalf("failed to create notifier: %v", err)
	}

	services, err := factory.NewServicesWithConfig(ctx, config, pool, notifier)
	if err != nil {
		sugar.Fatalf("failed to create services: %v", err)
	}

	server := NewServer(services.Collections, services.Records, func(ctx context.Context) error {
		if err := internal.PostgresHealthCheck(ctx, pool, 0); err != nil {
			return err
		}
		return internal.S3HealthCheck(ctx, config.Events, 0)
	})

	httpServer := &http.Server{
		Addr:              ":" + config.Server.Port,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			sugar.Warnw("graceful shutdown failed", "error", err)
		}
	}()

	sugar.Infow("starting server", "port", config.Server.Port)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		sugar.Fatalf("server error: %v", err)
	}
}

func migrate(ctx context.Context, cfg dynaform.DatabaseConfig) error {
	dsn, err := internal.MigrationDSN(ctx, cfg)
	if err != nil {
		return err
	}
	db, err := internal.OpenSQLDB(dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	return internal.MigrateMetadata(db)
}
