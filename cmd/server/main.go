package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/nathanyu/mini-ledger/internal/config"
	"github.com/nathanyu/mini-ledger/internal/customer"
	"github.com/nathanyu/mini-ledger/internal/eventstore"
	"github.com/nathanyu/mini-ledger/internal/handler"
	"github.com/nathanyu/mini-ledger/internal/ledger"
	"github.com/nathanyu/mini-ledger/internal/middleware"
	"github.com/nathanyu/mini-ledger/internal/query"
	"github.com/nathanyu/mini-ledger/internal/queue"
	"github.com/nathanyu/mini-ledger/internal/seed"
	"github.com/nathanyu/mini-ledger/internal/store"
	"github.com/nathanyu/mini-ledger/internal/store/memory"
	"github.com/nathanyu/mini-ledger/internal/store/postgres"
	"github.com/nathanyu/mini-ledger/internal/telemetry"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(2)
	}

	logger := telemetry.InitLogger(cfg.ServiceName, slog.LevelInfo)

	cleanup, err := telemetry.InitTracer(cfg.ServiceName)
	if err != nil {
		logger.Warn("failed to initialize tracer", "error", err)
		cleanup = func() {}
	}

	err = run(cfg, logger)
	cleanup()
	if err != nil {
		logger.Error("service stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	gin.SetMode(cfg.GinMode)
	logger.Info("starting ledger service", "storage", cfg.Storage)

	ctx := context.Background()
	healthChecks := map[string]handler.HealthCheck{}

	// 1. Storage backend and customer directory
	var (
		st        store.Store
		directory customer.Directory
	)
	switch cfg.Storage {
	case config.StoragePostgres:
		db, err := openPostgres(cfg.DB.DSN, logger)
		if err != nil {
			return err
		}
		pg := postgres.New(db)
		st = pg
		directory = customer.NewPostgresDirectory(db)
		healthChecks["postgres"] = pg.Ping

	default:
		journal, err := eventstore.NewEventStore(cfg.JournalPath)
		if err != nil {
			return fmt.Errorf("failed to open journal: %w", err)
		}
		mem := memory.New(journal, logger)
		if err := mem.Restore(journal); err != nil {
			journal.Close()
			return err
		}
		if cfg.Seed {
			loaded, err := mem.Seed(seed.Events())
			if err != nil {
				journal.Close()
				return fmt.Errorf("failed to seed ledger: %w", err)
			}
			if loaded {
				logger.Info("sample data loaded")
			}
		}
		st = mem
		directory = customer.NewMemoryDirectory(seed.Customers())
	}
	defer st.Close()

	// 2. Optional Redis cache in front of the directory
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis not reachable, customer cache will fall back to origin", "addr", cfg.Redis.Addr, "error", err)
		}
		directory = customer.NewCachedDirectory(customer.NewRedisCache(rdb, cfg.Redis.TTL), directory, logger)
		healthChecks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	// 3. Optional NATS event publishing
	var publisher ledger.EventPublisher
	if cfg.NATSUrl != "" {
		natsClient, err := queue.NewNATSClient(cfg.NATSUrl, cfg.ServiceName, logger)
		if err != nil {
			return err
		}
		defer natsClient.Close()
		publisher = natsClient
		logger.Info("publishing ledger events", "url", cfg.NATSUrl, "subject", queue.EventSubject)
	}

	// 4. Engine, read side and HTTP handlers
	svc := ledger.NewService(st, directory, publisher, logger)
	facade := query.NewFacade(st, st, directory)
	h := handler.NewHandler(svc, facade, logger)
	for name, check := range healthChecks {
		h.AddHealthCheck(name, check)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Tracing())
	router.Use(middleware.Metrics())
	router.Use(middleware.Logging(logger))
	router.Use(middleware.Timeout(cfg.RequestTimeout))
	handler.SetupRoutes(router, h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// 5. Admin server (separate port for Prometheus scraping)
	adminSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler: newAdminRouter(cfg.ServiceName + "-admin"),
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("HTTP server listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()
	go func() {
		logger.Info("admin server listening", "port", cfg.MetricsPort)
		if err := adminSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("admin server error: %w", err)
		}
	}()

	// Wait for interrupt signal or a server failure
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-quit:
		logger.Info("shutting down", "signal", sig.String())
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server forced to shutdown", "error", err)
	}
	if err := adminSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("admin server forced to shutdown", "error", err)
	}

	logger.Info("service stopped")
	return runErr
}

// openPostgres connects and waits for the database to accept connections
func openPostgres(dsn string, logger *slog.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	const maxRetries = 10
	for i := 0; i < maxRetries; i++ {
		if err = db.Ping(); err == nil {
			logger.Info("connected to PostgreSQL")
			return db, nil
		}
		logger.Info("waiting for database", "attempt", i+1, "max_attempts", maxRetries)
		time.Sleep(3 * time.Second)
	}

	db.Close()
	return nil, fmt.Errorf("database not available after retries: %w", err)
}
