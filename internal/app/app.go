package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/reelhouse/backend/internal/cleanup"
	"github.com/reelhouse/backend/internal/config"
	"github.com/reelhouse/backend/internal/db"
	"github.com/reelhouse/backend/internal/handlers"
	"github.com/reelhouse/backend/internal/httpserver"
	"github.com/reelhouse/backend/internal/logging"
	"github.com/reelhouse/backend/internal/metrics"
	"github.com/reelhouse/backend/internal/repositories"
	"github.com/reelhouse/backend/internal/storage"
)

// Run bootstraps the Reelhouse backend. With no arguments it serves HTTP.
func Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return serve(ctx)
	}

	switch args[0] {
	case "serve":
		return serve(ctx)
	case "migrate":
		return runMigrations(ctx, args[1:])
	default:
		return fmt.Errorf("unknown command %q (expected serve or migrate)", args[0])
	}
}

func serve(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.New(os.Stdout, cfg.LogLevel)
	slog.SetDefault(logger)

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := migrateWithRetry(ctx, logger, func(ctx context.Context) error {
		return db.Migrate(ctx, pool, db.MigrateUp)
	}); err != nil {
		return err
	}

	if err := EnsureAdmin(ctx, repositories.NewPostgresUserRepository(pool), cfg.Admin, logger); err != nil {
		return err
	}

	buckets, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	reaper := cleanup.NewReaper(cfg.Reaper, logger, collector)

	deps, err := buildDependencies(pool, cfg, services{
		Logger:   logger,
		Media:    buckets,
		Reaper:   reaper,
		Metrics:  collector,
		Registry: registry,
	})
	if err != nil {
		return err
	}

	srv := httpserver.New(cfg.AppPort, handlers.NewRouter(deps), cfg.WriteTimeout)

	logger.Info("starting http server", "port", cfg.AppPort, "storage", cfg.Storage.Backend)

	srvErr := make(chan error, 1)
	go func() {
		srvErr <- srv.Start()
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down", "reason", context.Cause(ctx))
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr = err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), httpserver.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown", "error", err)
	}
	if err := reaper.Shutdown(shutdownCtx); err != nil {
		logger.Error("file reaper shutdown", "error", err)
	}

	return serveErr
}

func runMigrations(ctx context.Context, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	command := db.MigrateUp
	if len(args) > 0 {
		command = args[0]
	}
	switch command {
	case db.MigrateUp, db.MigrateDown, db.MigrateStatus:
	default:
		return fmt.Errorf("unknown migrate command %q", command)
	}

	logger := logging.New(os.Stdout, cfg.LogLevel)

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	return migrateWithRetry(ctx, logger, func(ctx context.Context) error {
		return db.Migrate(ctx, pool, command)
	})
}

const (
	migrationMaxRetries  = 3
	migrationBaseBackoff = 100 * time.Millisecond
	migrationMaxBackoff  = 3 * time.Second
)

var retryablePgErrorCodes = map[string]struct{}{
	"40001": {}, // serialization_failure
	"40P01": {}, // deadlock_detected
	"55P03": {}, // lock_not_available
}

// migrateWithRetry runs migrate, retrying transient database errors with
// exponential backoff.
func migrateWithRetry(ctx context.Context, logger *slog.Logger, migrate func(context.Context) error) error {
	var err error
	for attempt := 0; attempt < migrationMaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * migrationBaseBackoff
			if backoff > migrationMaxBackoff {
				backoff = migrationMaxBackoff
			}
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		err = migrate(ctx)
		if err == nil {
			return nil
		}
		if !shouldRetryMigration(err) {
			return err
		}
		logger.Warn("transient migration error", "attempt", attempt+1, "max_attempts", migrationMaxRetries, "error", err)
	}

	return fmt.Errorf("migrate: exceeded max retries (%d): %w", migrationMaxRetries, err)
}

func shouldRetryMigration(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if _, ok := retryablePgErrorCodes[pgErr.Code]; ok {
			return true
		}
	}

	return errors.Is(err, pgx.ErrTxClosed)
}
