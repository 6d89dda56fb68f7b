package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/reelhouse/backend/internal/auth"
	"github.com/reelhouse/backend/internal/cleanup"
	"github.com/reelhouse/backend/internal/config"
	"github.com/reelhouse/backend/internal/db"
	"github.com/reelhouse/backend/internal/handlers"
	"github.com/reelhouse/backend/internal/metrics"
	"github.com/reelhouse/backend/internal/middleware"
	"github.com/reelhouse/backend/internal/repositories"
	"github.com/reelhouse/backend/internal/security"
	"github.com/reelhouse/backend/internal/storage"
)

// limiterIdleTTL is how long an idle client keeps its rate limit bucket.
const limiterIdleTTL = 10 * time.Minute

type databasePool interface {
	db.Pool
	Ping(ctx context.Context) error
}

// services are the long-lived components serve owns and shuts down itself.
type services struct {
	Logger   *slog.Logger
	Media    storage.Buckets
	Reaper   *cleanup.Reaper
	Metrics  *metrics.Collector
	Registry *prometheus.Registry
}

// buildDependencies wires together concrete implementations used by the HTTP handlers.
func buildDependencies(pool databasePool, cfg config.Config, svc services) (handlers.Dependencies, error) {
	issuer, err := auth.NewIssuer(cfg.Token.Secret, cfg.Token.TTL)
	if err != nil {
		return handlers.Dependencies{}, fmt.Errorf("token issuer: %w", err)
	}

	proxies, err := middleware.ParseTrustedProxies(cfg.RateLimit.TrustedProxies)
	if err != nil {
		return handlers.Dependencies{}, err
	}

	deps := handlers.Dependencies{
		Logger:    svc.Logger,
		DB:        pool,
		Users:     repositories.NewPostgresUserRepository(pool),
		Catalog:   repositories.NewPostgresCatalogRepository(pool),
		Tokens:    issuer,
		Media:     svc.Media,
		Sanitizer: security.NewTextSanitizer(),
		AuthLimiter: middleware.NewRateLimiter(
			cfg.RateLimit.Requests, cfg.RateLimit.Window, cfg.RateLimit.Burst, limiterIdleTTL,
		),
		TrustedProxies: proxies,
		Metrics:        svc.Metrics,
		WebRoot:        cfg.WebRoot,
		MaxUpload:      cfg.MaxUpload,
		ChunkTimeout:   cfg.StreamChunk,
	}
	if svc.Reaper != nil {
		deps.Reaper = svc.Reaper
	}
	if svc.Registry != nil {
		deps.Gatherer = svc.Registry
	}
	return deps, nil
}
