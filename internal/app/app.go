// Package app assembles the suggestion service from configuration: reference
// data, caches, the case-record store, the engine stages and the HTTP server.
package app

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/homeopathy-case-engine/internal/api"
	"github.com/homeopathy-case-engine/internal/cache"
	"github.com/homeopathy-case-engine/internal/config"
	"github.com/homeopathy-case-engine/internal/database"
	"github.com/homeopathy-case-engine/internal/domain"
	"github.com/homeopathy-case-engine/internal/outcome"
	"github.com/homeopathy-case-engine/internal/repository"
	"github.com/homeopathy-case-engine/internal/service"
)

// App owns every long-lived collaborator of a running service.
type App struct {
	Config      *domain.Config
	Reference   *cache.ReferenceStore
	Cases       outcome.Store
	Suggestions *service.SuggestionService
	Learning    *service.LearningService
	Server      *api.Server

	logger  *logrus.Logger
	closers []func() error
}

// Option customizes an App before its collaborators are created.
type Option func(*App) error

// WithCaseStore replaces the configured case-record store.
func WithCaseStore(store outcome.Store) Option {
	return func(a *App) error {
		a.Cases = store
		return nil
	}
}

// New wires the full deployment: Postgres reference data behind the memory
// and optional Redis caches, and the configured case-record store.
func New(ctx context.Context, manager *config.Manager, logger *logrus.Logger, opts ...Option) (*App, error) {
	cfg := manager.GetConfig()
	a := &App{Config: cfg, logger: logger}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	db, err := database.NewConnection(ctx, database.ConfigFrom(cfg.Database), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to reference database: %w", err)
	}
	a.closers = append(a.closers, func() error { db.Close(); return nil })
	checks := map[string]api.HealthCheck{"reference_db": db.Health}

	var redisCache *cache.RedisCache
	if cfg.Cache.RedisURL != "" {
		redisCache, err = cache.NewRedisCache(cfg.Cache)
		if err != nil {
			// The Redis tier is optional; lookups fall through to Postgres.
			logger.WithError(err).Warn("Redis cache unavailable, continuing with memory cache only")
			redisCache = nil
		} else {
			a.closers = append(a.closers, redisCache.Close)
			checks["redis"] = redisCache.Ping
		}
	}

	a.Reference = cache.NewReferenceStore(repository.NewPostgresReferenceStore(db.Pool, logger), cfg.Cache, redisCache, logger)

	if a.Cases == nil {
		store, err := OpenCaseStore(cfg.OutcomeStore, manager.OutcomeStorePostgresURL())
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Cases = store
	}
	a.closers = append(a.closers, a.Cases.Close)
	checks["case_store"] = a.Cases.Ping

	if err := a.wireServices(cfg, checks); err != nil {
		a.Close()
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"outcome_driver": cfg.OutcomeStore.Driver,
		"redis_enabled":  redisCache != nil,
		"environment":    cfg.Environment,
	}).Info("Service assembled")
	return a, nil
}

// NewLite wires the standalone deployment: the embedded reference seed behind
// the memory cache and SQLite case records under the data directory.
func NewLite(lite *config.LiteConfig, logger *logrus.Logger, opts ...Option) (*App, error) {
	cfg := LiteDomainConfig(lite)
	a := &App{Config: cfg, logger: logger}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if err := lite.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	seeded, err := repository.NewSeededReferenceStore(logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load reference seed: %w", err)
	}
	a.Reference = cache.NewReferenceStore(seeded, cfg.Cache, nil, logger)

	if a.Cases == nil {
		store, err := outcome.NewSQLiteStore(lite.CaseRecordDBPath())
		if err != nil {
			return nil, fmt.Errorf("failed to create case record store: %w", err)
		}
		a.Cases = store
	}
	a.closers = append(a.closers, a.Cases.Close)

	if err := a.wireServices(cfg, map[string]api.HealthCheck{"case_store": a.Cases.Ping}); err != nil {
		a.Close()
		return nil, err
	}

	logger.WithField("data_dir", lite.DataDir).Info("Standalone service assembled")
	return a, nil
}

// LiteDomainConfig expands the environment-only lite settings into the full
// configuration shape the server expects.
func LiteDomainConfig(lite *config.LiteConfig) *domain.Config {
	return &domain.Config{
		Environment: "development",
		Server: domain.ServerConfig{
			Host: lite.HTTPHost,
			Port: lite.HTTPPort,
		},
		Cache: domain.CacheConfig{
			MemoryMaxItems: lite.CacheMaxItems,
			MemoryTTL:      lite.CacheTTL,
		},
		Logging: domain.LoggingConfig{
			Level:  lite.LogLevel,
			Format: lite.LogFormat,
		},
		OutcomeStore: domain.OutcomeStoreConfig{
			Driver:     "sqlite",
			SQLitePath: lite.CaseRecordDBPath(),
		},
		RateLimit: domain.RateLimitConfig{Enabled: false},
		Engine:    lite.Engine,
	}
}

func (a *App) wireServices(cfg *domain.Config, checks map[string]api.HealthCheck) error {
	normalizer, err := service.NewSymptomNormalizer(a.Reference, cfg.Engine, cfg.Cache.MemoryMaxItems, a.logger)
	if err != nil {
		return err
	}
	normalizer.SetMemoTTL(cfg.Cache.MemoryTTL)
	a.Reference.OnInvalidate(normalizer.Purge)

	a.Learning = service.NewLearningService(a.Cases, a.logger)
	a.Suggestions = service.NewSuggestionService(a.logger, cfg.Engine, normalizer, a.Reference, a.Learning)
	a.Server = api.NewServer(cfg, api.Dependencies{
		Suggestions:  a.Suggestions,
		Learning:     a.Learning,
		Reference:    a.Reference,
		HealthChecks: checks,
	}, a.logger)
	return nil
}

// OpenCaseStore opens the case-record store selected by cfg.Driver.
func OpenCaseStore(cfg domain.OutcomeStoreConfig, postgresURL string) (outcome.Store, error) {
	switch cfg.Driver {
	case "sqlite":
		store, err := outcome.NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to create sqlite case record store: %w", err)
		}
		return store, nil
	case "postgres":
		store, err := outcome.NewPostgresStoreFromURL(postgresURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create postgres case record store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported outcome store driver: %q", cfg.Driver)
	}
}

// Logger returns the logger every collaborator shares.
func (a *App) Logger() *logrus.Logger {
	return a.logger
}

// Run serves HTTP until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	return a.Server.Start(ctx)
}

// Close releases every collaborator in reverse order of creation.
func (a *App) Close() error {
	var firstErr error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.closers = nil
	return firstErr
}
