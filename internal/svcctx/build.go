package svcctx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jackzampolin/promptctx/internal/assets"
	"github.com/jackzampolin/promptctx/internal/compose"
	"github.com/jackzampolin/promptctx/internal/config"
	"github.com/jackzampolin/promptctx/internal/defra"
	"github.com/jackzampolin/promptctx/internal/home"
	"github.com/jackzampolin/promptctx/internal/metrics"
	"github.com/jackzampolin/promptctx/internal/prompts"
	"github.com/jackzampolin/promptctx/internal/query"
	"github.com/jackzampolin/promptctx/internal/relationships"
	"github.com/jackzampolin/promptctx/internal/schema"
	"github.com/jackzampolin/promptctx/internal/store"
	"github.com/jackzampolin/promptctx/internal/store/memstore"
	"github.com/jackzampolin/promptctx/internal/store/sqlstore"
	"github.com/jackzampolin/promptctx/internal/templates"
)

// Build opens the configured backend and wires every service on top of it.
// The caller must Close the result.
func Build(ctx context.Context, cfg *config.Config, h *home.Dir, logger *slog.Logger) (*Services, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	timeout, err := cfg.Compose.Timeout()
	if err != nil {
		return nil, err
	}

	s := &Services{Config: cfg, Home: h, Logger: logger, Registry: prometheus.NewRegistry()}

	s.Metrics, err = metrics.NewRecorder(s.Registry)
	if err != nil {
		return nil, err
	}

	s.Backend, err = s.openBackend(ctx)
	if err != nil {
		return nil, err
	}

	s.Prompts = prompts.NewStore(s.Backend, logger)
	s.Templates = templates.NewStore(s.Backend, logger)
	s.Resolver = prompts.NewResolver(s.Prompts, cfg.Prompts.SearchDirs, logger)
	s.Executor = query.NewExecutor(s.Backend, query.Options{
		FallbackCollections: cfg.Query.FallbackCollections,
		Metrics:             s.Metrics,
		Logger:              logger,
	})
	s.Reader = assets.NewReader(cfg.Assets.Root, cfg.Assets.MaxBytes, logger)
	s.Synchronizer = relationships.NewSynchronizer(s.Prompts, relationships.Options{
		Metrics: s.Metrics,
		Logger:  logger,
	})
	s.Pipeline = compose.NewPipeline(compose.Config{
		Resolver:           s.Resolver,
		Prompts:            s.Prompts,
		Templates:          s.Templates,
		Executor:           s.Executor,
		Reader:             s.Reader,
		Metrics:            s.Metrics,
		Logger:             logger,
		StepTimeout:        timeout,
		MaxConcurrentReads: cfg.Compose.MaxConcurrentReads,
	})

	return s, nil
}

// ComposeOptions returns the configured default steps.
func (s *Services) ComposeOptions() compose.Options {
	return compose.Options{
		IncludeRelationships: s.Config.Compose.IncludeRelationships,
		IncludeQueries:       s.Config.Compose.IncludeQueries,
		IncludeTemplates:     s.Config.Compose.IncludeTemplates,
	}
}

// Reload applies the settings that can change without reopening the
// backend: prompt search directories and the asset root and size limit.
func (s *Services) Reload(cfg *config.Config) {
	s.Resolver.SetSearchDirs(cfg.Prompts.SearchDirs)
	s.Reader.SetLimits(cfg.Assets.Root, cfg.Assets.MaxBytes)
	s.Logger.Info("configuration reloaded",
		"search_dirs", cfg.Prompts.SearchDirs,
		"assets_root", cfg.Assets.Root)
}

// Migrate prepares the backend's collections. SQL backends are
// auto-migrated; DefraDB receives the collection schemas.
func (s *Services) Migrate(ctx context.Context) error {
	switch b := s.Backend.(type) {
	case *sqlstore.Store:
		return b.Migrate(ctx)
	case *defra.Backend:
		return schema.Initialize(ctx, b.Client(), s.Logger)
	default:
		return nil
	}
}

// Close releases the backend connection.
func (s *Services) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	s.closers = nil
	return errors.Join(errs...)
}

func (s *Services) openBackend(ctx context.Context) (store.Backend, error) {
	cfg := s.Config.Store
	switch cfg.Driver {
	case config.DriverMemory:
		return memstore.New(), nil

	case config.DriverDefra:
		client := defra.NewClient(cfg.DefraURL)
		if err := client.WaitReady(ctx, max(cfg.ConnectRetries, 1), time.Second); err != nil {
			return nil, fmt.Errorf("defradb at %s is not ready: %w", client.URL(), err)
		}
		return defra.NewBackend(client, s.Logger)

	default:
		dsn := s.Config.ResolvedDSN()
		if cfg.Driver == config.DriverSQLite && dsn == "" {
			if s.Home == nil {
				return nil, fmt.Errorf("store.dsn is required without a home directory")
			}
			dsn = s.Home.DatabasePath()
		}
		db, err := sqlstore.Open(ctx, sqlstore.Options{
			Driver:          cfg.Driver,
			DSN:             dsn,
			AllowRawQueries: cfg.AllowRawQueries,
			ConnectAttempts: cfg.ConnectRetries,
			Logger:          s.Logger,
		})
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, db.Close)
		if cfg.Driver == config.DriverSQLite {
			// A fresh sqlite file is usable without a separate migrate step.
			if err := db.Migrate(ctx); err != nil {
				s.Close()
				return nil, err
			}
		}
		return db, nil
	}
}
