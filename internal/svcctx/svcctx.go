// Package svcctx provides service context for dependency injection via context.
// Commands attach the Services built at startup and extract what they need.
package svcctx

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jackzampolin/promptctx/internal/assets"
	"github.com/jackzampolin/promptctx/internal/compose"
	"github.com/jackzampolin/promptctx/internal/config"
	"github.com/jackzampolin/promptctx/internal/home"
	"github.com/jackzampolin/promptctx/internal/metrics"
	"github.com/jackzampolin/promptctx/internal/prompts"
	"github.com/jackzampolin/promptctx/internal/query"
	"github.com/jackzampolin/promptctx/internal/relationships"
	"github.com/jackzampolin/promptctx/internal/store"
	"github.com/jackzampolin/promptctx/internal/templates"
)

// Services holds all core services that flow through context.
// Components extract what they need via the individual extractors.
type Services struct {
	Config       *config.Config
	Home         *home.Dir
	Logger       *slog.Logger
	Backend      store.Backend
	Prompts      *prompts.Store
	Templates    *templates.Store
	Resolver     *prompts.Resolver
	Executor     *query.Executor
	Reader       *assets.Reader
	Synchronizer *relationships.Synchronizer
	Pipeline     *compose.Pipeline
	Metrics      *metrics.Recorder
	Registry     *prometheus.Registry

	closers []func() error
}

type servicesKey struct{}

// WithServices returns a new context with services attached.
func WithServices(ctx context.Context, s *Services) context.Context {
	return context.WithValue(ctx, servicesKey{}, s)
}

// ServicesFrom extracts the full Services struct from context.
// Returns nil if not present.
func ServicesFrom(ctx context.Context) *Services {
	s, _ := ctx.Value(servicesKey{}).(*Services)
	return s
}

// PromptsFrom extracts the prompt store from context.
func PromptsFrom(ctx context.Context) *prompts.Store {
	if s := ServicesFrom(ctx); s != nil {
		return s.Prompts
	}
	return nil
}

// TemplatesFrom extracts the output template store from context.
func TemplatesFrom(ctx context.Context) *templates.Store {
	if s := ServicesFrom(ctx); s != nil {
		return s.Templates
	}
	return nil
}

// SynchronizerFrom extracts the relationship synchronizer from context.
func SynchronizerFrom(ctx context.Context) *relationships.Synchronizer {
	if s := ServicesFrom(ctx); s != nil {
		return s.Synchronizer
	}
	return nil
}

// PipelineFrom extracts the composition pipeline from context.
func PipelineFrom(ctx context.Context) *compose.Pipeline {
	if s := ServicesFrom(ctx); s != nil {
		return s.Pipeline
	}
	return nil
}

// BackendFrom extracts the storage backend from context.
func BackendFrom(ctx context.Context) store.Backend {
	if s := ServicesFrom(ctx); s != nil {
		return s.Backend
	}
	return nil
}

// HomeFrom extracts the home directory from context.
func HomeFrom(ctx context.Context) *home.Dir {
	if s := ServicesFrom(ctx); s != nil {
		return s.Home
	}
	return nil
}

// RegistryFrom extracts the metrics registry from context.
func RegistryFrom(ctx context.Context) *prometheus.Registry {
	if s := ServicesFrom(ctx); s != nil {
		return s.Registry
	}
	return nil
}

// LoggerFrom extracts the logger from context.
// Returns slog.Default() if not present.
func LoggerFrom(ctx context.Context) *slog.Logger {
	if s := ServicesFrom(ctx); s != nil && s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
