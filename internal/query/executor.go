// Package query executes parameterized queries embedded in prompt metadata.
//
// Execution is two-tier. Backends that implement store.RawQuerier run the
// query directly. When that capability is missing or fails, a small set of
// recognized shapes is re-expressed as a structured store.Backend fetch.
// Anything else fails with *ExecutionError.
package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackzampolin/promptctx/internal/metrics"
	"github.com/jackzampolin/promptctx/internal/store"
)

// NoMethodMessage is the ExecutionError text when no path could run a query.
const NoMethodMessage = "No method available to execute this query"

// ExecutionError reports a query that no execution path could serve.
type ExecutionError struct {
	Query string
	// Reason is NoMethodMessage, or a description of the failed fallback.
	Reason string
	// Err is the underlying failure, if any.
	Err error
}

func (e *ExecutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// Options configures an Executor.
type Options struct {
	// FallbackCollections extends the collections the fallback path may read.
	FallbackCollections []string
	Metrics             *metrics.Recorder
	Logger              *slog.Logger
}

// Executor runs embedded queries against one backend.
type Executor struct {
	backend     store.Backend
	collections map[string]bool
	metrics     *metrics.Recorder
	logger      *slog.Logger
}

// NewExecutor creates an executor over backend.
func NewExecutor(backend store.Backend, opts Options) *Executor {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	collections := make(map[string]bool)
	for _, c := range store.Collections() {
		collections[c] = true
	}
	for _, c := range opts.FallbackCollections {
		collections[c] = true
	}
	return &Executor{backend: backend, collections: collections, metrics: opts.Metrics, logger: logger}
}

// Execute trims and substitutes sql, then runs it.
func (e *Executor) Execute(ctx context.Context, sql string, params map[string]any) ([]store.Record, error) {
	start := time.Now()
	prepared, missing := Substitute(Trim(sql), params)
	if len(missing) > 0 {
		e.logger.Warn("query parameter missing, substituted sentinel id", "params", missing, "sentinel", SentinelID)
	}

	var rawErr error
	if rq, ok := e.backend.(store.RawQuerier); ok {
		rows, err := rq.RawQuery(ctx, prepared)
		if err == nil {
			e.metrics.RecordQuery(metrics.PathRaw, metrics.StatusSuccess, time.Since(start).Seconds())
			return rows, nil
		}
		rawErr = err
		if !errors.Is(err, store.ErrRawQueryUnavailable) {
			e.logger.Debug("raw query failed, trying fallback", "error", err)
		}
	}

	fq, ok := parseFallback(prepared)
	if !ok || !e.collections[fq.Collection] {
		e.metrics.RecordQuery(metrics.PathNone, metrics.StatusError, time.Since(start).Seconds())
		return nil, &ExecutionError{Query: prepared, Reason: NoMethodMessage, Err: rawErr}
	}

	rows, err := e.backend.Find(ctx, fq.Collection, fq.Query)
	if err != nil {
		e.metrics.RecordQuery(metrics.PathFallback, metrics.StatusError, time.Since(start).Seconds())
		return nil, &ExecutionError{Query: prepared, Reason: "fallback query failed", Err: err}
	}
	e.metrics.RecordQuery(metrics.PathFallback, metrics.StatusSuccess, time.Since(start).Seconds())
	e.logger.Debug("query served by fallback", "collection", fq.Collection, "rows", len(rows))
	return rows, nil
}
