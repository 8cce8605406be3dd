package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder owns the engine's collectors.
type Recorder struct {
	// queryExecutions counts executed queries.
	// Labels:
	//   - path: raw, fallback or none
	//   - status: success or error
	queryExecutions *prometheus.CounterVec

	// queryDuration observes query latency by path.
	queryDuration *prometheus.HistogramVec

	// compositions counts Compose calls.
	// Labels:
	//   - source: store or local
	//   - status: success or error
	compositions *prometheus.CounterVec

	// degradedSections counts sub-steps rendered as failures.
	// Labels:
	//   - kind: asset, query or template
	degradedSections *prometheus.CounterVec

	// syncChanges counts relationship rows written by synchronization.
	// Labels:
	//   - op: insert, update or delete
	syncChanges *prometheus.CounterVec
}

// NewRecorder creates the collectors and registers them with reg.
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		queryExecutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "promptctx_query_executions_total",
				Help: "Total number of embedded query executions",
			},
			[]string{"path", "status"},
		),
		queryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "promptctx_query_duration_seconds",
				Help:    "Duration of embedded query executions in seconds",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
			},
			[]string{"path"},
		),
		compositions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "promptctx_compositions_total",
				Help: "Total number of prompt compositions",
			},
			[]string{"source", "status"},
		),
		degradedSections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "promptctx_composition_degraded_sections_total",
				Help: "Total number of composition sub-steps that failed and were rendered inline or skipped",
			},
			[]string{"kind"},
		),
		syncChanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "promptctx_relationship_sync_changes_total",
				Help: "Total number of relationship rows changed by synchronization",
			},
			[]string{"op"},
		),
	}

	for _, c := range []prometheus.Collector{r.queryExecutions, r.queryDuration, r.compositions, r.degradedSections, r.syncChanges} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register collector: %w", err)
		}
	}
	return r, nil
}

// RecordQuery records one query execution.
func (r *Recorder) RecordQuery(path, status string, durationSeconds float64) {
	if r == nil {
		return
	}
	r.queryExecutions.WithLabelValues(path, status).Inc()
	r.queryDuration.WithLabelValues(path).Observe(durationSeconds)
}

// RecordComposition records one Compose call.
func (r *Recorder) RecordComposition(source, status string) {
	if r == nil {
		return
	}
	r.compositions.WithLabelValues(source, status).Inc()
}

// RecordDegraded records one degraded composition section.
func (r *Recorder) RecordDegraded(kind string) {
	if r == nil {
		return
	}
	r.degradedSections.WithLabelValues(kind).Inc()
}

// RecordSyncChanges adds n changes of kind op.
func (r *Recorder) RecordSyncChanges(op string, n int) {
	if r == nil || n == 0 {
		return
	}
	r.syncChanges.WithLabelValues(op).Add(float64(n))
}
