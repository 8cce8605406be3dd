// Package metrics exposes Prometheus counters for query execution,
// composition and relationship synchronization.
//
// Components take a *Recorder; a nil *Recorder records nothing.
package metrics

// Query execution paths.
const (
	PathRaw      = "raw"
	PathFallback = "fallback"
	PathNone     = "none"
)

// Outcomes.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Prompt sources for compositions.
const (
	SourceStore = "store"
	SourceLocal = "local"
	// SourceNone labels compositions whose prompt could not be resolved.
	SourceNone = "none"
)

// Degraded composition section kinds.
const (
	KindAsset    = "asset"
	KindQuery    = "query"
	KindTemplate = "template"
)

// Relationship synchronization operations.
const (
	OpInsert = "insert"
	OpUpdate = "update"
	OpDelete = "delete"
)
