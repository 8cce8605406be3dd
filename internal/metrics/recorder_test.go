package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r, err := NewRecorder(reg)
	if err != nil {
		t.Fatalf("NewRecorder() error = %v", err)
	}

	r.RecordQuery(PathFallback, StatusSuccess, 0.01)
	r.RecordQuery(PathFallback, StatusSuccess, 0.02)
	r.RecordQuery(PathNone, StatusError, 0)
	r.RecordComposition(SourceLocal, StatusSuccess)
	r.RecordDegraded(KindQuery)
	r.RecordSyncChanges(OpInsert, 2)
	r.RecordSyncChanges(OpDelete, 0)

	tests := []struct {
		name string
		c    prometheus.Collector
		want float64
	}{
		{"fallback success", r.queryExecutions.WithLabelValues(PathFallback, StatusSuccess), 2},
		{"none error", r.queryExecutions.WithLabelValues(PathNone, StatusError), 1},
		{"local composition", r.compositions.WithLabelValues(SourceLocal, StatusSuccess), 1},
		{"degraded query", r.degradedSections.WithLabelValues(KindQuery), 1},
		{"inserts", r.syncChanges.WithLabelValues(OpInsert), 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := testutil.ToFloat64(tt.c); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}

	if n := testutil.CollectAndCount(r.syncChanges); n != 1 {
		t.Errorf("zero-valued sync ops should not create series, got %d", n)
	}
}

func TestRecorder_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewRecorder(reg); err != nil {
		t.Fatalf("first NewRecorder() error = %v", err)
	}
	if _, err := NewRecorder(reg); err == nil {
		t.Error("expected error registering twice on one registry")
	}
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var r *Recorder
	r.RecordQuery(PathRaw, StatusSuccess, 1)
	r.RecordComposition(SourceStore, StatusError)
	r.RecordDegraded(KindAsset)
	r.RecordSyncChanges(OpUpdate, 1)
}

func TestWriteTextfile(t *testing.T) {
	reg := prometheus.NewRegistry()
	r, _ := NewRecorder(reg)
	r.RecordComposition(SourceStore, StatusSuccess)

	path := filepath.Join(t.TempDir(), "promptctx.prom")
	if err := WriteTextfile(reg, path); err != nil {
		t.Fatalf("WriteTextfile() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), `promptctx_compositions_total{source="store",status="success"} 1`) {
		t.Errorf("unexpected textfile:\n%s", data)
	}
}
