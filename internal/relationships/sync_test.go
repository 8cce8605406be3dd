package relationships

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jackzampolin/promptctx/internal/metrics"
	"github.com/jackzampolin/promptctx/internal/prompts"
	"github.com/jackzampolin/promptctx/internal/store"
	"github.com/jackzampolin/promptctx/internal/testutil"
)

func setup(t *testing.T, b store.Backend) (*prompts.Store, *Synchronizer, *prompts.Prompt) {
	t.Helper()
	ps := prompts.NewStore(b, testutil.Logger(t))
	p, err := ps.Create(context.Background(), &prompts.Prompt{Name: "p2", Content: "Body"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return ps, NewSynchronizer(ps, Options{Logger: testutil.Logger(t)}), p
}

func assetKeys(t *testing.T, ps *prompts.Store, promptID string) []string {
	t.Helper()
	rels, err := ps.Relationships(context.Background(), promptID)
	if err != nil {
		t.Fatalf("Relationships() error = %v", err)
	}
	keys := make([]string, len(rels))
	for i, r := range rels {
		keys[i] = r.AssetKey()
	}
	sort.Strings(keys)
	return keys
}

func TestSynchronize_Diff(t *testing.T) {
	for name, b := range testutil.Backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			ps, s, p := setup(t, b)

			if _, err := s.Synchronize(ctx, p.ID, []string{"X", "Y"}, nil); err != nil {
				t.Fatalf("initial Synchronize() error = %v", err)
			}

			settings := map[string]Settings{
				"Y": {RelationshipType: "reference", Context: "updated context"},
				"Z": {RelationshipType: "example", AssetPath: "docs/z.md"},
			}
			res, err := s.Synchronize(ctx, p.ID, []string{"Y", "Z"}, settings)
			if err != nil {
				t.Fatalf("Synchronize() error = %v", err)
			}

			want := &Result{Deleted: []string{"X"}, Inserted: []string{"Z"}, Updated: []string{"Y"}}
			if diff := cmp.Diff(want, res); diff != "" {
				t.Errorf("Result mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff([]string{"Y", "Z"}, assetKeys(t, ps, p.ID)); diff != "" {
				t.Errorf("rows mismatch (-want +got):\n%s", diff)
			}

			rels, _ := ps.Relationships(ctx, p.ID)
			for _, r := range rels {
				switch r.AssetKey() {
				case "Y":
					if r.Context != "updated context" || r.RelationshipType != "reference" {
						t.Errorf("Y not updated: %+v", r)
					}
				case "Z":
					if r.AssetPath != "docs/z.md" {
						t.Errorf("Z asset path = %q", r.AssetPath)
					}
				}
			}

			got, err := ps.Get(ctx, p.ID)
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if diff := cmp.Diff([]string{"Y", "Z"}, got.Metadata.RelatedAssets); diff != "" {
				t.Errorf("metadata snapshot mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSynchronize_Idempotent(t *testing.T) {
	for name, b := range testutil.Backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			ps, s, p := setup(t, b)
			desired := []string{"A", "B", "A"}
			settings := map[string]Settings{"A": {RelationshipType: "reference"}}

			if _, err := s.Synchronize(ctx, p.ID, desired, settings); err != nil {
				t.Fatalf("first Synchronize() error = %v", err)
			}
			first, _ := ps.Relationships(ctx, p.ID)

			res, err := s.Synchronize(ctx, p.ID, desired, settings)
			if err != nil {
				t.Fatalf("second Synchronize() error = %v", err)
			}
			if len(res.Deleted) != 0 || len(res.Inserted) != 0 {
				t.Errorf("second run should only update, got %+v", res)
			}
			second, _ := ps.Relationships(ctx, p.ID)

			if len(first) != 2 || len(second) != 2 {
				t.Fatalf("expected 2 rows, got %d then %d", len(first), len(second))
			}
			ids := func(rs []prompts.Relationship) []string {
				out := make([]string, len(rs))
				for i, r := range rs {
					out[i] = r.ID + "/" + r.AssetKey() + "/" + r.RelationshipType
				}
				sort.Strings(out)
				return out
			}
			if diff := cmp.Diff(ids(first), ids(second)); diff != "" {
				t.Errorf("rows changed on second run (-first +second):\n%s", diff)
			}
		})
	}
}

func TestSynchronize_External(t *testing.T) {
	ctx := context.Background()
	ps, s, p := setup(t, testutil.MemStore(t))

	settings := map[string]Settings{
		"package.json": {External: true, RelationshipType: "manifest", Context: "deps"},
	}
	res, err := s.Synchronize(ctx, p.ID, []string{"docs/a.md", "package.json"}, settings)
	if err != nil {
		t.Fatalf("Synchronize() error = %v", err)
	}

	want := []prompts.InlineAsset{{ID: "package.json", Path: "package.json", RelationshipType: "manifest", Context: "deps"}}
	if diff := cmp.Diff(want, res.External); diff != "" {
		t.Errorf("External mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"docs/a.md"}, assetKeys(t, ps, p.ID)); diff != "" {
		t.Errorf("external assets must not become rows (-want +got):\n%s", diff)
	}

	got, _ := ps.Get(ctx, p.ID)
	if diff := cmp.Diff(want, got.Metadata.InlineAssets); diff != "" {
		t.Errorf("metadata inline assets mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"docs/a.md", "package.json"}, got.Metadata.RelatedAssets); diff != "" {
		t.Errorf("metadata related assets mismatch (-want +got):\n%s", diff)
	}
	if got.Metadata.Hash != p.Metadata.Hash {
		t.Error("metadata snapshot should keep the content hash")
	}
}

func TestSynchronize_MissingPrompt(t *testing.T) {
	b := testutil.MemStore(t)
	ps := prompts.NewStore(b, testutil.Logger(t))
	s := NewSynchronizer(ps, Options{Logger: testutil.Logger(t)})

	_, err := s.Synchronize(context.Background(), "missing", []string{"X"}, nil)
	var pe *PreconditionError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *PreconditionError, got %v", err)
	}
	if !errors.Is(err, prompts.ErrNotFound) {
		t.Error("PreconditionError should match prompts.ErrNotFound")
	}
	if b.Len(store.CollectionRelationships) != 0 {
		t.Error("no rows should be written for a missing prompt")
	}
}

func TestSynchronize_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := metrics.NewRecorder(reg)
	if err != nil {
		t.Fatalf("NewRecorder() error = %v", err)
	}
	b := testutil.MemStore(t)
	ps, _, p := setup(t, b)
	s := NewSynchronizer(ps, Options{Metrics: rec, Logger: testutil.Logger(t)})

	if _, err := s.Synchronize(context.Background(), p.ID, []string{"X", "Y"}, nil); err != nil {
		t.Fatalf("Synchronize() error = %v", err)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	var inserts float64
	for _, mf := range families {
		if mf.GetName() != "promptctx_relationship_sync_changes_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "op" && lp.GetValue() == metrics.OpInsert {
					inserts = m.GetCounter().GetValue()
				}
			}
		}
	}
	if inserts != 2 {
		t.Errorf("insert changes = %v, want 2", inserts)
	}
}

func TestParseDesired(t *testing.T) {
	ids, settings, err := ParseDesired([]byte(`
assets:
  - id: docs/a.md
    type: reference
    context: Background
  - id: package.json
    external: true
`))
	if err != nil {
		t.Fatalf("ParseDesired() error = %v", err)
	}
	if diff := cmp.Diff([]string{"docs/a.md", "package.json"}, ids); diff != "" {
		t.Errorf("ids mismatch (-want +got):\n%s", diff)
	}
	if settings["docs/a.md"].RelationshipType != "reference" || settings["docs/a.md"].Context != "Background" {
		t.Errorf("unexpected settings: %+v", settings["docs/a.md"])
	}
	if !settings["package.json"].External {
		t.Error("package.json should be external")
	}

	if _, _, err := ParseDesired([]byte("assets:\n  - type: reference\n")); err == nil {
		t.Error("expected error for asset without id")
	}
}
