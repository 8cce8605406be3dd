package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/jackzampolin/promptctx/internal/store"
	"github.com/jackzampolin/promptctx/internal/testutil"
)

func ids(rows []store.Record) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.String("id")
	}
	return out
}

func TestBackendContract(t *testing.T) {
	for name, b := range testutil.Backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			testutil.Seed(t, b, store.CollectionPrompts,
				store.Record{"id": "p-1", "name": "Summarize Report", "content": "a"},
				store.Record{"id": "p-2", "name": "translate", "content": "b"},
			)
			testutil.Seed(t, b, store.CollectionTemplateAssociation,
				store.Record{"id": "a-1", "prompt_id": "p-1", "template_id": "t-1", "priority": 2},
				store.Record{"id": "a-2", "prompt_id": "p-1", "template_id": "t-2", "priority": 0},
				store.Record{"id": "a-3", "prompt_id": "p-2", "template_id": "t-1", "priority": 1},
			)
			testutil.Seed(t, b, store.CollectionRelationships,
				store.Record{"id": "r-1", "prompt_id": "p-1", "asset_id": "x", "asset_path": "docs/x.md"},
				store.Record{"id": "r-2", "prompt_id": "p-1", "asset_id": nil, "asset_path": "docs/y.md"},
			)

			t.Run("get", func(t *testing.T) {
				rec, err := b.Get(ctx, store.CollectionPrompts, "p-2")
				if err != nil {
					t.Fatalf("Get() error = %v", err)
				}
				if rec.String("name") != "translate" {
					t.Errorf("unexpected record: %v", rec)
				}
				if _, err := b.Get(ctx, store.CollectionPrompts, "missing"); !errors.Is(err, store.ErrNotFound) {
					t.Errorf("expected ErrNotFound, got %v", err)
				}
			})

			t.Run("find ordered", func(t *testing.T) {
				rows, err := b.Find(ctx, store.CollectionTemplateAssociation, store.Query{
					Filters: []store.Filter{store.Eq("prompt_id", "p-1")},
					Order:   []store.Order{{Field: "priority"}},
				})
				if err != nil {
					t.Fatalf("Find() error = %v", err)
				}
				if diff := cmp.Diff([]string{"a-2", "a-1"}, ids(rows)); diff != "" {
					t.Errorf("order mismatch (-want +got):\n%s", diff)
				}
				if rows[1].Int("priority") != 2 {
					t.Errorf("expected priority 2, got %v", rows[1]["priority"])
				}
			})

			t.Run("find in with limit", func(t *testing.T) {
				rows, err := b.Find(ctx, store.CollectionTemplateAssociation, store.Query{
					Filters: []store.Filter{store.In("id", []string{"a-1", "a-3"})},
					Order:   []store.Order{{Field: "id", Desc: true}},
					Limit:   1,
				})
				if err != nil {
					t.Fatalf("Find() error = %v", err)
				}
				if diff := cmp.Diff([]string{"a-3"}, ids(rows)); diff != "" {
					t.Errorf("mismatch (-want +got):\n%s", diff)
				}
			})

			t.Run("find ilike", func(t *testing.T) {
				rows, err := b.Find(ctx, store.CollectionPrompts, store.Query{
					Filters: []store.Filter{store.ILike("name", "%REPORT%")},
				})
				if err != nil {
					t.Fatalf("Find() error = %v", err)
				}
				if diff := cmp.Diff([]string{"p-1"}, ids(rows)); diff != "" {
					t.Errorf("mismatch (-want +got):\n%s", diff)
				}
			})

			t.Run("find null and projection", func(t *testing.T) {
				rows, err := b.Find(ctx, store.CollectionRelationships, store.Query{
					Filters: []store.Filter{store.Eq("asset_id", nil)},
					Columns: []string{"id", "asset_path"},
				})
				if err != nil {
					t.Fatalf("Find() error = %v", err)
				}
				if len(rows) != 1 || rows[0].String("asset_path") != "docs/y.md" {
					t.Fatalf("unexpected rows: %v", rows)
				}
				if _, ok := rows[0]["prompt_id"]; ok {
					t.Error("projection should drop unselected columns")
				}
			})

			t.Run("update and delete", func(t *testing.T) {
				n, err := b.Update(ctx, store.CollectionPrompts, []store.Filter{store.Eq("id", "p-2")}, store.Record{"content": "changed"})
				if err != nil || n != 1 {
					t.Fatalf("Update() = %d, %v", n, err)
				}
				rec, _ := b.Get(ctx, store.CollectionPrompts, "p-2")
				if rec.String("content") != "changed" {
					t.Errorf("update not applied: %v", rec)
				}

				n, err = b.Delete(ctx, store.CollectionTemplateAssociation, []store.Filter{store.Eq("template_id", "t-1")})
				if err != nil || n != 2 {
					t.Fatalf("Delete() = %d, %v", n, err)
				}
				if _, err := b.Delete(ctx, store.CollectionTemplateAssociation, nil); err == nil {
					t.Error("expected unfiltered delete to be refused")
				}
			})

			t.Run("transaction rollback", func(t *testing.T) {
				boom := errors.New("boom")
				err := store.RunInTx(ctx, b, func(tx store.Backend) error {
					if _, err := tx.Insert(ctx, store.CollectionPrompts, store.Record{"id": "p-3", "name": "temp"}); err != nil {
						return err
					}
					return boom
				})
				if !errors.Is(err, boom) {
					t.Fatalf("expected boom, got %v", err)
				}
				if _, err := b.Get(ctx, store.CollectionPrompts, "p-3"); !errors.Is(err, store.ErrNotFound) {
					t.Errorf("insert should have been rolled back, got %v", err)
				}
			})
		})
	}
}

func TestValidateFilters(t *testing.T) {
	tests := []struct {
		name       string
		filters    []store.Filter
		requireOne bool
		wantErr    bool
	}{
		{"empty read", nil, false, false},
		{"empty write", nil, true, true},
		{"eq", []store.Filter{store.Eq("id", "x")}, true, false},
		{"in with wrong type", []store.Filter{{Field: "id", Op: store.OpIn, Value: "x"}}, false, true},
		{"ilike with wrong type", []store.Filter{{Field: "name", Op: store.OpILike, Value: 1}}, false, true},
		{"unknown op", []store.Filter{{Field: "id", Op: "gt", Value: 1}}, false, true},
		{"missing field", []store.Filter{{Op: store.OpEq, Value: 1}}, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.ValidateFilters(tt.filters, tt.requireOne)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateFilters() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRecordAccessors(t *testing.T) {
	rec := store.Record{
		"s":    []byte("bytes"),
		"n":    int64(7),
		"f":    float64(3),
		"ns":   "12",
		"t":    "2024-03-01T10:00:00Z",
		"tsql": "2024-03-01 10:00:00",
		"json": `{"a":1}`,
		"obj":  map[string]any{"a": 2},
	}

	if rec.String("s") != "bytes" || rec.String("missing") != "" {
		t.Error("String() mismatch")
	}
	if rec.StringPtr("missing") != nil {
		t.Error("StringPtr() should be nil for absent keys")
	}
	if rec.Int("n") != 7 || rec.Int("f") != 3 || rec.Int("ns") != 12 {
		t.Error("Int() mismatch")
	}
	if rec.Time("t").IsZero() || rec.Time("tsql").IsZero() || !rec.Time("s").IsZero() {
		t.Error("Time() mismatch")
	}

	var a, b struct{ A int }
	if err := rec.DecodeJSON("json", &a); err != nil || a.A != 1 {
		t.Errorf("DecodeJSON(text) = %v, %v", a, err)
	}
	if err := rec.DecodeJSON("obj", &b); err != nil || b.A != 2 {
		t.Errorf("DecodeJSON(object) = %v, %v", b, err)
	}

	var scanned any = []byte(`{"a":3}`)
	var c struct{ A int }
	ptr := store.Record{"json": &scanned}
	if err := ptr.DecodeJSON("json", &c); err != nil || c.A != 3 {
		t.Errorf("DecodeJSON(*any) = %v, %v", c, err)
	}
	if ptr.String("json") != `{"a":3}` {
		t.Errorf("String(*any) = %q", ptr.String("json"))
	}

	proj := rec.Project([]string{"n", "absent"})
	if len(proj) != 1 {
		t.Errorf("Project() = %v", proj)
	}
}
