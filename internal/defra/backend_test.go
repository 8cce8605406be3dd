package defra

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jackzampolin/promptctx/internal/store"
)

// gqlServer answers every GraphQL request with respond(query, vars).
func gqlServer(t *testing.T, respond func(query string, vars map[string]any) string) (*Backend, *[]GQLRequest) {
	t.Helper()
	var seen []GQLRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req GQLRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		seen = append(seen, req)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(respond(req.Query, req.Variables)))
	}))
	t.Cleanup(server.Close)

	b, err := NewBackend(NewClient(server.URL), nil)
	if err != nil {
		t.Fatalf("NewBackend() error = %v", err)
	}
	return b, &seen
}

func TestBackend_Find(t *testing.T) {
	b, seen := gqlServer(t, func(string, map[string]any) string {
		return `{"data": {"Prompt": [{"_docID": "bae-1", "id": "p-1", "name": "p1"}]}}`
	})

	rows, err := b.Find(context.Background(), store.CollectionPrompts, store.Query{
		Filters: []store.Filter{store.Eq("name", "p1")},
		Columns: []string{"id", "name"},
		Order:   []store.Order{{Field: "name"}},
	})
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if len(rows) != 1 || rows[0].String("id") != "p-1" {
		t.Fatalf("unexpected rows: %v", rows)
	}
	if _, ok := rows[0]["_docID"]; ok {
		t.Error("_docID should be stripped from records")
	}

	got := (*seen)[0].Query
	want := `query($v0: String) { Prompt(filter: {name: {_eq: $v0}}, order: {name: ASC}) { id name } }`
	if got != want {
		t.Errorf("query mismatch\n got: %s\nwant: %s", got, want)
	}
}

func TestBackend_FindSelectsSchemaFields(t *testing.T) {
	b, seen := gqlServer(t, func(string, map[string]any) string {
		return `{"data": {"OutputTemplate": []}}`
	})

	if _, err := b.Find(context.Background(), store.CollectionTemplates, store.Query{}); err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	q := (*seen)[0].Query
	if !strings.Contains(q, "{ id name description template created_at updated_at }") {
		t.Errorf("expected every schema field selected, got %s", q)
	}
}

func TestBackend_Get(t *testing.T) {
	b, _ := gqlServer(t, func(string, map[string]any) string {
		return `{"data": {"Prompt": []}}`
	})

	_, err := b.Get(context.Background(), store.CollectionPrompts, "missing")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestBackend_Insert(t *testing.T) {
	b, seen := gqlServer(t, func(string, map[string]any) string {
		return `{"data": {"create_PromptRelationship": [{"_docID": "bae-9"}]}}`
	})

	rec := store.Record{"id": "r-1", "prompt_id": "p-1", "asset_id": nil, "asset_path": "docs/a.md"}
	got, err := b.Insert(context.Background(), store.CollectionRelationships, rec)
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if got.String("asset_path") != "docs/a.md" {
		t.Errorf("unexpected record: %v", got)
	}
	want := `mutation { create_PromptRelationship(input: {asset_id: null, asset_path: "docs/a.md", id: "r-1", prompt_id: "p-1"}) { _docID } }`
	if (*seen)[0].Query != want {
		t.Errorf("mutation mismatch\n got: %s\nwant: %s", (*seen)[0].Query, want)
	}
}

func TestBackend_UpdateAndDelete(t *testing.T) {
	b, seen := gqlServer(t, func(query string, _ map[string]any) string {
		switch {
		case strings.Contains(query, "update_Prompt("):
			return `{"data": {"update_Prompt": [{"_docID": "bae-1"}]}}`
		case strings.Contains(query, "delete_PromptRelationship("):
			return `{"data": {"delete_PromptRelationship": [{"_docID": "bae-2"}, {"_docID": "bae-3"}]}}`
		}
		return `{"errors": [{"message": "unexpected"}]}`
	})
	ctx := context.Background()

	n, err := b.Update(ctx, store.CollectionPrompts, []store.Filter{store.Eq("id", "p-1")}, store.Record{"content": "x"})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 updated, got %d", n)
	}

	n, err = b.Delete(ctx, store.CollectionRelationships, []store.Filter{store.Eq("prompt_id", "p-1")})
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 deleted, got %d", n)
	}
	if len(*seen) != 2 {
		t.Errorf("expected 2 requests, got %d", len(*seen))
	}
}

func TestBackend_Errors(t *testing.T) {
	b, seen := gqlServer(t, func(string, map[string]any) string {
		return `{"errors": [{"message": "boom"}]}`
	})
	ctx := context.Background()

	if _, err := b.Find(ctx, store.CollectionPrompts, store.Query{}); err == nil || !strings.Contains(err.Error(), "boom") {
		t.Errorf("expected GraphQL error surfaced, got %v", err)
	}
	if _, err := b.Find(ctx, "scripts", store.Query{}); !errors.Is(err, store.ErrUnknownCollection) {
		t.Errorf("expected ErrUnknownCollection, got %v", err)
	}
	if _, err := b.Delete(ctx, store.CollectionPrompts, nil); err == nil {
		t.Error("expected unfiltered delete to be refused")
	}
	if _, err := b.Find(ctx, store.CollectionPrompts, store.Query{Filters: []store.Filter{store.Eq("name: {_eq: 1}}", "x")}}); err == nil {
		t.Error("expected unsafe field name to be rejected")
	}
	if len(*seen) != 1 {
		t.Errorf("only the first call should reach the server, got %d requests", len(*seen))
	}
}

func TestBackend_NoRawQuery(t *testing.T) {
	var b store.Backend = &Backend{}
	if _, ok := b.(store.RawQuerier); ok {
		t.Error("defra backend must not advertise raw query support")
	}
}
