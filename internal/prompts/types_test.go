package prompts

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gopkg.in/yaml.v3"
)

func TestMetadata_JSONPreservesExtra(t *testing.T) {
	in := `{"aiEngine":{"model":"m","maxTokens":512},"relatedAssets":["a","b"],"status":"active","owner":"ops","limits":{"n":1}}`

	var m Metadata
	if err := json.Unmarshal([]byte(in), &m); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if m.Model == nil || m.Model.Model != "m" || *m.Model.MaxTokens != 512 {
		t.Errorf("aiEngine not decoded: %+v", m.Model)
	}
	if m.Status != StatusActive {
		t.Errorf("status = %q", m.Status)
	}
	wantExtra := map[string]any{"owner": "ops", "limits": map[string]any{"n": float64(1)}}
	if diff := cmp.Diff(wantExtra, m.Extra); diff != "" {
		t.Errorf("extra mismatch (-want +got):\n%s", diff)
	}

	out, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var got, want map[string]any
	json.Unmarshal(out, &got)
	json.Unmarshal([]byte(in), &want)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round-trip mismatch (-want +got):\n%s", diff)
	}
}

func TestMetadata_ExtraCannotShadowKnownKeys(t *testing.T) {
	m := Metadata{Status: StatusDraft, Extra: map[string]any{"status": "bogus"}}
	raw, err := m.ToMap()
	if err != nil {
		t.Fatalf("ToMap() error = %v", err)
	}
	if raw["status"] != "draft" {
		t.Errorf("status = %v, want draft", raw["status"])
	}
}

func TestMetadata_YAMLUsesWireKeys(t *testing.T) {
	m := Metadata{DatabaseQuery: "SELECT 1", InlineAssets: []InlineAsset{{ID: "pkg", Path: "package.json"}}}
	out, err := yaml.Marshal(m)
	if err != nil {
		t.Fatalf("yaml.Marshal() error = %v", err)
	}
	var back map[string]any
	if err := yaml.Unmarshal(out, &back); err != nil {
		t.Fatalf("yaml.Unmarshal() error = %v", err)
	}
	if back["databaseQuery"] != "SELECT 1" {
		t.Errorf("databaseQuery missing from %s", out)
	}
	if _, ok := back["packageJsonFiles"]; !ok {
		t.Errorf("packageJsonFiles missing from %s", out)
	}
}

func TestMetadata_Normalize(t *testing.T) {
	tests := []struct {
		in      Status
		want    Status
		changed bool
	}{
		{"", "", false},
		{StatusArchived, StatusArchived, false},
		{"retired", StatusDraft, true},
	}
	for _, tt := range tests {
		m := Metadata{Status: tt.in}
		if changed := m.Normalize(); changed != tt.changed || m.Status != tt.want {
			t.Errorf("Normalize(%q) = %q, %v; want %q, %v", tt.in, m.Status, changed, tt.want, tt.changed)
		}
	}
}

func TestMetadataFromMap(t *testing.T) {
	m, err := MetadataFromMap(map[string]any{
		"relatedAssets":  []string{"x"},
		"databaseQuery2": "SELECT * FROM prompt_relationships WHERE asset_id = :script_id",
		"custom":         true,
	})
	if err != nil {
		t.Fatalf("MetadataFromMap() error = %v", err)
	}
	if diff := cmp.Diff([]string{"x"}, m.RelatedAssets); diff != "" {
		t.Errorf("relatedAssets mismatch:\n%s", diff)
	}
	if _, secondary := m.Queries(); secondary == "" {
		t.Error("secondary query not decoded")
	}
	if m.Extra["custom"] != true {
		t.Errorf("extra = %v", m.Extra)
	}

	if _, err := MetadataFromMap(map[string]any{"relatedAssets": "not-a-list"}); err == nil {
		t.Error("expected error for mistyped key")
	}
}

func TestDecodeMetadata_KeepsWellTypedKeys(t *testing.T) {
	m, rejected := DecodeMetadata(map[string]any{
		"status":        5,
		"databaseQuery": "SELECT * FROM prompts",
		"relatedAssets": []any{"a"},
		"team":          "platform",
	})
	if diff := cmp.Diff([]string{"status"}, rejected); diff != "" {
		t.Errorf("rejected mismatch:\n%s", diff)
	}
	if m.DatabaseQuery != "SELECT * FROM prompts" {
		t.Errorf("databaseQuery lost: %+v", m)
	}
	if diff := cmp.Diff([]string{"a"}, m.RelatedAssets); diff != "" {
		t.Errorf("relatedAssets mismatch:\n%s", diff)
	}
	if m.Extra["team"] != "platform" || m.Status != "" {
		t.Errorf("unexpected metadata: %+v", m)
	}

	doc := fromDocument("---\nstatus: 5\ndatabaseQuery: SELECT 1\n---\nbody", "p")
	if doc.Metadata.DatabaseQuery != "SELECT 1" {
		t.Errorf("fromDocument dropped databaseQuery: %+v", doc.Metadata)
	}
}

func TestNotFoundError(t *testing.T) {
	var err error = &NotFoundError{Name: "p1"}
	if err.Error() != "prompt not found: p1" {
		t.Errorf("Error() = %q", err.Error())
	}
	if !errors.Is(err, ErrNotFound) {
		t.Error("NotFoundError should match ErrNotFound")
	}
}
