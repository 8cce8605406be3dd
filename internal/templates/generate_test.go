package templates

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func sampleDefinition() Definition {
	return Definition{
		"title":   {Description: "Document title", Required: true, Type: TypeString},
		"score":   {Description: "Score", Type: TypeNumber},
		"final":   {Description: "Is final", Type: TypeBoolean},
		"tags":    {Description: "Tags", Type: TypeArray, Items: &Field{Type: TypeString}},
		"matrix":  {Description: "Numbers", Type: TypeArray, Items: &Field{Type: TypeNumber}},
		"authors": {Description: "Authors", Type: TypeArray, Items: &Field{Type: TypeObject, Properties: Definition{"name": {Description: "Name", Type: TypeString}}}},
		"meta":    {Description: "Meta", Type: TypeObject, Properties: Definition{"lang": {Description: "Language", Type: TypeString}}},
	}
}

func TestGenerateExample(t *testing.T) {
	def := sampleDefinition()
	got := GenerateExample(def)

	want := map[string]any{
		"title":   "Example Document title",
		"score":   ExampleNumber,
		"final":   true,
		"tags":    []any{"example item 1", "example item 2", "example item 3"},
		"matrix":  []any{},
		"authors": []any{map[string]any{"name": "Example Name"}, map[string]any{"name": "Example Name"}},
		"meta":    map[string]any{"lang": "Example Language"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("GenerateExample() mismatch (-want +got):\n%s", diff)
	}
}

func TestGenerateExample_TypesMatch(t *testing.T) {
	def := sampleDefinition()
	example := GenerateExample(def)
	if len(example) != len(def) {
		t.Fatalf("expected %d keys, got %d", len(def), len(example))
	}
	for name, f := range def {
		v, ok := example[name]
		if !ok {
			t.Errorf("missing key %s", name)
			continue
		}
		var typeOK bool
		switch f.Type {
		case TypeString:
			_, typeOK = v.(string)
		case TypeNumber:
			_, typeOK = v.(int)
		case TypeBoolean:
			_, typeOK = v.(bool)
		case TypeArray:
			_, typeOK = v.([]any)
		case TypeObject:
			_, typeOK = v.(map[string]any)
		}
		if !typeOK {
			t.Errorf("%s: value %#v does not match type %s", name, v, f.Type)
		}
	}
}

func TestMerge(t *testing.T) {
	a := Definition{
		"title": {Description: "A title", Type: TypeString},
		"score": {Description: "A score", Type: TypeNumber},
	}
	b := Definition{
		"title": {Description: "B title", Required: true, Type: TypeString},
		"notes": {Description: "B notes", Type: TypeString},
	}

	got := Merge([]Definition{a, b})
	want := Definition{
		"title": b["title"],
		"score": a["score"],
		"notes": b["notes"],
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Merge() mismatch (-want +got):\n%s", diff)
	}

	if len(Merge(nil)) != 0 {
		t.Error("Merge(nil) should be empty")
	}
}

func TestMergeByPrecedence(t *testing.T) {
	first := OutputTemplate{Name: "first", Definition: Definition{"x": {Description: "first", Type: TypeString}}}
	second := OutputTemplate{Name: "second", Definition: Definition{"x": {Description: "second", Type: TypeString}}}

	got := MergeByPrecedence([]OutputTemplate{first, second})
	if got["x"].Description != "first" {
		t.Errorf("highest precedence template should win, got %q", got["x"].Description)
	}
}

func TestGenerateInstructions(t *testing.T) {
	ts := []OutputTemplate{
		{Name: "summary", Description: "Short summary", Definition: Definition{
			"title": {Description: "Title", Required: true, Type: TypeString},
		}},
		{Name: "details", Definition: Definition{
			"meta": {Description: "Meta", Type: TypeObject, Properties: Definition{
				"lang": {Description: "Language", Type: TypeString},
			}},
		}},
	}

	got := GenerateInstructions(ts)

	start := strings.Index(got, "```json\n")
	end := strings.Index(got, "\n```\n")
	if start < 0 || end < start {
		t.Fatalf("missing example block:\n%s", got)
	}
	var example map[string]any
	if err := json.Unmarshal([]byte(got[start+len("```json\n"):end]), &example); err != nil {
		t.Fatalf("example block is not JSON: %v", err)
	}
	if _, ok := example["title"]; !ok {
		t.Error("example should contain merged field title")
	}
	if _, ok := example["meta"]; !ok {
		t.Error("example should contain merged field meta")
	}

	for _, want := range []string{
		"### summary\nShort summary\n",
		"- `title` (string, required): Title",
		"### details\n",
		"- `meta` (object, optional): Meta",
		"  - `lang` (string, optional): Language",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("instructions missing %q:\n%s", want, got)
		}
	}
	if strings.Index(got, "### summary") > strings.Index(got, "### details") {
		t.Error("sections should follow input order")
	}

	if GenerateInstructions(nil) != "" {
		t.Error("no templates should produce no instructions")
	}
}
