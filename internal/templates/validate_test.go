package templates

import (
	"errors"
	"strings"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantErr   bool
		wantField string
		wantMsg   string
	}{
		{
			name: "valid flat and nested",
			input: `{
				"summary": {"description": "One paragraph", "required": true, "type": "string"},
				"score": {"description": "0-10", "required": false, "type": "number"},
				"tags": {"description": "Labels", "required": false, "type": "array", "items": {"type": "string"}},
				"author": {"description": "Who", "required": true, "type": "object",
					"properties": {"name": {"type": "string"}, "links": {"type": "array", "items": {"type": "string"}}}}
			}`,
		},
		{
			name:      "array without items names the field",
			input:     `{"tags": {"description": "Labels", "required": true, "type": "array"}}`,
			wantErr:   true,
			wantField: "tags",
			wantMsg:   "items",
		},
		{
			name:      "object without properties",
			input:     `{"meta": {"description": "M", "required": true, "type": "object"}}`,
			wantErr:   true,
			wantField: "meta",
			wantMsg:   "properties",
		},
		{
			name:    "top-level array",
			input:   `[{"description": "x", "required": true, "type": "string"}]`,
			wantErr: true,
			wantMsg: "must be an object",
		},
		{
			name:    "empty definition",
			input:   `{}`,
			wantErr: true,
			wantMsg: "at least one field",
		},
		{
			name:      "missing description",
			input:     `{"a": {"required": true, "type": "string"}}`,
			wantErr:   true,
			wantField: "a",
			wantMsg:   "description",
		},
		{
			name:      "required not boolean",
			input:     `{"a": {"description": "x", "required": "yes", "type": "string"}}`,
			wantErr:   true,
			wantField: "a",
			wantMsg:   "required",
		},
		{
			name:      "unknown type",
			input:     `{"a": {"description": "x", "required": true, "type": "date"}}`,
			wantErr:   true,
			wantField: "a",
			wantMsg:   "type must be one of",
		},
		{
			name:      "invalid nested shape localizes to top-level field",
			input:     `{"rows": {"description": "x", "required": true, "type": "array", "items": {"type": "object", "properties": {"cell": {"type": "array"}}}}}`,
			wantErr:   true,
			wantField: "rows",
			wantMsg:   "nested items",
		},
		{
			name:    "not JSON",
			input:   `{"a":`,
			wantErr: true,
			wantMsg: "not valid JSON",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def, err := Parse([]byte(tt.input))
			if !tt.wantErr {
				if err != nil {
					t.Fatalf("Parse() error = %v", err)
				}
				if len(def) == 0 {
					t.Fatal("expected fields")
				}
				return
			}
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, ErrInvalidTemplate) {
				t.Errorf("expected ErrInvalidTemplate, got %v", err)
			}
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected *ValidationError, got %T", err)
			}
			if ve.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", ve.Field, tt.wantField)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q should contain %q", err, tt.wantMsg)
			}
			if tt.wantField != "" && !strings.Contains(err.Error(), tt.wantField) {
				t.Errorf("error %q should name field %q", err, tt.wantField)
			}
		})
	}
}

func TestValidate_TypedDefinition(t *testing.T) {
	def := Definition{
		"title": {Description: "Title", Required: true, Type: TypeString},
		"items": {Description: "List", Type: TypeArray, Items: &Field{Type: TypeNumber}},
	}
	if err := Validate(def); err != nil {
		t.Errorf("Validate() error = %v", err)
	}

	def["broken"] = Field{Description: "No items", Type: TypeArray}
	if err := Validate(def); err == nil {
		t.Error("expected error for array without items")
	}
}
