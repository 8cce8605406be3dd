// Package templates validates, merges and documents output templates, and
// stores them with their prompt associations.
package templates

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// FieldType is the closed set of template field types.
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeNumber  FieldType = "number"
	TypeBoolean FieldType = "boolean"
	TypeArray   FieldType = "array"
	TypeObject  FieldType = "object"
)

// Valid reports whether t is one of the known field types.
func (t FieldType) Valid() bool {
	switch t {
	case TypeString, TypeNumber, TypeBoolean, TypeArray, TypeObject:
		return true
	}
	return false
}

// Field describes one field of a template.
// Items is set for arrays, Properties for objects. An empty, non-nil
// Properties is kept on encode so it validates like the document it came from.
type Field struct {
	Description string     `json:"description" yaml:"description"`
	Required    bool       `json:"required" yaml:"required"`
	Type        FieldType  `json:"type" yaml:"type"`
	Items       *Field     `json:"items,omitempty" yaml:"items,omitempty"`
	Properties  Definition `json:"properties,omitzero" yaml:"properties,omitempty"`
}

// Definition maps field names to their descriptors.
type Definition map[string]Field

// Names returns the field names in sorted order.
func (d Definition) Names() []string {
	names := make([]string, 0, len(d))
	for name := range d {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// OutputTemplate is a named, reusable response schema.
type OutputTemplate struct {
	ID          string     `json:"id" yaml:"id"`
	Name        string     `json:"name" yaml:"name"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty"`
	Definition  Definition `json:"template" yaml:"template"`
	CreatedAt   time.Time  `json:"created_at" yaml:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" yaml:"updated_at"`
}

// Association links a template to a prompt. Lower priority numbers take
// precedence when templates are merged.
type Association struct {
	ID         string    `json:"id" yaml:"id"`
	PromptID   string    `json:"prompt_id" yaml:"prompt_id"`
	TemplateID string    `json:"template_id" yaml:"template_id"`
	Priority   int       `json:"priority" yaml:"priority"`
	CreatedAt  time.Time `json:"created_at" yaml:"created_at"`
}

// ErrInvalidTemplate matches every *ValidationError.
var ErrInvalidTemplate = errors.New("invalid template")

// ErrNotFound is returned when a template or association does not exist.
var ErrNotFound = errors.New("template not found")

// ErrDuplicateName is returned when creating a template whose name is taken.
var ErrDuplicateName = errors.New("template name already exists")

// ValidationError reports a definition that fails validation. Field is the
// top-level field name, empty when the definition as a whole is malformed.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid template: %s", e.Reason)
	}
	return fmt.Sprintf("invalid template field %q: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidTemplate }
