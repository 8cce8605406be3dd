package schema

import (
	"embed"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/jackzampolin/promptctx/internal/store"
)

//go:embed schemas/*.graphql
var schemaFS embed.FS

// Schema represents a DefraDB collection schema for one engine collection.
type Schema struct {
	Name       string // DefraDB type name (e.g., "Prompt")
	Collection string // Engine collection name (e.g., "prompts")
	SDL        string // GraphQL SDL definition
	Order      int    // Initialization order (lower = first)
}

// registry holds all schemas in dependency order.
// Link collections come after the collections they reference.
var registry = []Schema{
	{Name: "Prompt", Collection: store.CollectionPrompts, Order: 1},
	{Name: "OutputTemplate", Collection: store.CollectionTemplates, Order: 2},
	{Name: "PromptRelationship", Collection: store.CollectionRelationships, Order: 3},
	{Name: "PromptOutputTemplate", Collection: store.CollectionTemplateAssociation, Order: 4},
}

// fieldPattern matches "name: Type" lines inside a type block.
var fieldPattern = regexp.MustCompile(`(?m)^\s*([a-zA-Z_][a-zA-Z0-9_]*)\s*:\s*[A-Za-z\[\]!]+`)

// All returns all schemas in dependency order.
// Schemas are loaded from embedded .graphql files.
func All() ([]Schema, error) {
	schemas := make([]Schema, len(registry))
	copy(schemas, registry)

	for i := range schemas {
		sdl, err := load(schemas[i].Name)
		if err != nil {
			return nil, err
		}
		schemas[i].SDL = sdl
	}

	sort.Slice(schemas, func(i, j int) bool {
		return schemas[i].Order < schemas[j].Order
	})

	return schemas, nil
}

// Get returns a single schema by DefraDB type name.
func Get(name string) (*Schema, error) {
	for _, s := range registry {
		if s.Name == name {
			sdl, err := load(s.Name)
			if err != nil {
				return nil, err
			}
			s.SDL = sdl
			return &s, nil
		}
	}
	return nil, fmt.Errorf("schema not found: %s", name)
}

// ForCollection returns the schema backing an engine collection.
func ForCollection(collection string) (*Schema, error) {
	for _, s := range registry {
		if s.Collection == collection {
			return Get(s.Name)
		}
	}
	return nil, fmt.Errorf("%w: %s", store.ErrUnknownCollection, collection)
}

// Fields returns the field names declared in the SDL, in declaration order.
func (s *Schema) Fields() []string {
	var fields []string
	for _, m := range fieldPattern.FindAllStringSubmatch(s.SDL, -1) {
		fields = append(fields, m[1])
	}
	return fields
}

func load(name string) (string, error) {
	filename := fmt.Sprintf("schemas/%s.graphql", strings.ToLower(name))
	content, err := schemaFS.ReadFile(filename)
	if err != nil {
		return "", fmt.Errorf("failed to read schema %s: %w", name, err)
	}
	return string(content), nil
}
