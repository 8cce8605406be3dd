package templates

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Example values for generated output.
const (
	ExampleNumber = 42
	ExampleBool   = true
)

var exampleStrings = []string{"example item 1", "example item 2", "example item 3"}

// GenerateExample builds an illustrative value for d. Top-level keys match
// the definition's field names exactly.
func GenerateExample(d Definition) map[string]any {
	out := make(map[string]any, len(d))
	for name, f := range d {
		out[name] = exampleValue(name, f)
	}
	return out
}

func exampleValue(name string, f Field) any {
	switch f.Type {
	case TypeString:
		desc := f.Description
		if desc == "" {
			desc = name
		}
		return "Example " + desc
	case TypeNumber:
		return ExampleNumber
	case TypeBoolean:
		return ExampleBool
	case TypeArray:
		if f.Items == nil {
			return []any{}
		}
		switch f.Items.Type {
		case TypeObject:
			return []any{GenerateExample(f.Items.Properties), GenerateExample(f.Items.Properties)}
		case TypeString:
			items := make([]any, len(exampleStrings))
			for i, s := range exampleStrings {
				items[i] = s
			}
			return items
		}
		return []any{}
	case TypeObject:
		return GenerateExample(f.Properties)
	}
	return nil
}

// Merge combines definitions left to right. A later definition's field
// replaces an earlier field with the same name.
func Merge(defs []Definition) Definition {
	out := make(Definition)
	for _, d := range defs {
		for name, f := range d {
			out[name] = f
		}
	}
	return out
}

// MergeOrder returns ts reversed. ts is in precedence order (highest first,
// as ForPrompt returns it); the result is the order Merge and
// GenerateInstructions expect, where the last template wins.
func MergeOrder(ts []OutputTemplate) []OutputTemplate {
	out := make([]OutputTemplate, len(ts))
	for i, t := range ts {
		out[len(ts)-1-i] = t
	}
	return out
}

// MergeByPrecedence merges templates given in precedence order, so the
// template with the lowest priority number wins on name clashes.
func MergeByPrecedence(ts []OutputTemplate) Definition {
	return Merge(definitions(MergeOrder(ts)))
}

func definitions(ts []OutputTemplate) []Definition {
	defs := make([]Definition, len(ts))
	for i, t := range ts {
		defs[i] = t.Definition
	}
	return defs
}

// GenerateInstructions renders guidance for producing output that matches
// ts: an example JSON block for the merged definition, then one section per
// template listing its fields.
func GenerateInstructions(ts []OutputTemplate) string {
	if len(ts) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("## Output Format\n\n")
	b.WriteString("Respond with JSON matching this structure:\n\n")
	example, err := json.MarshalIndent(GenerateExample(Merge(definitions(ts))), "", "  ")
	if err != nil {
		example = []byte("{}")
	}
	b.WriteString("```json\n")
	b.Write(example)
	b.WriteString("\n```\n")

	for _, t := range ts {
		fmt.Fprintf(&b, "\n### %s\n", t.Name)
		if t.Description != "" {
			fmt.Fprintf(&b, "%s\n", t.Description)
		}
		b.WriteString("\n")
		writeFields(&b, t.Definition, 0)
	}
	return b.String()
}

func writeFields(b *strings.Builder, d Definition, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, name := range d.Names() {
		f := d[name]
		req := "optional"
		if f.Required {
			req = "required"
		}
		fmt.Fprintf(b, "%s- `%s` (%s, %s)", indent, name, typeLabel(f), req)
		if f.Description != "" {
			fmt.Fprintf(b, ": %s", f.Description)
		}
		b.WriteString("\n")

		switch {
		case f.Type == TypeObject:
			writeFields(b, f.Properties, depth+1)
		case f.Type == TypeArray && f.Items != nil && f.Items.Type == TypeObject:
			writeFields(b, f.Items.Properties, depth+1)
		}
	}
}

func typeLabel(f Field) string {
	if f.Type == TypeArray && f.Items != nil {
		return fmt.Sprintf("array of %s", f.Items.Type)
	}
	return string(f.Type)
}
