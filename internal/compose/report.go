package compose

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// RenderReport writes r as a Markdown report for human review.
func RenderReport(w io.Writer, r *Result) error {
	if r == nil || r.Prompt == nil {
		return fmt.Errorf("nothing to report")
	}
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n", r.Prompt.Name)
	if r.Prompt.Description != "" {
		fmt.Fprintf(&b, "\n%s\n", r.Prompt.Description)
	}

	meta, err := yaml.Marshal(r.Prompt.Metadata)
	if err != nil {
		return fmt.Errorf("failed to render metadata: %w", err)
	}
	b.WriteString("\n## Metadata\n")
	writeFenced(&b, "yaml", string(meta))
	b.WriteString("\n")

	if len(r.Relationships) > 0 {
		b.WriteString("\n## Relationships\n")
		for i, rel := range r.Relationships {
			relType := rel.RelationshipType
			if relType == "" {
				relType = DefaultRelationshipType
			}
			fmt.Fprintf(&b, "\n### %s - %s\n\n", relType, filepath.Base(rel.AssetPath))
			fmt.Fprintf(&b, "Path: `%s`\n", rel.AssetPath)
			if rel.Context != "" {
				fmt.Fprintf(&b, "Context: %s\n", rel.Context)
			}
			if i < len(r.Files) {
				f := r.Files[i]
				if f.Success {
					writeFenced(&b, "", f.Content)
				} else {
					fmt.Fprintf(&b, "\n_Read failed: %s_", f.Error)
				}
			}
			b.WriteString("\n")
		}
	}

	if len(r.Queries) > 0 {
		b.WriteString("\n## Queries\n")
		for _, qr := range r.Queries {
			fmt.Fprintf(&b, "\n### %s query\n", qr.Slot)
			writeFenced(&b, "sql", qr.SQL)
			b.WriteString("\n")
			if qr.Success {
				writeFenced(&b, "json", RowsJSON(qr.Rows))
			} else {
				errJSON, _ := json.MarshalIndent(map[string]string{"error": qr.Error}, "", "  ")
				writeFenced(&b, "json", string(errJSON))
			}
			b.WriteString("\n")
		}
	}

	if r.Instructions != "" {
		b.WriteString("\n## Output Templates\n\n")
		for _, t := range r.Templates {
			fmt.Fprintf(&b, "- %s\n", t.Name)
		}
	}

	_, err = io.WriteString(w, b.String())
	return err
}
