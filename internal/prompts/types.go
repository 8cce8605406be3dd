// Package prompts holds the prompt data model, its store-backed CRUD, and the
// resolver that falls back from the store to local prompt files.
//
// Prompts read from local files are shadows: they carry LocalPromptID, are
// never written back, and every mutating Store call rejects them.
package prompts

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// LocalPromptID identifies prompts synthesized from local files.
const LocalPromptID = "local-file"

// Prompt is a named, versioned text artifact.
type Prompt struct {
	ID          string    `json:"id" yaml:"id"`
	Name        string    `json:"name" yaml:"name"`
	Content     string    `json:"content" yaml:"content"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Metadata    Metadata  `json:"metadata" yaml:"metadata"`
	Version     string    `json:"version,omitempty" yaml:"version,omitempty"`
	Author      string    `json:"author,omitempty" yaml:"author,omitempty"`
	Tags        []string  `json:"tags,omitempty" yaml:"tags,omitempty"`
	FilePath    string    `json:"file_path,omitempty" yaml:"file_path,omitempty"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" yaml:"updated_at"`
}

// IsLocal reports whether p was read from a local file rather than the store.
func (p *Prompt) IsLocal() bool { return p.ID == LocalPromptID }

// Status is the prompt lifecycle state.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusActive     Status = "active"
	StatusDeprecated Status = "deprecated"
	StatusArchived   Status = "archived"
)

// Valid reports whether s is one of the known states.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusActive, StatusDeprecated, StatusArchived:
		return true
	}
	return false
}

// ModelSettings are target-model parameters.
type ModelSettings struct {
	Model       string   `json:"model,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"maxTokens,omitempty"`
}

// UsageHints describe the expected input and output shapes.
type UsageHints struct {
	InputSchema  any `json:"inputSchema,omitempty"`
	OutputSchema any `json:"outputSchema,omitempty"`
}

// FunctionInfo documents what the prompt is for.
type FunctionInfo struct {
	Purpose         string   `json:"purpose,omitempty"`
	SuccessCriteria string   `json:"successCriteria,omitempty"`
	Dependencies    []string `json:"dependencies,omitempty"`
	EstimatedCost   string   `json:"estimatedCost,omitempty"`
}

// SourceInfo records the file a prompt was imported from.
type SourceInfo struct {
	FileName     string     `json:"fileName,omitempty"`
	CreatedAt    *time.Time `json:"createdAt,omitempty"`
	LastModified *time.Time `json:"lastModified,omitempty"`
}

// InlineAsset is a linked asset that lives outside the store, such as a
// build manifest. It is persisted only inside prompt metadata.
type InlineAsset struct {
	ID               string `json:"id"`
	Path             string `json:"path,omitempty"`
	RelationshipType string `json:"relationshipType,omitempty"`
	Context          string `json:"context,omitempty"`
	Description      string `json:"description,omitempty"`
	DocumentTypeID   string `json:"documentTypeId,omitempty"`
}

// Metadata is the structured metadata of a prompt.
// Keys other than the recognized ones are kept in Extra and survive a
// decode/encode cycle unchanged.
type Metadata struct {
	Model          *ModelSettings `json:"aiEngine,omitempty"`
	Usage          *UsageHints    `json:"usage,omitempty"`
	Function       *FunctionInfo  `json:"function,omitempty"`
	RelatedAssets  []string       `json:"relatedAssets,omitempty"`
	DatabaseQuery  string         `json:"databaseQuery,omitempty"`
	DatabaseQuery2 string         `json:"databaseQuery2,omitempty"`
	InlineAssets   []InlineAsset  `json:"packageJsonFiles,omitempty"`
	Status         Status         `json:"status,omitempty"`
	Hash           string         `json:"hash,omitempty"`
	Source         *SourceInfo    `json:"source,omitempty"`
	Extra          map[string]any `json:"-"`
}

// metadataFields is Metadata without its methods, for default encoding.
type metadataFields Metadata

var knownKeys = map[string]bool{
	"aiEngine": true, "usage": true, "function": true, "relatedAssets": true,
	"databaseQuery": true, "databaseQuery2": true, "packageJsonFiles": true,
	"status": true, "hash": true, "source": true,
}

// MarshalJSON merges Extra with the recognized keys.
func (m Metadata) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal(metadataFields(m))
	if err != nil {
		return nil, err
	}
	if len(m.Extra) == 0 {
		return known, nil
	}
	out := make(map[string]any, len(m.Extra)+len(knownKeys))
	for k, v := range m.Extra {
		if !knownKeys[k] {
			out[k] = v
		}
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(known, &fields); err != nil {
		return nil, err
	}
	for k, v := range fields {
		out[k] = v
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes recognized keys and collects the rest in Extra.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	var fields metadataFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	var all map[string]any
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for k := range knownKeys {
		delete(all, k)
	}
	*m = Metadata(fields)
	if len(all) > 0 {
		m.Extra = all
	}
	return nil
}

// MarshalYAML renders m with the same keys as its JSON form.
func (m Metadata) MarshalYAML() (any, error) {
	return m.ToMap()
}

// Queries returns the embedded queries in slot order. Empty slots are "".
func (m Metadata) Queries() (primary, secondary string) {
	return m.DatabaseQuery, m.DatabaseQuery2
}

// Normalize replaces an unknown status with draft and reports whether it did.
func (m *Metadata) Normalize() bool {
	if m.Status == "" || m.Status.Valid() {
		return false
	}
	m.Status = StatusDraft
	return true
}

// ToMap returns m as a generic map, as it appears in file frontmatter.
func (m Metadata) ToMap() (map[string]any, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// MetadataFromMap decodes a generic map (e.g. parsed frontmatter).
func MetadataFromMap(raw map[string]any) (Metadata, error) {
	var m Metadata
	if len(raw) == 0 {
		return m, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return m, fmt.Errorf("encode metadata: %w", err)
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("decode metadata: %w", err)
	}
	return m, nil
}

// DecodeMetadata decodes raw key by key. Recognized keys whose values do not
// fit their type are dropped and returned in rejected; everything else is
// kept.
func DecodeMetadata(raw map[string]any) (m Metadata, rejected []string) {
	if decoded, err := MetadataFromMap(raw); err == nil {
		return decoded, nil
	}
	kept := make(map[string]any, len(raw))
	for k, v := range raw {
		if knownKeys[k] {
			if _, err := MetadataFromMap(map[string]any{k: v}); err != nil {
				rejected = append(rejected, k)
				continue
			}
		}
		kept[k] = v
	}
	sort.Strings(rejected)
	m, _ = MetadataFromMap(kept)
	return m, rejected
}

// Relationship is a directed link from a prompt to an asset.
// AssetID is nil for assets outside the store.
type Relationship struct {
	ID               string    `json:"id" yaml:"id"`
	PromptID         string    `json:"prompt_id" yaml:"prompt_id"`
	AssetID          *string   `json:"asset_id,omitempty" yaml:"asset_id,omitempty"`
	AssetPath        string    `json:"asset_path" yaml:"asset_path"`
	RelationshipType string    `json:"relationship_type,omitempty" yaml:"relationship_type,omitempty"`
	Context          string    `json:"relationship_context,omitempty" yaml:"relationship_context,omitempty"`
	DocumentTypeID   string    `json:"document_type_id,omitempty" yaml:"document_type_id,omitempty"`
	Description      string    `json:"description,omitempty" yaml:"description,omitempty"`
	CreatedAt        time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt        time.Time `json:"updated_at" yaml:"updated_at"`
}

// AssetKey returns the asset id, or "" for out-of-store assets.
func (r Relationship) AssetKey() string {
	if r.AssetID == nil {
		return ""
	}
	return *r.AssetID
}
