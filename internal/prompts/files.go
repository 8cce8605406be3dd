package prompts

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jackzampolin/promptctx/internal/frontmatter"
)

// Frontmatter keys that map to prompt fields rather than metadata.
const (
	keyName        = "name"
	keyDescription = "description"
	keyVersion     = "version"
	keyAuthor      = "author"
	keyTags        = "tags"
)

// NameFromPath derives a prompt name from a file name.
func NameFromPath(path string) string {
	base := filepath.Base(path)
	for _, suffix := range []string{".prompt.md", ".md", ".txt"} {
		if strings.HasSuffix(base, suffix) && len(base) > len(suffix) {
			return strings.TrimSuffix(base, suffix)
		}
	}
	return base
}

// fromDocument splits a prompt document into prompt fields, metadata and body.
// Recognized metadata keys with mistyped values are dropped; the rest of the
// metadata survives.
func fromDocument(text, name string) *Prompt {
	raw, body := frontmatter.Parse(text)
	p := &Prompt{Name: name, Content: body}

	if v, ok := raw[keyName].(string); ok && p.Name == "" {
		p.Name = v
	}
	if v, ok := raw[keyDescription].(string); ok {
		p.Description = v
	}
	if v, ok := raw[keyVersion]; ok {
		p.Version = fmt.Sprint(v)
	}
	if v, ok := raw[keyAuthor].(string); ok {
		p.Author = v
	}
	switch tags := raw[keyTags].(type) {
	case []string:
		p.Tags = tags
	case []any:
		for _, t := range tags {
			p.Tags = append(p.Tags, fmt.Sprint(t))
		}
	case string:
		if tags != "" {
			p.Tags = strings.Split(tags, ",")
			for i := range p.Tags {
				p.Tags[i] = strings.TrimSpace(p.Tags[i])
			}
		}
	}
	for _, k := range []string{keyName, keyDescription, keyVersion, keyAuthor, keyTags} {
		delete(raw, k)
	}

	meta, rejected := DecodeMetadata(raw)
	if len(rejected) > 0 {
		slog.Warn("ignoring mistyped metadata keys", "name", p.Name, "keys", rejected)
	}
	p.Metadata = meta
	return p
}

// ToDocument renders p as a prompt document with a frontmatter block.
func ToDocument(p *Prompt) (string, error) {
	fields, err := p.Metadata.ToMap()
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	fields[keyName] = p.Name
	if p.Description != "" {
		fields[keyDescription] = p.Description
	}
	if p.Version != "" {
		fields[keyVersion] = p.Version
	}
	if p.Author != "" {
		fields[keyAuthor] = p.Author
	}
	if len(p.Tags) > 0 {
		fields[keyTags] = p.Tags
	}
	return frontmatter.Render(fields, p.Content), nil
}

// Export writes p to path as a prompt document.
func Export(p *Prompt, path string) error {
	doc, err := ToDocument(p)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// ImportFile creates a prompt from a local file. The name is taken from
// name, else the document's name key, else the file name.
func (s *Store) ImportFile(ctx context.Context, path, name string) (*Prompt, error) {
	p, err := readDocument(path, name)
	if err != nil {
		return nil, err
	}
	return s.Create(ctx, p)
}

// UpdateFromFile replaces the content of the prompt with the given id from a
// local file. Metadata in the file replaces the stored metadata; a file
// without metadata keeps the stored metadata and regenerates its hash.
func (s *Store) UpdateFromFile(ctx context.Context, id, path string) (*Prompt, error) {
	doc, err := readDocument(path, "")
	if err != nil {
		return nil, err
	}
	u := Update{
		Content:  &doc.Content,
		FilePath: &doc.FilePath,
	}
	if doc.Description != "" {
		u.Description = &doc.Description
	}
	if doc.Version != "" {
		u.Version = &doc.Version
	}
	if doc.Author != "" {
		u.Author = &doc.Author
	}
	if doc.Tags != nil {
		u.Tags = &doc.Tags
	}
	if hasMetadata(doc.Metadata) {
		// The hash is derived from content; a stale one in the file is replaced.
		meta := doc.Metadata
		meta.Hash = HashText(doc.Content)
		u.Metadata = &meta
	}
	return s.Update(ctx, id, u)
}

func readDocument(path, name string) (*Prompt, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	p := fromDocument(string(data), name)
	if p.Name == "" {
		p.Name = NameFromPath(path)
	}
	p.FilePath = path
	if p.Metadata.Source == nil {
		p.Metadata.Source = &SourceInfo{}
	}
	modTime := info.ModTime().UTC()
	p.Metadata.Source.FileName = filepath.Base(path)
	p.Metadata.Source.LastModified = &modTime
	return p, nil
}

// hasMetadata reports whether m carries anything besides the source
// information added on read.
func hasMetadata(m Metadata) bool {
	m.Source = nil
	m.Hash = ""
	raw, err := m.ToMap()
	return err == nil && len(raw) > 0
}
