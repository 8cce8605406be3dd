package prompts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jackzampolin/promptctx/internal/store"
)

// Store provides prompt CRUD over a storage backend.
type Store struct {
	backend store.Backend
	logger  *slog.Logger
	now     func() time.Time
}

// NewStore creates a new prompt store.
func NewStore(backend store.Backend, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{backend: backend, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// WithBackend returns a Store sharing s's settings but writing through b,
// typically a transaction handle.
func (s *Store) WithBackend(b store.Backend) *Store {
	cp := *s
	cp.backend = b
	return &cp
}

// Backend returns the backend s writes through.
func (s *Store) Backend() store.Backend { return s.backend }

// Create stores a new prompt. The ID, timestamps and content hash are
// always assigned here; an empty status becomes draft.
func (s *Store) Create(ctx context.Context, p *Prompt) (*Prompt, error) {
	if strings.TrimSpace(p.Name) == "" {
		return nil, fmt.Errorf("prompt name is required")
	}
	if p.IsLocal() {
		return nil, ErrLocalPrompt
	}
	if existing, err := s.GetByName(ctx, p.Name); err == nil {
		return nil, fmt.Errorf("%w: %s (id %s)", ErrDuplicateName, p.Name, existing.ID)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	created := *p
	now := s.now()
	created.ID = uuid.New().String()
	created.CreatedAt = now
	created.UpdatedAt = now
	created.Metadata.Hash = HashText(created.Content)
	if created.Metadata.Status == "" {
		created.Metadata.Status = StatusDraft
	}
	s.normalize(&created)

	rec, err := promptRecord(&created)
	if err != nil {
		return nil, err
	}
	if _, err := s.backend.Insert(ctx, store.CollectionPrompts, rec); err != nil {
		return nil, fmt.Errorf("failed to create prompt %s: %w", p.Name, err)
	}
	s.logger.Info("prompt created", "name", created.Name, "id", created.ID)
	return &created, nil
}

// Get returns the prompt with the given id.
func (s *Store) Get(ctx context.Context, id string) (*Prompt, error) {
	rec, err := s.backend.Get(ctx, store.CollectionPrompts, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, &NotFoundError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get prompt %s: %w", id, err)
	}
	return s.decode(rec)
}

// GetByName returns the prompt with the given name.
func (s *Store) GetByName(ctx context.Context, name string) (*Prompt, error) {
	rows, err := s.backend.Find(ctx, store.CollectionPrompts, store.Query{
		Filters: []store.Filter{store.Eq("name", name)},
		Limit:   1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to look up prompt %s: %w", name, err)
	}
	if len(rows) == 0 {
		return nil, &NotFoundError{Name: name}
	}
	return s.decode(rows[0])
}

// ListOptions filters List.
type ListOptions struct {
	// Search matches names case-insensitively as a substring.
	Search string
	// Status keeps prompts in this state. Prompts without a status count as draft.
	Status Status
	Limit  int
}

// List returns prompts ordered by name.
func (s *Store) List(ctx context.Context, opts ListOptions) ([]Prompt, error) {
	q := store.Query{Order: []store.Order{{Field: "name"}}}
	if opts.Search != "" {
		q.Filters = append(q.Filters, store.ILike("name", "%"+opts.Search+"%"))
	}
	rows, err := s.backend.Find(ctx, store.CollectionPrompts, q)
	if err != nil {
		return nil, fmt.Errorf("failed to list prompts: %w", err)
	}

	var out []Prompt
	for _, rec := range rows {
		p, err := s.decode(rec)
		if err != nil {
			return nil, err
		}
		if opts.Status != "" && effectiveStatus(p.Metadata.Status) != opts.Status {
			continue
		}
		out = append(out, *p)
		if opts.Limit > 0 && len(out) == opts.Limit {
			break
		}
	}
	return out, nil
}

// Update describes changes to a prompt. Nil fields are left unchanged.
type Update struct {
	Name        *string
	Content     *string
	Description *string
	Version     *string
	Author      *string
	FilePath    *string
	Tags        *[]string
	// Metadata replaces the stored metadata verbatim, including its hash.
	// When nil, the stored metadata is kept and its hash is regenerated
	// from the (possibly new) content.
	Metadata *Metadata
}

// Update applies u to the prompt with the given id and always refreshes
// UpdatedAt.
func (s *Store) Update(ctx context.Context, id string, u Update) (*Prompt, error) {
	if id == LocalPromptID {
		return nil, ErrLocalPrompt
	}
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if u.Name != nil && *u.Name != p.Name {
		if strings.TrimSpace(*u.Name) == "" {
			return nil, fmt.Errorf("prompt name is required")
		}
		if other, err := s.GetByName(ctx, *u.Name); err == nil && other.ID != id {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateName, *u.Name)
		}
		p.Name = *u.Name
	}
	setString(&p.Content, u.Content)
	setString(&p.Description, u.Description)
	setString(&p.Version, u.Version)
	setString(&p.Author, u.Author)
	setString(&p.FilePath, u.FilePath)
	if u.Tags != nil {
		p.Tags = *u.Tags
	}
	if u.Metadata != nil {
		p.Metadata = *u.Metadata
	} else {
		p.Metadata.Hash = HashText(p.Content)
	}
	s.normalize(p)
	p.UpdatedAt = s.now()

	rec, err := promptRecord(p)
	if err != nil {
		return nil, err
	}
	delete(rec, "id")
	delete(rec, "created_at")
	if _, err := s.backend.Update(ctx, store.CollectionPrompts, []store.Filter{store.Eq("id", id)}, rec); err != nil {
		return nil, fmt.Errorf("failed to update prompt %s: %w", p.Name, err)
	}
	s.logger.Debug("prompt updated", "name", p.Name, "id", id)
	return p, nil
}

// Delete removes a prompt together with its relationship rows and template
// associations.
func (s *Store) Delete(ctx context.Context, id string) error {
	if id == LocalPromptID {
		return ErrLocalPrompt
	}
	p, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	err = store.RunInTx(ctx, s.backend, func(tx store.Backend) error {
		byPrompt := []store.Filter{store.Eq("prompt_id", id)}
		rels, err := tx.Delete(ctx, store.CollectionRelationships, byPrompt)
		if err != nil {
			return fmt.Errorf("failed to delete relationships: %w", err)
		}
		assocs, err := tx.Delete(ctx, store.CollectionTemplateAssociation, byPrompt)
		if err != nil {
			return fmt.Errorf("failed to delete template associations: %w", err)
		}
		if _, err := tx.Delete(ctx, store.CollectionPrompts, []store.Filter{store.Eq("id", id)}); err != nil {
			return fmt.Errorf("failed to delete prompt: %w", err)
		}
		s.logger.Info("prompt deleted", "name", p.Name, "id", id, "relationships", rels, "associations", assocs)
		return nil
	})
	return err
}

// Relationships returns the prompt's relationship rows in fetch order
// (creation time, then asset path).
func (s *Store) Relationships(ctx context.Context, promptID string) ([]Relationship, error) {
	rows, err := s.backend.Find(ctx, store.CollectionRelationships, store.Query{
		Filters: []store.Filter{store.Eq("prompt_id", promptID)},
		Order:   []store.Order{{Field: "created_at"}, {Field: "asset_path"}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch relationships for %s: %w", promptID, err)
	}
	out := make([]Relationship, len(rows))
	for i, rec := range rows {
		out[i] = DecodeRelationship(rec)
	}
	return out, nil
}

func (s *Store) decode(rec store.Record) (*Prompt, error) {
	p, err := decodePrompt(rec)
	if err != nil {
		return nil, err
	}
	s.normalize(p)
	return p, nil
}

func (s *Store) normalize(p *Prompt) {
	status := p.Metadata.Status
	if p.Metadata.Normalize() {
		s.logger.Warn("unknown prompt status, treating as draft", "name", p.Name, "status", status)
	}
}

func effectiveStatus(s Status) Status {
	if s == "" {
		return StatusDraft
	}
	return s
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func promptRecord(p *Prompt) (store.Record, error) {
	meta, err := store.EncodeJSON(p.Metadata)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}
	tagJSON, err := store.EncodeJSON(tags)
	if err != nil {
		return nil, fmt.Errorf("encode tags: %w", err)
	}
	return store.Record{
		"id":          p.ID,
		"name":        p.Name,
		"content":     p.Content,
		"description": p.Description,
		"metadata":    meta,
		"version":     p.Version,
		"author":      p.Author,
		"tags":        tagJSON,
		"file_path":   p.FilePath,
		"created_at":  p.CreatedAt,
		"updated_at":  p.UpdatedAt,
	}, nil
}

func decodePrompt(rec store.Record) (*Prompt, error) {
	p := &Prompt{
		ID:          rec.String("id"),
		Name:        rec.String("name"),
		Content:     rec.String("content"),
		Description: rec.String("description"),
		Version:     rec.String("version"),
		Author:      rec.String("author"),
		FilePath:    rec.String("file_path"),
		CreatedAt:   rec.Time("created_at"),
		UpdatedAt:   rec.Time("updated_at"),
	}
	if err := rec.DecodeJSON("metadata", &p.Metadata); err != nil {
		return nil, fmt.Errorf("prompt %s: %w", p.Name, err)
	}
	if err := rec.DecodeJSON("tags", &p.Tags); err != nil {
		return nil, fmt.Errorf("prompt %s: %w", p.Name, err)
	}
	return p, nil
}

// RelationshipRecord encodes r for the relationships collection.
func RelationshipRecord(r Relationship) store.Record {
	var assetID any
	if r.AssetID != nil {
		assetID = *r.AssetID
	}
	return store.Record{
		"id":                   r.ID,
		"prompt_id":            r.PromptID,
		"asset_id":             assetID,
		"asset_path":           r.AssetPath,
		"relationship_type":    r.RelationshipType,
		"relationship_context": r.Context,
		"document_type_id":     r.DocumentTypeID,
		"description":          r.Description,
		"created_at":           r.CreatedAt,
		"updated_at":           r.UpdatedAt,
	}
}

// DecodeRelationship decodes a relationships collection record.
func DecodeRelationship(rec store.Record) Relationship {
	return Relationship{
		ID:               rec.String("id"),
		PromptID:         rec.String("prompt_id"),
		AssetID:          rec.StringPtr("asset_id"),
		AssetPath:        rec.String("asset_path"),
		RelationshipType: rec.String("relationship_type"),
		Context:          rec.String("relationship_context"),
		DocumentTypeID:   rec.String("document_type_id"),
		Description:      rec.String("description"),
		CreatedAt:        rec.Time("created_at"),
		UpdatedAt:        rec.Time("updated_at"),
	}
}
