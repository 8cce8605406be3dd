package templates

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jackzampolin/promptctx/internal/store"
)

// Store provides template and association CRUD over a storage backend.
// Every write validates the definition first.
type Store struct {
	backend store.Backend
	logger  *slog.Logger
	now     func() time.Time
}

// NewStore creates a new template store.
func NewStore(backend store.Backend, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{backend: backend, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Create validates and stores a new template.
func (s *Store) Create(ctx context.Context, name, description string, def Definition) (*OutputTemplate, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("template name is required")
	}
	if err := Validate(def); err != nil {
		return nil, err
	}
	if _, err := s.GetByName(ctx, name); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateName, name)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	now := s.now()
	t := &OutputTemplate{
		ID:          uuid.New().String(),
		Name:        name,
		Description: description,
		Definition:  def,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	rec, err := templateRecord(t)
	if err != nil {
		return nil, err
	}
	if _, err := s.backend.Insert(ctx, store.CollectionTemplates, rec); err != nil {
		return nil, fmt.Errorf("failed to create template %s: %w", name, err)
	}
	s.logger.Info("template created", "name", name, "id", t.ID, "fields", len(def))
	return t, nil
}

// Update describes changes to a template. Nil fields are left unchanged.
type Update struct {
	Name        *string
	Description *string
	Definition  Definition
}

// Update applies u to the template with the given id. The resulting
// definition is validated even when u leaves it unchanged.
func (s *Store) Update(ctx context.Context, id string, u Update) (*OutputTemplate, error) {
	t, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.Name != nil && *u.Name != t.Name {
		if strings.TrimSpace(*u.Name) == "" {
			return nil, fmt.Errorf("template name is required")
		}
		if other, err := s.GetByName(ctx, *u.Name); err == nil && other.ID != id {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateName, *u.Name)
		}
		t.Name = *u.Name
	}
	if u.Description != nil {
		t.Description = *u.Description
	}
	if u.Definition != nil {
		t.Definition = u.Definition
	}
	if err := Validate(t.Definition); err != nil {
		return nil, err
	}
	t.UpdatedAt = s.now()

	rec, err := templateRecord(t)
	if err != nil {
		return nil, err
	}
	delete(rec, "id")
	delete(rec, "created_at")
	if _, err := s.backend.Update(ctx, store.CollectionTemplates, []store.Filter{store.Eq("id", id)}, rec); err != nil {
		return nil, fmt.Errorf("failed to update template %s: %w", t.Name, err)
	}
	s.logger.Debug("template updated", "name", t.Name, "id", id)
	return t, nil
}

// Get returns the template with the given id.
func (s *Store) Get(ctx context.Context, id string) (*OutputTemplate, error) {
	rec, err := s.backend.Get(ctx, store.CollectionTemplates, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: id %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get template %s: %w", id, err)
	}
	return decodeTemplate(rec)
}

// GetByName returns the template with the given name.
func (s *Store) GetByName(ctx context.Context, name string) (*OutputTemplate, error) {
	rows, err := s.backend.Find(ctx, store.CollectionTemplates, store.Query{
		Filters: []store.Filter{store.Eq("name", name)},
		Limit:   1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to look up template %s: %w", name, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return decodeTemplate(rows[0])
}

// List returns all templates ordered by name.
func (s *Store) List(ctx context.Context) ([]OutputTemplate, error) {
	rows, err := s.backend.Find(ctx, store.CollectionTemplates, store.Query{Order: []store.Order{{Field: "name"}}})
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	out := make([]OutputTemplate, 0, len(rows))
	for _, rec := range rows {
		t, err := decodeTemplate(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, nil
}

// Delete removes a template and every association that references it.
func (s *Store) Delete(ctx context.Context, id string) error {
	t, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	return store.RunInTx(ctx, s.backend, func(tx store.Backend) error {
		n, err := tx.Delete(ctx, store.CollectionTemplateAssociation, []store.Filter{store.Eq("template_id", id)})
		if err != nil {
			return fmt.Errorf("failed to delete template associations: %w", err)
		}
		if _, err := tx.Delete(ctx, store.CollectionTemplates, []store.Filter{store.Eq("id", id)}); err != nil {
			return fmt.Errorf("failed to delete template: %w", err)
		}
		s.logger.Info("template deleted", "name", t.Name, "id", id, "associations", n)
		return nil
	})
}

// Associate links a template to a prompt. An existing association for the
// same pair has its priority updated instead.
func (s *Store) Associate(ctx context.Context, promptID, templateID string, priority int) (*Association, error) {
	if _, err := s.backend.Get(ctx, store.CollectionPrompts, promptID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("cannot associate template with unknown prompt %s", promptID)
		}
		return nil, fmt.Errorf("failed to get prompt %s: %w", promptID, err)
	}
	if _, err := s.Get(ctx, templateID); err != nil {
		return nil, err
	}

	pair := []store.Filter{store.Eq("prompt_id", promptID), store.Eq("template_id", templateID)}
	rows, err := s.backend.Find(ctx, store.CollectionTemplateAssociation, store.Query{Filters: pair, Limit: 1})
	if err != nil {
		return nil, fmt.Errorf("failed to look up association: %w", err)
	}
	if len(rows) > 0 {
		a := decodeAssociation(rows[0])
		if a.Priority != priority {
			if _, err := s.backend.Update(ctx, store.CollectionTemplateAssociation, pair, store.Record{"priority": priority}); err != nil {
				return nil, fmt.Errorf("failed to update association priority: %w", err)
			}
			s.logger.Debug("association priority updated", "prompt_id", promptID, "template_id", templateID, "from", a.Priority, "to", priority)
			a.Priority = priority
		}
		return &a, nil
	}

	a := Association{
		ID:         uuid.New().String(),
		PromptID:   promptID,
		TemplateID: templateID,
		Priority:   priority,
		CreatedAt:  s.now(),
	}
	if _, err := s.backend.Insert(ctx, store.CollectionTemplateAssociation, associationRecord(a)); err != nil {
		return nil, fmt.Errorf("failed to create association: %w", err)
	}
	s.logger.Info("template associated", "prompt_id", promptID, "template_id", templateID, "priority", priority)
	return &a, nil
}

// Dissociate removes the association between a prompt and a template.
func (s *Store) Dissociate(ctx context.Context, promptID, templateID string) error {
	n, err := s.backend.Delete(ctx, store.CollectionTemplateAssociation, []store.Filter{
		store.Eq("prompt_id", promptID),
		store.Eq("template_id", templateID),
	})
	if err != nil {
		return fmt.Errorf("failed to dissociate template: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: no association between prompt %s and template %s", ErrNotFound, promptID, templateID)
	}
	return nil
}

// Associations returns a prompt's associations by ascending priority.
func (s *Store) Associations(ctx context.Context, promptID string) ([]Association, error) {
	rows, err := s.backend.Find(ctx, store.CollectionTemplateAssociation, store.Query{
		Filters: []store.Filter{store.Eq("prompt_id", promptID)},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch associations for %s: %w", promptID, err)
	}
	out := make([]Association, len(rows))
	for i, rec := range rows {
		out[i] = decodeAssociation(rec)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// ForPrompt returns the templates associated with a prompt in precedence
// order (ascending priority). Associations whose template no longer exists
// are skipped.
func (s *Store) ForPrompt(ctx context.Context, promptID string) ([]OutputTemplate, error) {
	assocs, err := s.Associations(ctx, promptID)
	if err != nil || len(assocs) == 0 {
		return nil, err
	}
	ids := make([]string, len(assocs))
	for i, a := range assocs {
		ids[i] = a.TemplateID
	}
	rows, err := s.backend.Find(ctx, store.CollectionTemplates, store.Query{Filters: []store.Filter{store.In("id", ids)}})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch templates for %s: %w", promptID, err)
	}
	byID := make(map[string]OutputTemplate, len(rows))
	for _, rec := range rows {
		t, err := decodeTemplate(rec)
		if err != nil {
			return nil, err
		}
		byID[t.ID] = *t
	}

	out := make([]OutputTemplate, 0, len(assocs))
	for _, a := range assocs {
		t, ok := byID[a.TemplateID]
		if !ok {
			s.logger.Warn("association references missing template", "prompt_id", promptID, "template_id", a.TemplateID)
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func templateRecord(t *OutputTemplate) (store.Record, error) {
	def, err := store.EncodeJSON(t.Definition)
	if err != nil {
		return nil, fmt.Errorf("encode template definition: %w", err)
	}
	return store.Record{
		"id":          t.ID,
		"name":        t.Name,
		"description": t.Description,
		"template":    def,
		"created_at":  t.CreatedAt,
		"updated_at":  t.UpdatedAt,
	}, nil
}

func decodeTemplate(rec store.Record) (*OutputTemplate, error) {
	t := &OutputTemplate{
		ID:          rec.String("id"),
		Name:        rec.String("name"),
		Description: rec.String("description"),
		CreatedAt:   rec.Time("created_at"),
		UpdatedAt:   rec.Time("updated_at"),
	}
	if err := rec.DecodeJSON("template", &t.Definition); err != nil {
		return nil, fmt.Errorf("template %s: %w", t.Name, err)
	}
	return t, nil
}

func associationRecord(a Association) store.Record {
	return store.Record{
		"id":          a.ID,
		"prompt_id":   a.PromptID,
		"template_id": a.TemplateID,
		"priority":    a.Priority,
		"created_at":  a.CreatedAt,
	}
}

func decodeAssociation(rec store.Record) Association {
	return Association{
		ID:         rec.String("id"),
		PromptID:   rec.String("prompt_id"),
		TemplateID: rec.String("template_id"),
		Priority:   rec.Int("priority"),
		CreatedAt:  rec.Time("created_at"),
	}
}
