// Package relationships reconciles a prompt's relationship rows with an
// operator's desired asset set.
package relationships

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jackzampolin/promptctx/internal/metrics"
	"github.com/jackzampolin/promptctx/internal/prompts"
	"github.com/jackzampolin/promptctx/internal/store"
)

// Settings are the caller-supplied attributes for one desired asset.
type Settings struct {
	RelationshipType string `yaml:"type" json:"type"`
	Context          string `yaml:"context" json:"context"`
	Description      string `yaml:"description" json:"description"`
	DocumentTypeID   string `yaml:"document_type_id" json:"document_type_id"`
	// AssetPath defaults to the asset id.
	AssetPath string `yaml:"path" json:"path"`
	// External assets are recorded only in the prompt's metadata, never as
	// relationship rows.
	External bool `yaml:"external" json:"external"`
}

// Result lists the asset ids touched by a synchronization.
type Result struct {
	Deleted  []string              `json:"deleted" yaml:"deleted"`
	Inserted []string              `json:"inserted" yaml:"inserted"`
	Updated  []string              `json:"updated" yaml:"updated"`
	External []prompts.InlineAsset `json:"external" yaml:"external"`
}

// PreconditionError is returned when synchronizing a prompt that does not
// exist. It matches prompts.ErrNotFound.
type PreconditionError struct {
	PromptID string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("cannot synchronize relationships: prompt %s not found", e.PromptID)
}

func (e *PreconditionError) Is(target error) bool { return target == prompts.ErrNotFound }

// Options configures a Synchronizer.
type Options struct {
	Metrics *metrics.Recorder
	Logger  *slog.Logger
}

// Synchronizer writes relationship rows and the prompt's metadata snapshot.
//
// Callers must not run two synchronizations for the same prompt
// concurrently; no locking is done here.
type Synchronizer struct {
	prompts *prompts.Store
	metrics *metrics.Recorder
	logger  *slog.Logger
	now     func() time.Time
}

// NewSynchronizer creates a synchronizer writing through ps's backend.
func NewSynchronizer(ps *prompts.Store, opts Options) *Synchronizer {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Synchronizer{
		prompts: ps,
		metrics: opts.Metrics,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Synchronize makes the prompt's relationships match desired.
//
// Store-native assets get one row each: rows for assets no longer desired
// are deleted in one batch, missing rows are inserted and existing rows are
// updated with the given settings. External assets are written to the
// prompt's metadata together with the full desired id list. When the
// backend supports transactions all writes commit together.
func (s *Synchronizer) Synchronize(ctx context.Context, promptID string, desired []string, settings map[string]Settings) (*Result, error) {
	p, err := s.prompts.Get(ctx, promptID)
	if errors.Is(err, prompts.ErrNotFound) {
		return nil, &PreconditionError{PromptID: promptID}
	}
	if err != nil {
		return nil, err
	}

	desired = dedupe(desired)
	result := &Result{}
	var native []string
	for _, id := range desired {
		st := settings[id]
		if st.External {
			result.External = append(result.External, prompts.InlineAsset{
				ID:               id,
				Path:             assetPath(id, st),
				RelationshipType: st.RelationshipType,
				Context:          st.Context,
				Description:      st.Description,
				DocumentTypeID:   st.DocumentTypeID,
			})
			continue
		}
		native = append(native, id)
	}

	err = store.RunInTx(ctx, s.prompts.Backend(), func(tx store.Backend) error {
		txPrompts := s.prompts.WithBackend(tx)
		existing, err := txPrompts.Relationships(ctx, promptID)
		if err != nil {
			return err
		}

		byAsset := make(map[string]prompts.Relationship, len(existing))
		for _, r := range existing {
			byAsset[r.AssetKey()] = r
		}
		keep := make(map[string]bool, len(native))
		for _, id := range native {
			keep[id] = true
		}

		var staleIDs []string
		for _, r := range existing {
			if !keep[r.AssetKey()] {
				staleIDs = append(staleIDs, r.ID)
				result.Deleted = append(result.Deleted, r.AssetKey())
			}
		}
		if len(staleIDs) > 0 {
			if _, err := tx.Delete(ctx, store.CollectionRelationships, []store.Filter{store.In("id", staleIDs)}); err != nil {
				return fmt.Errorf("failed to delete stale relationships: %w", err)
			}
		}

		now := s.now()
		for _, id := range native {
			st := settings[id]
			if r, ok := byAsset[id]; ok {
				changes := store.Record{
					"asset_path":           assetPath(id, st),
					"relationship_type":    st.RelationshipType,
					"relationship_context": st.Context,
					"document_type_id":     st.DocumentTypeID,
					"description":          st.Description,
					"updated_at":           now,
				}
				if _, err := tx.Update(ctx, store.CollectionRelationships, []store.Filter{store.Eq("id", r.ID)}, changes); err != nil {
					return fmt.Errorf("failed to update relationship for %s: %w", id, err)
				}
				result.Updated = append(result.Updated, id)
				continue
			}

			assetID := id
			rec := prompts.RelationshipRecord(prompts.Relationship{
				ID:               uuid.New().String(),
				PromptID:         promptID,
				AssetID:          &assetID,
				AssetPath:        assetPath(id, st),
				RelationshipType: st.RelationshipType,
				Context:          st.Context,
				DocumentTypeID:   st.DocumentTypeID,
				Description:      st.Description,
				CreatedAt:        now,
				UpdatedAt:        now,
			})
			if _, err := tx.Insert(ctx, store.CollectionRelationships, rec); err != nil {
				return fmt.Errorf("failed to insert relationship for %s: %w", id, err)
			}
			result.Inserted = append(result.Inserted, id)
		}

		meta := p.Metadata
		meta.RelatedAssets = desired
		meta.InlineAssets = result.External
		if _, err := txPrompts.Update(ctx, promptID, prompts.Update{Metadata: &meta}); err != nil {
			return fmt.Errorf("failed to write metadata snapshot: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordSyncChanges(metrics.OpDelete, len(result.Deleted))
	s.metrics.RecordSyncChanges(metrics.OpInsert, len(result.Inserted))
	s.metrics.RecordSyncChanges(metrics.OpUpdate, len(result.Updated))
	s.logger.Info("relationships synchronized",
		"prompt", p.Name,
		"deleted", len(result.Deleted),
		"inserted", len(result.Inserted),
		"updated", len(result.Updated),
		"external", len(result.External))
	return result, nil
}

func assetPath(id string, st Settings) string {
	if st.AssetPath != "" {
		return st.AssetPath
	}
	return id
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
