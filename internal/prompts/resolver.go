package prompts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// localSuffixes are tried in order after the bare name.
var localSuffixes = []string{"", ".md", ".txt", ".prompt.md"}

// Resolver finds prompts by name.
// Resolution order: store > local files in the search directories.
type Resolver struct {
	store      *Store
	mu         sync.RWMutex
	searchDirs []string
	logger     *slog.Logger
}

// NewResolver creates a new prompt resolver. A nil store resolves local
// files only.
func NewResolver(store *Store, searchDirs []string, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{store: store, searchDirs: searchDirs, logger: logger}
}

// Resolve returns the named prompt. Store errors other than a miss are
// logged and resolution continues with local files. The store is never
// written.
func (r *Resolver) Resolve(ctx context.Context, name string) (*Prompt, error) {
	if r.store != nil {
		p, err := r.store.GetByName(ctx, name)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, ErrNotFound) {
			r.logger.Warn("prompt store lookup failed, trying local files", "name", name, "error", err)
		}
	}

	p, err := r.resolveLocal(name)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("resolved prompt from local file", "name", name, "path", p.FilePath)
	return p, nil
}

// SetSearchDirs replaces the directories searched for local prompts.
func (r *Resolver) SetSearchDirs(dirs []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.searchDirs = append([]string(nil), dirs...)
}

// Candidates lists the local paths tried for name, in order.
func (r *Resolver) Candidates(name string) []string {
	if !filepath.IsLocal(name) {
		return nil
	}
	r.mu.RLock()
	dirs := r.searchDirs
	r.mu.RUnlock()

	var out []string
	for _, dir := range dirs {
		for _, suffix := range localSuffixes {
			out = append(out, filepath.Join(dir, name+suffix))
		}
	}
	return out
}

func (r *Resolver) resolveLocal(name string) (*Prompt, error) {
	for _, path := range r.Candidates(name) {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		p, err := ReadLocal(path, name)
		if err != nil {
			r.logger.Warn("failed to read local prompt", "path", path, "error", err)
			continue
		}
		return p, nil
	}
	return nil, &NotFoundError{Name: name}
}

// ReadLocal builds a read-only shadow prompt from a file. The content is the
// file body with any metadata block removed.
func ReadLocal(path, name string) (*Prompt, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	p := fromDocument(string(data), name)
	p.ID = LocalPromptID
	p.FilePath = path
	p.CreatedAt = info.ModTime().UTC()
	p.UpdatedAt = p.CreatedAt
	if p.Metadata.Hash == "" {
		p.Metadata.Hash = HashText(p.Content)
	}
	p.Metadata.Normalize()
	return p, nil
}
