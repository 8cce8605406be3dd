package schema

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Adder registers an SDL document with DefraDB.
type Adder interface {
	AddSchema(ctx context.Context, sdl string) error
}

// Initialize applies all schemas to DefraDB.
// It's safe to call multiple times - existing schemas are skipped.
func Initialize(ctx context.Context, client Adder, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	schemas, err := All()
	if err != nil {
		return fmt.Errorf("failed to load schemas: %w", err)
	}

	for _, s := range schemas {
		if err := applySchema(ctx, client, s, logger); err != nil {
			return err
		}
	}

	return nil
}

// applySchema adds a single schema to DefraDB.
// Returns nil if schema already exists.
func applySchema(ctx context.Context, client Adder, s Schema, logger *slog.Logger) error {
	err := client.AddSchema(ctx, s.SDL)
	if err != nil {
		if isAlreadyExistsError(err) {
			logger.Info("schema already exists", "name", s.Name)
			return nil
		}
		return fmt.Errorf("failed to add schema %s: %w", s.Name, err)
	}

	logger.Info("schema added", "name", s.Name, "collection", s.Collection)
	return nil
}

// isAlreadyExistsError checks if the error indicates the collection already exists.
// DefraDB is reached over HTTP, so errors are parsed from response bodies.
func isAlreadyExistsError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "already exists")
}
