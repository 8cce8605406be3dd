// Package store defines the storage contract the composition engine needs.
//
// Backends expose collections of flat records. The engine only requires keyed
// fetch, filtered/ordered fetch, and insert/update/delete by filter. Two
// capabilities are optional and discovered by type assertion:
//   - RawQuerier: run an arbitrary query string (may be missing or refused,
//     e.g. on a restricted permission tier)
//   - Transactor: run several writes atomically
//
// A process builds one Backend and passes it to every component that needs it.
package store

import (
	"context"
	"errors"
	"fmt"
)

// Collection names used by the engine.
const (
	CollectionPrompts             = "prompts"
	CollectionRelationships       = "prompt_relationships"
	CollectionTemplates           = "output_templates"
	CollectionTemplateAssociation = "prompt_output_templates"
)

// Collections lists every engine collection.
func Collections() []string {
	return []string{
		CollectionPrompts,
		CollectionRelationships,
		CollectionTemplates,
		CollectionTemplateAssociation,
	}
}

// Sentinel errors for the store package.
var (
	// ErrNotFound is returned by Get when no record has the given id.
	ErrNotFound = errors.New("record not found")

	// ErrRawQueryUnavailable is returned by RawQuery when the backend refuses
	// arbitrary queries.
	ErrRawQueryUnavailable = errors.New("raw query execution unavailable")

	// ErrUnknownCollection is returned for collections the backend does not hold.
	ErrUnknownCollection = errors.New("unknown collection")
)

// Op is a filter operator.
type Op string

const (
	OpEq    Op = "eq"
	OpIn    Op = "in"
	OpILike Op = "ilike"
)

// Filter restricts a fetch, update or delete to matching records.
// For OpIn, Value must be a slice; for OpILike, Value is a SQL LIKE pattern.
type Filter struct {
	Field string
	Op    Op
	Value any
}

// Eq is shorthand for an equality filter.
func Eq(field string, value any) Filter { return Filter{Field: field, Op: OpEq, Value: value} }

// In is shorthand for a membership filter.
func In(field string, values []string) Filter {
	vals := make([]any, len(values))
	for i, v := range values {
		vals[i] = v
	}
	return Filter{Field: field, Op: OpIn, Value: vals}
}

// ILike is shorthand for a case-insensitive pattern filter.
func ILike(field, pattern string) Filter { return Filter{Field: field, Op: OpILike, Value: pattern} }

// Order sorts a fetch by one field.
type Order struct {
	Field string
	Desc  bool
}

// Query describes a multi-record fetch.
// Empty Columns selects every column. Limit <= 0 means no limit.
type Query struct {
	Filters []Filter
	Order   []Order
	Limit   int
	Columns []string
}

// Backend is the storage contract.
type Backend interface {
	// Get returns the record with the given id or ErrNotFound.
	Get(ctx context.Context, collection, id string) (Record, error)
	// Find returns every record matching q.
	Find(ctx context.Context, collection string, q Query) ([]Record, error)
	// Insert stores rec and returns it as persisted.
	Insert(ctx context.Context, collection string, rec Record) (Record, error)
	// Update applies changes to every record matching filters.
	Update(ctx context.Context, collection string, filters []Filter, changes Record) (int64, error)
	// Delete removes every record matching filters.
	Delete(ctx context.Context, collection string, filters []Filter) (int64, error)
}

// RawQuerier is implemented by backends that can run arbitrary queries.
type RawQuerier interface {
	RawQuery(ctx context.Context, query string) ([]Record, error)
}

// Transactor is implemented by backends that can group writes atomically.
// The Backend passed to fn must be used for every write inside the group.
type Transactor interface {
	WithTx(ctx context.Context, fn func(tx Backend) error) error
}

// RunInTx runs fn inside a transaction when b supports one, directly otherwise.
func RunInTx(ctx context.Context, b Backend, fn func(tx Backend) error) error {
	if t, ok := b.(Transactor); ok {
		return t.WithTx(ctx, fn)
	}
	return fn(b)
}

// ValidateFilters rejects filters that cannot be executed.
// Update and Delete require at least one filter.
func ValidateFilters(filters []Filter, requireOne bool) error {
	if requireOne && len(filters) == 0 {
		return fmt.Errorf("refusing unfiltered write")
	}
	for _, f := range filters {
		if f.Field == "" {
			return fmt.Errorf("filter without field")
		}
		switch f.Op {
		case OpEq:
		case OpIn:
			if _, ok := f.Value.([]any); !ok {
				return fmt.Errorf("filter %s: in requires []any, got %T", f.Field, f.Value)
			}
		case OpILike:
			if _, ok := f.Value.(string); !ok {
				return fmt.Errorf("filter %s: ilike requires string, got %T", f.Field, f.Value)
			}
		default:
			return fmt.Errorf("filter %s: unsupported op %q", f.Field, f.Op)
		}
	}
	return nil
}
