package defra

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackzampolin/promptctx/internal/schema"
	"github.com/jackzampolin/promptctx/internal/store"
)

// Backend implements store.Backend over DefraDB's GraphQL API.
//
// DefraDB has no SQL surface, so Backend does not implement store.RawQuerier.
// Prompt-attached queries always take the structured fallback path here.
type Backend struct {
	client  *Client
	schemas map[string]*schema.Schema
	logger  *slog.Logger
}

var _ store.Backend = (*Backend)(nil)

// NewBackend creates a Backend for every registered collection.
func NewBackend(client *Client, logger *slog.Logger) (*Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	all, err := schema.All()
	if err != nil {
		return nil, err
	}
	schemas := make(map[string]*schema.Schema, len(all))
	for i := range all {
		schemas[all[i].Collection] = &all[i]
	}
	return &Backend{client: client, schemas: schemas, logger: logger}, nil
}

// Client returns the underlying GraphQL client.
func (b *Backend) Client() *Client { return b.client }

// Get implements store.Backend.
func (b *Backend) Get(ctx context.Context, collection, id string) (store.Record, error) {
	rows, err := b.Find(ctx, collection, store.Query{Filters: []store.Filter{store.Eq("id", id)}, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, store.ErrNotFound
	}
	return rows[0], nil
}

// Find implements store.Backend.
func (b *Backend) Find(ctx context.Context, collection string, q store.Query) ([]store.Record, error) {
	s, err := b.schemaFor(collection)
	if err != nil {
		return nil, err
	}
	qb, err := b.builder(s, q.Filters, false)
	if err != nil {
		return nil, err
	}

	fields := q.Columns
	if len(fields) == 0 {
		fields = s.Fields()
	}
	for _, f := range fields {
		if err := ValidateID(f); err != nil {
			return nil, fmt.Errorf("field %q: %w", f, err)
		}
	}
	qb.Fields(fields...)

	for _, o := range q.Order {
		if err := ValidateID(o.Field); err != nil {
			return nil, fmt.Errorf("order field %q: %w", o.Field, err)
		}
		dir := "ASC"
		if o.Desc {
			dir = "DESC"
		}
		qb.OrderBy(o.Field, dir)
	}
	if q.Limit > 0 {
		qb.Limit(q.Limit)
	}

	query, vars := qb.Build()
	resp, err := b.client.Execute(ctx, query, vars)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", collection, err)
	}
	if msg := resp.Error(); msg != "" {
		return nil, fmt.Errorf("find %s: %s", collection, msg)
	}

	docs := resp.Documents(s.Name)
	out := make([]store.Record, 0, len(docs))
	for _, d := range docs {
		delete(d, "_docID")
		out = append(out, store.Record(d))
	}
	return out, nil
}

// Insert implements store.Backend.
func (b *Backend) Insert(ctx context.Context, collection string, rec store.Record) (store.Record, error) {
	s, err := b.schemaFor(collection)
	if err != nil {
		return nil, err
	}
	mutation, err := BuildCreate(s.Name, map[string]any(rec.Clone()))
	if err != nil {
		return nil, err
	}
	resp, err := b.client.Execute(ctx, mutation, nil)
	if err != nil {
		return nil, fmt.Errorf("insert into %s: %w", collection, err)
	}
	if msg := resp.Error(); msg != "" {
		return nil, fmt.Errorf("insert into %s: %s", collection, msg)
	}
	if len(resp.Documents("create_"+s.Name)) == 0 {
		return nil, fmt.Errorf("insert into %s: unexpected response format: %+v", collection, resp.Data)
	}
	return rec.Clone(), nil
}

// Update implements store.Backend.
func (b *Backend) Update(ctx context.Context, collection string, filters []store.Filter, changes store.Record) (int64, error) {
	s, err := b.schemaFor(collection)
	if err != nil {
		return 0, err
	}
	qb, err := b.builder(s, filters, true)
	if err != nil {
		return 0, err
	}
	if len(changes) == 0 {
		return 0, nil
	}
	mutation, vars, err := qb.BuildUpdate(map[string]any(changes))
	if err != nil {
		return 0, err
	}
	return b.mutate(ctx, "update", s, mutation, vars)
}

// Delete implements store.Backend.
func (b *Backend) Delete(ctx context.Context, collection string, filters []store.Filter) (int64, error) {
	s, err := b.schemaFor(collection)
	if err != nil {
		return 0, err
	}
	qb, err := b.builder(s, filters, true)
	if err != nil {
		return 0, err
	}
	mutation, vars := qb.BuildDelete()
	return b.mutate(ctx, "delete", s, mutation, vars)
}

func (b *Backend) mutate(ctx context.Context, verb string, s *schema.Schema, mutation string, vars map[string]any) (int64, error) {
	resp, err := b.client.Execute(ctx, mutation, vars)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", verb, s.Collection, err)
	}
	if msg := resp.Error(); msg != "" {
		return 0, fmt.Errorf("%s %s: %s", verb, s.Collection, msg)
	}
	n := int64(len(resp.Documents(verb + "_" + s.Name)))
	b.logger.Debug("defra mutation", "op", verb, "collection", s.Collection, "affected", n)
	return n, nil
}

func (b *Backend) schemaFor(collection string) (*schema.Schema, error) {
	s, ok := b.schemas[collection]
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrUnknownCollection, collection)
	}
	return s, nil
}

func (b *Backend) builder(s *schema.Schema, filters []store.Filter, write bool) (*QueryBuilder, error) {
	if err := store.ValidateFilters(filters, write); err != nil {
		return nil, err
	}
	qb := NewQuery(s.Name)
	for _, f := range filters {
		if err := ValidateID(f.Field); err != nil {
			return nil, fmt.Errorf("filter field %q: %w", f.Field, err)
		}
		switch f.Op {
		case store.OpEq:
			qb.Filter(f.Field, f.Value)
		case store.OpIn:
			qb.FilterIn(f.Field, f.Value.([]any))
		case store.OpILike:
			qb.FilterILike(f.Field, f.Value.(string))
		}
	}
	return qb, nil
}
