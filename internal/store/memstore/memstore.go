// Package memstore is an in-memory store.Backend.
//
// Reads of a collection it does not hold return no rows; only inserts
// are restricted to the collections given to New.
//
// It holds no raw query capability, so every embedded query goes through the
// executor's fallback path. Transactions snapshot the whole store and restore
// it when the callback fails.
package memstore

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jackzampolin/promptctx/internal/store"
)

// Store is an in-memory backend. The zero value is not usable; call New.
type Store struct {
	mu          sync.Mutex
	collections map[string][]store.Record
}

// New creates a store holding the given collections (store.Collections() when empty).
func New(collections ...string) *Store {
	if len(collections) == 0 {
		collections = store.Collections()
	}
	s := &Store{collections: make(map[string][]store.Record, len(collections))}
	for _, c := range collections {
		s.collections[c] = nil
	}
	return s
}

// Get implements store.Backend.
func (s *Store) Get(ctx context.Context, collection, id string) (store.Record, error) {
	rows, err := s.Find(ctx, collection, store.Query{Filters: []store.Filter{store.Eq("id", id)}, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, store.ErrNotFound
	}
	return rows[0], nil
}

// Find implements store.Backend.
func (s *Store) Find(ctx context.Context, collection string, q store.Query) ([]store.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := store.ValidateFilters(q.Filters, false); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	// Collections never written read as empty, like a table with no rows.
	rows := s.collections[collection]

	var out []store.Record
	for _, r := range rows {
		if matchAll(r, q.Filters) {
			out = append(out, r.Clone())
		}
	}
	sortRecords(out, q.Order)
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	if len(q.Columns) > 0 {
		for i := range out {
			out[i] = out[i].Project(q.Columns)
		}
	}
	return out, nil
}

// Insert implements store.Backend.
func (s *Store) Insert(ctx context.Context, collection string, rec store.Record) (store.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.collections[collection]; !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrUnknownCollection, collection)
	}
	id := rec.String("id")
	if id == "" {
		return nil, fmt.Errorf("insert into %s: missing id", collection)
	}
	for _, r := range s.collections[collection] {
		if r.String("id") == id {
			return nil, fmt.Errorf("insert into %s: duplicate id %s", collection, id)
		}
	}
	row := rec.Clone()
	s.collections[collection] = append(s.collections[collection], row)
	return row.Clone(), nil
}

// Update implements store.Backend.
func (s *Store) Update(ctx context.Context, collection string, filters []store.Filter, changes store.Record) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := store.ValidateFilters(filters, true); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := s.collections[collection]
	var n int64
	for _, r := range rows {
		if !matchAll(r, filters) {
			continue
		}
		for k, v := range changes {
			r[k] = v
		}
		n++
	}
	return n, nil
}

// Delete implements store.Backend.
func (s *Store) Delete(ctx context.Context, collection string, filters []store.Filter) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := store.ValidateFilters(filters, true); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, ok := s.collections[collection]
	if !ok {
		return 0, nil
	}
	kept := rows[:0]
	var n int64
	for _, r := range rows {
		if matchAll(r, filters) {
			n++
			continue
		}
		kept = append(kept, r)
	}
	s.collections[collection] = kept
	return n, nil
}

// WithTx implements store.Transactor. Writes made through tx are visible to
// other callers immediately and rolled back if fn fails.
func (s *Store) WithTx(ctx context.Context, fn func(tx store.Backend) error) error {
	snapshot := s.snapshot()
	if err := fn(s); err != nil {
		s.restore(snapshot)
		return err
	}
	return nil
}

// Len returns the number of records in a collection.
func (s *Store) Len(collection string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.collections[collection])
}

func (s *Store) snapshot() map[string][]store.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string][]store.Record, len(s.collections))
	for c, rows := range s.collections {
		copied := make([]store.Record, len(rows))
		for i, r := range rows {
			copied[i] = r.Clone()
		}
		out[c] = copied
	}
	return out
}

func (s *Store) restore(snapshot map[string][]store.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections = snapshot
}

func matchAll(r store.Record, filters []store.Filter) bool {
	for _, f := range filters {
		if !match(r, f) {
			return false
		}
	}
	return true
}

func match(r store.Record, f store.Filter) bool {
	v, present := r[f.Field]
	switch f.Op {
	case store.OpEq:
		if f.Value == nil {
			return !present || v == nil
		}
		return present && v != nil && equal(v, f.Value)
	case store.OpIn:
		if !present || v == nil {
			return false
		}
		for _, want := range f.Value.([]any) {
			if equal(v, want) {
				return true
			}
		}
		return false
	case store.OpILike:
		if !present || v == nil {
			return false
		}
		return likePattern(f.Value.(string)).MatchString(r.String(f.Field))
	}
	return false
}

func equal(a, b any) bool {
	return fmt.Sprint(a) == fmt.Sprint(b)
}

// likePattern converts a SQL LIKE pattern into an anchored case-insensitive regexp.
func likePattern(p string) *regexp.Regexp {
	var b strings.Builder
	b.WriteString("(?is)^")
	for _, ch := range p {
		switch ch {
		case '%':
			b.WriteString(".*")
		case '_':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(ch)))
		}
	}
	b.WriteString("$")
	return regexp.MustCompile(b.String())
}

func sortRecords(rows []store.Record, order []store.Order) {
	if len(order) == 0 {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, o := range order {
			c := compare(rows[i][o.Field], rows[j][o.Field])
			if c == 0 {
				continue
			}
			if o.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

func compare(a, b any) int {
	switch av := a.(type) {
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			return av.Compare(bv)
		}
	case int:
		if bv, ok := b.(int); ok {
			return av - bv
		}
	case int64:
		if bv, ok := b.(int64); ok {
			switch {
			case av < bv:
				return -1
			case av > bv:
				return 1
			}
			return 0
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}
