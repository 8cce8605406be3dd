// Package sqlstore implements store.Backend on a relational database via gorm.
//
// Supported drivers are sqlite and postgres. Raw query execution is available
// unless disabled in Options, which mirrors a restricted permission tier.
package sqlstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormLogger "gorm.io/gorm/logger"

	"github.com/jackzampolin/promptctx/internal/store"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Options configures Open.
type Options struct {
	Driver          string
	DSN             string
	AllowRawQueries bool
	// ConnectAttempts bounds connection retries (default 1).
	ConnectAttempts uint
	// ConnectDelay is the delay between connection attempts (default 1s).
	ConnectDelay time.Duration
	Logger       *slog.Logger
}

// Store is a gorm-backed store.Backend.
type Store struct {
	db       *gorm.DB
	allowRaw bool
	logger   *slog.Logger
}

var (
	_ store.Backend    = (*Store)(nil)
	_ store.RawQuerier = (*Store)(nil)
	_ store.Transactor = (*Store)(nil)
)

// Open connects to the database described by opts.
func Open(ctx context.Context, opts Options) (*Store, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var dialector gorm.Dialector
	switch opts.Driver {
	case DriverSQLite, "":
		dialector = sqlite.Open(opts.DSN)
	case DriverPostgres:
		dialector = postgres.Open(opts.DSN)
	default:
		return nil, fmt.Errorf("unsupported sql driver: %s", opts.Driver)
	}

	attempts := opts.ConnectAttempts
	if attempts == 0 {
		attempts = 1
	}
	delay := opts.ConnectDelay
	if delay == 0 {
		delay = time.Second
	}

	gormLog := gormLogger.New(
		slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
		gormLogger.Config{
			SlowThreshold:             1 * time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	var db *gorm.DB
	err := retry.Do(
		func() error {
			var err error
			db, err = gorm.Open(dialector, &gorm.Config{
				DisableForeignKeyConstraintWhenMigrating: true,
				Logger:                                   gormLog,
			})
			return err
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(delay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn("database connection failed, retrying", "driver", opts.Driver, "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", opts.Driver, err)
	}

	return New(db, opts.AllowRawQueries, logger), nil
}

// New wraps an existing gorm handle.
func New(db *gorm.DB, allowRaw bool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, allowRaw: allowRaw, logger: logger}
}

// DB returns the underlying gorm handle.
func (s *Store) DB() *gorm.DB { return s.db }

// Migrate creates or updates the engine tables.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(
		&promptRow{},
		&relationshipRow{},
		&templateRow{},
		&associationRow{},
	); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
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
	if err := store.ValidateFilters(q.Filters, false); err != nil {
		return nil, err
	}
	tx := s.applyFilters(s.db.WithContext(ctx).Table(collection), q.Filters)
	if len(q.Columns) > 0 {
		cols := make([]clause.Column, len(q.Columns))
		for i, c := range q.Columns {
			cols[i] = clause.Column{Name: c}
		}
		tx = tx.Clauses(clause.Select{Columns: cols})
	}
	for _, o := range q.Order {
		tx = tx.Order(clause.OrderByColumn{Column: clause.Column{Name: o.Field}, Desc: o.Desc})
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}

	var rows []map[string]any
	if err := tx.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("find %s: %w", collection, err)
	}
	return toRecords(rows), nil
}

// Insert implements store.Backend.
func (s *Store) Insert(ctx context.Context, collection string, rec store.Record) (store.Record, error) {
	row := map[string]any(rec.Clone())
	if err := s.db.WithContext(ctx).Table(collection).Create(row).Error; err != nil {
		return nil, fmt.Errorf("insert into %s: %w", collection, err)
	}
	return store.Record(row), nil
}

// Update implements store.Backend.
func (s *Store) Update(ctx context.Context, collection string, filters []store.Filter, changes store.Record) (int64, error) {
	if err := store.ValidateFilters(filters, true); err != nil {
		return 0, err
	}
	if len(changes) == 0 {
		return 0, nil
	}
	tx := s.applyFilters(s.db.WithContext(ctx).Table(collection), filters)
	res := tx.Updates(map[string]any(changes.Clone()))
	if res.Error != nil {
		return 0, fmt.Errorf("update %s: %w", collection, res.Error)
	}
	return res.RowsAffected, nil
}

// Delete implements store.Backend.
func (s *Store) Delete(ctx context.Context, collection string, filters []store.Filter) (int64, error) {
	if err := store.ValidateFilters(filters, true); err != nil {
		return 0, err
	}
	tx := s.applyFilters(s.db.WithContext(ctx).Table(collection), filters)
	res := tx.Delete(map[string]any{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete from %s: %w", collection, res.Error)
	}
	return res.RowsAffected, nil
}

// RawQuery implements store.RawQuerier.
func (s *Store) RawQuery(ctx context.Context, query string) ([]store.Record, error) {
	if !s.allowRaw {
		return nil, store.ErrRawQueryUnavailable
	}
	var rows []map[string]any
	if err := s.db.WithContext(ctx).Raw(query).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("raw query: %w", err)
	}
	return toRecords(rows), nil
}

// WithTx implements store.Transactor.
func (s *Store) WithTx(ctx context.Context, fn func(tx store.Backend) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx, allowRaw: s.allowRaw, logger: s.logger})
	})
}

func (s *Store) applyFilters(tx *gorm.DB, filters []store.Filter) *gorm.DB {
	for _, f := range filters {
		col := clause.Column{Name: f.Field}
		switch f.Op {
		case store.OpEq:
			if f.Value == nil {
				tx = tx.Where("? IS NULL", col)
			} else {
				tx = tx.Where("? = ?", col, f.Value)
			}
		case store.OpIn:
			tx = tx.Where("? IN ?", col, f.Value)
		case store.OpILike:
			if s.db.Dialector.Name() == DriverPostgres {
				tx = tx.Where("? ILIKE ?", col, f.Value)
			} else {
				tx = tx.Where("LOWER(?) LIKE LOWER(?)", col, f.Value)
			}
		}
	}
	return tx
}

// toRecords normalizes scanned values. gorm scans columns of unknown type
// (JSON, text on sqlite) as *any, and drivers may return text as []byte.
func toRecords(rows []map[string]any) []store.Record {
	out := make([]store.Record, len(rows))
	for i, r := range rows {
		for k, v := range r {
			r[k] = store.Unwrap(v)
		}
		out[i] = store.Record(r)
	}
	return out
}
