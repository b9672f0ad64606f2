// Package sqlite stores orders in a single SQLite file using the pure-Go
// modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	sqlitedrv "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/ArionMiles/foodspend/pkg/api"
	"github.com/ArionMiles/foodspend/pkg/store"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

//go:embed queries/*.sql
var queryFS embed.FS

// Order dates keep the configured zone's offset so that the first 19
// characters are local wall time. Bookkeeping stamps are UTC with a fixed
// width fraction so they sort as text.
const (
	dateLayout  = time.RFC3339
	stampLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

const orderColumns = `order_id, order_date, restaurant_name, amount, delivery_fee, discount,
	total_amount, status, payment_method, delivery_location, order_items, source,
	raw_email_body, email_date, created_at, updated_at`

const runColumns = `id, archive, started_at, finished_at, inserted, updated, skipped, failed, newest_message, completed`

// Store is a store.Store backed by SQLite.
type Store struct {
	db         *sql.DB
	path       string
	loc        *time.Location
	logger     *slog.Logger
	now        func() time.Time
	migrations []store.Migration
	queries    map[string]string
}

var _ store.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for created_at, updated_at and run stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open opens (creating if needed) the database at path. Order dates are
// stored and bucketed in loc. Call Init before use.
func Open(ctx context.Context, path string, loc *time.Location, logger *slog.Logger, opts ...Option) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.UTC
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: creating database directory: %w", store.ErrUnavailable, err)
		}
	}

	migrations, err := store.LoadMigrations(migrationFS, "migrations")
	if err != nil {
		return nil, err
	}
	queries, err := store.LoadQueries(queryFS, "queries")
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	// One writer at a time; SQLite serializes writes anyway.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: opening %s: %w", store.ErrUnavailable, path, err)
	}

	s := &Store{
		db:         db,
		path:       path,
		loc:        loc,
		logger:     logger.With("component", "sqlite"),
		now:        time.Now,
		migrations: migrations,
		queries:    queries,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.logger.Info("opened database", "path", path)
	return s, nil
}

// Path returns the database file.
func (s *Store) Path() string { return s.path }

// Init applies pending migrations.
func (s *Store) Init(ctx context.Context) error {
	if _, err := store.Migrate(ctx, &migrator{db: s.db, now: s.now}, s.migrations, s.logger); err != nil {
		return classify(err)
	}
	return nil
}

// SchemaVersion returns the highest applied migration, or 0 before Init.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var version sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_migrations`).Scan(&version)
	if err != nil {
		if isNoSuchTable(err) {
			return 0, nil
		}
		return 0, classify(fmt.Errorf("reading schema version: %w", err))
	}
	return int(version.Int64), nil
}

// Upsert inserts order or replaces the row with the same order_id.
func (s *Store) Upsert(ctx context.Context, order *api.Order) (store.Outcome, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, classify(fmt.Errorf("beginning transaction: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM orders WHERE order_id = ?`, order.OrderID).Scan(&exists)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, classify(fmt.Errorf("checking order %s: %w", order.OrderID, err))
	}

	now := s.now().UTC().Format(stampLayout)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (order_id) DO UPDATE SET
			order_date = excluded.order_date,
			restaurant_name = excluded.restaurant_name,
			amount = excluded.amount,
			delivery_fee = excluded.delivery_fee,
			discount = excluded.discount,
			total_amount = excluded.total_amount,
			status = excluded.status,
			payment_method = excluded.payment_method,
			delivery_location = excluded.delivery_location,
			order_items = excluded.order_items,
			source = excluded.source,
			raw_email_body = excluded.raw_email_body,
			email_date = excluded.email_date,
			updated_at = excluded.updated_at`,
		order.OrderID,
		order.Date.In(s.loc).Format(dateLayout),
		order.RestaurantName,
		order.Amount.InexactFloat64(),
		order.DeliveryFee.InexactFloat64(),
		order.Discount.InexactFloat64(),
		order.TotalAmount.InexactFloat64(),
		order.Status,
		order.PaymentMethod,
		order.DeliveryLocation,
		order.OrderItems,
		order.Source,
		order.RawEmailBody,
		nullTime(order.EmailDate, dateLayout, s.loc),
		now,
		now,
	)
	if err != nil {
		return 0, classify(fmt.Errorf("upserting order %s: %w", order.OrderID, err))
	}

	if err := tx.Commit(); err != nil {
		return 0, classify(fmt.Errorf("committing order %s: %w", order.OrderID, err))
	}

	if exists == 1 {
		return store.Updated, nil
	}
	return store.Inserted, nil
}

// Get returns one order by id.
func (s *Store) Get(ctx context.Context, orderID string) (*api.Order, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_id = ?`, orderID)
	o, err := s.scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %s: %w", orderID, store.ErrNotFound)
	}
	if err != nil {
		return nil, classify(fmt.Errorf("reading order %s: %w", orderID, err))
	}
	return o, nil
}

// All returns every order, newest first.
func (s *Store) All(ctx context.Context) ([]api.Order, error) {
	return s.list(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY order_date DESC, order_id`)
}

// Between returns orders in [from, to), oldest first.
func (s *Store) Between(ctx context.Context, from, to time.Time) ([]api.Order, error) {
	return s.list(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE order_date >= ? AND order_date < ? ORDER BY order_date, order_id`,
		from.In(s.loc).Format(dateLayout), to.In(s.loc).Format(dateLayout))
}

// ByRestaurant returns one restaurant's orders, oldest first.
func (s *Store) ByRestaurant(ctx context.Context, name string) ([]api.Order, error) {
	return s.list(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE restaurant_name = ? ORDER BY order_date, order_id`, name)
}

// Count returns the number of stored orders.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders`).Scan(&n); err != nil {
		return 0, classify(fmt.Errorf("counting orders: %w", err))
	}
	return n, nil
}

func (s *Store) list(ctx context.Context, query string, args ...any) ([]api.Order, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(fmt.Errorf("querying orders: %w", err))
	}
	defer rows.Close()

	var orders []api.Order
	for rows.Next() {
		o, err := s.scanOrder(rows)
		if err != nil {
			return nil, classify(fmt.Errorf("scanning order: %w", err))
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(fmt.Errorf("iterating orders: %w", err))
	}
	return orders, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanOrder(row scanner) (*api.Order, error) {
	var o api.Order
	var date, created, updated string
	var emailDate sql.NullString
	var amount, fee, discount, total decimal.Decimal
	err := row.Scan(
		&o.OrderID, &date, &o.RestaurantName,
		&amount, &fee, &discount, &total,
		&o.Status, &o.PaymentMethod, &o.DeliveryLocation, &o.OrderItems, &o.Source,
		&o.RawEmailBody, &emailDate, &created, &updated,
	)
	if err != nil {
		return nil, err
	}

	o.Amount, o.DeliveryFee, o.Discount, o.TotalAmount = amount, fee, discount, total

	if o.Date, err = parseTime(date, s.loc); err != nil {
		return nil, fmt.Errorf("order %s: order_date: %w", o.OrderID, err)
	}
	if emailDate.Valid {
		if o.EmailDate, err = parseTime(emailDate.String, s.loc); err != nil {
			return nil, fmt.Errorf("order %s: email_date: %w", o.OrderID, err)
		}
	}
	if o.CreatedAt, err = parseTime(created, time.UTC); err != nil {
		return nil, fmt.Errorf("order %s: created_at: %w", o.OrderID, err)
	}
	if o.UpdatedAt, err = parseTime(updated, time.UTC); err != nil {
		return nil, fmt.Errorf("order %s: updated_at: %w", o.OrderID, err)
	}
	return &o, nil
}

// StartRun records the start of an ingest run.
func (s *Store) StartRun(ctx context.Context, archive string) (*store.Run, error) {
	run := store.NewRun(archive, s.now().UTC())
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ingest_runs (id, archive, started_at) VALUES (?, ?, ?)`,
		run.ID.String(), run.Archive, run.StartedAt.Format(stampLayout))
	if err != nil {
		return nil, classify(fmt.Errorf("recording ingest run: %w", err))
	}
	return run, nil
}

// FinishRun stores the run's counters and marks it finished.
func (s *Store) FinishRun(ctx context.Context, run *store.Run) error {
	run.FinishedAt = s.now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE ingest_runs
		SET finished_at = ?, inserted = ?, updated = ?, skipped = ?, failed = ?, newest_message = ?, completed = ?
		WHERE id = ?`,
		run.FinishedAt.Format(stampLayout),
		run.Inserted, run.Updated, run.Skipped, run.Failed,
		nullTime(run.NewestMessage, stampLayout, time.UTC),
		run.Completed,
		run.ID.String(),
	)
	if err != nil {
		return classify(fmt.Errorf("finishing ingest run %s: %w", run.ID, err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("ingest run %s: %w", run.ID, store.ErrNotFound)
	}
	return nil
}

// LastRun returns the most recently finished ingest run.
func (s *Store) LastRun(ctx context.Context) (*store.Run, error) {
	return s.lastRun(ctx, `finished_at IS NOT NULL`)
}

// LastCompletedRun returns the most recent run that read its whole archive.
func (s *Store) LastCompletedRun(ctx context.Context) (*store.Run, error) {
	return s.lastRun(ctx, `finished_at IS NOT NULL AND completed = 1`)
}

func (s *Store) lastRun(ctx context.Context, where string) (*store.Run, error) {
	var run store.Run
	var id, started string
	var finished, newest sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT `+runColumns+` FROM ingest_runs
		WHERE `+where+`
		ORDER BY finished_at DESC
		LIMIT 1`).Scan(
		&id, &run.Archive, &started, &finished,
		&run.Inserted, &run.Updated, &run.Skipped, &run.Failed, &newest,
		&run.Completed,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("last ingest run: %w", store.ErrNotFound)
	}
	if err != nil {
		return nil, classify(fmt.Errorf("reading last ingest run: %w", err))
	}

	if run.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("ingest run id %q: %w", id, err)
	}
	if run.StartedAt, err = parseTime(started, time.UTC); err != nil {
		return nil, fmt.Errorf("ingest run %s started_at: %w", id, err)
	}
	if finished.Valid {
		if run.FinishedAt, err = parseTime(finished.String, time.UTC); err != nil {
			return nil, fmt.Errorf("ingest run %s finished_at: %w", id, err)
		}
	}
	if newest.Valid {
		if run.NewestMessage, err = parseTime(newest.String, time.UTC); err != nil {
			return nil, fmt.Errorf("ingest run %s newest_message: %w", id, err)
		}
	}
	return &run, nil
}

// RunQuery executes a named report.
func (s *Store) RunQuery(ctx context.Context, name string) (*store.Result, error) {
	q, err := store.LookupQuery(s.queries, name)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, classify(fmt.Errorf("running query %s: %w", name, err))
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("query %s columns: %w", name, err)
	}

	result := &store.Result{Columns: cols}
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("query %s: scanning row: %w", name, err)
		}
		row := make([]string, len(vals))
		for i, v := range vals {
			row[i] = store.FormatValue(v)
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(fmt.Errorf("query %s: %w", name, err))
	}
	return result, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

type migrator struct {
	db  *sql.DB
	now func() time.Time
}

func (m *migrator) EnsureVersionTable(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TEXT NOT NULL
		)`)
	return err
}

func (m *migrator) AppliedVersions(ctx context.Context) (map[int]bool, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

func (m *migrator) Apply(ctx context.Context, mig store.Migration) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, mig.SQL); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)`,
		mig.Version, mig.Name, m.now().UTC().Format(stampLayout)); err != nil {
		return err
	}
	return tx.Commit()
}

func nullTime(t time.Time, layout string, loc *time.Location) any {
	if t.IsZero() {
		return nil
	}
	return t.In(loc).Format(layout)
}

func parseTime(s string, loc *time.Location) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.In(loc), nil
}

// classify marks errors that mean the database file itself is unusable.
func classify(err error) error {
	if err == nil || errors.Is(err, store.ErrUnavailable) {
		return err
	}
	var se *sqlitedrv.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_FULL, sqlite3.SQLITE_IOERR, sqlite3.SQLITE_CANTOPEN,
			sqlite3.SQLITE_READONLY, sqlite3.SQLITE_CORRUPT, sqlite3.SQLITE_NOTADB:
			return fmt.Errorf("%w: %w", store.ErrUnavailable, err)
		}
	}
	return err
}

func isNoSuchTable(err error) bool {
	return strings.Contains(err.Error(), "no such table")
}
