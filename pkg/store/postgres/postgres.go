// Package postgres provides a PostgreSQL order store.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ArionMiles/foodspend/pkg/api"
	"github.com/ArionMiles/foodspend/pkg/store"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

//go:embed queries/*.sql
var queryFS embed.FS

const orderColumns = `order_id, order_date, restaurant_name, amount, delivery_fee, discount,
	total_amount, status, payment_method, delivery_location, order_items, source,
	raw_email_body, email_date, created_at, updated_at`

// Config holds the PostgreSQL connection settings.
type Config struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string

	// DSN, when set, is used instead of the individual fields.
	DSN string

	// MaxPoolSize is the maximum number of connections in the pool.
	MaxPoolSize int

	// ConnectAttempts bounds the initial ping. RetryDelay is the base delay between attempts.
	ConnectAttempts uint
	RetryDelay      time.Duration
}

// connString returns cfg.DSN or a URL built from the individual fields.
// Credentials are escaped so any character is allowed in them.
func connString(cfg Config) string {
	if cfg.DSN != "" {
		return cfg.DSN
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:     "/" + cfg.Database,
		RawQuery: url.Values{"sslmode": {cfg.SSLMode}}.Encode(),
	}
	return u.String()
}

// Store is a store.Store backed by PostgreSQL.
type Store struct {
	pool       *pgxpool.Pool
	loc        *time.Location
	logger     *slog.Logger
	migrations []store.Migration
	queries    map[string]string
}

var _ store.Store = (*Store)(nil)

// New connects to PostgreSQL, retrying the initial ping. Sessions use loc as
// their time zone so that date_trunc and to_char bucket by local calendar.
func New(ctx context.Context, cfg Config, loc *time.Location, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.UTC
	}

	if cfg.Port == 0 {
		cfg.Port = 5432
	}
	if cfg.SSLMode == "" {
		cfg.SSLMode = "disable"
	}
	if cfg.MaxPoolSize == 0 {
		cfg.MaxPoolSize = 4
	}
	if cfg.ConnectAttempts == 0 {
		cfg.ConnectAttempts = 1
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 2 * time.Second
	}

	migrations, err := store.LoadMigrations(migrationFS, "migrations")
	if err != nil {
		return nil, err
	}
	queries, err := store.LoadQueries(queryFS, "queries")
	if err != nil {
		return nil, err
	}

	poolConfig, err := pgxpool.ParseConfig(connString(cfg))
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxPoolSize)
	poolConfig.MaxConnLifetime = 1 * time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = 1 * time.Minute
	if loc != time.Local {
		poolConfig.ConnConfig.RuntimeParams["timezone"] = loc.String()
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	err = retry.Do(
		func() error {
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return pool.Ping(pingCtx)
		},
		retry.Context(ctx),
		retry.Attempts(cfg.ConnectAttempts),
		retry.Delay(cfg.RetryDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn("database not ready, retrying", "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: pinging database: %w", store.ErrUnavailable, err)
	}

	logger.Info("connected to PostgreSQL",
		"host", poolConfig.ConnConfig.Host,
		"port", poolConfig.ConnConfig.Port,
		"database", poolConfig.ConnConfig.Database,
	)

	return &Store{
		pool:       pool,
		loc:        loc,
		logger:     logger.With("component", "postgres"),
		migrations: migrations,
		queries:    queries,
	}, nil
}

// Init applies pending migrations.
func (s *Store) Init(ctx context.Context) error {
	if _, err := store.Migrate(ctx, &migrator{pool: s.pool}, s.migrations, s.logger); err != nil {
		return classify(err)
	}
	return nil
}

// SchemaVersion returns the highest applied migration, or 0 before Init.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var version *int
	err := s.pool.QueryRow(ctx, `SELECT MAX(version) FROM schema_migrations`).Scan(&version)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "42P01" {
			return 0, nil
		}
		return 0, classify(fmt.Errorf("reading schema version: %w", err))
	}
	if version == nil {
		return 0, nil
	}
	return *version, nil
}

// Upsert inserts order or replaces the row with the same order_id.
func (s *Store) Upsert(ctx context.Context, order *api.Order) (store.Outcome, error) {
	var emailDate *time.Time
	if !order.EmailDate.IsZero() {
		emailDate = &order.EmailDate
	}

	var inserted bool
	err := s.pool.QueryRow(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW(), NOW())
		ON CONFLICT (order_id) DO UPDATE SET
			order_date = EXCLUDED.order_date,
			restaurant_name = EXCLUDED.restaurant_name,
			amount = EXCLUDED.amount,
			delivery_fee = EXCLUDED.delivery_fee,
			discount = EXCLUDED.discount,
			total_amount = EXCLUDED.total_amount,
			status = EXCLUDED.status,
			payment_method = EXCLUDED.payment_method,
			delivery_location = EXCLUDED.delivery_location,
			order_items = EXCLUDED.order_items,
			source = EXCLUDED.source,
			raw_email_body = EXCLUDED.raw_email_body,
			email_date = EXCLUDED.email_date,
			updated_at = NOW()
		RETURNING (xmax = 0)`,
		order.OrderID,
		order.Date,
		order.RestaurantName,
		order.Amount,
		order.DeliveryFee,
		order.Discount,
		order.TotalAmount,
		order.Status,
		order.PaymentMethod,
		order.DeliveryLocation,
		order.OrderItems,
		order.Source,
		order.RawEmailBody,
		emailDate,
	).Scan(&inserted)
	if err != nil {
		return 0, classify(fmt.Errorf("upserting order %s: %w", order.OrderID, err))
	}

	if inserted {
		return store.Inserted, nil
	}
	return store.Updated, nil
}

// Get returns one order by id.
func (s *Store) Get(ctx context.Context, orderID string) (*api.Order, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_id = $1`, orderID)
	o, err := s.scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
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
		`SELECT `+orderColumns+` FROM orders WHERE order_date >= $1 AND order_date < $2 ORDER BY order_date, order_id`,
		from, to)
}

// ByRestaurant returns one restaurant's orders, oldest first.
func (s *Store) ByRestaurant(ctx context.Context, name string) ([]api.Order, error) {
	return s.list(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE restaurant_name = $1 ORDER BY order_date, order_id`, name)
}

// Count returns the number of stored orders.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM orders`).Scan(&n); err != nil {
		return 0, classify(fmt.Errorf("counting orders: %w", err))
	}
	return n, nil
}

func (s *Store) list(ctx context.Context, query string, args ...any) ([]api.Order, error) {
	rows, err := s.pool.Query(ctx, query, args...)
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

func (s *Store) scanOrder(row pgx.Row) (*api.Order, error) {
	var o api.Order
	var emailDate *time.Time
	var amount, fee, discount, total decimal.Decimal
	err := row.Scan(
		&o.OrderID, &o.Date, &o.RestaurantName,
		&amount, &fee, &discount, &total,
		&o.Status, &o.PaymentMethod, &o.DeliveryLocation, &o.OrderItems, &o.Source,
		&o.RawEmailBody, &emailDate, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	o.Amount, o.DeliveryFee, o.Discount, o.TotalAmount = amount, fee, discount, total
	o.Date = o.Date.In(s.loc)
	if emailDate != nil {
		o.EmailDate = emailDate.In(s.loc)
	}
	return &o, nil
}

// StartRun records the start of an ingest run.
func (s *Store) StartRun(ctx context.Context, archive string) (*store.Run, error) {
	run := store.NewRun(archive, time.Now().UTC())
	_, err := s.pool.Exec(ctx,
		`INSERT INTO ingest_runs (id, archive, started_at) VALUES ($1::uuid, $2, $3)`,
		run.ID.String(), run.Archive, run.StartedAt)
	if err != nil {
		return nil, classify(fmt.Errorf("recording ingest run: %w", err))
	}
	return run, nil
}

// FinishRun stores the run's counters and marks it finished.
func (s *Store) FinishRun(ctx context.Context, run *store.Run) error {
	run.FinishedAt = time.Now().UTC()

	var newest *time.Time
	if !run.NewestMessage.IsZero() {
		newest = &run.NewestMessage
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE ingest_runs
		SET finished_at = $1, inserted = $2, updated = $3, skipped = $4, failed = $5, newest_message = $6, completed = $7
		WHERE id = $8::uuid`,
		run.FinishedAt, run.Inserted, run.Updated, run.Skipped, run.Failed, newest, run.Completed, run.ID.String(),
	)
	if err != nil {
		return classify(fmt.Errorf("finishing ingest run %s: %w", run.ID, err))
	}
	if tag.RowsAffected() == 0 {
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
	return s.lastRun(ctx, `finished_at IS NOT NULL AND completed`)
}

func (s *Store) lastRun(ctx context.Context, where string) (*store.Run, error) {
	var run store.Run
	var id string
	var finished, newest *time.Time
	err := s.pool.QueryRow(ctx, `
		SELECT id::text, archive, started_at, finished_at, inserted, updated, skipped, failed, newest_message, completed
		FROM ingest_runs
		WHERE `+where+`
		ORDER BY finished_at DESC
		LIMIT 1`).Scan(
		&id, &run.Archive, &run.StartedAt, &finished,
		&run.Inserted, &run.Updated, &run.Skipped, &run.Failed, &newest,
		&run.Completed,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("last ingest run: %w", store.ErrNotFound)
	}
	if err != nil {
		return nil, classify(fmt.Errorf("reading last ingest run: %w", err))
	}

	if run.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("ingest run id %q: %w", id, err)
	}
	run.StartedAt = run.StartedAt.UTC()
	if finished != nil {
		run.FinishedAt = finished.UTC()
	}
	if newest != nil {
		run.NewestMessage = newest.UTC()
	}
	return &run, nil
}

// RunQuery executes a named report.
func (s *Store) RunQuery(ctx context.Context, name string) (*store.Result, error) {
	q, err := store.LookupQuery(s.queries, name)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, classify(fmt.Errorf("running query %s: %w", name, err))
	}
	defer rows.Close()

	result := &store.Result{}
	for _, fd := range rows.FieldDescriptions() {
		result.Columns = append(result.Columns, fd.Name)
	}
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("query %s: reading row: %w", name, err)
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

// Close closes the connection pool.
func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

type migrator struct {
	pool *pgxpool.Pool
}

func (m *migrator) EnsureVersionTable(ctx context.Context) error {
	_, err := m.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	return err
}

func (m *migrator) AppliedVersions(ctx context.Context) (map[int]bool, error) {
	rows, err := m.pool.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	versions, err := pgx.CollectRows(rows, pgx.RowTo[int32])
	if err != nil {
		return nil, err
	}

	applied := make(map[int]bool, len(versions))
	for _, v := range versions {
		applied[int(v)] = true
	}
	return applied, nil
}

func (m *migrator) Apply(ctx context.Context, mig store.Migration) error {
	return pgx.BeginFunc(ctx, m.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, mig.SQL); err != nil {
			return err
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, mig.Version, mig.Name)
		return err
	})
}

// classify marks connection loss and resource exhaustion as unavailable.
func classify(err error) error {
	if err == nil || errors.Is(err, store.ErrUnavailable) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, "08"), // connection exception
			strings.HasPrefix(pgErr.Code, "53"), // insufficient resources
			strings.HasPrefix(pgErr.Code, "57P"): // operator intervention
			return fmt.Errorf("%w: %w", store.ErrUnavailable, err)
		}
		return err
	}

	var connErr *pgconn.ConnectError
	var netErr net.Error
	if errors.As(err, &connErr) || errors.As(err, &netErr) {
		return fmt.Errorf("%w: %w", store.ErrUnavailable, err)
	}
	return err
}
