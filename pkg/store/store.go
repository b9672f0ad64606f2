// Package store defines persistence for orders and the ingest run journal.
// Backends live in the sqlite and postgres subpackages.
package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/ArionMiles/foodspend/pkg/api"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrUnavailable wraps failures that leave the store unusable, such as a
	// full disk or a lost connection. Callers should stop writing.
	ErrUnavailable = errors.New("store unavailable")
	// ErrUnknownQuery is returned by RunQuery for names not in Queries.
	ErrUnknownQuery = errors.New("unknown query")
)

// Outcome tells whether Upsert created or replaced a row.
type Outcome int

const (
	Inserted Outcome = iota + 1
	Updated
)

func (o Outcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case Updated:
		return "updated"
	default:
		return "unknown"
	}
}

// Run is one ingest invocation.
type Run struct {
	ID         uuid.UUID
	Archive    string
	StartedAt  time.Time
	FinishedAt time.Time

	Inserted int
	Updated  int
	Skipped  int
	Failed   int

	// NewestMessage is the latest transport date of a message the run fully
	// handled. Messages that failed to store never advance it.
	NewestMessage time.Time
	// Completed is set when the whole archive was read and every receipt
	// was stored. Aborted, canceled or partially failed runs leave it false.
	Completed bool
}

// Finished reports whether the run row was closed.
func (r *Run) Finished() bool { return !r.FinishedAt.IsZero() }

// NewRun returns a run for archive starting now.
func NewRun(archive string, now time.Time) *Run {
	return &Run{ID: uuid.New(), Archive: archive, StartedAt: now}
}

// Result holds the rows of an ad hoc query as display strings.
type Result struct {
	Columns []string
	Rows    [][]string
}

// Store persists orders. Implementations must enforce order_id uniqueness.
type Store interface {
	// Init creates or upgrades the schema. Calling it again is a no-op.
	Init(ctx context.Context) error
	// Upsert inserts order or overwrites every field of the existing row with
	// the same order_id except created_at. It is atomic.
	Upsert(ctx context.Context, order *api.Order) (Outcome, error)
	// Get returns the order with orderID or ErrNotFound.
	Get(ctx context.Context, orderID string) (*api.Order, error)
	// All returns every order, newest first.
	All(ctx context.Context) ([]api.Order, error)
	// Between returns orders dated in [from, to), oldest first.
	Between(ctx context.Context, from, to time.Time) ([]api.Order, error)
	// ByRestaurant returns the orders of one restaurant, oldest first.
	ByRestaurant(ctx context.Context, name string) ([]api.Order, error)
	Count(ctx context.Context) (int, error)
	// SchemaVersion returns the highest applied migration.
	SchemaVersion(ctx context.Context) (int, error)

	StartRun(ctx context.Context, archive string) (*Run, error)
	FinishRun(ctx context.Context, run *Run) error
	// LastRun returns the most recently finished run or ErrNotFound.
	LastRun(ctx context.Context) (*Run, error)
	// LastCompletedRun returns the most recent run with Completed set or
	// ErrNotFound.
	LastCompletedRun(ctx context.Context) (*Run, error)

	// RunQuery executes a named read-only report from Queries.
	RunQuery(ctx context.Context, name string) (*Result, error)

	Close() error
}

// OrdersByYear returns orders placed in the calendar year in loc.
func OrdersByYear(ctx context.Context, s Store, year int, loc *time.Location) ([]api.Order, error) {
	from := time.Date(year, time.January, 1, 0, 0, 0, 0, loc)
	return s.Between(ctx, from, from.AddDate(1, 0, 0))
}

// OrdersByMonth returns orders placed in the calendar month in loc.
func OrdersByMonth(ctx context.Context, s Store, year int, month time.Month, loc *time.Location) ([]api.Order, error) {
	from := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	return s.Between(ctx, from, from.AddDate(0, 1, 0))
}

// FormatValue renders a scanned column value for display.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case float64:
		return strconv.FormatFloat(x, 'f', 2, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', 2, 32)
	case int64:
		return strconv.FormatInt(x, 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int:
		return strconv.Itoa(x)
	case time.Time:
		return x.Format(time.DateOnly)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}
