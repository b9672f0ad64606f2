package sqlite

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ArionMiles/foodspend/pkg/api"
	"github.com/ArionMiles/foodspend/pkg/store"
)

var ist = time.FixedZone("IST", 5*3600+1800)

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "orders.db"), ist, logger, opts...)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	return s
}

func testOrder(id, restaurant string, date time.Time, total string) *api.Order {
	return &api.Order{
		OrderID:        id,
		Date:           date,
		RestaurantName: restaurant,
		Amount:         decimal.RequireFromString(total),
		TotalAmount:    decimal.RequireFromString(total),
		Status:         api.StatusCompleted,
		PaymentMethod:  "Credit Card",
		Source:         "zomato",
		RawEmailBody:   "Order ID: " + id,
		EmailDate:      date.Add(time.Minute),
	}
}

func sampleOrders() []*api.Order {
	return []*api.Order{
		testOrder("ORD123456", "Dominoes Pizza", time.Date(2024, 1, 15, 14, 30, 0, 0, ist), "440"),
		testOrder("ORD123457", "Biryani House", time.Date(2024, 1, 20, 13, 15, 0, 0, ist), "680"),
		testOrder("ORD123458", "Cafe Coffee Day", time.Date(2024, 1, 25, 10, 45, 0, 0, ist), "300"),
	}
}

func TestOpen_CreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "orders.db")
	s, err := Open(context.Background(), path, ist, nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer s.Close()

	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("database file not created: %v", err)
	}
	if s.Path() != path {
		t.Errorf("Path() = %q, want %q", s.Path(), path)
	}
}

func TestInit_Idempotent(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, filepath.Join(t.TempDir(), "orders.db"), ist, nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer s.Close()

	v, err := s.SchemaVersion(ctx)
	if err != nil {
		t.Fatalf("SchemaVersion() before Init error = %v", err)
	}
	if v != 0 {
		t.Errorf("SchemaVersion() before Init = %d, want 0", v)
	}

	for i := range 3 {
		if err := s.Init(ctx); err != nil {
			t.Fatalf("Init() call %d error = %v", i+1, err)
		}
	}

	v, err = s.SchemaVersion(ctx)
	if err != nil {
		t.Fatalf("SchemaVersion() error = %v", err)
	}
	if want := store.LatestVersion(s.migrations); v != want {
		t.Errorf("SchemaVersion() = %d, want %d", v, want)
	}
}

func TestUpsert_InsertThenUpdate(t *testing.T) {
	ctx := context.Background()
	first := time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)
	second := first.Add(time.Hour)
	clock := first
	s := newTestStore(t, WithClock(func() time.Time { return clock }))

	order := sampleOrders()[0]
	outcome, err := s.Upsert(ctx, order)
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if outcome != store.Inserted {
		t.Errorf("first Upsert() = %v, want inserted", outcome)
	}

	clock = second
	changed := *order
	changed.RestaurantName = "Dominos Pizza"
	changed.TotalAmount = decimal.RequireFromString("445.50")
	outcome, err = s.Upsert(ctx, &changed)
	if err != nil {
		t.Fatalf("second Upsert() error = %v", err)
	}
	if outcome != store.Updated {
		t.Errorf("second Upsert() = %v, want updated", outcome)
	}

	n, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Count() = %d, want 1", n)
	}

	got, err := s.Get(ctx, order.OrderID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.RestaurantName != "Dominos Pizza" {
		t.Errorf("RestaurantName = %q, want %q", got.RestaurantName, "Dominos Pizza")
	}
	if !got.TotalAmount.Equal(decimal.RequireFromString("445.50")) {
		t.Errorf("TotalAmount = %s, want 445.50", got.TotalAmount)
	}
	if !got.CreatedAt.Equal(first) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, first)
	}
	if !got.UpdatedAt.Equal(second) {
		t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, second)
	}
}

func TestUpsert_RoundTripsFields(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	order := sampleOrders()[0]
	order.DeliveryFee = decimal.RequireFromString("40")
	order.Discount = decimal.RequireFromString("50")
	order.DeliveryLocation = "123 Main Street, Mumbai"
	order.OrderItems = "Margherita Pizza x1; Garlic Bread x1"
	if _, err := s.Upsert(ctx, order); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	got, err := s.Get(ctx, order.OrderID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !got.Date.Equal(order.Date) {
		t.Errorf("Date = %v, want %v", got.Date, order.Date)
	}
	if _, off := got.Date.Zone(); off != 5*3600+1800 {
		t.Errorf("Date offset = %d, want IST", off)
	}
	if !got.EmailDate.Equal(order.EmailDate) {
		t.Errorf("EmailDate = %v, want %v", got.EmailDate, order.EmailDate)
	}
	for name, pair := range map[string][2]decimal.Decimal{
		"amount":       {got.Amount, order.Amount},
		"delivery_fee": {got.DeliveryFee, order.DeliveryFee},
		"discount":     {got.Discount, order.Discount},
		"total_amount": {got.TotalAmount, order.TotalAmount},
	} {
		if !pair[0].Equal(pair[1]) {
			t.Errorf("%s = %s, want %s", name, pair[0], pair[1])
		}
	}
	if got.DeliveryLocation != order.DeliveryLocation || got.OrderItems != order.OrderItems ||
		got.PaymentMethod != order.PaymentMethod || got.Source != order.Source ||
		got.RawEmailBody != order.RawEmailBody || got.Status != order.Status {
		t.Errorf("Get() = %+v, want text fields of %+v", got, order)
	}
}

func TestUpsert_ZeroEmailDate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	order := sampleOrders()[1]
	order.EmailDate = time.Time{}
	if _, err := s.Upsert(ctx, order); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	got, err := s.Get(ctx, order.OrderID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !got.EmailDate.IsZero() {
		t.Errorf("EmailDate = %v, want zero", got.EmailDate)
	}
}

func TestGet_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get(context.Background(), "NOPE1234")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestQueries_Ordering(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	for _, o := range sampleOrders() {
		if _, err := s.Upsert(ctx, o); err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}
	}

	all, err := s.All(ctx)
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	wantIDs := []string{"ORD123458", "ORD123457", "ORD123456"}
	if len(all) != len(wantIDs) {
		t.Fatalf("All() returned %d orders, want %d", len(all), len(wantIDs))
	}
	for i, id := range wantIDs {
		if all[i].OrderID != id {
			t.Errorf("All()[%d] = %s, want %s", i, all[i].OrderID, id)
		}
	}

	byName, err := s.ByRestaurant(ctx, "Biryani House")
	if err != nil {
		t.Fatalf("ByRestaurant() error = %v", err)
	}
	if len(byName) != 1 || byName[0].OrderID != "ORD123457" {
		t.Errorf("ByRestaurant() = %+v, want ORD123457", byName)
	}
}

func TestBetween_UsesLocalCalendar(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	// 00:30 IST on New Year's Day is still 31 December in UTC.
	newYear := testOrder("ORD900001", "Midnight Diner", time.Date(2024, 1, 1, 0, 30, 0, 0, ist), "250")
	lastYear := testOrder("ORD900002", "Midnight Diner", time.Date(2023, 12, 31, 23, 30, 0, 0, ist), "150")
	for _, o := range []*api.Order{newYear, lastYear} {
		if _, err := s.Upsert(ctx, o); err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}
	}

	got, err := store.OrdersByYear(ctx, s, 2024, ist)
	if err != nil {
		t.Fatalf("OrdersByYear() error = %v", err)
	}
	if len(got) != 1 || got[0].OrderID != "ORD900001" {
		t.Errorf("OrdersByYear(2024) = %+v, want only ORD900001", got)
	}

	got, err = store.OrdersByMonth(ctx, s, 2023, time.December, ist)
	if err != nil {
		t.Fatalf("OrdersByMonth() error = %v", err)
	}
	if len(got) != 1 || got[0].OrderID != "ORD900002" {
		t.Errorf("OrdersByMonth(2023-12) = %+v, want only ORD900002", got)
	}
}

func TestRuns(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	clock := start
	s := newTestStore(t, WithClock(func() time.Time { return clock }))

	if _, err := s.LastRun(ctx); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("LastRun() on empty store error = %v, want ErrNotFound", err)
	}

	run, err := s.StartRun(ctx, "/tmp/orders.mbox")
	if err != nil {
		t.Fatalf("StartRun() error = %v", err)
	}
	if _, err := s.LastRun(ctx); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("LastRun() with unfinished run error = %v, want ErrNotFound", err)
	}

	clock = start.Add(time.Minute)
	run.Inserted, run.Updated, run.Skipped, run.Failed = 3, 1, 2, 1
	run.NewestMessage = time.Date(2024, 1, 25, 5, 15, 0, 0, time.UTC)
	if err := s.FinishRun(ctx, run); err != nil {
		t.Fatalf("FinishRun() error = %v", err)
	}

	// A later unfinished run must not shadow the finished one.
	clock = start.Add(2 * time.Minute)
	if _, err := s.StartRun(ctx, "/tmp/other.mbox"); err != nil {
		t.Fatalf("StartRun() error = %v", err)
	}

	last, err := s.LastRun(ctx)
	if err != nil {
		t.Fatalf("LastRun() error = %v", err)
	}
	if last.ID != run.ID {
		t.Errorf("LastRun().ID = %s, want %s", last.ID, run.ID)
	}
	if last.Archive != "/tmp/orders.mbox" {
		t.Errorf("Archive = %q", last.Archive)
	}
	if last.Inserted != 3 || last.Updated != 1 || last.Skipped != 2 || last.Failed != 1 {
		t.Errorf("counts = %d/%d/%d/%d, want 3/1/2/1", last.Inserted, last.Updated, last.Skipped, last.Failed)
	}
	if !last.StartedAt.Equal(start) || !last.FinishedAt.Equal(start.Add(time.Minute)) {
		t.Errorf("StartedAt/FinishedAt = %v/%v", last.StartedAt, last.FinishedAt)
	}
	if !last.NewestMessage.Equal(run.NewestMessage) {
		t.Errorf("NewestMessage = %v, want %v", last.NewestMessage, run.NewestMessage)
	}
	if !last.Finished() {
		t.Error("Finished() = false, want true")
	}
	if last.Completed {
		t.Error("Completed = true for a run finished without it")
	}
	if _, err := s.LastCompletedRun(ctx); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("LastCompletedRun() with only an aborted run error = %v, want ErrNotFound", err)
	}

	clock = start.Add(3 * time.Minute)
	done, err := s.StartRun(ctx, "/tmp/orders.mbox")
	if err != nil {
		t.Fatalf("StartRun() error = %v", err)
	}
	done.Completed = true
	if err := s.FinishRun(ctx, done); err != nil {
		t.Fatalf("FinishRun() error = %v", err)
	}

	// An aborted run after the completed one shows up in LastRun only.
	clock = start.Add(4 * time.Minute)
	aborted, err := s.StartRun(ctx, "/tmp/orders.mbox")
	if err != nil {
		t.Fatalf("StartRun() error = %v", err)
	}
	if err := s.FinishRun(ctx, aborted); err != nil {
		t.Fatalf("FinishRun() error = %v", err)
	}

	if last, err := s.LastRun(ctx); err != nil || last.ID != aborted.ID {
		t.Errorf("LastRun() = %v, %v, want aborted run %s", last, err, aborted.ID)
	}
	completed, err := s.LastCompletedRun(ctx)
	if err != nil {
		t.Fatalf("LastCompletedRun() error = %v", err)
	}
	if completed.ID != done.ID || !completed.Completed {
		t.Errorf("LastCompletedRun() = %+v, want completed run %s", completed, done.ID)
	}
}

func TestRunQuery(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	orders := append(sampleOrders(),
		testOrder("ORD223344", "Dominoes Pizza", time.Date(2023, 11, 4, 20, 0, 0, 0, ist), "500"))
	for _, o := range orders {
		if _, err := s.Upsert(ctx, o); err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}
	}

	tests := []struct {
		name     string
		wantCols []string
		wantRows [][]string
	}{
		{
			name:     "monthly_spend",
			wantCols: []string{"month", "orders", "total_spend"},
			wantRows: [][]string{{"2023-11", "1", "500.00"}, {"2024-01", "3", "1420.00"}},
		},
		{
			name:     "orders_per_month",
			wantCols: []string{"month", "orders", "avg_order_value"},
			wantRows: [][]string{{"2023-11", "1", "500.00"}, {"2024-01", "3", "473.33"}},
		},
		{
			name:     "weekday_weekend_split",
			wantCols: []string{"day_type", "orders", "total_spend", "avg_order_value"},
			// 15 and 25 Jan 2024 are weekdays; 20 Jan 2024 and 4 Nov 2023 are Saturdays.
			wantRows: [][]string{{"weekday", "2", "740.00", "370.00"}, {"weekend", "2", "1180.00", "590.00"}},
		},
		{
			name:     "spend_per_restaurant",
			wantCols: []string{"restaurant_name", "orders", "total_spend", "avg_order_value", "first_order", "last_order"},
			wantRows: [][]string{
				{"Dominoes Pizza", "2", "940.00", "470.00", "2023-11-04", "2024-01-15"},
				{"Biryani House", "1", "680.00", "680.00", "2024-01-20", "2024-01-20"},
				{"Cafe Coffee Day", "1", "300.00", "300.00", "2024-01-25", "2024-01-25"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := s.RunQuery(ctx, tt.name)
			if err != nil {
				t.Fatalf("RunQuery() error = %v", err)
			}
			if len(res.Columns) != len(tt.wantCols) {
				t.Fatalf("Columns = %v, want %v", res.Columns, tt.wantCols)
			}
			for i := range tt.wantCols {
				if res.Columns[i] != tt.wantCols[i] {
					t.Errorf("Columns[%d] = %q, want %q", i, res.Columns[i], tt.wantCols[i])
				}
			}
			if len(res.Rows) != len(tt.wantRows) {
				t.Fatalf("Rows = %v, want %v", res.Rows, tt.wantRows)
			}
			for i := range tt.wantRows {
				for j := range tt.wantRows[i] {
					if res.Rows[i][j] != tt.wantRows[i][j] {
						t.Errorf("Rows[%d][%d] = %q, want %q", i, j, res.Rows[i][j], tt.wantRows[i][j])
					}
				}
			}
		})
	}
}

func TestRunQuery_AllNamedQueriesRun(t *testing.T) {
	s := newTestStore(t)
	for _, q := range store.Queries {
		if _, err := s.RunQuery(context.Background(), q.Name); err != nil {
			t.Errorf("RunQuery(%q) on empty store error = %v", q.Name, err)
		}
	}
}

func TestRunQuery_Unknown(t *testing.T) {
	s := newTestStore(t)
	_, err := s.RunQuery(context.Background(), "drop_everything")
	if !errors.Is(err, store.ErrUnknownQuery) {
		t.Errorf("RunQuery() error = %v, want ErrUnknownQuery", err)
	}
}
