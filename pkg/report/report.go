// Package report renders analytics as terminal tables.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"

	"github.com/ArionMiles/foodspend/pkg/analytics"
	"github.com/ArionMiles/foodspend/pkg/api"
	"github.com/ArionMiles/foodspend/pkg/store"
)

const dateFormat = "02 Jan 2006"

// Renderer writes tables to w.
type Renderer struct {
	w     io.Writer
	money *Money
}

// New returns a Renderer formatting currency with money.
func New(w io.Writer, money *Money) *Renderer {
	return &Renderer{w: w, money: money}
}

func (r *Renderer) table(header []string, rows [][]string, footer []string) error {
	t := tablewriter.NewWriter(r.w)
	t.Header(cells(header)...)
	if err := t.Bulk(rows); err != nil {
		return fmt.Errorf("adding rows: %w", err)
	}
	if footer != nil {
		t.Footer(cells(footer)...)
	}
	if err := t.Render(); err != nil {
		return fmt.Errorf("rendering table: %w", err)
	}
	return nil
}

func cells(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// Summary renders the headline numbers.
func (r *Renderer) Summary(s analytics.Summary) error {
	if s.Orders == 0 {
		_, err := fmt.Fprintln(r.w, "No orders stored yet. Run 'foodspend ingest <archive>' first.")
		return err
	}

	rows := [][]string{
		{"Orders", r.money.Int(s.Orders)},
		{"Total spend", r.money.Format(s.TotalSpend)},
		{"Average order", r.money.Format(s.AverageOrder)},
		{"Delivery fees", r.money.Format(s.DeliveryFees)},
		{"Discounts", r.money.Format(s.Discounts)},
		{"Restaurants", r.money.Int(s.Restaurants)},
		{"First order", s.FirstOrder.Format(dateFormat)},
		{"Last order", s.LastOrder.Format(dateFormat)},
	}
	return r.table([]string{"Metric", "Value"}, rows, nil)
}

// Buckets renders per-period spend with a total footer. title names the
// period column, e.g. "Year" or "Month".
func (r *Renderer) Buckets(title string, buckets []analytics.Bucket) error {
	if len(buckets) == 0 {
		_, err := fmt.Fprintln(r.w, "No orders in this period.")
		return err
	}

	rows := make([][]string, 0, len(buckets))
	orders := 0
	spend := decimal.Zero
	for _, b := range buckets {
		label := b.Label
		if b.Month != 0 {
			label = time.Date(b.Year, time.Month(b.Month), 1, 0, 0, 0, 0, time.UTC).Format("Jan 2006")
		}
		rows = append(rows, []string{label, r.money.Int(b.Orders), r.money.Format(b.Spend), r.money.Format(b.Average)})
		orders += b.Orders
		spend = spend.Add(b.Spend)
	}

	avg := decimal.Zero
	if orders > 0 {
		avg = spend.Div(decimal.NewFromInt(int64(orders))).Round(2)
	}
	footer := []string{"Total", r.money.Int(orders), r.money.Format(spend), r.money.Format(avg)}
	return r.table([]string{title, "Orders", "Spend", "Average"}, rows, footer)
}

// Restaurants renders a restaurant ranking.
func (r *Renderer) Restaurants(stats []analytics.RestaurantStat) error {
	if len(stats) == 0 {
		_, err := fmt.Fprintln(r.w, "No orders stored yet.")
		return err
	}

	rows := make([][]string, 0, len(stats))
	for i, s := range stats {
		rows = append(rows, []string{
			fmt.Sprintf("%d", i+1),
			s.Name,
			r.money.Int(s.Orders),
			r.money.Format(s.Spend),
			r.money.Format(s.Average),
			s.Share.StringFixed(2) + "%",
			s.LastOrder.Format(dateFormat),
		})
	}
	return r.table([]string{"#", "Restaurant", "Orders", "Spend", "Average", "Share", "Last order"}, rows, nil)
}

// Orders lists individual orders with a total footer.
func (r *Renderer) Orders(orders []api.Order) error {
	if len(orders) == 0 {
		_, err := fmt.Fprintln(r.w, "No matching orders.")
		return err
	}

	rows := make([][]string, 0, len(orders))
	spend := decimal.Zero
	for _, o := range orders {
		rows = append(rows, []string{
			o.Date.Format(dateFormat),
			o.OrderID,
			o.RestaurantName,
			o.Status,
			r.money.Format(o.TotalAmount),
		})
		spend = spend.Add(o.TotalAmount)
	}
	footer := []string{"Total", r.money.Int(len(orders)) + " orders", "", "", r.money.Format(spend)}
	return r.table([]string{"Date", "Order ID", "Restaurant", "Status", "Total"}, rows, footer)
}

// Split renders the weekday and weekend comparison.
func (r *Renderer) Split(s analytics.DaySplit) error {
	rows := [][]string{
		{"Weekday", r.money.Int(s.Weekday.Orders), r.money.Format(s.Weekday.Spend), r.money.Format(s.Weekday.Average)},
		{"Weekend", r.money.Int(s.Weekend.Orders), r.money.Format(s.Weekend.Spend), r.money.Format(s.Weekend.Average)},
	}
	return r.table([]string{"Days", "Orders", "Spend", "Average"}, rows, nil)
}

// Query renders an ad hoc query result as is.
func (r *Renderer) Query(res *store.Result) error {
	if len(res.Rows) == 0 {
		_, err := fmt.Fprintln(r.w, "(no rows)")
		return err
	}
	return r.table(res.Columns, res.Rows, nil)
}

// Queries lists the available ad hoc queries.
func (r *Renderer) Queries(queries []store.QueryInfo) error {
	rows := make([][]string, 0, len(queries))
	for _, q := range queries {
		rows = append(rows, []string{q.Name, q.Description})
	}
	return r.table([]string{"Query", "Description"}, rows, nil)
}

// Status describes the database and the last ingest run.
type Status struct {
	Database      string
	SchemaVersion int
	Orders        int
	LastRun       *store.Run
}

// Status renders store health.
func (r *Renderer) Status(s Status) error {
	rows := [][]string{
		{"Database", s.Database},
		{"Schema version", fmt.Sprintf("%d", s.SchemaVersion)},
		{"Orders", r.money.Int(s.Orders)},
	}
	if run := s.LastRun; run != nil {
		rows = append(rows,
			[]string{"Last ingest", run.FinishedAt.Local().Format(time.DateTime)},
			[]string{"Archive", run.Archive},
			[]string{"Result", fmt.Sprintf("%d inserted, %d updated, %d skipped, %d failed",
				run.Inserted, run.Updated, run.Skipped, run.Failed)},
		)
		if !run.Completed {
			rows = append(rows, []string{"Completed", "no"})
		}
		if !run.NewestMessage.IsZero() {
			rows = append(rows, []string{"Newest email", run.NewestMessage.Local().Format(time.DateTime)})
		}
	} else {
		rows = append(rows, []string{"Last ingest", "never"})
	}
	return r.table([]string{"Field", "Value"}, rows, nil)
}
