// Package xlsx implements an Exporter that writes an Excel workbook with one
// sheet per document section.
package xlsx

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/ArionMiles/foodspend/pkg/analytics"
	"github.com/ArionMiles/foodspend/pkg/export"
)

// Sheet names, in workbook order.
const (
	SheetSummary     = "Summary"
	SheetYears       = "Year-wise"
	SheetMonths      = "Month-wise"
	SheetRestaurants = "Restaurants"
	SheetWeekdays    = "Weekday split"
	SheetOrders      = "Orders"
)

const dateTime = "2006-01-02 15:04"

// Exporter writes workbooks.
type Exporter struct {
	logger *slog.Logger
}

var _ export.Exporter = (*Exporter)(nil)

// New creates a new XLSX exporter.
func New(logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{logger: logger}
}

// Name returns "xlsx".
func (e *Exporter) Name() string { return "xlsx" }

// Export writes doc as a workbook to w.
func (e *Exporter) Export(w io.Writer, doc *export.Document) error {
	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			e.logger.Warn("closing workbook", "error", err)
		}
	}()

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("creating header style: %w", err)
	}

	sheets := []struct {
		name string
		rows [][]any
	}{
		{SheetSummary, summaryRows(doc)},
		{SheetYears, bucketRows("Year", doc.YearWise)},
		{SheetMonths, bucketRows("Month", doc.MonthWise)},
		{SheetRestaurants, restaurantRows(doc.TopRestaurants)},
		{SheetWeekdays, bucketRows("Days", []analytics.Bucket{doc.WeekdaySplit.Weekday, doc.WeekdaySplit.Weekend})},
		{SheetOrders, orderRows(doc)},
	}

	for i, s := range sheets {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", s.name); err != nil {
				return fmt.Errorf("naming sheet %s: %w", s.name, err)
			}
		} else if _, err := f.NewSheet(s.name); err != nil {
			return fmt.Errorf("creating sheet %s: %w", s.name, err)
		}

		for r, row := range s.rows {
			cell, err := excelize.CoordinatesToCellName(1, r+1)
			if err != nil {
				return err
			}
			if err := f.SetSheetRow(s.name, cell, &row); err != nil {
				return fmt.Errorf("writing %s row %d: %w", s.name, r+1, err)
			}
		}
		if err := f.SetRowStyle(s.name, 1, 1, bold); err != nil {
			return fmt.Errorf("styling %s header: %w", s.name, err)
		}
	}
	f.SetActiveSheet(0)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}

	e.logger.Debug("wrote xlsx workbook", "orders", len(doc.Orders))
	return nil
}

func summaryRows(doc *export.Document) [][]any {
	s := doc.Summary
	rows := [][]any{
		{"Metric", "Value"},
		{"Orders", s.Orders},
		{"Total spend", s.TotalSpend.InexactFloat64()},
		{"Average order", s.AverageOrder.InexactFloat64()},
		{"Delivery fees", s.DeliveryFees.InexactFloat64()},
		{"Discounts", s.Discounts.InexactFloat64()},
		{"Restaurants", s.Restaurants},
		{"Generated at", doc.GeneratedAt.Format(dateTime)},
		{"Timezone", doc.Timezone},
	}
	if s.Orders > 0 {
		rows = append(rows,
			[]any{"First order", s.FirstOrder.Format(dateTime)},
			[]any{"Last order", s.LastOrder.Format(dateTime)},
		)
	}
	return rows
}

func bucketRows(title string, buckets []analytics.Bucket) [][]any {
	rows := [][]any{{title, "Orders", "Spend", "Average"}}
	for _, b := range buckets {
		rows = append(rows, []any{b.Label, b.Orders, b.Spend.InexactFloat64(), b.Average.InexactFloat64()})
	}
	return rows
}

func restaurantRows(stats []analytics.RestaurantStat) [][]any {
	rows := [][]any{{"Restaurant", "Orders", "Spend", "Average", "Share %", "First order", "Last order"}}
	for _, s := range stats {
		rows = append(rows, []any{
			s.Name, s.Orders, s.Spend.InexactFloat64(), s.Average.InexactFloat64(), s.Share.InexactFloat64(),
			s.FirstOrder.Format(time.DateOnly), s.LastOrder.Format(time.DateOnly),
		})
	}
	return rows
}

func orderRows(doc *export.Document) [][]any {
	rows := [][]any{{
		"Order ID", "Date", "Restaurant", "Amount", "Delivery fee", "Discount", "Total",
		"Status", "Payment method", "Delivery location", "Items", "Source",
	}}
	for _, o := range doc.Orders {
		rows = append(rows, []any{
			o.OrderID, o.Date.Format(dateTime), o.RestaurantName,
			o.Amount.InexactFloat64(), o.DeliveryFee.InexactFloat64(), o.Discount.InexactFloat64(), o.TotalAmount.InexactFloat64(),
			o.Status, o.PaymentMethod, o.DeliveryLocation, o.OrderItems, o.Source,
		})
	}
	return rows
}
