// Package csv implements an Exporter that writes one CSV row per order.
package csv

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/ArionMiles/foodspend/pkg/export"
)

// Header is the first CSV record.
var Header = []string{
	"order_id", "order_date", "restaurant_name",
	"amount", "delivery_fee", "discount", "total_amount",
	"status", "payment_method", "delivery_location", "order_items",
	"source", "email_date",
}

// Exporter writes order rows. Aggregates are not representable in a
// single CSV table and are left out.
type Exporter struct {
	logger *slog.Logger
}

var _ export.Exporter = (*Exporter)(nil)

// New creates a new CSV exporter.
func New(logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{logger: logger}
}

// Name returns "csv".
func (e *Exporter) Name() string { return "csv" }

// Export writes the header and one record per order.
func (e *Exporter) Export(w io.Writer, doc *export.Document) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}

	for _, o := range doc.Orders {
		emailDate := ""
		if !o.EmailDate.IsZero() {
			emailDate = o.EmailDate.Format(time.RFC3339)
		}
		record := []string{
			o.OrderID,
			o.Date.Format(time.RFC3339),
			o.RestaurantName,
			o.Amount.StringFixed(2),
			o.DeliveryFee.StringFixed(2),
			o.Discount.StringFixed(2),
			o.TotalAmount.StringFixed(2),
			o.Status,
			o.PaymentMethod,
			o.DeliveryLocation,
			o.OrderItems,
			o.Source,
			emailDate,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("writing csv record %s: %w", o.OrderID, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flushing csv: %w", err)
	}

	e.logger.Debug("wrote orders to csv", "count", len(doc.Orders))
	return nil
}
