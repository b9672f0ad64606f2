// Package export builds the full dataset document and writes it to files.
// Concrete formats live in the json, csv and xlsx subpackages.
package export

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ArionMiles/foodspend/pkg/analytics"
	"github.com/ArionMiles/foodspend/pkg/api"
)

// TopRestaurants caps the restaurant ranking in a Document.
const TopRestaurants = 100

// Document is everything an export contains.
type Document struct {
	GeneratedAt    time.Time                  `json:"generated_at"`
	Timezone       string                     `json:"timezone"`
	Summary        analytics.Summary          `json:"summary"`
	YearWise       []analytics.Bucket         `json:"year_wise"`
	MonthWise      []analytics.Bucket         `json:"month_wise"`
	TopRestaurants []analytics.RestaurantStat `json:"top_restaurants"`
	WeekdaySplit   analytics.DaySplit         `json:"weekday_split"`
	Orders         []api.Order                `json:"orders"`
}

// Build computes a Document from orders. Raw email bodies are left out.
func Build(orders []api.Order, loc *time.Location, now time.Time) *Document {
	out := make([]api.Order, len(orders))
	for i, o := range orders {
		o.RawEmailBody = ""
		out[i] = o
	}

	return &Document{
		GeneratedAt:    now,
		Timezone:       loc.String(),
		Summary:        analytics.Summarize(orders, loc),
		YearWise:       nonNil(analytics.ByYear(orders, loc)),
		MonthWise:      nonNil(analytics.ByMonthAll(orders, loc)),
		TopRestaurants: nonNil(analytics.ByRestaurant(orders, TopRestaurants, analytics.RankBySpend, loc)),
		WeekdaySplit:   analytics.WeekdaySplit(orders, loc),
		Orders:         out,
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// Exporter writes a Document in one format.
type Exporter interface {
	Name() string
	Export(w io.Writer, doc *Document) error
}

// WriteFile exports doc to path, creating parent directories.
func WriteFile(path string, exp Exporter, doc *Document, logger *slog.Logger) (err error) {
	if logger == nil {
		logger = slog.Default()
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("closing %s: %w", path, closeErr)
		}
	}()

	if err := exp.Export(f, doc); err != nil {
		return fmt.Errorf("exporting %s: %w", exp.Name(), err)
	}

	logger.Info("export written", "file", path, "format", exp.Name(), "orders", len(doc.Orders))
	return nil
}
