// Package csv provides a plugin wrapper for the CSV exporter.
package csv

import (
	"log/slog"

	"github.com/ArionMiles/foodspend/pkg/export"
	csvexport "github.com/ArionMiles/foodspend/pkg/export/csv"
)

// Plugin implements the ExporterPlugin interface for CSV files.
type Plugin struct{}

// Name returns the plugin name.
func (p *Plugin) Name() string {
	return "csv"
}

// Description returns a human-readable description.
func (p *Plugin) Description() string {
	return "Export one CSV row per order"
}

// Extensions returns the file extensions handled by this plugin.
func (p *Plugin) Extensions() []string {
	return []string{".csv"}
}

// NewExporter creates a new CSV exporter instance.
func (p *Plugin) NewExporter(logger *slog.Logger) (export.Exporter, error) {
	return csvexport.New(logger), nil
}
