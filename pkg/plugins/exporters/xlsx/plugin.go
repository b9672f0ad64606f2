// Package xlsx provides a plugin wrapper for the XLSX exporter.
package xlsx

import (
	"log/slog"

	"github.com/ArionMiles/foodspend/pkg/export"
	xlsxexport "github.com/ArionMiles/foodspend/pkg/export/xlsx"
)

// Plugin implements the ExporterPlugin interface for XLSX files.
type Plugin struct{}

// Name returns the plugin name.
func (p *Plugin) Name() string {
	return "xlsx"
}

// Description returns a human-readable description.
func (p *Plugin) Description() string {
	return "Export orders and aggregates as an Excel workbook"
}

// Extensions returns the file extensions handled by this plugin.
func (p *Plugin) Extensions() []string {
	return []string{".xlsx"}
}

// NewExporter creates a new XLSX exporter instance.
func (p *Plugin) NewExporter(logger *slog.Logger) (export.Exporter, error) {
	return xlsxexport.New(logger), nil
}
