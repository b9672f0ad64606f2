// Package json provides a plugin wrapper for the JSON exporter.
package json

import (
	"log/slog"

	"github.com/ArionMiles/foodspend/pkg/export"
	jsonexport "github.com/ArionMiles/foodspend/pkg/export/json"
)

// Plugin implements the ExporterPlugin interface for JSON files.
type Plugin struct{}

// Name returns the plugin name.
func (p *Plugin) Name() string {
	return "json"
}

// Description returns a human-readable description.
func (p *Plugin) Description() string {
	return "Export orders and aggregates as a JSON document"
}

// Extensions returns the file extensions handled by this plugin.
func (p *Plugin) Extensions() []string {
	return []string{".json"}
}

// NewExporter creates a new JSON exporter instance.
func (p *Plugin) NewExporter(logger *slog.Logger) (export.Exporter, error) {
	return jsonexport.New(logger), nil
}
