// Package plugins provides a plugin registry for extractors and exporters.
package plugins

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/ArionMiles/foodspend/pkg/api"
	"github.com/ArionMiles/foodspend/pkg/export"
	"github.com/ArionMiles/foodspend/pkg/extractor"
)

// ExtractorPlugin defines the interface for receipt extractor plugins.
type ExtractorPlugin interface {
	// Name returns the plugin name (e.g., "zomato", "swiggy").
	Name() string
	// Description returns a human-readable description.
	Description() string
	// Enabled reports whether the plugin joins the default chain.
	Enabled() bool
	// NewExtractor creates an extractor that reads email dates in loc.
	NewExtractor(loc *time.Location, logger *slog.Logger) (api.Extractor, error)
}

// ExporterPlugin defines the interface for export format plugins.
type ExporterPlugin interface {
	// Name returns the plugin name (e.g., "json", "csv", "xlsx").
	Name() string
	// Description returns a human-readable description.
	Description() string
	// Extensions returns the file extensions that select this format.
	Extensions() []string
	// NewExporter creates a new exporter instance.
	NewExporter(logger *slog.Logger) (export.Exporter, error)
}

// Registry manages available extractor and exporter plugins. Listing
// preserves registration order, which is also the default chain order.
type Registry struct {
	extractors     map[string]ExtractorPlugin
	extractorOrder []string
	exporters      map[string]ExporterPlugin
	exporterOrder  []string
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		extractors: make(map[string]ExtractorPlugin),
		exporters:  make(map[string]ExporterPlugin),
	}
}

// RegisterExtractor registers an extractor plugin.
func (r *Registry) RegisterExtractor(plugin ExtractorPlugin) error {
	name := plugin.Name()
	if _, exists := r.extractors[name]; exists {
		return fmt.Errorf("extractor plugin %q already registered", name)
	}
	r.extractors[name] = plugin
	r.extractorOrder = append(r.extractorOrder, name)
	return nil
}

// RegisterExporter registers an exporter plugin.
func (r *Registry) RegisterExporter(plugin ExporterPlugin) error {
	name := plugin.Name()
	if _, exists := r.exporters[name]; exists {
		return fmt.Errorf("exporter plugin %q already registered", name)
	}
	r.exporters[name] = plugin
	r.exporterOrder = append(r.exporterOrder, name)
	return nil
}

// GetExtractor returns an extractor plugin by name.
func (r *Registry) GetExtractor(name string) (ExtractorPlugin, error) {
	plugin, exists := r.extractors[name]
	if !exists {
		return nil, fmt.Errorf("extractor plugin %q not found", name)
	}
	return plugin, nil
}

// GetExporter returns an exporter plugin by name.
func (r *Registry) GetExporter(name string) (ExporterPlugin, error) {
	plugin, exists := r.exporters[name]
	if !exists {
		return nil, fmt.Errorf("exporter plugin %q not found", name)
	}
	return plugin, nil
}

// ListExtractors returns all registered extractor plugins in registration order.
func (r *Registry) ListExtractors() []ExtractorPlugin {
	plugins := make([]ExtractorPlugin, 0, len(r.extractorOrder))
	for _, name := range r.extractorOrder {
		plugins = append(plugins, r.extractors[name])
	}
	return plugins
}

// ListExporters returns all registered exporter plugins in registration order.
func (r *Registry) ListExporters() []ExporterPlugin {
	plugins := make([]ExporterPlugin, 0, len(r.exporterOrder))
	for _, name := range r.exporterOrder {
		plugins = append(plugins, r.exporters[name])
	}
	return plugins
}

// CreateChain builds the extractor chain for names, tried in the given
// order. An empty list selects every enabled plugin in registration order.
func (r *Registry) CreateChain(names []string, loc *time.Location, logger *slog.Logger) (extractor.Chain, error) {
	var plugins []ExtractorPlugin
	if len(names) == 0 {
		for _, p := range r.ListExtractors() {
			if p.Enabled() {
				plugins = append(plugins, p)
			}
		}
	} else {
		seen := make(map[string]bool, len(names))
		for _, name := range names {
			if seen[name] {
				return nil, fmt.Errorf("extractor %q listed twice", name)
			}
			seen[name] = true
			p, err := r.GetExtractor(name)
			if err != nil {
				return nil, err
			}
			plugins = append(plugins, p)
		}
	}

	if len(plugins) == 0 {
		return nil, fmt.Errorf("no extractors enabled")
	}

	chain := make(extractor.Chain, 0, len(plugins))
	for _, p := range plugins {
		ex, err := p.NewExtractor(loc, logger)
		if err != nil {
			return nil, fmt.Errorf("creating extractor %q: %w", p.Name(), err)
		}
		chain = append(chain, ex)
	}
	return chain, nil
}

// CreateExporter creates an exporter instance from a plugin.
func (r *Registry) CreateExporter(name string, logger *slog.Logger) (export.Exporter, error) {
	plugin, err := r.GetExporter(name)
	if err != nil {
		return nil, err
	}
	return plugin.NewExporter(logger)
}

// ExporterFor picks an export format: explicit wins, then the output file's
// extension, then json.
func (r *Registry) ExporterFor(path, explicit string) (ExporterPlugin, error) {
	if explicit != "" {
		return r.GetExporter(strings.ToLower(explicit))
	}

	ext := strings.ToLower(filepath.Ext(path))
	for _, p := range r.ListExporters() {
		if slices.Contains(p.Extensions(), ext) {
			return p, nil
		}
	}
	return r.GetExporter("json")
}
