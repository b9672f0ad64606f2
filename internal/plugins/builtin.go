package plugins

import (
	"fmt"

	"github.com/ArionMiles/foodspend/pkg/extractor"
	csvexporter "github.com/ArionMiles/foodspend/pkg/plugins/exporters/csv"
	jsonexporter "github.com/ArionMiles/foodspend/pkg/plugins/exporters/json"
	xlsxexporter "github.com/ArionMiles/foodspend/pkg/plugins/exporters/xlsx"
	"github.com/ArionMiles/foodspend/pkg/plugins/extractors/rules"
)

// NewDefault returns a registry with one extractor per rule, in rule order,
// and the built-in exporters.
func NewDefault(ruleSet []extractor.Rule) (*Registry, error) {
	r := NewRegistry()

	for _, rule := range ruleSet {
		if err := r.RegisterExtractor(rules.New(rule)); err != nil {
			return nil, fmt.Errorf("registering extractor: %w", err)
		}
	}

	for _, p := range []ExporterPlugin{&jsonexporter.Plugin{}, &csvexporter.Plugin{}, &xlsxexporter.Plugin{}} {
		if err := r.RegisterExporter(p); err != nil {
			return nil, fmt.Errorf("registering exporter: %w", err)
		}
	}

	return r, nil
}
