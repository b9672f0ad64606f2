// Package rules provides a plugin wrapper for rule-driven receipt extractors.
package rules

import (
	"log/slog"
	"time"

	"github.com/ArionMiles/foodspend/pkg/api"
	"github.com/ArionMiles/foodspend/pkg/extractor"
)

// Plugin implements the ExtractorPlugin interface for one extraction rule.
type Plugin struct {
	rule extractor.Rule
}

// New wraps rule.
func New(rule extractor.Rule) *Plugin {
	return &Plugin{rule: rule}
}

// Name returns the rule name.
func (p *Plugin) Name() string {
	return p.rule.Name
}

// Description returns a human-readable description.
func (p *Plugin) Description() string {
	return "Extract " + p.rule.Name + " order receipts"
}

// Enabled reports the rule's enabled flag.
func (p *Plugin) Enabled() bool {
	return p.rule.Enabled
}

// NewExtractor creates a new extractor instance.
func (p *Plugin) NewExtractor(loc *time.Location, logger *slog.Logger) (api.Extractor, error) {
	return extractor.New(p.rule, loc, logger), nil
}
