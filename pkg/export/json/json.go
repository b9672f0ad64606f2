// Package json implements an Exporter that writes the whole document as indented JSON.
package json

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/ArionMiles/foodspend/pkg/export"
)

// Exporter writes export documents as JSON.
type Exporter struct {
	logger *slog.Logger
}

var _ export.Exporter = (*Exporter)(nil)

// New creates a new JSON exporter.
func New(logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{logger: logger}
}

// Name returns "json".
func (e *Exporter) Name() string { return "json" }

// Export writes doc to w.
func (e *Exporter) Export(w io.Writer, doc *export.Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("marshaling json: %w", err)
	}

	e.logger.Debug("wrote json document", "orders", len(doc.Orders))
	return nil
}

// Read decodes a document written by Export.
func Read(r io.Reader) (*export.Document, error) {
	var doc export.Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding json: %w", err)
	}
	return &doc, nil
}
