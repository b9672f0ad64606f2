package extractor

import (
	"github.com/ArionMiles/foodspend/pkg/api"
)

// Chain tries extractors in a fixed order.
type Chain []api.Extractor

// ClassifyAndExtract returns the order produced by the first extractor that
// both classifies and extracts msg. When none classifies it, the error is
// ErrNotRelevant. When some classified it but all failed, the first
// extraction error is returned.
func ClassifyAndExtract(msg *api.Message, extractors ...api.Extractor) (*api.Order, error) {
	var firstErr error
	for _, ex := range extractors {
		if !ex.Classify(msg) {
			continue
		}
		order, err := ex.Extract(msg)
		if err == nil {
			return order, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return nil, ErrNotRelevant
}

// ClassifyAndExtract runs the chain against msg.
func (c Chain) ClassifyAndExtract(msg *api.Message) (*api.Order, error) {
	return ClassifyAndExtract(msg, c...)
}

// Names lists extractor names in chain order.
func (c Chain) Names() []string {
	names := make([]string, 0, len(c))
	for _, ex := range c {
		names = append(names, ex.Name())
	}
	return names
}
