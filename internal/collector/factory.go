package collector

import (
	"fmt"

	"github.com/qepting91/wb-harvester/internal/domain"
)

// NewCollector selects the correct implementation based on the mode
func NewCollector(mode string, opts Options) (domain.Collector, error) {
	switch mode {
	case "", "live":
		if opts.CatalogURL == "" || opts.ListingURL == "" || opts.KeywordsURL == "" {
			return nil, fmt.Errorf("live mode requires catalog, listing and keyword URLs")
		}
		return NewHTTPCollector(opts), nil
	case "mock":
		return NewMockCollector(), nil
	default:
		return nil, fmt.Errorf("unknown COLLECTOR_MODE: %s (use 'live' or 'mock')", mode)
	}
}
