package scrape

import "context"

// Source identifies which extraction strategy produced a record
type Source string

const (
	// SourceStructured marks records recovered from embedded structured data
	SourceStructured Source = "structured"
	// SourceHeuristic marks records recovered by DOM heuristics
	SourceHeuristic Source = "heuristic"
)

// RawProduct is one offer found on a page. Price fields are nil when unknown;
// zero is a valid (if suspicious) price and must not be confused with absent.
type RawProduct struct {
	Name         string
	Brand        string
	URL          string
	Image        string
	Currency     string
	ListPrice    *float64
	SalePrice    *float64
	Availability string
	Source       Source
}

// Extractor turns page HTML into candidate product records
type Extractor interface {
	// Extract parses html and returns every offer it can recover. URLs are
	// resolved against baseURL.
	Extract(html, baseURL string) []RawProduct

	// Name returns the strategy name for logging
	Name() string
}

// FetchFunc retrieves a URL and returns its body as text. The walker and the
// sitemap discoverer take fetching as a function so tests can inject pages.
type FetchFunc func(ctx context.Context, url string) (string, error)

// Float returns a pointer to v; convenient for optional price fields
func Float(v float64) *float64 {
	return &v
}
