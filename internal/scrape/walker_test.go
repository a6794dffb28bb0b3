package scrape

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "dealscout/pkg/errors"
	"dealscout/services/cache"
)

type stubExtractor struct {
	name    string
	calls   int
	records []RawProduct
}

func (s *stubExtractor) Extract(html, baseURL string) []RawProduct {
	s.calls++
	return s.records
}

func (s *stubExtractor) Name() string { return s.name }

// listingPage renders a minimal page with one JSON-LD product and anchors to
// the given successor URLs
func listingPage(product string, links ...string) string {
	page := fmt.Sprintf(`<html><head><script type="application/ld+json">
	{"@type": "Product", "name": "%s", "url": "https://shop.example.com/p/%s", "offers": {"price": 10}}
	</script></head><body>`, product, product)
	for _, link := range links {
		page += fmt.Sprintf(`<a href="%s">next</a>`, link)
	}
	return page + "</body></html>"
}

func TestWalkerStopsAtPageCap(t *testing.T) {
	fetches := 0
	fetch := func(ctx context.Context, pageURL string) (string, error) {
		fetches++
		next := fmt.Sprintf("https://shop.example.com/sale?page=%d", fetches+1)
		return listingPage(fmt.Sprintf("item-%d", fetches), next), nil
	}

	w := NewWalker(fetch, nil, WalkerConfig{MaxPages: 5})
	results := w.CrawlListing(context.Background(), "https://shop.example.com/sale?page=1")

	// Pagination never runs out, the cap ends the crawl
	assert.Equal(t, 5, fetches)
	assert.Len(t, results, 5)
}

func TestWalkerSurvivesFailedPages(t *testing.T) {
	pages := map[string]string{
		"https://shop.example.com/sale?page=1": listingPage("first",
			"https://shop.example.com/sale?page=2", "https://shop.example.com/sale?page=3"),
		"https://shop.example.com/sale?page=3": listingPage("third"),
	}
	fetch := func(ctx context.Context, pageURL string) (string, error) {
		page, ok := pages[pageURL]
		if !ok {
			return "", apperrors.NewHTTP(500, pageURL)
		}
		return page, nil
	}

	w := NewWalker(fetch, nil, WalkerConfig{MaxPages: 5})
	results := w.CrawlListing(context.Background(), "https://shop.example.com/sale?page=1")

	require.Len(t, results, 2)
	assert.Equal(t, "first", results[0].Name)
	assert.Equal(t, "third", results[1].Name)
}

func TestWalkerHeuristicOnlyOnThinResults(t *testing.T) {
	fetch := func(ctx context.Context, pageURL string) (string, error) {
		return `<html><body><a href="https://shop.example.com/sale?page=next">next</a></body></html>`, nil
	}

	rich := make([]RawProduct, 10)
	for i := range rich {
		rich[i] = RawProduct{Name: fmt.Sprintf("p%d", i), URL: "https://shop.example.com/p"}
	}

	tests := []struct {
		name           string
		structured     []RawProduct
		heuristicCalls int
	}{
		{"rich structured data", rich, 0},
		{"sparse structured data", rich[:2], 2},
		{"no structured data", nil, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			structured := &stubExtractor{name: "structured", records: tt.structured}
			heuristic := &stubExtractor{name: "heuristic"}

			w := NewWalker(fetch, nil, WalkerConfig{MaxPages: 2})
			w.structured = structured
			w.heuristic = heuristic
			w.CrawlListing(context.Background(), "https://shop.example.com/sale")

			assert.Equal(t, 2, structured.calls)
			assert.Equal(t, tt.heuristicCalls, heuristic.calls)
		})
	}
}

func TestWalkerBlocksRateLimitedHost(t *testing.T) {
	cacheSvc := cache.NewMemoryService()
	fetch := func(ctx context.Context, pageURL string) (string, error) {
		return "", apperrors.NewRateLimit(pageURL, "60")
	}

	w := NewWalker(fetch, cacheSvc, WalkerConfig{MaxPages: 3, HostBlockTime: time.Minute})
	results := w.CrawlListing(context.Background(), "https://shop.example.com/sale")

	assert.Empty(t, results)
	value, err := cacheSvc.Get("shop.example.com_rate_limited")
	require.NoError(t, err)
	assert.Equal(t, "blocked", string(value))
}

func TestWalkerSkipsBlockedHost(t *testing.T) {
	cacheSvc := cache.NewMemoryService()
	require.NoError(t, cacheSvc.Set("shop.example.com_rate_limited", []byte("blocked"), time.Minute))

	fetches := 0
	fetch := func(ctx context.Context, pageURL string) (string, error) {
		fetches++
		return listingPage("unreachable"), nil
	}

	w := NewWalker(fetch, cacheSvc, WalkerConfig{MaxPages: 3, HostBlockTime: time.Minute})
	results := w.CrawlListing(context.Background(), "https://shop.example.com/sale")

	assert.Empty(t, results)
	assert.Zero(t, fetches)
}

func TestWalkerStaysOnSeedHost(t *testing.T) {
	fetches := 0
	fetch := func(ctx context.Context, pageURL string) (string, error) {
		fetches++
		return `<html><body>
			<a href="https://elsewhere.example.org/sale?page=2">offsite</a>
			<a href="https://shop.example.com/sale">self</a>
		</body></html>`, nil
	}

	w := NewWalker(fetch, nil, WalkerConfig{MaxPages: 5})
	w.CrawlListing(context.Background(), "https://shop.example.com/sale")

	// The offsite link is dropped and the self link is already visited
	assert.Equal(t, 1, fetches)
}

func TestWalkerHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fetches := 0
	fetch := func(c context.Context, pageURL string) (string, error) {
		fetches++
		cancel()
		next := fmt.Sprintf("https://shop.example.com/sale?page=%d", fetches+1)
		return listingPage("item", next), nil
	}

	w := NewWalker(fetch, nil, WalkerConfig{MaxPages: 5})
	w.CrawlListing(ctx, "https://shop.example.com/sale?page=1")

	assert.Equal(t, 1, fetches)
}

func TestFrontier(t *testing.T) {
	f := NewFrontier("a")
	f.Enqueue("b")
	f.Enqueue("a")
	f.Enqueue("")

	first, ok := f.Next()
	require.True(t, ok)
	assert.Equal(t, "a", first)
	f.MarkVisited(first)

	second, ok := f.Next()
	require.True(t, ok)
	assert.Equal(t, "b", second)
	f.MarkVisited(second)

	// The duplicate "a" and the empty entry are skipped
	_, ok = f.Next()
	assert.False(t, ok)
	assert.Equal(t, 2, f.VisitedCount())
	assert.Zero(t, f.Pending())
}
