package main

import (
	"compress/gzip"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dealscout/config"
	"dealscout/helpers"
	"dealscout/internal/output"
	"dealscout/services/cache"
	"dealscout/services/pipeline"
)

const listingPageOne = `<!DOCTYPE html>
<html>
<head>
    <link rel="next" href="/sale?page=2">
    <script type="application/ld+json">
    {
        "@type": "ItemList",
        "itemListElement": [
            {"@type": "Product", "name": "Summit Tent", "url": "%s/products/summit-tent",
             "brand": "Granite",
             "offers": {"priceCurrency": "USD", "priceSpecification": {"price": 300}, "lowPrice": 180}},
            {"@type": "Product", "name": "Basic Mug", "url": "%s/products/basic-mug",
             "offers": {"priceCurrency": "USD", "price": 12}}
        ]
    }
    </script>
</head>
<body><a href="/sale?page=2">Next</a></body>
</html>`

const listingPageTwo = `<!DOCTYPE html>
<html>
<body>
    <div class="product-card">
        <a href="/products/trail-runner-5"><h3>Trail Runner 5</h3></a>
        <span class="price">$49.99</span>
        <span class="price price--compare">$89.99</span>
    </div>
</body>
</html>`

// Drives a crawl through the real transport and pipeline against a local
// server, then checks the tables on disk.
func TestScrapeEndToEnd(t *testing.T) {
	mux := http.NewServeMux()
	var server *httptest.Server
	mux.HandleFunc("/sale", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			// Page two arrives gzip-encoded to exercise manual decompression
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.Header().Set("Content-Encoding", "gzip")
			gz := gzip.NewWriter(w)
			gz.Write([]byte(listingPageTwo))
			gz.Close()
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, listingPageOne, server.URL, server.URL)
	})
	server = httptest.NewServer(mux)
	defer server.Close()

	dir := t.TempDir()
	seedsFile := filepath.Join(dir, "seeds.txt")
	require.NoError(t, os.WriteFile(seedsFile, []byte(server.URL+"/sale\n"), 0644))

	cfg := config.Config{
		MinDiscount:       0.30,
		MaxPagesPerDomain: 5,
		Concurrency:       2,
		SeedsFile:         seedsFile,
		SitemapsFile:      filepath.Join(dir, "sitemaps.txt"),
		OutputDir:         filepath.Join(dir, "out"),
	}

	fetcher := helpers.NewFetcher(helpers.FetcherOptions{
		UserAgent: "integration-test",
		Timeout:   5 * time.Second,
	})

	res, err := pipeline.New(cfg, fetcher.Fetch, cache.NewMemoryService(), nil).Run(context.Background())
	require.NoError(t, err)

	names := make(map[string]float64)
	for _, row := range res.AllProducts {
		names[row.Name] = row.DiscountPct
	}
	require.Len(t, names, 3)
	assert.Equal(t, 0.4, names["Summit Tent"])
	assert.Equal(t, 0.0, names["Basic Mug"])
	assert.Equal(t, 0.4445, names["Trail Runner 5"])

	// The flat-priced product stays out of the deals table
	dealNames := make([]string, 0, len(res.Deals))
	for _, deal := range res.Deals {
		dealNames = append(dealNames, deal.Name)
	}
	assert.ElementsMatch(t, []string{"Summit Tent", "Trail Runner 5"}, dealNames)

	deals, err := output.ReadTable(filepath.Join(cfg.OutputDir, output.DealsFile))
	require.NoError(t, err)
	assert.Len(t, deals, 2)
	all, err := output.ReadTable(filepath.Join(cfg.OutputDir, output.AllProductsFile))
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Equal(t, "127.0.0.1", all[0].Merchant)
}

// A rate-limited host gets blocked for subsequent pages of the run
func TestScrapeEndToEndRateLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "60")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	dir := t.TempDir()
	seedsFile := filepath.Join(dir, "seeds.txt")
	require.NoError(t, os.WriteFile(seedsFile, []byte(server.URL+"/sale\n"), 0644))

	cfg := config.Config{
		MinDiscount:       0.30,
		MaxPagesPerDomain: 5,
		Concurrency:       2,
		SeedsFile:         seedsFile,
		OutputDir:         filepath.Join(dir, "out"),
		HostBlockTime:     time.Minute,
	}

	fetcher := helpers.NewFetcher(helpers.FetcherOptions{
		UserAgent: "integration-test",
		Timeout:   5 * time.Second,
	})
	cacheSvc := cache.NewMemoryService()

	res, err := pipeline.New(cfg, fetcher.Fetch, cacheSvc, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.AllProducts)

	_, err = cacheSvc.Get("127.0.0.1_rate_limited")
	assert.NoError(t, err)
}
