package scrape

import (
	"context"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/xmlquery"

	"dealscout/logger"
)

// maxIndexChildren bounds how many child sitemaps of an index are expanded
const maxIndexChildren = 200

// wellKnownSitemapPaths are probed per origin
var wellKnownSitemapPaths = []string{
	"/sitemap.xml",
	"/sitemap_index.xml",
	"/sitemap-index.xml",
	"/siteindex.xml",
	"/robots.txt",
}

var productPathRe = regexp.MustCompile(`(?i)product|prod|item|sku|shop|sale|clear|outlet`)

// DiscovererConfig configures sitemap-based URL discovery
type DiscovererConfig struct {
	Concurrency int
	MaxURLs     int
}

// Discoverer finds product-like page URLs through sitemaps: well-known
// locations are probed, sitemap indexes expanded one level, and the result
// filtered to product-like paths.
type Discoverer struct {
	fetch      FetchFunc
	structured Extractor
	heuristic  Extractor
	cfg        DiscovererConfig
	log        *logger.Logger
}

// NewDiscoverer creates a sitemap discoverer
func NewDiscoverer(fetch FetchFunc, cfg DiscovererConfig) *Discoverer {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 6
	}
	if cfg.MaxURLs <= 0 {
		cfg.MaxURLs = 400
	}
	return &Discoverer{
		fetch:      fetch,
		structured: NewStructuredExtractor(),
		heuristic:  NewHeuristicExtractor(),
		cfg:        cfg,
		log:        logger.ForSitemap(),
	}
}

// DiscoverProductURLs probes the well-known sitemap locations of an origin
// and returns the product-like URLs they expose, capped at MaxURLs.
func (d *Discoverer) DiscoverProductURLs(ctx context.Context, origin string) []string {
	base, err := url.Parse(origin)
	if err != nil {
		d.log.Warn().Str("origin", origin).Err(err).Msg("invalid origin, skipping sitemap probe")
		return nil
	}

	var all []string
	for _, path := range wellKnownSitemapPaths {
		probe := base.ResolveReference(&url.URL{Path: path}).String()
		all = append(all, d.GatherFromSitemap(ctx, probe)...)
	}
	return capURLs(uniqueURLs(all), d.cfg.MaxURLs)
}

// GatherFromSitemap expands one sitemap document into product-like page
// URLs. XML indexes are expanded one level with bounded concurrency; an HTML
// document is mined for product-like anchor hrefs instead.
func (d *Discoverer) GatherFromSitemap(ctx context.Context, sitemapURL string) []string {
	text, err := d.fetch(ctx, sitemapURL)
	if err != nil {
		d.log.Debug().Str("url", sitemapURL).Err(err).Msg("sitemap fetch failed")
		return nil
	}

	// Anything starting with "<" is treated as sitemap XML; everything else
	// is mined as an HTML index page.
	if !strings.HasPrefix(strings.TrimSpace(text), "<") {
		return d.minePage(text, sitemapURL)
	}

	firstLevel := extractSitemapURLs(text)
	if len(firstLevel) == 0 {
		return nil
	}

	children := firstLevel
	if len(children) > maxIndexChildren {
		children = children[:maxIndexChildren]
	}

	var (
		mu     sync.Mutex
		leaves []string
		wg     sync.WaitGroup
	)
	sem := make(chan struct{}, d.cfg.Concurrency)
	for _, child := range children {
		wg.Add(1)
		go func(child string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			text, err := d.fetch(ctx, child)
			if err != nil {
				return
			}
			if strings.HasPrefix(strings.TrimSpace(text), "<") {
				inner := extractSitemapURLs(text)
				mu.Lock()
				leaves = append(leaves, inner...)
				mu.Unlock()
			}
		}(child)
	}
	wg.Wait()

	all := leaves
	if len(all) == 0 {
		all = firstLevel
	}
	filtered := filterProductLike(uniqueURLs(all))
	d.log.Info().Str("sitemap", sitemapURL).Int("urls", len(filtered)).Msg("sitemap expanded")
	return filtered
}

// FetchProducts fetches each URL and extracts a product record from it, with
// bounded concurrency. Per-URL failures contribute nothing.
func (d *Discoverer) FetchProducts(ctx context.Context, urls []string) []RawProduct {
	urls = capURLs(urls, d.cfg.MaxURLs)

	var (
		mu       sync.Mutex
		products []RawProduct
		wg       sync.WaitGroup
	)
	sem := make(chan struct{}, d.cfg.Concurrency)
	for _, pageURL := range urls {
		wg.Add(1)
		go func(pageURL string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			html, err := d.fetch(ctx, pageURL)
			if err != nil {
				return
			}
			records := d.structured.Extract(html, pageURL)
			if len(records) == 0 {
				records = d.heuristic.Extract(html, pageURL)
			}
			if len(records) > 0 {
				mu.Lock()
				products = append(products, records...)
				mu.Unlock()
			}
		}(pageURL)
	}
	wg.Wait()

	d.log.Info().Int("urls", len(urls)).Int("records", len(products)).Msg("sitemap product fetch finished")
	return products
}

// minePage extracts product-like anchor hrefs from an HTML index page
func (d *Discoverer) minePage(html, baseURL string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil
	}

	var links []string
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok {
			return
		}
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		links = append(links, base.ResolveReference(ref).String())
	})
	return filterProductLike(uniqueURLs(links))
}

// extractSitemapURLs parses sitemap XML into loc entries, accepting both a
// flat urlset and a sitemapindex. A document that fails to parse yields
// nothing.
func extractSitemapURLs(text string) []string {
	doc, err := xmlquery.Parse(strings.NewReader(text))
	if err != nil {
		return nil
	}

	var urls []string
	for _, node := range xmlquery.Find(doc, "//urlset/url/loc") {
		if loc := strings.TrimSpace(node.InnerText()); loc != "" {
			urls = append(urls, loc)
		}
	}
	if len(urls) == 0 {
		for _, node := range xmlquery.Find(doc, "//sitemapindex/sitemap/loc") {
			if loc := strings.TrimSpace(node.InnerText()); loc != "" {
				urls = append(urls, loc)
			}
		}
	}
	return urls
}

func filterProductLike(urls []string) []string {
	var out []string
	for _, u := range urls {
		if productPathRe.MatchString(u) {
			out = append(out, u)
		}
	}
	return out
}

func uniqueURLs(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	var out []string
	for _, u := range urls {
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

func capURLs(urls []string, max int) []string {
	if len(urls) > max {
		return urls[:max]
	}
	return urls
}
