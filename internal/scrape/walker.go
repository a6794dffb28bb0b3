package scrape

import (
	"context"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"dealscout/logger"
	apperrors "dealscout/pkg/errors"
	"dealscout/services/cache"
)

// thinResultThreshold is the record count below which the heuristic extractor
// joins in; a page rich in structured data makes DOM mining redundant.
const thinResultThreshold = 10

var pagePathRe = regexp.MustCompile(`/page/\d+`)

// WalkerConfig configures one seed's crawl
type WalkerConfig struct {
	MaxPages      int
	PagePause     time.Duration
	HostBlockTime time.Duration
}

// Walker drives a bounded breadth-first crawl of a single seed's listing
// pages: fetch, extract with both strategies, discover pagination, stop at
// the page cap.
type Walker struct {
	fetch      FetchFunc
	structured Extractor
	heuristic  Extractor
	cacheSvc   cache.CacheService
	cfg        WalkerConfig
}

// NewWalker creates a walker. cacheSvc may be nil; when present it carries
// per-host rate-limit blocks across seeds of the same host.
func NewWalker(fetch FetchFunc, cacheSvc cache.CacheService, cfg WalkerConfig) *Walker {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 5
	}
	return &Walker{
		fetch:      fetch,
		structured: NewStructuredExtractor(),
		heuristic:  NewHeuristicExtractor(),
		cacheSvc:   cacheSvc,
		cfg:        cfg,
	}
}

// CrawlListing crawls one seed and returns every record extracted from its
// pages. A single failed page never aborts the crawl.
func (w *Walker) CrawlListing(ctx context.Context, seed string) []RawProduct {
	seedHost := hostOf(seed)
	log := logger.ForWalker(seedHost)

	frontier := NewFrontier(seed)
	var results []RawProduct
	failures := 0

	for frontier.VisitedCount() < w.cfg.MaxPages {
		if ctx.Err() != nil {
			log.Warn().Msg("crawl cancelled")
			break
		}

		current, ok := frontier.Next()
		if !ok {
			break
		}
		frontier.MarkVisited(current)

		if w.hostBlocked(seedHost) {
			log.Warn().Str("url", current).Msg("host is rate-limit blocked, skipping page")
			failures++
			continue
		}

		html, err := w.fetch(ctx, current)
		if err != nil {
			failures++
			if apperrors.IsRateLimited(err) {
				w.blockHost(seedHost)
			}
			log.Warn().Str("url", current).Err(err).Msg("page fetch failed, skipping")
			continue
		}

		results = append(results, w.structured.Extract(html, current)...)
		if len(results) < thinResultThreshold {
			results = append(results, w.heuristic.Extract(html, current)...)
		}

		w.discoverPagination(html, current, seedHost, frontier)

		log.Info().
			Int("page", frontier.VisitedCount()).
			Int("max_pages", w.cfg.MaxPages).
			Int("records", len(results)).
			Str("url", current).
			Msg("page processed")

		// Coarse inter-page pause on top of the transport's own delay
		if err := w.pagePauseWait(ctx); err != nil {
			break
		}
	}

	log.Info().
		Int("pages", frontier.VisitedCount()).
		Int("failures", failures).
		Int("records", len(results)).
		Msg("seed crawl finished")
	return results
}

// discoverPagination enqueues successor pages: the explicit rel=next link
// plus every anchor href that stays on the seed's host and looks like
// pagination.
func (w *Walker) discoverPagination(html, current, seedHost string, frontier *Frontier) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return
	}

	currentURL, err := url.Parse(current)
	if err != nil {
		return
	}

	var hrefs []string
	if next, ok := doc.Find(`link[rel="next"]`).Attr("href"); ok {
		hrefs = append(hrefs, next)
	}
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		if href, ok := a.Attr("href"); ok && href != "" {
			hrefs = append(hrefs, href)
		}
	})

	for _, href := range hrefs {
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			continue
		}
		absolute := currentURL.ResolveReference(ref)
		if absolute.Hostname() != seedHost {
			continue
		}
		abs := absolute.String()
		if strings.Contains(abs, "page=") || pagePathRe.MatchString(absolute.Path) || abs != current {
			frontier.Enqueue(abs)
		}
	}
}

func (w *Walker) pagePauseWait(ctx context.Context) error {
	if w.cfg.PagePause <= 0 {
		return nil
	}
	timer := time.NewTimer(w.cfg.PagePause)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (w *Walker) hostBlocked(host string) bool {
	if w.cacheSvc == nil || host == "" {
		return false
	}
	_, err := w.cacheSvc.Get(blockKey(host))
	return err == nil
}

func (w *Walker) blockHost(host string) {
	if w.cacheSvc == nil || host == "" || w.cfg.HostBlockTime <= 0 {
		return
	}
	w.cacheSvc.Set(blockKey(host), []byte("blocked"), w.cfg.HostBlockTime)
}

func blockKey(host string) string {
	return host + "_rate_limited"
}

// hostOf returns the hostname of rawURL, or "" when it does not parse
func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
