package pipeline

import (
	"context"
	"encoding/json"
	"net/url"

	"dealscout/config"
	"dealscout/helpers"
	"dealscout/internal/output"
	"dealscout/internal/scrape"
	"dealscout/logger"
	apperrors "dealscout/pkg/errors"
	"dealscout/services/cache"
	"dealscout/services/publisher"
)

// Pipeline drives a full run: crawl every seed serially, optionally discover
// product pages through sitemaps, finalize the dataset, write the output
// tables and publish the deals.
type Pipeline struct {
	cfg      config.Config
	fetch    scrape.FetchFunc
	cacheSvc cache.CacheService
	pub      publisher.Publisher
	log      *logger.Logger
}

// New creates a pipeline. cacheSvc and pub may be nil; the corresponding
// features are then disabled.
func New(cfg config.Config, fetch scrape.FetchFunc, cacheSvc cache.CacheService, pub publisher.Publisher) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		fetch:    fetch,
		cacheSvc: cacheSvc,
		pub:      pub,
		log:      logger.ForPipeline(),
	}
}

// Run executes one full scrape. A missing seeds file is the only fatal
// input error; everything else is absorbed at the smallest possible scope so
// the run always produces both output tables.
func (p *Pipeline) Run(ctx context.Context) (scrape.Result, error) {
	seeds, err := helpers.ReadLines(p.cfg.SeedsFile)
	if err != nil {
		return scrape.Result{}, apperrors.NewConfiguration("failed to read seeds file", err)
	}

	if p.cfg.TestMode && len(seeds) > 1 {
		p.log.Warn().Msg("test mode: only processing the first seed")
		seeds = seeds[:1]
	}
	p.log.Info().Int("seeds", len(seeds)).Float64("min_discount", p.cfg.MinDiscount).Msg("starting run")

	var raw []scrape.RawProduct

	// Seeds are crawled strictly serially; per-host pacing stays simple and
	// no two pages of the same listing crawl are ever in flight together.
	for i, seed := range seeds {
		if ctx.Err() != nil {
			p.log.Warn().Msg("run cancelled, finalizing what was collected")
			break
		}

		p.log.Info().Int("seed", i+1).Int("total", len(seeds)).Str("url", seed).Msg("processing seed")
		walker := scrape.NewWalker(p.fetch, p.cacheSvc, scrape.WalkerConfig{
			MaxPages:      p.cfg.MaxPagesPerDomain,
			PagePause:     p.cfg.PagePause,
			HostBlockTime: p.cfg.HostBlockTime,
		})
		raw = append(raw, walker.CrawlListing(ctx, seed)...)
	}

	if p.cfg.EnableSitemapDiscovery {
		raw = append(raw, p.sitemapPhase(ctx)...)
	} else {
		p.log.Debug().Msg("sitemap discovery disabled")
	}

	res := scrape.Finalize(raw, p.cfg.MinDiscount)
	p.log.Info().
		Int("raw", len(raw)).
		Int("all_products", len(res.AllProducts)).
		Int("deals", len(res.Deals)).
		Msg("run finalized")

	if err := output.NewCSVWriter(p.cfg.OutputDir).WriteResult(res); err != nil {
		return res, err
	}

	p.publishDeals(res.Deals)
	return res, nil
}

// sitemapPhase expands the configured sitemap URLs, grouped by origin, and
// scrapes the product pages they reveal. A missing sitemaps file just skips
// the phase.
func (p *Pipeline) sitemapPhase(ctx context.Context) []scrape.RawProduct {
	entries, err := helpers.ReadLines(p.cfg.SitemapsFile)
	if err != nil {
		p.log.Warn().Str("file", p.cfg.SitemapsFile).Err(err).Msg("no sitemaps file, skipping sitemap phase")
		return nil
	}

	byOrigin := make(map[string][]string)
	var origins []string
	for _, entry := range entries {
		u, err := url.Parse(entry)
		if err != nil || !u.IsAbs() {
			p.log.Warn().Str("url", entry).Msg("invalid sitemap URL, skipping")
			continue
		}
		origin := u.Scheme + "://" + u.Host
		if _, ok := byOrigin[origin]; !ok {
			origins = append(origins, origin)
		}
		byOrigin[origin] = append(byOrigin[origin], entry)
	}

	discoverer := scrape.NewDiscoverer(p.fetch, scrape.DiscovererConfig{
		Concurrency: p.cfg.Concurrency,
		MaxURLs:     p.cfg.MaxSitemapURLsPerDomain,
	})

	var products []scrape.RawProduct
	for _, origin := range origins {
		if ctx.Err() != nil {
			break
		}
		p.log.Info().Str("origin", origin).Int("sitemaps", len(byOrigin[origin])).Msg("processing sitemap origin")

		var pages []string
		for _, sitemapURL := range byOrigin[origin] {
			if isOriginOnly(sitemapURL) {
				pages = append(pages, discoverer.DiscoverProductURLs(ctx, origin)...)
			} else {
				pages = append(pages, discoverer.GatherFromSitemap(ctx, sitemapURL)...)
			}
		}

		batch := discoverer.FetchProducts(ctx, pages)
		p.log.Info().Str("origin", origin).Int("records", len(batch)).Msg("sitemap origin finished")
		products = append(products, batch...)
	}
	return products
}

// publishDeals streams finalized deals through the publisher, when wired.
// Publish failures are logged and absorbed; the CSV output already holds the
// authoritative dataset.
func (p *Pipeline) publishDeals(deals []scrape.CanonicalDeal) {
	if p.pub == nil {
		return
	}

	published := 0
	for _, deal := range deals {
		data, err := json.Marshal(deal)
		if err != nil {
			p.log.Error().Err(err).Str("name", deal.Name).Msg("failed to encode deal")
			continue
		}
		if err := p.pub.Publish(data); err != nil {
			p.log.Error().Err(err).Str("name", deal.Name).Msg("failed to publish deal")
			continue
		}
		published++
	}

	if err := p.pub.Trim(); err != nil {
		p.log.Error().Err(err).Msg("failed to trim deal stream")
	}
	p.log.Info().Int("published", published).Int("deals", len(deals)).Msg("deals published")
}

// isOriginOnly reports whether the entry names a bare origin, in which case
// the well-known sitemap locations are probed instead
func isOriginOnly(entry string) bool {
	u, err := url.Parse(entry)
	if err != nil {
		return false
	}
	return u.Path == "" || u.Path == "/"
}
