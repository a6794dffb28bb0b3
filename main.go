package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"dealscout/config"
	"dealscout/helpers"
	"dealscout/logger"
	"dealscout/services/cache"
	"dealscout/services/pipeline"
	"dealscout/services/publisher"
)

func main() {
	// Load environment variables
	godotenv.Load()

	// Initialize logger first
	logger.Init()
	log := logger.Default

	// Load and validate configuration
	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	log.Info().
		Str("environment", cfg.Environment).
		Float64("min_discount", cfg.MinDiscount).
		Int("max_pages_per_domain", cfg.MaxPagesPerDomain).
		Bool("sitemap_discovery", cfg.EnableSitemapDiscovery).
		Msg("Starting application")

	// One run per invocation; a signal cancels the run and whatever was
	// collected so far is still finalized and written
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	services := initializeServices(ctx, &cfg)
	defer services.Cleanup()

	fetcher := helpers.NewFetcher(helpers.FetcherOptions{
		UserAgent:   cfg.UserAgent,
		Timeout:     cfg.FetchTimeout,
		DelayMin:    cfg.FetchDelayMin,
		DelayJitter: cfg.FetchDelayJitter,
	})

	res, err := pipeline.New(cfg, fetcher.Fetch, services.Cache, services.Publisher).Run(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Run failed")
	}

	log.Info().
		Int("deals", len(res.Deals)).
		Int("all_products", len(res.AllProducts)).
		Str("output_dir", cfg.OutputDir).
		Msg("Run complete")
}

// Services holds the optional external services
type Services struct {
	Cache     cache.CacheService
	Publisher publisher.Publisher
}

// Cleanup cleans up all services
func (s *Services) Cleanup() {
	if s.Publisher != nil {
		s.Publisher.Close()
	}
}

// initializeServices wires the optional services. Either address left empty
// disables the corresponding feature; the scraper itself stays fully
// functional without them.
func initializeServices(ctx context.Context, cfg *config.Config) *Services {
	services := &Services{}
	log := logger.Default

	if cfg.MemcacheAddr != "" {
		services.Cache = cache.NewMemcacheService(cfg.MemcacheAddr)
		log.Info().Str("addr", cfg.MemcacheAddr).Msg("Using Memcache for host rate-limit blocks")
	}

	if cfg.RedisAddr != "" {
		services.Publisher = publisher.NewRedisPublisher(
			ctx,
			cfg.RedisAddr,
			cfg.RedisDB,
			cfg.RedisStream,
			cfg.RedisStreamMaxLength,
		)
		log.Info().
			Str("addr", cfg.RedisAddr).
			Int("db", cfg.RedisDB).
			Str("stream", cfg.RedisStream).
			Msg("Publishing deals to Redis stream")
	}

	return services
}
