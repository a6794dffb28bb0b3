package config

import (
	"os"
	"strconv"
	"time"

	apperrors "dealscout/pkg/errors"
)

const defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Config represents the application configuration
type Config struct {
	// Crawl limits
	MinDiscount             float64
	MaxPagesPerDomain       int
	MaxSitemapURLsPerDomain int
	Concurrency             int

	// Transport
	UserAgent        string
	FetchTimeout     time.Duration
	FetchDelayMin    time.Duration
	FetchDelayJitter time.Duration
	PagePause        time.Duration

	// Sitemap discovery (off by default; seed listing crawling is the primary source)
	EnableSitemapDiscovery bool

	// Input/output
	SeedsFile    string
	SitemapsFile string
	OutputDir    string

	// Optional Redis deal stream
	RedisAddr            string
	RedisDB              int
	RedisStream          string
	RedisStreamMaxLength int

	// Optional per-host rate-limit block cache
	MemcacheAddr  string
	HostBlockTime time.Duration

	// Environment
	Environment string
	TestMode    bool
}

// LoadConfig loads the configuration from environment variables with defaults
func LoadConfig() Config {
	minDiscount, _ := strconv.ParseFloat(getEnv("MIN_DISCOUNT", "0.30"), 64)
	maxPages, _ := strconv.Atoi(getEnv("MAX_PAGES_PER_DOMAIN", "5"))
	maxSitemapURLs, _ := strconv.Atoi(getEnv("MAX_SITEMAP_URLS_PER_DOMAIN", "400"))
	concurrency, _ := strconv.Atoi(getEnv("CONCURRENCY", "6"))
	fetchTimeout, _ := strconv.Atoi(getEnv("FETCH_TIMEOUT_SECONDS", "10"))
	delayMin, _ := strconv.Atoi(getEnv("FETCH_DELAY_MIN_MS", "500"))
	delayJitter, _ := strconv.Atoi(getEnv("FETCH_DELAY_JITTER_MS", "1000"))
	pagePause, _ := strconv.Atoi(getEnv("PAGE_PAUSE_MS", "400"))
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	redisStreamMaxLength, _ := strconv.Atoi(getEnv("REDIS_STREAM_MAX_LENGTH", "500"))
	hostBlock, _ := strconv.Atoi(getEnv("HOST_BLOCK_SECONDS", "300"))

	return Config{
		MinDiscount:             minDiscount,
		MaxPagesPerDomain:       maxPages,
		MaxSitemapURLsPerDomain: maxSitemapURLs,
		Concurrency:             concurrency,
		UserAgent:               getEnv("USER_AGENT", defaultUserAgent),
		FetchTimeout:            time.Duration(fetchTimeout) * time.Second,
		FetchDelayMin:           time.Duration(delayMin) * time.Millisecond,
		FetchDelayJitter:        time.Duration(delayJitter) * time.Millisecond,
		PagePause:               time.Duration(pagePause) * time.Millisecond,
		EnableSitemapDiscovery:  getEnv("ENABLE_SITEMAP_DISCOVERY", "false") == "true",
		SeedsFile:               getEnv("SEEDS_FILE", "./seeds.txt"),
		SitemapsFile:            getEnv("SITEMAPS_FILE", "./sitemaps.txt"),
		OutputDir:               getEnv("OUTPUT_DIR", "./out"),
		RedisAddr:               getEnv("REDIS_ADDR", ""),
		RedisDB:                 redisDB,
		RedisStream:             getEnv("REDIS_STREAM", "deals"),
		RedisStreamMaxLength:    redisStreamMaxLength,
		MemcacheAddr:            getEnv("MEMCACHE_ADDR", ""),
		HostBlockTime:           time.Duration(hostBlock) * time.Second,
		Environment:             getEnv("DEALSCOUT_ENVIRONMENT", "development"),
		TestMode:                getEnv("TEST_MODE", "false") == "true",
	}
}

// Validate checks the configuration for invalid values
func (c *Config) Validate() error {
	if c.MinDiscount < 0 || c.MinDiscount > 1 {
		return apperrors.NewConfiguration("MIN_DISCOUNT must be within [0,1]", nil)
	}
	if c.MaxPagesPerDomain <= 0 {
		return apperrors.NewConfiguration("MAX_PAGES_PER_DOMAIN must be positive", nil)
	}
	if c.MaxSitemapURLsPerDomain <= 0 {
		return apperrors.NewConfiguration("MAX_SITEMAP_URLS_PER_DOMAIN must be positive", nil)
	}
	if c.Concurrency <= 0 {
		return apperrors.NewConfiguration("CONCURRENCY must be positive", nil)
	}
	if c.SeedsFile == "" {
		return apperrors.NewConfiguration("SEEDS_FILE must not be empty", nil)
	}
	if c.OutputDir == "" {
		return apperrors.NewConfiguration("OUTPUT_DIR must not be empty", nil)
	}
	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
