package main

import (
	"flag"
	"os"
	"path/filepath"
	"time"

	"dealscout/internal/output"
	"dealscout/logger"
	"dealscout/pkg/web"
)

func main() {
	dataDir := flag.String("data-dir", "./out", "directory containing the scraper's output tables")
	outputDir := flag.String("output-dir", "./out", "directory to write dashboard.html to")
	title := flag.String("title", "Outdoor Deals Dashboard", "dashboard page title")
	flag.Parse()

	logger.Init()
	log := logger.Default

	deals, err := output.ReadTable(filepath.Join(*dataDir, output.DealsFile))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load deals table")
	}

	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		log.Fatal().Err(err).Msg("Failed to create output directory")
	}

	path := filepath.Join(*outputDir, "dashboard.html")
	f, err := os.Create(path)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create dashboard file")
	}
	defer f.Close()

	ctx := web.DashboardContext{
		Title:       *title,
		GeneratedAt: time.Now(),
		Deals:       deals,
	}
	if err := web.RenderDashboard(f, ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to render dashboard")
	}

	log.Info().Str("path", path).Int("deals", len(deals)).Msg("Dashboard written")
}
