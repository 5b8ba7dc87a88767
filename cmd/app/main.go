package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"newscraper/internal/pkg/administrator"
	"newscraper/internal/pkg/config"
	"newscraper/internal/pkg/fetcher"
	"newscraper/internal/pkg/filter"
	"newscraper/internal/pkg/pipeline"
	"newscraper/internal/pkg/seeder"
	"newscraper/internal/pkg/spider"
)

const (
	filterSaveEvery = 100
	filterCapacity  = 100000
	filterFPRate    = 0.01
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "path", *configPath, "err", err)
		os.Exit(1)
	}

	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      logLevel(cfg.Logging.Level),
		TimeFormat: time.TimeOnly,
	})))

	visited, err := filter.NewVisitedFilter(cfg.Output.FilterPath, filterSaveEvery, filterCapacity, filterFPRate)
	if err != nil {
		slog.Error("failed to set up visited filter", "err", err)
		os.Exit(1)
	}

	archive, err := pipeline.NewArchiveSink(cfg.Output.HTMLDir)
	if err != nil {
		slog.Error("failed to set up archive directory", "err", err)
		os.Exit(1)
	}

	coordinator := pipeline.NewCoordinator(
		pipeline.NewNormalizer(),
		pipeline.NewSQLiteSink(cfg.Output.DatabasePath),
		pipeline.NewExcelSink(cfg.Output.WorkbookPath),
		archive,
	)

	admin, err := administrator.NewAdministrator(administrator.Params{
		Fetcher:       fetcher.New(cfg.Fetch),
		Spider:        spider.New(cfg.Crawler.LinkSelector),
		Coordinator:   coordinator,
		Visited:       visited,
		Seeds:         seeder.NewListingSeeder(cfg.Crawler.SeedURL, cfg.Crawler.PageCount).URLs(),
		AllowedDomain: cfg.Crawler.AllowedDomain,
		Workers:       cfg.Fetch.Workers,
	})
	if err != nil {
		slog.Error("failed to set up crawl session", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := admin.Run(ctx); err != nil {
		slog.Error("crawl session failed", "err", err)
		os.Exit(1)
	}
}

func logLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
