package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
	"gopkg.in/yaml.v3"

	"base-scraper/pkg/config"
	"base-scraper/pkg/fetch"
	"base-scraper/pkg/jobs"
	"base-scraper/pkg/models"
	"base-scraper/pkg/scrape"
	"base-scraper/pkg/storage"
	"base-scraper/pkg/store"
	"base-scraper/pkg/utils"
)

const version = "1.0.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "scrape":
		runScrape(os.Args[2:])
	case "scrape-url":
		runScrapeURL(os.Args[2:])
	case "bulk":
		runBulk(os.Args[2:])
	case "levels":
		runLevels(os.Args[2:])
	case "validate":
		runValidate(os.Args[2:])
	case "mcp-server":
		runMcpServer(os.Args[2:])
	case "version":
		fmt.Printf("base-scraper %s\n", version)
	case "-h", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	printUsageTo(os.Stdout)
}

// printUsageTo writes usage information to the provided writer.
func printUsageTo(w io.Writer) {
	fmt.Fprintln(w, `base-scraper - Clash of Clans base layout scraper

Usage:
  base-scraper <command> [options]

Commands:
  scrape      Scrape one hall category/level into the store
  scrape-url  Scrape a single detail page URL
  bulk        Scrape every discoverable level (resumable)
  levels      Probe the source site for scrapable levels
  validate    Validate configuration file
  mcp-server  Start MCP server for AI tool integration
  version     Show version info

Run 'base-scraper <command> -h' for command-specific help.`)
}

// loadConfig loads and parses the config file
func loadConfig(path string) (*config.AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg config.AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return &cfg, nil
}

// setupLogger creates a configured logrus.Logger with the given log level.
func setupLogger(logLevelStr string) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05.000"})
	log.SetLevel(logrus.InfoLevel)

	level, err := logrus.ParseLevel(logLevelStr)
	if err != nil {
		log.Warnf("Invalid log level '%s', using default 'info'. Error: %v", logLevelStr, err)
	} else {
		log.SetLevel(level)
	}

	return log
}

// loadAndValidateConfig loads the config file, validates it, and logs warnings.
func loadAndValidateConfig(configFile string, log *logrus.Logger) *config.AppConfig {
	log.Infof("Loading configuration from %s", configFile)
	appCfg, err := loadConfig(configFile)
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}

	warnings, err := appCfg.Validate()
	for _, w := range warnings {
		log.Warn(w)
	}
	if err != nil {
		log.Fatalf("Config validation failed: %v", err)
	}

	return appCfg
}

// signalContext returns a context cancelled on SIGINT/SIGTERM. A second
// signal forces exit.
func signalContext(log *logrus.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Warnf("Received signal: %v. Initiating graceful shutdown...", sig)
		cancel()

		select {
		case sig = <-sigChan:
			log.Warnf("Received second signal: %v. Forcing exit.", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			log.Warn("Graceful shutdown period exceeded after signal. Forcing exit.")
			os.Exit(1)
		}
	}()

	return ctx, cancel
}

// buildFetcher wires the shared HTTP client, the global request gate, the
// per-host rate limiter, and (optionally) the robots checker.
func buildFetcher(appCfg *config.AppConfig, log *logrus.Entry) *fetch.Fetcher {
	client := fetch.NewClient(appCfg.HTTPClientSettings, log)
	gate := semaphore.NewWeighted(int64(appCfg.MaxConcurrentRequests))
	limiter := fetch.NewRateLimiter(appCfg.MinHostDelay, log)
	fetcher := fetch.NewFetcher(client, appCfg, log).
		WithGate(gate).
		WithRateLimiter(limiter)
	if appCfg.RespectRobots {
		fetcher = fetcher.WithRobots(fetch.NewRobotsChecker(client, appCfg.UserAgent, log))
	}
	return fetcher
}

// runScrape handles the scrape subcommand
func runScrape(args []string) {
	fs := flag.NewFlagSet("scrape", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")
	categorySlug := fs.String("category", "th", "Hall category: th (main hall) or bh (builder hall)")
	level := fs.Int("level", 0, "Hall level to scrape (required)")
	logLevel := fs.String("loglevel", "info", "Log level (debug, info, warn, error, fatal)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: base-scraper scrape [options]\n\nOptions:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  base-scraper scrape -category th -level 12\n")
		fmt.Fprintf(os.Stderr, "  base-scraper scrape -category bh -level 9 -loglevel debug\n")
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	category, ok := models.CategoryFromSlug(*categorySlug)
	if !ok {
		fmt.Fprintf(os.Stderr, "Error: invalid category '%s' (expected th or bh)\n", *categorySlug)
		fs.Usage()
		os.Exit(1)
	}
	if *level <= 0 {
		fmt.Fprintln(os.Stderr, "Error: -level is required and must be positive")
		fs.Usage()
		os.Exit(1)
	}

	executeScrape(*configFile, jobs.Scope{Category: category, Level: *level}, *logLevel)
}

// runScrapeURL handles the scrape-url subcommand
func runScrapeURL(args []string) {
	fs := flag.NewFlagSet("scrape-url", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")
	target := fs.String("url", "", "Detail page URL to scrape (required)")
	logLevel := fs.String("loglevel", "info", "Log level (debug, info, warn, error, fatal)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: base-scraper scrape-url [options]\n\nOptions:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  base-scraper scrape-url -url https://example.com/plans/th_12/war_3.html\n")
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if *target == "" {
		fmt.Fprintln(os.Stderr, "Error: -url is required")
		fs.Usage()
		os.Exit(1)
	}

	executeScrape(*configFile, jobs.Scope{AdHocURL: *target}, *logLevel)
}

// executeScrape runs one job synchronously and exits with the job outcome.
func executeScrape(configFile string, scope jobs.Scope, logLevelStr string) {
	log := setupLogger(logLevelStr)
	appCfg := loadAndValidateConfig(configFile, log)

	ctx, cancel := signalContext(log)
	defer cancel()

	logEntry := log.WithField("component", "scrape")
	fetcher := buildFetcher(appCfg, logEntry)
	paginator := scrape.NewPaginator(fetcher, appCfg.SourceBaseURL, appCfg.MaxListingPages, appCfg.ListingPageDelay, logEntry)
	extractor := scrape.NewExtractor(fetcher, logEntry)
	baseStore := store.NewFileStore(appCfg.StorePath, logEntry)
	manager := jobs.NewManager()
	runner := jobs.NewRunner(appCfg, manager, paginator, extractor, baseStore, logEntry)

	job := runner.Run(ctx, scope)
	printJobSummary(job, log)

	if job.State == models.JobStateFailed {
		os.Exit(1)
	}
	os.Exit(0)
}

// printJobSummary logs the final job outcome
func printJobSummary(job jobs.Job, log *logrus.Logger) {
	log.Infof("Job %s finished: state=%s scraped=%d/%d skipped_no_link=%d errors=%d",
		job.ID, job.State, job.ScrapedCount, job.TotalTargets, job.SkippedNoLink, len(job.PerURLErrors))
	for _, e := range job.PerURLErrors {
		log.Warnf("  %s: %s", e.URL, e.Message)
	}
	if job.FailureReason != "" {
		log.Errorf("Failure reason: %s", job.FailureReason)
	}
	if job.PersistError != "" {
		log.Errorf("Persist error: %s", job.PersistError)
	}
}

// runLevels handles the levels subcommand
func runLevels(args []string) {
	fs := flag.NewFlagSet("levels", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")
	logLevel := fs.String("loglevel", "warn", "Log level (debug, info, warn, error, fatal)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: base-scraper levels [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	log := setupLogger(*logLevel)
	appCfg := loadAndValidateConfig(*configFile, log)

	ctx, cancel := signalContext(log)
	defer cancel()

	logEntry := log.WithField("component", "levels")
	fetcher := buildFetcher(appCfg, logEntry)

	levels, err := scrape.ProbeLevels(ctx, fetcher, appCfg.SourceBaseURL, logEntry)
	if err != nil {
		log.Fatalf("Level probe failed: %v", err)
	}

	categories := []models.HallCategory{models.CategoryMainHall, models.CategoryBuilderHall}
	for _, cat := range categories {
		fmt.Printf("%s (%s):", cat, cat.Slug())
		for _, lvl := range levels[cat] {
			fmt.Printf(" %d", lvl)
		}
		fmt.Println()
	}
}

// runValidate handles the validate subcommand
func runValidate(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: base-scraper validate [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	exitCode := doValidate(*configFile, os.Stdout, os.Stderr)
	os.Exit(exitCode)
}

// doValidate performs validation and writes output to provided writers.
// Returns exit code (0 = success, 1 = error).
func doValidate(configPath string, stdout, stderr io.Writer) int {
	appCfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	warnings, err := appCfg.Validate()
	for _, w := range warnings {
		fmt.Fprintf(stdout, "WARN: %s\n", w)
	}
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "OK: source=%s store=%s\n", appCfg.SourceBaseURL, appCfg.StorePath)
	fmt.Fprintln(stdout, "\nConfiguration valid.")
	return 0
}

// runBulk handles the bulk subcommand
func runBulk(args []string) {
	fs := flag.NewFlagSet("bulk", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")
	rescrape := fs.Bool("rescrape", false, "Discard the visited-URL store and scrape everything again")
	logLevel := fs.String("loglevel", "info", "Log level (debug, info, warn, error, fatal)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: base-scraper bulk [options]\n\nOptions:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Bulk mode probes every scrapable category/level, scrapes all of them, and
records each detail URL in a durable visited store so interrupted runs can
be resumed. Pass -rescrape to start from scratch.
`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	executeBulk(*configFile, *rescrape, *logLevel)
}

// executeBulk walks every probed (category, level) pair sequentially,
// skipping detail URLs already present in the visited store.
func executeBulk(configFile string, rescrape bool, logLevelStr string) {
	log := setupLogger(logLevelStr)
	appCfg := loadAndValidateConfig(configFile, log)

	ctx, cancel := signalContext(log)
	defer cancel()

	logEntry := log.WithField("component", "bulk")
	fetcher := buildFetcher(appCfg, logEntry)

	sourceURL, err := url.Parse(appCfg.SourceBaseURL)
	if err != nil {
		log.Fatalf("Invalid source base URL: %v", err)
	}

	visited, err := storage.NewBadgerStore(appCfg.StateDir, sourceURL.Host, !rescrape, logEntry)
	if err != nil {
		log.Fatalf("Failed to initialize visited store: %v", err)
	}
	defer visited.Close()

	go visited.RunGC(ctx, 5*time.Minute)

	levels, err := scrape.ProbeLevels(ctx, fetcher, appCfg.SourceBaseURL, logEntry)
	if err != nil {
		log.Fatalf("Level probe failed: %v", err)
	}

	// Bulk uses the wider page ceiling so deep listings are not truncated.
	paginator := scrape.NewPaginator(fetcher, appCfg.SourceBaseURL, appCfg.BulkMaxListingPages, appCfg.ListingPageDelay, logEntry)
	extractor := scrape.NewExtractor(fetcher, logEntry)
	baseStore := store.NewFileStore(appCfg.StorePath, logEntry)

	var totalScraped, totalSkippedVisited, totalSkippedNoLink, totalErrors int

	categories := []models.HallCategory{models.CategoryMainHall, models.CategoryBuilderHall}
	for _, cat := range categories {
		for _, lvl := range levels[cat] {
			if ctx.Err() != nil {
				break
			}
			stats := scrapeLevelBulk(ctx, cat, lvl, paginator, extractor, baseStore, visited, appCfg, logEntry)
			totalScraped += stats.scraped
			totalSkippedVisited += stats.skippedVisited
			totalSkippedNoLink += stats.skippedNoLink
			totalErrors += stats.errors
		}
	}

	log.Infof("Bulk run finished: scraped=%d skipped_visited=%d skipped_no_link=%d errors=%d visited_total=%d",
		totalScraped, totalSkippedVisited, totalSkippedNoLink, totalErrors, visited.Count())

	if ctx.Err() != nil {
		log.Warn("Bulk run cancelled.")
		os.Exit(0)
	}
	if totalErrors > 0 {
		os.Exit(1)
	}
	os.Exit(0)
}

type bulkLevelStats struct {
	scraped        int
	skippedVisited int
	skippedNoLink  int
	errors         int
}

// scrapeLevelBulk scrapes one (category, level) pair, persisting collected
// records and marking each attempted URL in the visited store. Failures are
// contained to the level so one bad listing cannot sink the whole run.
func scrapeLevelBulk(ctx context.Context, category models.HallCategory, level int, paginator *scrape.Paginator, extractor *scrape.Extractor, baseStore store.BaseStore, visited storage.VisitedStore, appCfg *config.AppConfig, log *logrus.Entry) bulkLevelStats {
	var stats bulkLevelStats
	levelLog := log.WithFields(logrus.Fields{"category": category, "level": level})

	targets, err := paginator.ListDetailURLs(ctx, category, level)
	if err != nil {
		levelLog.WithField("error_category", utils.CategorizeError(err)).Warnf("Discovery failed: %v", err)
		stats.errors++
		return stats
	}
	levelLog.Infof("Discovered %d detail URLs", len(targets))

	var collected []models.ScrapedRecord
	for i, target := range targets {
		if ctx.Err() != nil {
			break
		}

		if seen, _, err := visited.IsScraped(target); err != nil {
			levelLog.Warnf("Visited store lookup failed for %s: %v", target, err)
		} else if seen {
			// No request was made, so no politeness pause is owed
			stats.skippedVisited++
			continue
		}

		rec, err := extractor.Extract(ctx, target)
		if err != nil {
			levelLog.WithField("error_category", utils.CategorizeError(err)).Warnf("Extract failed for %s: %v", target, err)
			stats.errors++
		} else {
			entry := &storage.VisitedEntry{ScrapedAt: time.Now().UTC(), HadDeepLink: rec.HasDeepLink()}
			if _, err := visited.MarkScraped(target, entry); err != nil {
				levelLog.Warnf("Visited store write failed for %s: %v", target, err)
			}

			if !rec.HasDeepLink() {
				stats.skippedNoLink++
			} else {
				collected = append(collected, *rec)
				stats.scraped++
			}
		}

		// Pause after every attempted fetch, but not after the last one
		if i < len(targets)-1 {
			select {
			case <-ctx.Done():
			case <-time.After(appCfg.DetailDelay):
			}
		}
	}

	if len(collected) > 0 {
		if _, err := baseStore.MergeAndSave(collected); err != nil {
			levelLog.Errorf("Persist failed: %v", err)
			stats.errors++
		}
	}

	levelLog.Infof("Level done: scraped=%d skipped_visited=%d skipped_no_link=%d errors=%d",
		stats.scraped, stats.skippedVisited, stats.skippedNoLink, stats.errors)
	return stats
}
