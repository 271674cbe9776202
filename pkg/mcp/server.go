package mcp

import (
	"fmt"
	"net/url"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"base-scraper/pkg/config"
	"base-scraper/pkg/fetch"
	"base-scraper/pkg/jobs"
	"base-scraper/pkg/scrape"
	"base-scraper/pkg/store"
)

const (
	serverName    = "base-scraper"
	serverVersion = "1.0.0"
)

// ServerConfig holds configuration for the MCP server
type ServerConfig struct {
	AppConfig  *config.AppConfig
	ConfigPath string
	Transport  string // "stdio" or "sse"
	Port       int
	Logger     *logrus.Logger
}

// Server exposes job control over MCP: starting scrape jobs, polling
// their progress, probing scrapable levels, and inspecting the store.
type Server struct {
	mcpServer *server.MCPServer
	cfg       *ServerConfig
	log       *logrus.Entry

	fetcher   *fetch.Fetcher
	manager   *jobs.Manager
	runner    *jobs.Runner
	baseStore store.BaseStore
}

// NewServer creates a new MCP server instance with the full pipeline wired
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg.AppConfig == nil {
		return nil, fmt.Errorf("AppConfig is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	log := cfg.Logger.WithField("component", "mcp")

	appCfg := cfg.AppConfig
	client := fetch.NewClient(appCfg.HTTPClientSettings, log)
	gate := semaphore.NewWeighted(int64(appCfg.MaxConcurrentRequests))
	limiter := fetch.NewRateLimiter(appCfg.MinHostDelay, log)
	fetcher := fetch.NewFetcher(client, appCfg, log).
		WithGate(gate).
		WithRateLimiter(limiter)
	if appCfg.RespectRobots {
		fetcher = fetcher.WithRobots(fetch.NewRobotsChecker(client, appCfg.UserAgent, log))
	}

	paginator := scrape.NewPaginator(fetcher, appCfg.SourceBaseURL, appCfg.MaxListingPages, appCfg.ListingPageDelay, log)
	extractor := scrape.NewExtractor(fetcher, log)
	baseStore := store.NewFileStore(appCfg.StorePath, log)
	manager := jobs.NewManager()
	runner := jobs.NewRunner(appCfg, manager, paginator, extractor, baseStore, log)

	s := &Server{
		mcpServer: server.NewMCPServer(serverName, serverVersion, server.WithLogging()),
		cfg:       cfg,
		log:       log,
		fetcher:   fetcher,
		manager:   manager,
		runner:    runner,
		baseStore: baseStore,
	}
	s.registerTools()
	return s, nil
}

// registerTools registers all available MCP tools
func (s *Server) registerTools() {
	listLevelsTool := mcp.NewTool("list_levels",
		mcp.WithDescription("Probe the source site for scrapable hall levels per category"),
	)
	s.mcpServer.AddTool(listLevelsTool, s.handleListLevels)

	scrapeLevelTool := mcp.NewTool("scrape_level",
		mcp.WithDescription("Start a background scrape job for one hall category and level. Returns immediately with a job ID."),
		mcp.WithString("category",
			mcp.Required(),
			mcp.Description("Hall category: 'main_hall' or 'builder_hall'"),
		),
		mcp.WithNumber("level",
			mcp.Required(),
			mcp.Description("Hall level to scrape (e.g. 9 for TH9)"),
		),
	)
	s.mcpServer.AddTool(scrapeLevelTool, s.handleScrapeLevel)

	scrapeURLTool := mcp.NewTool("scrape_url",
		mcp.WithDescription("Start a background scrape job for a single detail page URL"),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("Detail page URL on the source site"),
		),
	)
	s.mcpServer.AddTool(scrapeURLTool, s.handleScrapeURL)

	getJobStatusTool := mcp.NewTool("get_job_status",
		mcp.WithDescription("Get the full state of a scrape job, including collected records and per-URL errors"),
		mcp.WithString("job_id",
			mcp.Required(),
			mcp.Description("The job ID returned by scrape_level or scrape_url"),
		),
	)
	s.mcpServer.AddTool(getJobStatusTool, s.handleGetJobStatus)

	listJobsTool := mcp.NewTool("list_jobs",
		mcp.WithDescription("List all known scrape jobs, newest first"),
	)
	s.mcpServer.AddTool(listJobsTool, s.handleListJobs)

	storeStatsTool := mcp.NewTool("store_stats",
		mcp.WithDescription("Summarize the persisted base store: total count, last update, per-category breakdown"),
	)
	s.mcpServer.AddTool(storeStatsTool, s.handleStoreStats)

	s.log.Infof("Registered %d MCP tools", 6)
}

// Run starts the MCP server with the configured transport
func (s *Server) Run() error {
	switch s.cfg.Transport {
	case "stdio":
		s.log.Info("Starting MCP server with stdio transport")
		return server.ServeStdio(s.mcpServer)
	case "sse":
		addr := fmt.Sprintf(":%d", s.cfg.Port)
		s.log.Infof("Starting MCP server with SSE transport on %s", addr)
		sseServer := server.NewSSEServer(s.mcpServer)
		return sseServer.Start(addr)
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio, sse)", s.cfg.Transport)
	}
}

// validateSourceURL checks that an ad-hoc URL points at the configured
// source site; scraping arbitrary hosts through the job API is not allowed
func (s *Server) validateSourceURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	base, err := url.Parse(s.cfg.AppConfig.SourceBaseURL)
	if err != nil {
		return fmt.Errorf("invalid source_base_url: %w", err)
	}
	if parsed.Hostname() != base.Hostname() {
		return fmt.Errorf("URL host '%s' does not match source site '%s'", parsed.Hostname(), base.Hostname())
	}
	return nil
}
