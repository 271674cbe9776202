package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"base-scraper/pkg/utils"
)

// DefaultUserAgent mimics a common desktop browser. The source site serves
// degraded markup (or rejects outright) requests from obvious bot agents.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// Validate checks AppConfig fields and applies sensible defaults.
// Returns collected warnings and any fatal error.
// Modifies receiver in place to apply defaults.
func (c *AppConfig) Validate() (warnings []string, err error) {
	// SourceBaseURL is the one required field
	if c.SourceBaseURL == "" {
		return nil, fmt.Errorf("%w: source_base_url is required", utils.ErrConfigValidation)
	}
	parsed, parseErr := url.Parse(c.SourceBaseURL)
	if parseErr != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("%w: source_base_url '%s' is not an absolute URL", utils.ErrConfigValidation, c.SourceBaseURL)
	}
	c.SourceBaseURL = strings.TrimRight(c.SourceBaseURL, "/")

	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}

	// Listing page ceilings are runaway-loop guards, not believed bounds
	if c.MaxListingPages <= 0 {
		c.MaxListingPages = 20
	}
	if c.BulkMaxListingPages <= 0 {
		c.BulkMaxListingPages = 50
	}
	if c.BulkMaxListingPages < c.MaxListingPages {
		warnings = append(warnings, fmt.Sprintf(
			"bulk_max_listing_pages (%d) < max_listing_pages (%d), raising to match",
			c.BulkMaxListingPages, c.MaxListingPages))
		c.BulkMaxListingPages = c.MaxListingPages
	}

	// Politeness delays
	if c.ListingPageDelay <= 0 {
		c.ListingPageDelay = 750 * time.Millisecond
	}
	if c.DetailDelay <= 0 {
		c.DetailDelay = 500 * time.Millisecond
	}
	// Floor between any two requests to the same host, across all jobs
	if c.MinHostDelay <= 0 {
		c.MinHostDelay = 250 * time.Millisecond
	}

	// Retries
	if c.MaxRetries < 0 {
		warnings = append(warnings, "max_retries cannot be negative, setting to 0")
		c.MaxRetries = 0
	}
	if c.MaxRetries == 0 && c.InitialRetryDelay == 0 {
		c.MaxRetries = 3
	}
	if c.MaxRetries > 0 {
		if c.InitialRetryDelay <= 0 {
			c.InitialRetryDelay = 2 * time.Second
		}
		if c.MaxRetryDelay <= 0 {
			c.MaxRetryDelay = 30 * time.Second
		}
	}
	if c.InitialRetryDelay > c.MaxRetryDelay && c.MaxRetryDelay > 0 {
		warnings = append(warnings, fmt.Sprintf(
			"initial_retry_delay (%v) > max_retry_delay (%v), using max_retry_delay for initial",
			c.InitialRetryDelay, c.MaxRetryDelay))
		c.InitialRetryDelay = c.MaxRetryDelay
	}

	// Global outbound request gate
	if c.MaxConcurrentRequests <= 0 {
		warnings = append(warnings, "max_concurrent_requests should be > 0, defaulting to 4")
		c.MaxConcurrentRequests = 4
	}

	if c.MaxPageBytes <= 0 {
		c.MaxPageBytes = 20 * 1024 * 1024 // 20 MB
	}

	// JobTimeout bounds a whole job; 0 disables the deadline
	if c.JobTimeout < 0 {
		warnings = append(warnings, "job_timeout cannot be negative, disabling timeout")
		c.JobTimeout = 0
	} else if c.JobTimeout == 0 {
		c.JobTimeout = 30 * time.Minute
	}

	if c.StorePath == "" {
		warnings = append(warnings, "store_path is empty, defaulting to './data/bases.json'")
		c.StorePath = "./data/bases.json"
	}
	if c.StateDir == "" {
		warnings = append(warnings, "state_dir is empty, defaulting to './scraper_state'")
		c.StateDir = "./scraper_state"
	}

	c.validateHTTPClientSettings()

	return warnings, nil
}

// validateHTTPClientSettings applies defaults to HTTP client settings.
func (c *AppConfig) validateHTTPClientSettings() {
	h := &c.HTTPClientSettings
	if h.Timeout <= 0 {
		h.Timeout = 45 * time.Second
	}
	if h.MaxIdleConns <= 0 {
		h.MaxIdleConns = 100
	}
	if h.MaxIdleConnsPerHost <= 0 {
		h.MaxIdleConnsPerHost = 2
	}
	if h.IdleConnTimeout <= 0 {
		h.IdleConnTimeout = 90 * time.Second
	}
	if h.TLSHandshakeTimeout <= 0 {
		h.TLSHandshakeTimeout = 10 * time.Second
	}
	if h.ExpectContinueTimeout <= 0 {
		h.ExpectContinueTimeout = 1 * time.Second
	}
	if h.DialerTimeout <= 0 {
		h.DialerTimeout = 15 * time.Second
	}
	if h.DialerKeepAlive <= 0 {
		h.DialerKeepAlive = 30 * time.Second
	}
}
