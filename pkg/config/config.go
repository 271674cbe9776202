package config

import "time"

// AppConfig holds the global application configuration
type AppConfig struct {
	SourceBaseURL         string           `yaml:"source_base_url"`
	UserAgent             string           `yaml:"user_agent,omitempty"`
	RespectRobots         bool             `yaml:"respect_robots,omitempty"`
	MaxListingPages       int              `yaml:"max_listing_pages,omitempty"`
	BulkMaxListingPages   int              `yaml:"bulk_max_listing_pages,omitempty"`
	ListingPageDelay      time.Duration    `yaml:"listing_page_delay,omitempty"`
	DetailDelay           time.Duration    `yaml:"detail_delay,omitempty"`
	MinHostDelay          time.Duration    `yaml:"min_host_delay,omitempty"`
	MaxRetries            int              `yaml:"max_retries,omitempty"`
	InitialRetryDelay     time.Duration    `yaml:"initial_retry_delay,omitempty"`
	MaxRetryDelay         time.Duration    `yaml:"max_retry_delay,omitempty"`
	MaxConcurrentRequests int              `yaml:"max_concurrent_requests,omitempty"`
	MaxPageBytes          int64            `yaml:"max_page_bytes,omitempty"`
	JobTimeout            time.Duration    `yaml:"job_timeout,omitempty"`
	StorePath             string           `yaml:"store_path"`
	StateDir              string           `yaml:"state_dir"`
	HTTPClientSettings    HTTPClientConfig `yaml:"http_client_settings,omitempty"`
}

// HTTPClientConfig holds settings for the shared HTTP client
type HTTPClientConfig struct {
	Timeout               time.Duration `yaml:"timeout,omitempty"`                 // Overall request timeout
	MaxIdleConns          int           `yaml:"max_idle_conns,omitempty"`          // Max total idle connections
	MaxIdleConnsPerHost   int           `yaml:"max_idle_conns_per_host,omitempty"` // Max idle connections per host
	IdleConnTimeout       time.Duration `yaml:"idle_conn_timeout,omitempty"`       // Timeout for idle connections
	TLSHandshakeTimeout   time.Duration `yaml:"tls_handshake_timeout,omitempty"`   // Timeout for TLS handshake
	ExpectContinueTimeout time.Duration `yaml:"expect_continue_timeout,omitempty"` // Timeout for 100-continue
	ForceAttemptHTTP2     *bool         `yaml:"force_attempt_http2,omitempty"`     // nil=default, true=force, false=disable
	DialerTimeout         time.Duration `yaml:"dialer_timeout,omitempty"`          // Connection dial timeout
	DialerKeepAlive       time.Duration `yaml:"dialer_keep_alive,omitempty"`       // TCP keep-alive interval
}
