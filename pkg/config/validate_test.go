package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"base-scraper/pkg/utils"
)

func validConfig() *AppConfig {
	return &AppConfig{SourceBaseURL: "https://bases.example.com"}
}

func TestValidate_SourceBaseURLRequired(t *testing.T) {
	cfg := &AppConfig{}
	_, err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, utils.ErrConfigValidation))
}

func TestValidate_SourceBaseURLMustBeAbsolute(t *testing.T) {
	for _, raw := range []string{"bases.example.com", "/plans/", "://bad"} {
		cfg := &AppConfig{SourceBaseURL: raw}
		_, err := cfg.Validate()
		assert.Error(t, err, "URL %q should be rejected", raw)
	}
}

func TestValidate_TrailingSlashTrimmed(t *testing.T) {
	cfg := &AppConfig{SourceBaseURL: "https://bases.example.com/"}
	_, err := cfg.Validate()
	require.NoError(t, err)
	assert.Equal(t, "https://bases.example.com", cfg.SourceBaseURL)
}

func TestValidate_AppliesDefaults(t *testing.T) {
	cfg := validConfig()
	warnings, err := cfg.Validate()
	require.NoError(t, err)

	assert.Equal(t, DefaultUserAgent, cfg.UserAgent)
	assert.Equal(t, 20, cfg.MaxListingPages)
	assert.Equal(t, 50, cfg.BulkMaxListingPages)
	assert.Equal(t, 750*time.Millisecond, cfg.ListingPageDelay)
	assert.Equal(t, 500*time.Millisecond, cfg.DetailDelay)
	assert.Equal(t, 250*time.Millisecond, cfg.MinHostDelay)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 2*time.Second, cfg.InitialRetryDelay)
	assert.Equal(t, 30*time.Second, cfg.MaxRetryDelay)
	assert.Equal(t, 4, cfg.MaxConcurrentRequests)
	assert.Equal(t, int64(20*1024*1024), cfg.MaxPageBytes)
	assert.Equal(t, 30*time.Minute, cfg.JobTimeout)
	assert.Equal(t, "./data/bases.json", cfg.StorePath)
	assert.Equal(t, "./scraper_state", cfg.StateDir)

	// Store/state defaults and the concurrency default are surfaced
	assert.NotEmpty(t, warnings)
}

func TestValidate_ExplicitValuesKept(t *testing.T) {
	cfg := &AppConfig{
		SourceBaseURL:         "https://bases.example.com",
		UserAgent:             "custom-agent",
		MaxListingPages:       7,
		BulkMaxListingPages:   90,
		MinHostDelay:          100 * time.Millisecond,
		MaxRetries:            1,
		InitialRetryDelay:     time.Second,
		MaxRetryDelay:         5 * time.Second,
		MaxConcurrentRequests: 8,
		JobTimeout:            time.Hour,
		StorePath:             "/tmp/bases.json",
		StateDir:              "/tmp/state",
	}
	warnings, err := cfg.Validate()
	require.NoError(t, err)
	assert.Empty(t, warnings)

	assert.Equal(t, "custom-agent", cfg.UserAgent)
	assert.Equal(t, 7, cfg.MaxListingPages)
	assert.Equal(t, 90, cfg.BulkMaxListingPages)
	assert.Equal(t, 100*time.Millisecond, cfg.MinHostDelay)
	assert.Equal(t, time.Hour, cfg.JobTimeout)
}

func TestValidate_BulkCeilingRaisedToListingCeiling(t *testing.T) {
	cfg := validConfig()
	cfg.MaxListingPages = 40
	cfg.BulkMaxListingPages = 10

	warnings, err := cfg.Validate()
	require.NoError(t, err)
	assert.Equal(t, 40, cfg.BulkMaxListingPages)
	assert.NotEmpty(t, warnings)
}

func TestValidate_NegativeJobTimeoutDisabled(t *testing.T) {
	cfg := validConfig()
	cfg.JobTimeout = -time.Minute

	warnings, err := cfg.Validate()
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), cfg.JobTimeout)

	found := false
	for _, w := range warnings {
		if w == "job_timeout cannot be negative, disabling timeout" {
			found = true
		}
	}
	assert.True(t, found, "expected a job_timeout warning, got %v", warnings)
}

func TestValidate_NegativeMaxRetriesClamped(t *testing.T) {
	cfg := validConfig()
	cfg.MaxRetries = -2
	cfg.InitialRetryDelay = time.Second

	warnings, err := cfg.Validate()
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.MaxRetries)
	assert.NotEmpty(t, warnings)
}

func TestValidate_InitialDelayClampedToMax(t *testing.T) {
	cfg := validConfig()
	cfg.MaxRetries = 2
	cfg.InitialRetryDelay = time.Minute
	cfg.MaxRetryDelay = 10 * time.Second

	warnings, err := cfg.Validate()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, cfg.InitialRetryDelay)
	assert.NotEmpty(t, warnings)
}

func TestValidate_HTTPClientDefaults(t *testing.T) {
	cfg := validConfig()
	_, err := cfg.Validate()
	require.NoError(t, err)

	h := cfg.HTTPClientSettings
	assert.Equal(t, 45*time.Second, h.Timeout)
	assert.Equal(t, 100, h.MaxIdleConns)
	assert.Equal(t, 2, h.MaxIdleConnsPerHost)
	assert.Equal(t, 90*time.Second, h.IdleConnTimeout)
	assert.Equal(t, 10*time.Second, h.TLSHandshakeTimeout)
	assert.Equal(t, 15*time.Second, h.DialerTimeout)
}
