package fetch

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/temoto/robotstxt"
)

// RobotsChecker fetches, parses, and caches robots.txt per host, and
// answers allow/deny for a target URL. A fetch or parse failure is cached
// as nil and treated as "allowed" so an unreachable robots.txt never
// blocks scraping.
type RobotsChecker struct {
	client    *http.Client
	userAgent string
	cache     map[string]*robotstxt.RobotsData // hostname -> parsed data (or nil)
	cacheMu   sync.Mutex
	log       *logrus.Entry
}

// NewRobotsChecker creates a RobotsChecker using the shared HTTP client
func NewRobotsChecker(client *http.Client, userAgent string, log *logrus.Entry) *RobotsChecker {
	return &RobotsChecker{
		client:    client,
		userAgent: userAgent,
		cache:     make(map[string]*robotstxt.RobotsData),
		log:       log,
	}
}

// Allowed reports whether the configured user agent may fetch targetURL.
// Returns true when robots data could not be obtained.
func (rc *RobotsChecker) Allowed(ctx context.Context, targetURL *url.URL) bool {
	data := rc.robotsData(ctx, targetURL)
	if data == nil {
		return true
	}
	return data.TestAgent(targetURL.RequestURI(), rc.userAgent)
}

func (rc *RobotsChecker) robotsData(ctx context.Context, targetURL *url.URL) *robotstxt.RobotsData {
	host := targetURL.Hostname()

	rc.cacheMu.Lock()
	data, found := rc.cache[host]
	rc.cacheMu.Unlock()
	if found {
		return data // may be nil (cached failure)
	}

	robotsURL := &url.URL{Scheme: targetURL.Scheme, Host: targetURL.Host, Path: "/robots.txt"}
	if robotsURL.Scheme != "http" && robotsURL.Scheme != "https" {
		robotsURL.Scheme = "https"
	}
	hostLog := rc.log.WithFields(logrus.Fields{"host": host, "robots_url": robotsURL.String()})
	hostLog.Info("Fetching robots.txt...")

	data = rc.fetchAndParse(ctx, robotsURL.String(), hostLog)

	rc.cacheMu.Lock()
	rc.cache[host] = data
	rc.cacheMu.Unlock()
	return data
}

func (rc *RobotsChecker) fetchAndParse(ctx context.Context, robotsURL string, hostLog *logrus.Entry) *robotstxt.RobotsData {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		hostLog.Errorf("Error creating robots.txt request: %v", err)
		return nil
	}
	req.Header.Set("User-Agent", rc.userAgent)

	resp, err := rc.client.Do(req)
	if err != nil {
		hostLog.Warnf("Fetching robots.txt failed: %v", err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		hostLog.Debugf("robots.txt returned status %d, treating as absent", resp.StatusCode)
		return nil
	}

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, 512*1024))
	if err != nil {
		hostLog.Errorf("Error reading robots.txt body: %v", err)
		return nil
	}

	data, err := robotstxt.FromBytes(bodyBytes)
	if err != nil {
		hostLog.Errorf("Error parsing robots.txt: %v", err)
		return nil
	}
	hostLog.Info("Successfully fetched and parsed robots.txt")
	return data
}
