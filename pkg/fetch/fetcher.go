package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"base-scraper/pkg/config"
	"base-scraper/pkg/utils"
)

// Fetcher issues HTTP GETs with browser-mimicking headers, bounded retry,
// per-host rate limiting, and a process-wide concurrency gate. All outbound
// requests from every job flow through one Fetcher so the total request
// rate against the source site stays bounded regardless of job count.
type Fetcher struct {
	client  *http.Client
	cfg     *config.AppConfig
	gate    *semaphore.Weighted // global outbound request gate, may be nil in tests
	limiter *RateLimiter        // per-host politeness floor, may be nil in tests
	robots  *RobotsChecker      // optional robots.txt enforcement
	log     *logrus.Entry
}

// NewFetcher creates a new Fetcher instance
func NewFetcher(client *http.Client, cfg *config.AppConfig, log *logrus.Entry) *Fetcher {
	return &Fetcher{
		client: client,
		cfg:    cfg,
		log:    log,
	}
}

// WithGate routes all fetches through the given weighted semaphore
func (f *Fetcher) WithGate(gate *semaphore.Weighted) *Fetcher {
	f.gate = gate
	return f
}

// WithRateLimiter applies a per-host minimum request gap before each fetch
func (f *Fetcher) WithRateLimiter(limiter *RateLimiter) *Fetcher {
	f.limiter = limiter
	return f
}

// WithRobots enables robots.txt checks before each fetch
func (f *Fetcher) WithRobots(robots *RobotsChecker) *Fetcher {
	f.robots = robots
	return f
}

// FetchHTML fetches a single page and returns its body as a string.
// Any failure (network, non-2xx, robots disallow) is returned as an error;
// callers treat errors as "page unavailable", not as fatal conditions.
func (f *Fetcher) FetchHTML(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", utils.ErrRequestCreation, pageURL, err)
	}

	// Headers mimicking a desktop browser. The source site serves degraded
	// content to non-browser agents.
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	if f.robots != nil && !f.robots.Allowed(ctx, req.URL) {
		return "", fmt.Errorf("%w: %s", utils.ErrRobotsDisallowed, pageURL)
	}

	if f.gate != nil {
		if err := f.gate.Acquire(ctx, 1); err != nil {
			return "", err
		}
		defer f.gate.Release(1)
	}

	host := req.URL.Hostname()
	if f.limiter != nil {
		f.limiter.ApplyDelay(ctx, host, 0)
	}

	resp, err := f.FetchWithRetry(ctx, req)
	if f.limiter != nil {
		f.limiter.UpdateLastRequestTime(host)
	}
	if err != nil {
		if resp != nil {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}
		return "", err
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, f.maxPageBytes()))
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", utils.ErrResponseBodyRead, pageURL, err)
	}
	return string(bodyBytes), nil
}

func (f *Fetcher) maxPageBytes() int64 {
	if f.cfg.MaxPageBytes > 0 {
		return f.cfg.MaxPageBytes
	}
	return 20 * 1024 * 1024
}

// FetchWithRetry performs an HTTP request with retry and exponential
// backoff plus jitter for transient network errors and retryable HTTP
// status codes (5xx, 429). 4xx responses are returned without retry.
// On a 2xx response the caller must close the body.
func (f *Fetcher) FetchWithRetry(ctx context.Context, req *http.Request) (*http.Response, error) {
	var lastErr error
	var currentResp *http.Response

	reqLog := f.log.WithField("url", req.URL.String())

	maxRetries := f.cfg.MaxRetries
	initialRetryDelay := f.cfg.InitialRetryDelay
	maxRetryDelay := f.cfg.MaxRetryDelay

	// Initial attempt + maxRetries retries
	for attempt := 0; attempt <= maxRetries; attempt++ {
		// Bail out before attempting or sleeping if the context is done
		select {
		case <-ctx.Done():
			if lastErr != nil {
				return nil, fmt.Errorf("context cancelled (%v) during retry backoff after error: %w", ctx.Err(), lastErr)
			}
			return nil, fmt.Errorf("context cancelled before first attempt: %w", ctx.Err())
		default:
		}

		if attempt > 0 {
			// initial * 2^(attempt-1), capped by maxRetryDelay
			backoff := float64(initialRetryDelay) * math.Pow(2, float64(attempt-1))
			delay := time.Duration(backoff)
			if delay <= 0 || delay > maxRetryDelay {
				delay = maxRetryDelay
			}

			// Jitter: +/- 10% to avoid thundering herd
			var jitter time.Duration
			if delay > 0 {
				jitter = time.Duration(rand.Int63n(int64(delay)/5)) - (delay / 10)
			}
			finalDelay := delay + jitter
			if finalDelay < 0 {
				finalDelay = 0
			}

			reqLog.WithFields(logrus.Fields{"attempt": attempt, "max_retries": maxRetries, "delay": finalDelay}).Warn("Retrying request...")

			select {
			case <-time.After(finalDelay):
			case <-ctx.Done():
				if lastErr != nil {
					return nil, fmt.Errorf("context cancelled (%v) during retry delay after error: %w", ctx.Err(), lastErr)
				}
				return nil, fmt.Errorf("context cancelled during retry delay: %w", ctx.Err())
			}
		}

		currentResp, lastErr = f.client.Do(req.WithContext(ctx))

		// Network-level errors (DNS, TCP, TLS) have no HTTP response
		if lastErr != nil {
			if errors.Is(lastErr, context.Canceled) || errors.Is(lastErr, context.DeadlineExceeded) {
				if currentResp != nil {
					io.Copy(io.Discard, currentResp.Body)
					currentResp.Body.Close()
				}
				// Context errors are not retried
				return nil, lastErr
			}

			reqLog.WithField("attempt", attempt).Errorf("Network error: %v", lastErr)
			if currentResp != nil {
				io.Copy(io.Discard, currentResp.Body)
				currentResp.Body.Close()
			}
			continue
		}

		statusCode := currentResp.StatusCode
		resLog := reqLog.WithFields(logrus.Fields{"status_code": statusCode, "attempt": attempt})

		switch {
		case statusCode >= 200 && statusCode < 300:
			resLog.Debug("Successfully fetched")
			return currentResp, nil

		case statusCode >= 500:
			resLog.Warn("Server error, retrying...")
			lastErr = fmt.Errorf("%w: status %d %s", utils.ErrServerHTTPError, statusCode, currentResp.Status)
			io.Copy(io.Discard, currentResp.Body)
			currentResp.Body.Close()
			continue

		case statusCode == http.StatusTooManyRequests:
			resLog.Warn("Received 429 Too Many Requests, retrying...")
			lastErr = fmt.Errorf("%w: status %d %s", utils.ErrClientHTTPError, statusCode, currentResp.Status)
			io.Copy(io.Discard, currentResp.Body)
			currentResp.Body.Close()
			continue

		case statusCode >= 400 && statusCode < 500:
			// Not retryable (404, 403, ...). Caller must close the body.
			resLog.Warn("Client error (4xx), not retrying")
			return currentResp, fmt.Errorf("%w: status %d %s", utils.ErrClientHTTPError, statusCode, currentResp.Status)

		default:
			resLog.Warnf("Non-retryable/unexpected status: %d", statusCode)
			return currentResp, fmt.Errorf("%w: status %d %s", utils.ErrOtherHTTPError, statusCode, currentResp.Status)
		}
	}

	reqLog.Errorf("All %d fetch retries failed. Last error: %v", maxRetries+1, lastErr)
	if currentResp != nil {
		io.Copy(io.Discard, currentResp.Body)
		currentResp.Body.Close()
	}

	if lastErr != nil {
		if errors.Is(lastErr, context.Canceled) || errors.Is(lastErr, context.DeadlineExceeded) {
			return nil, lastErr
		}
		return nil, fmt.Errorf("%w: %w", utils.ErrRetryFailed, lastErr)
	}
	return nil, utils.ErrRetryFailed
}
