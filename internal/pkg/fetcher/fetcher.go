// Package fetcher retrieves pages over HTTP. It owns retries, the
// request rate limit and robots.txt handling; callers only see a
// FetchResult per URL.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	browser "github.com/EDDYCJY/fake-useragent"
	"golang.org/x/time/rate"

	"newscraper/internal/pkg/config"
	"newscraper/internal/pkg/types"
)

const fallbackUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// Fetcher fetches pages with retry, backoff and rate limiting.
type Fetcher struct {
	client      *http.Client
	limiter     *rate.Limiter
	robots      *robotsGate
	retryPolicy config.FetchConfig
	bodyLimit   int64
}

// New creates a fetcher from the fetch configuration.
func New(cfg config.FetchConfig) *Fetcher {
	f := &Fetcher{
		client: &http.Client{
			Timeout: cfg.Timeout(),
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
			},
		},
		limiter:     rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), 1),
		retryPolicy: cfg,
		bodyLimit:   int64(cfg.BodyLimitKb) * 1024,
	}
	if cfg.RespectRobots {
		f.robots = newRobotsGate(f.client)
	}
	return f
}

// Fetch retrieves one page, retrying transport errors and retryable
// status codes with capped exponential backoff.
func (f *Fetcher) Fetch(ctx context.Context, url string) (types.FetchResult, error) {
	if f.robots != nil {
		if err := f.robots.waitForPermission(ctx, url); err != nil {
			return types.FetchResult{}, err
		}
	}

	var lastErr error
	var lastStatusCode int

	for attempt := 1; attempt <= f.retryPolicy.MaxAttempts; attempt++ {
		if err := f.limiter.Wait(ctx); err != nil {
			return types.FetchResult{}, err
		}

		body, statusCode, err := f.fetchContent(ctx, url)
		if err == nil && statusCode == http.StatusOK {
			return types.FetchResult{
				URL:        url,
				Body:       body,
				StatusCode: statusCode,
				FetchedAt:  time.Now(),
			}, nil
		}
		lastStatusCode = statusCode

		if err != nil {
			lastErr = fmt.Errorf("request failed (attempt %d/%d): %w", attempt, f.retryPolicy.MaxAttempts, err)
		} else {
			lastErr = fmt.Errorf("received non-200 response code %d (attempt %d/%d)", statusCode, attempt, f.retryPolicy.MaxAttempts)
			if !isRetryableStatus(statusCode) {
				break
			}
		}

		if attempt < f.retryPolicy.MaxAttempts {
			delay := f.retryPolicy.RetryDelay(attempt)
			select {
			case <-ctx.Done():
				return types.FetchResult{}, ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return types.FetchResult{URL: url, StatusCode: lastStatusCode}, lastErr
}

// Fetches the page content using the HTTP client.
func (f *Fetcher) fetchContent(ctx context.Context, url string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create HTTP request: %v", err)
	}
	req.Header.Set("User-Agent", randomUserAgent())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch URL %s: %v", url, err)
	}
	defer resp.Body.Close()

	reader := io.LimitReader(resp.Body, f.bodyLimit)
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response body: %v", err)
	}

	return body, resp.StatusCode, nil
}

func isRetryableStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

func randomUserAgent() string {
	if ua := browser.Random(); ua != "" {
		return ua
	}
	return fallbackUserAgent
}
