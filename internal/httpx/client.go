// Package httpx wraps net/http with the retry/backoff/timeout policy shared
// by harvesting, enrichment, and Solr delivery: every blocking HTTP call in
// RecordManager goes through here so the policy only needs to be right once.
package httpx

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Gobusters/ectologger"
	"golang.org/x/time/rate"
)

const (
	// DefaultTimeout is the per-request timeout applied when a Config omits one.
	DefaultTimeout = 30 * time.Second

	// MaxResponseSize caps how much of a response body is read into memory.
	MaxResponseSize = 10 * 1024 * 1024
)

// Config holds the transport and retry policy for a Client.
type Config struct {
	Timeout            time.Duration
	MaxIdleConns       int
	IdleConnTimeout    time.Duration
	DisableCompression bool

	MaxTries   int           // total attempts including the first; 1 disables retrying
	RetryWait  time.Duration // baseline delay before the first retry
	MaxBackoff time.Duration // backoff ceiling

	RateLimitPerSecond float64 // requests/sec this Client may issue; <= 0 disables limiting
	RateLimitBurst     int     // burst size for the rate limiter; <= 0 defaults to 1
}

// DefaultConfig returns the policy spec.md §4.4 describes: exponential
// backoff from RetryWait, doubling up to a 30s cap.
func DefaultConfig() Config {
	return Config{
		Timeout:            DefaultTimeout,
		MaxIdleConns:       100,
		IdleConnTimeout:    90 * time.Second,
		DisableCompression: false,
		MaxTries:           5,
		RetryWait:          1 * time.Second,
		MaxBackoff:         30 * time.Second,
	}
}

// Response is a read-to-completion HTTP response.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// Client performs HTTP requests with exponential-backoff retry, honoring
// non-retryable statuses and a maximum response size.
type Client struct {
	http    *http.Client
	logger  ectologger.Logger
	cfg     Config
	limiter *rate.Limiter
}

// New constructs a Client. When cfg.RateLimitPerSecond is positive, outgoing
// requests are throttled to that steady-state rate (with a burst of
// cfg.RateLimitBurst, default 1) so a single harvest/enrichment/Solr target
// can't be hammered faster than it allows.
func New(cfg Config, logger ectologger.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	transport := &http.Transport{
		MaxIdleConns:       cfg.MaxIdleConns,
		IdleConnTimeout:    cfg.IdleConnTimeout,
		DisableCompression: cfg.DisableCompression,
	}

	var limiter *rate.Limiter
	if cfg.RateLimitPerSecond > 0 {
		burst := cfg.RateLimitBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitPerSecond), burst)
	}

	return &Client{
		http:    &http.Client{Transport: transport, Timeout: cfg.Timeout},
		logger:  logger,
		cfg:     cfg,
		limiter: limiter,
	}
}

// nonRetryableStatus reports whether a response status should never be
// retried, per spec.md §4.4: "404 is non-retryable".
func nonRetryableStatus(status int) bool {
	return status == http.StatusNotFound
}

// Do executes req, retrying transient failures and non-2xx/non-404
// responses up to cfg.MaxTries times with exponential backoff.
func (c *Client) Do(ctx context.Context, req *http.Request) (*Response, error) {
	maxTries := c.cfg.MaxTries
	if maxTries <= 0 {
		maxTries = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxTries; attempt++ {
		resp, err := c.attempt(ctx, req)
		if err == nil && (resp.StatusCode >= 200 && resp.StatusCode < 300 || nonRetryableStatus(resp.StatusCode)) {
			return resp, nil
		}

		if err != nil {
			lastErr = err
		} else {
			lastErr = fmt.Errorf("httpx: %s %s: status %d: %s", req.Method, req.URL.String(), resp.StatusCode, resp.Body)
		}

		if attempt == maxTries {
			break
		}

		delay := backoff(c.cfg.RetryWait, c.cfg.MaxBackoff, attempt)
		c.logger.WithContext(ctx).Warnf("httpx: retrying %s %s in %s (attempt %d/%d): %v",
			req.Method, req.URL.String(), delay, attempt, maxTries, lastErr)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	return nil, lastErr
}

func (c *Client) attempt(ctx context.Context, req *http.Request) (*Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("httpx: rate limiter: %w", err)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req.Clone(ctx))
	if err != nil {
		return nil, fmt.Errorf("httpx: request failed: %w", err)
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, MaxResponseSize+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("httpx: read body: %w", err)
	}
	if len(body) > MaxResponseSize {
		return nil, fmt.Errorf("httpx: response body too large (max %d bytes)", MaxResponseSize)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       body,
		Duration:   time.Since(start),
	}, nil
}

// Get performs a GET request against url with the supplied headers.
func (c *Client) Get(ctx context.Context, url string, headers map[string]string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("httpx: build request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return c.Do(ctx, req)
}

// backoff computes an exponential delay from initial, doubling each attempt
// and capped at max: attempt 1 -> initial, attempt 2 -> 2*initial, ...
func backoff(initial, max time.Duration, attempt int) time.Duration {
	if initial <= 0 {
		initial = time.Second
	}
	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if max > 0 && delay > max {
			return max
		}
	}
	if max > 0 && delay > max {
		return max
	}
	return delay
}
