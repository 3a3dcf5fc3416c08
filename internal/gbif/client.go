// Package gbif talks to the GBIF occurrence and species APIs: it builds
// query parameters from a filter set, caches successful responses, retries
// rate-limited requests, and satisfies record targets above the per-request
// cap with sequential paged requests.
package gbif

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/karimogit/GBIF3D/internal/errors"
	"github.com/karimogit/GBIF3D/internal/httpclient"
	"github.com/karimogit/GBIF3D/internal/logging"
	"github.com/karimogit/GBIF3D/internal/observability"
	"github.com/karimogit/GBIF3D/internal/respcache"
)

// Package-level logger specific to the gbif service
var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar)
	closeLogger     func() error
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "gbif.log")
	serviceLevelVar.Set(slog.LevelDebug)

	logger, closeLogger, err = logging.NewFileLogger(logFilePath, "gbif", serviceLevelVar)
	if err != nil {
		log.Printf("Failed to initialize gbif file logger at %s: %v. Service logging disabled.", logFilePath, err)
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		logger = slog.New(fbHandler).With("service", "gbif")
		closeLogger = func() error { return nil }
	}
}

// Backoff applied to a 429 response without a usable Retry-After header, and
// the cap on server-provided waits.
const (
	fixedBackoff  = 8 * time.Second
	maxRetryAfter = 60 * time.Second
)

// Client provides methods for interacting with the GBIF API. It is safe for
// concurrent use; beyond cache population its operations are side-effect
// free.
type Client struct {
	config  Config
	http    *httpclient.Client
	cache   *respcache.Cache
	metrics *observability.Metrics

	// sleep is replaceable in tests so retry and chunk delays can be
	// observed without waiting them out.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient creates a new GBIF API client sharing the given response cache.
// Zero config values fall back to defaults. Metrics may be nil.
func NewClient(config Config, cache *respcache.Cache, metrics *observability.Metrics) *Client {
	defaults := DefaultConfig()
	if config.BaseURL == "" {
		config.BaseURL = defaults.BaseURL
	}
	if config.UserAgent == "" {
		config.UserAgent = defaults.UserAgent
	}
	if config.Timeout == 0 {
		config.Timeout = defaults.Timeout
	}
	if config.PageTTL == 0 {
		config.PageTTL = defaults.PageTTL
	}
	if config.LookupTTL == 0 {
		config.LookupTTL = defaults.LookupTTL
	}
	if config.ChunkDelay == 0 {
		config.ChunkDelay = defaults.ChunkDelay
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = defaults.MaxRetries
	}
	if cache == nil {
		cache = respcache.New()
	}

	client := &Client{
		config: config,
		http: httpclient.New(&httpclient.Config{
			DefaultTimeout: config.Timeout,
			UserAgent:      config.UserAgent,
		}),
		cache:   cache,
		metrics: metrics,
		sleep:   sleepContext,
	}

	logger.Info("GBIF client initialized",
		"base_url", config.BaseURL,
		"page_ttl", config.PageTTL,
		"lookup_ttl", config.LookupTTL,
		"max_retries", config.MaxRetries)

	return client
}

// Close cleans up client resources.
func (c *Client) Close() {
	c.http.Close()
	if closeLogger != nil {
		if err := closeLogger(); err != nil {
			log.Printf("Error closing gbif logger: %v", err)
		}
	}
}

// Search runs one occurrence search request for the given filter set,
// returning the page of records together with the upstream total match count
// and end-of-records flag. Successful pages are cached; a cache hit returns
// immediately with no network call.
func (c *Client) Search(ctx context.Context, filter *FilterSet) (*SearchResult, error) {
	params := filter.Values()
	cacheKey := respcache.CanonicalKey("occurrence-search", params)

	if cached, found := c.cache.Get(cacheKey); found {
		if result, ok := cached.(*SearchResult); ok {
			c.metrics.CacheHit()
			logger.Debug("occurrence search cache hit",
				"cache_key", cacheKey,
				"records", len(result.Results))
			return result, nil
		}
	}
	c.metrics.CacheMiss()

	url := c.config.BaseURL + "/occurrence/search?" + params.Encode()

	var result SearchResult
	if err := c.getJSON(ctx, url, &result); err != nil {
		return nil, err
	}

	c.cache.Set(cacheKey, &result, c.config.PageTTL)

	logger.Debug("occurrence search page cached",
		"cache_key", cacheKey,
		"records", len(result.Results),
		"total_count", result.Count,
		"end_of_records", result.EndOfRecords)

	return &result, nil
}

// getJSON issues one GET with rate-limit retries and decodes the JSON
// response into result.
func (c *Client) getJSON(ctx context.Context, url string, result any) error {
	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		retryAfter, err := c.doGet(ctx, url, result)
		if err == nil {
			return nil
		}
		lastErr = err

		// Only rate-limited requests are retried; every other failure
		// surfaces immediately.
		if !errors.IsRateLimit(err) {
			return err
		}
		if attempt == c.config.MaxRetries {
			break
		}

		logger.Warn("GBIF API rate limited, backing off",
			"attempt", attempt+1,
			"max_retries", c.config.MaxRetries,
			"wait", retryAfter.String(),
			"url", url)
		c.metrics.RateLimited()

		if err := c.sleep(ctx, retryAfter); err != nil {
			return errors.New(err).
				Category(errors.CategoryTimeout).
				Component("gbif").
				Build()
		}
	}

	return lastErr
}

// doGet performs a single request. For a 429 response the returned duration
// is the wait to apply before the next attempt.
func (c *Client) doGet(ctx context.Context, url string, result any) (time.Duration, error) {
	start := time.Now()
	c.metrics.APICall()

	resp, err := c.http.Get(ctx, url)
	if err != nil {
		c.metrics.APIError()
		logger.Error("GBIF API request failed", "error", err, "url", url)
		return 0, errors.Newf("HTTP request failed: %w", err).
			Category(errors.CategoryNetwork).
			Context("url", url).
			Component("gbif").
			Build()
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		c.metrics.APIError()
		return 0, errors.Newf("failed to read response body: %w", err).
			Category(errors.CategoryNetwork).
			Context("url", url).
			Context("status_code", resp.StatusCode).
			Component("gbif").
			Build()
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		c.metrics.APIError()
		return retryWait(resp.Header.Get("Retry-After")), errors.Newf("GBIF API rate limited (status 429)").
			Category(errors.CategoryRateLimit).
			Context("url", url).
			Context("status_code", resp.StatusCode).
			Component("gbif").
			Build()
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.metrics.APIError()
		message := upstreamMessage(bodyBytes)
		logger.Error("GBIF API error response",
			"status_code", resp.StatusCode,
			"message", message,
			"url", url)
		return 0, errors.Newf("GBIF API error (status %d): %s", resp.StatusCode, message).
			Category(errors.CategoryNetwork).
			Context("status_code", resp.StatusCode).
			Context("url", url).
			Component("gbif").
			Build()
	}

	if result != nil {
		if err := json.Unmarshal(bodyBytes, result); err != nil {
			logger.Error("Failed to parse GBIF API response",
				"error", err,
				"url", url,
				"response_size", len(bodyBytes))
			return 0, errors.Newf("failed to parse response: %w", err).
				Category(errors.CategoryFileParsing).
				Context("url", url).
				Component("gbif").
				Build()
		}
	}

	logger.Debug("GBIF API request successful",
		"url", url,
		"duration_ms", time.Since(start).Milliseconds(),
		"response_size", len(bodyBytes))

	return 0, nil
}

// retryWait resolves the wait before a 429 retry: the server-provided
// Retry-After seconds when numeric, capped at maxRetryAfter, otherwise the
// fixed backoff.
func retryWait(header string) time.Duration {
	if header == "" {
		return fixedBackoff
	}
	seconds, err := strconv.Atoi(header)
	if err != nil || seconds < 0 {
		return fixedBackoff
	}
	wait := time.Duration(seconds) * time.Second
	if wait > maxRetryAfter {
		return maxRetryAfter
	}
	return wait
}

// upstreamMessage extracts a best-effort error message from an upstream
// response body.
func upstreamMessage(body []byte) string {
	var apiErr apiError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Message != "" {
		return apiErr.Message
	}
	if len(body) > 0 {
		msg := string(body)
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return msg
	}
	return "upstream request failed"
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ClearCache drops all cached responses.
func (c *Client) ClearCache() {
	c.cache.Clear()
	logger.Info("GBIF response cache cleared")
}
