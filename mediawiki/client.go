// Package mediawiki is a client library for MediaWiki-style encyclopedia
// APIs. It resolves page titles and ids to Page values, follows redirects,
// detects disambiguation pages, drains continued query results, and exposes
// lazily-computed page facets (content, summary, links, categories, ...).
package mediawiki

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/Idran/MemoryTauAPI/metrics"
	"github.com/Idran/MemoryTauAPI/tracing"
)

// Client handles communication with a MediaWiki-style API endpoint.
type Client struct {
	config     *Config
	httpClient *http.Client
	logger     *slog.Logger

	// Rate limiting - shared last-completion timestamp across all call paths
	limiter *rateLimiter

	// Memoization for idempotent query methods (search, suggest)
	memo memoCache
}

// NewClient creates a new API client. A nil config selects DefaultConfig;
// a nil logger selects slog.Default.
func NewClient(config *Config, logger *slog.Logger) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	// Configure HTTP transport for connection reuse
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout:   config.Timeout,
			Transport: transport,
		},
		logger:  logger,
		limiter: newRateLimiter(config.RateLimit),
	}
}

// request performs one API round trip. format=json is always injected and
// action defaults to query. The decoded body is returned as-is even when it
// carries an "error" payload, so callers can classify API-reported errors
// with checkAPIError. A transport-level timeout is the only condition this
// layer reports as a typed error of its own.
func (c *Client) request(ctx context.Context, params url.Values) (map[string]any, error) {
	params.Set("format", "json")
	if params.Get("action") == "" {
		params.Set("action", "query")
	}
	action := params.Get("action")

	ctx, span := tracing.StartSpan(ctx, "mediawiki.request")
	defer span.End()
	tracing.AddQueryAttributes(span, action, params.Get("titles"))

	c.limiter.wait()
	defer c.limiter.done()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.APIURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordAPIRequest(action, time.Since(start).Seconds(), false)
		tracing.RecordError(span, err)
		if isTimeout(err) {
			c.logger.Warn("API request timed out",
				"action", action,
				"timeout", c.config.Timeout)
			return nil, &HTTPTimeoutError{Query: params.Encode()}
		}
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.RecordAPIRequest(action, time.Since(start).Seconds(), false)
		tracing.RecordError(span, err)
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		metrics.RecordAPIRequest(action, time.Since(start).Seconds(), false)
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
	}

	var result map[string]any
	if err := json.Unmarshal(body, &result); err != nil {
		metrics.RecordAPIRequest(action, time.Since(start).Seconds(), false)
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	metrics.RecordAPIRequest(action, time.Since(start).Seconds(), true)
	c.logger.Debug("API request",
		"action", action,
		"status", resp.StatusCode,
		"elapsed", time.Since(start))

	return result, nil
}

// isTimeout reports whether err is a transport-level timeout.
func isTimeout(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// Helper functions for walking decoded JSON

func getMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func getSlice(v any) []any {
	s, _ := v.([]any)
	return s
}

func getString(v any) string {
	s, _ := v.(string)
	return s
}

func getInt(v any) int {
	// JSON numbers decode as float64
	if f, ok := v.(float64); ok {
		return int(f)
	}
	return 0
}

// toStringMap flattens a pageprops-style object into a string map.
func toStringMap(v any) map[string]string {
	m := getMap(v)
	if m == nil {
		return map[string]string{}
	}
	out := make(map[string]string, len(m))
	for k, val := range m {
		out[k] = fmt.Sprint(val)
	}
	return out
}
