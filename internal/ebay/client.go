// Package ebay is the single choke point for outbound calls to eBay's REST
// surface: it attaches authentication, enforces the local daily rate limit,
// retries transient failures, and raises structured API errors.
package ebay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	lerrors "github.com/lootly/lootly/internal/errors"
	"github.com/lootly/lootly/internal/metrics"
	"github.com/lootly/lootly/internal/oauth"
	"github.com/lootly/lootly/internal/ratelimit"
)

// Response headers eBay uses for rate limiting and request tracking.
const (
	headerLimitReset = "X-EBAY-C-LIMIT-RESET"
	headerRequestID  = "X-EBAY-C-REQUEST-ID"
)

const defaultRetryAfter = 60 * time.Second

// ClientConfig holds REST client settings.
type ClientConfig struct {
	BaseURL       string
	MarketplaceID string
	MaxRetries    int
	Timeout       time.Duration
}

func (c ClientConfig) withDefaults() ClientConfig {
	if c.MarketplaceID == "" {
		c.MarketplaceID = "EBAY_US"
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	return c
}

// Options carries per-request parameters.
type Options struct {
	// Params are appended to the endpoint as query parameters.
	Params url.Values
	// Body is JSON-encoded as the request body when non-nil.
	Body any
	// Headers override or extend the default header set.
	Headers map[string]string
	// Scope selects a client-credentials token. When empty the persisted
	// user token is used, which fails with the consent-required signal if
	// absent or expired.
	Scope string
}

// Client is the authenticated, rate-limited eBay REST client. A single
// underlying HTTP session is created lazily, reused across calls, and kept
// alive through per-call errors; only Close releases it.
type Client struct {
	cfg     ClientConfig
	oauth   *oauth.Manager
	limiter *ratelimit.DailyLimiter
	prom    *metrics.Metrics
	logger  zerolog.Logger

	mu      sync.Mutex
	session *http.Client

	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient creates a REST client on top of the OAuth manager and limiter.
func NewClient(cfg ClientConfig, oauthMgr *oauth.Manager, limiter *ratelimit.DailyLimiter, prom *metrics.Metrics, logger zerolog.Logger) *Client {
	return &Client{
		cfg:     cfg.withDefaults(),
		oauth:   oauthMgr,
		limiter: limiter,
		prom:    prom,
		logger:  logger.With().Str("component", "ebay_client").Logger(),
		sleep:   sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// getSession lazily creates the shared HTTP session.
func (c *Client) getSession() *http.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		c.session = &http.Client{Timeout: c.cfg.Timeout}
	}
	return c.session
}

// Close releases the underlying HTTP session.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		c.session.CloseIdleConnections()
		c.session = nil
	}
}

// RateLimitUsage returns the local daily rate limiter's usage snapshot.
func (c *Client) RateLimitUsage() ratelimit.Usage {
	return c.limiter.Usage()
}

// Request makes an authenticated API call with retries and returns the raw
// JSON response body. Untyped JSON stays confined here; callers decode into
// their own record types.
func (c *Client) Request(ctx context.Context, method, endpoint string, opts Options) (json.RawMessage, error) {
	if err := c.limiter.Acquire(ctx); err != nil {
		return nil, err
	}

	fullURL := c.cfg.BaseURL + endpoint
	if len(opts.Params) > 0 {
		fullURL += "?" + opts.Params.Encode()
	}

	var bodyBytes []byte
	if opts.Body != nil {
		var err error
		bodyBytes, err = json.Marshal(opts.Body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxRetries; attempt++ {
		token, err := c.selectToken(ctx, opts.Scope)
		if err != nil {
			return nil, err
		}

		result, retry, err := c.attempt(ctx, method, fullURL, bodyBytes, opts.Headers, token, attempt)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !retry {
			return nil, err
		}
	}
	return nil, lastErr
}

// selectToken picks a client-credentials token for the scope, or the user
// token when no scope is given.
func (c *Client) selectToken(ctx context.Context, scope string) (string, error) {
	if scope != "" {
		return c.oauth.ClientCredentialsToken(ctx, scope)
	}
	return c.oauth.UserToken(ctx)
}

// attempt performs one HTTP exchange. The second return value reports
// whether the caller may retry.
func (c *Client) attempt(ctx context.Context, method, fullURL string, body []byte, headers map[string]string, token string, attempt int) (json.RawMessage, bool, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
	if err != nil {
		return nil, false, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-EBAY-C-MARKETPLACE-ID", c.cfg.MarketplaceID)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Content-Language", "en-US")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	lastAttempt := attempt == c.cfg.MaxRetries-1
	start := time.Now()
	resp, err := c.getSession().Do(req)
	if err != nil {
		// Network-level failure: exponential backoff, then retry.
		c.logger.Error().Err(err).Int("attempt", attempt+1).Msg("network error")
		if lastAttempt {
			return nil, false, fmt.Errorf("request failed: %w", err)
		}
		backoff := time.Duration(1<<attempt) * time.Second
		if serr := c.sleep(ctx, backoff); serr != nil {
			return nil, false, serr
		}
		return nil, true, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, fmt.Errorf("reading response: %w", err)
	}

	c.prom.RecordAPICall(method, resp.StatusCode, time.Since(start))
	c.logger.Debug().
		Str("method", method).
		Str("url", fullURL).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("request completed")

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if len(respBody) == 0 {
			return json.RawMessage("{}"), false, nil
		}
		return json.RawMessage(respBody), false, nil
	}

	requestID := resp.Header.Get(headerRequestID)
	apiErr := lerrors.NewAPIError(resp.StatusCode, respBody, requestID)

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		// Stale token: invalidate the cache so the next pass acquires fresh.
		c.logger.Warn().Msg("received 401, clearing token cache")
		c.oauth.ClearCache()
		if !lastAttempt {
			return nil, true, apiErr
		}
	case http.StatusTooManyRequests:
		if !lastAttempt {
			wait := retryAfter(resp.Header)
			c.logger.Warn().Dur("wait", wait).Msg("rate limited by eBay, waiting before retry")
			if serr := c.sleep(ctx, wait); serr != nil {
				return nil, false, serr
			}
			return nil, true, apiErr
		}
	default:
		// Transient server errors get exponential backoff within the attempt
		// budget; terminal errors (4xx) raise immediately.
		if apiErr.IsRetryable() && !lastAttempt {
			backoff := time.Duration(1<<attempt) * time.Second
			if serr := c.sleep(ctx, backoff); serr != nil {
				return nil, false, serr
			}
			return nil, true, apiErr
		}
	}
	return nil, false, apiErr
}

// retryAfter reads the limit-reset header, falling back to the default wait.
func retryAfter(h http.Header) time.Duration {
	if v := h.Get(headerLimitReset); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultRetryAfter
}

// Get makes a GET request.
func (c *Client) Get(ctx context.Context, endpoint string, opts Options) (json.RawMessage, error) {
	return c.Request(ctx, http.MethodGet, endpoint, opts)
}

// Post makes a POST request.
func (c *Client) Post(ctx context.Context, endpoint string, opts Options) (json.RawMessage, error) {
	return c.Request(ctx, http.MethodPost, endpoint, opts)
}

// Put makes a PUT request.
func (c *Client) Put(ctx context.Context, endpoint string, opts Options) (json.RawMessage, error) {
	return c.Request(ctx, http.MethodPut, endpoint, opts)
}

// Delete makes a DELETE request.
func (c *Client) Delete(ctx context.Context, endpoint string, opts Options) (json.RawMessage, error) {
	return c.Request(ctx, http.MethodDelete, endpoint, opts)
}
