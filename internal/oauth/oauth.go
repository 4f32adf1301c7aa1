// Package oauth manages eBay OAuth 2.0 tokens: a cached client-credentials
// flow for application access and the user consent (authorization-code) flow.
package oauth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	lerrors "github.com/lootly/lootly/internal/errors"
	"github.com/lootly/lootly/internal/metrics"
	"github.com/lootly/lootly/pkg/tokenstore"
)

// expiryBuffer is how long before its real expiry a cached token is treated
// as stale, so in-flight calls never carry a token about to lapse.
const expiryBuffer = 5 * time.Minute

// defaultExpiresIn applies when the token response omits expires_in.
const defaultExpiresIn = 7200

// Config holds OAuth client settings.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	TokenURL     string
	AuthorizeURL string
	MaxRetries   int
	BaseDelay    time.Duration
	Timeout      time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.BaseDelay == 0 {
		c.BaseDelay = time.Second
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	return c
}

// basicAuth returns the Basic auth header value for token requests.
func (c Config) basicAuth() string {
	cred := base64.StdEncoding.EncodeToString([]byte(c.ClientID + ":" + c.ClientSecret))
	return "Basic " + cred
}

// CachedToken is an access token with expiry tracking. Read-only once built.
type CachedToken struct {
	AccessToken string
	TokenType   string
	ExpiresAt   time.Time
	Scope       string
}

// IsExpired reports whether the token is within the expiry buffer of its
// expiry time.
func (t *CachedToken) IsExpired() bool {
	return !time.Now().UTC().Before(t.ExpiresAt.Add(-expiryBuffer))
}

// TimeUntilExpiry returns the remaining token lifetime.
func (t *CachedToken) TimeUntilExpiry() time.Duration {
	return time.Until(t.ExpiresAt)
}

// TokenMetrics counts token cache activity.
type TokenMetrics struct {
	Requests    int64 `json:"token_requests"`
	CacheHits   int64 `json:"token_cache_hits"`
	CacheMisses int64 `json:"token_cache_misses"`
	Errors      int64 `json:"token_errors"`
}

// Manager serves client-credentials tokens from an in-memory cache keyed by
// scope and owns the persisted user-token lifecycle.
type Manager struct {
	cfg   Config
	store tokenstore.Store

	mu         sync.Mutex
	cache      map[string]*CachedToken
	counts     TokenMetrics
	httpClient *http.Client
	prom       *metrics.Metrics
	logger     zerolog.Logger

	// swappable for tests
	sleep       func(ctx context.Context, d time.Duration) error
	newState    func() string
	openBrowser func(url string) bool
}

// NewManager creates an OAuth manager backed by the given token store.
func NewManager(cfg Config, store tokenstore.Store, prom *metrics.Metrics, logger zerolog.Logger) *Manager {
	cfg = cfg.withDefaults()
	return &Manager{
		cfg:         cfg,
		store:       store,
		cache:       make(map[string]*CachedToken),
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		prom:        prom,
		logger:      logger.With().Str("component", "oauth").Logger(),
		sleep:       sleepCtx,
		newState:    func() string { return uuid.New().String() },
		openBrowser: launchBrowser,
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

func cacheKey(scope string) string {
	return "client_credentials:" + scope
}

// ClientCredentialsToken returns a valid application token for the scope,
// serving from cache when the cached token is outside the expiry buffer. The
// single lock covers the whole check-then-refresh sequence so concurrent
// callers for the same scope do not issue duplicate token requests.
func (m *Manager) ClientCredentialsToken(ctx context.Context, scope string) (string, error) {
	if m.cfg.ClientID == "" || m.cfg.ClientSecret == "" {
		return "", lerrors.NewConfigError("EBAY_APP_ID/EBAY_CERT_ID")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := cacheKey(scope)
	if cached, ok := m.cache[key]; ok && !cached.IsExpired() {
		m.logger.Debug().
			Str("scope", scope).
			Dur("expires_in", cached.TimeUntilExpiry()).
			Msg("using cached token")
		m.counts.CacheHits++
		m.prom.RecordTokenRequest("hit")
		return cached.AccessToken, nil
	}
	m.counts.CacheMisses++
	m.prom.RecordTokenRequest("miss")

	m.logger.Info().Str("scope", scope).Msg("requesting new token")
	token, err := m.requestTokenWithRetry(ctx, scope)
	if err != nil {
		return "", err
	}
	m.cache[key] = token
	return token.AccessToken, nil
}

// requestTokenWithRetry attempts the token exchange with exponential backoff:
// waits BaseDelay * 2^attempt between attempts and re-raises the last error.
func (m *Manager) requestTokenWithRetry(ctx context.Context, scope string) (*CachedToken, error) {
	var lastErr error
	for attempt := 0; attempt < m.cfg.MaxRetries; attempt++ {
		token, err := m.requestToken(ctx, scope)
		if err == nil {
			return token, nil
		}
		lastErr = err
		m.counts.Errors++
		m.prom.RecordTokenRequest("error")

		if attempt < m.cfg.MaxRetries-1 {
			delay := m.cfg.BaseDelay * (1 << attempt)
			m.logger.Warn().
				Err(err).
				Int("attempt", attempt+1).
				Int("max_retries", m.cfg.MaxRetries).
				Dur("delay", delay).
				Msg("token request failed, retrying")
			if serr := m.sleep(ctx, delay); serr != nil {
				return nil, serr
			}
		} else {
			m.logger.Error().
				Err(err).
				Int("max_retries", m.cfg.MaxRetries).
				Msg("token request failed after all attempts")
		}
	}
	return nil, lastErr
}

// tokenResponse mirrors the OAuth token endpoint's 200 body.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope"`
}

// requestToken performs a single client-credentials exchange.
func (m *Manager) requestToken(ctx context.Context, scope string) (*CachedToken, error) {
	if !ValidScope(scope) {
		m.logger.Warn().Str("scope", scope).Msg("using unrecognized OAuth scope")
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("scope", scope)

	m.counts.Requests++
	resp, err := m.postTokenForm(ctx, form)
	if err != nil {
		return nil, err
	}

	expiresIn := resp.ExpiresIn
	if expiresIn == 0 {
		expiresIn = defaultExpiresIn
	}
	tokenType := resp.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	grantedScope := resp.Scope
	if grantedScope == "" {
		grantedScope = scope
	}

	m.logger.Info().Int("expires_in", expiresIn).Msg("token obtained")
	return &CachedToken{
		AccessToken: resp.AccessToken,
		TokenType:   tokenType,
		ExpiresAt:   time.Now().UTC().Add(time.Duration(expiresIn) * time.Second),
		Scope:       grantedScope,
	}, nil
}

// postTokenForm issues one form-encoded POST to the token endpoint and
// decodes the response, translating provider errors into readable messages.
func (m *Manager) postTokenForm(ctx context.Context, form url.Values) (*tokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("creating token request: %w", err)
	}
	req.Header.Set("Authorization", m.cfg.basicAuth())
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request network error: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := parseOAuthError(resp.StatusCode, body)
		return nil, fmt.Errorf("token request failed: %s", msg)
	}

	var parsed tokenResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decoding token response: %w", err)
	}
	if parsed.AccessToken == "" {
		return nil, fmt.Errorf("token response missing access_token")
	}
	return &parsed, nil
}

// oauthError mirrors the provider's OAuth error body.
type oauthError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// parseOAuthError translates known eBay OAuth error codes into specific
// messages; unknown shapes fall back to the raw response text.
func parseOAuthError(statusCode int, body []byte) string {
	var parsed oauthError
	if err := json.Unmarshal(body, &parsed); err == nil {
		switch {
		case parsed.Error == "invalid_client":
			return "invalid client credentials (check App ID and Cert ID)"
		case parsed.Error == "invalid_scope":
			return fmt.Sprintf("invalid or unauthorized scope requested: %s", parsed.ErrorDescription)
		case parsed.Error == "unsupported_grant_type":
			return "unsupported grant type"
		case statusCode == http.StatusTooManyRequests:
			return "rate limit exceeded for OAuth requests"
		case parsed.ErrorDescription != "":
			return fmt.Sprintf("%s: %s", parsed.Error, parsed.ErrorDescription)
		}
	}
	if statusCode == http.StatusTooManyRequests {
		return "rate limit exceeded for OAuth requests"
	}
	text := strings.TrimSpace(string(body))
	if text == "" {
		return fmt.Sprintf("HTTP %d error", statusCode)
	}
	return text
}

// ClearCache discards all cached client-credentials tokens, forcing the next
// call to reacquire.
func (m *Manager) ClearCache() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache = make(map[string]*CachedToken)
	m.logger.Info().Msg("token cache cleared")
}

// CachedTokenFor returns the cached token for a scope without making a
// request, or nil if absent or stale.
func (m *Manager) CachedTokenFor(scope string) *CachedToken {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cached, ok := m.cache[cacheKey(scope)]; ok && !cached.IsExpired() {
		cp := *cached
		return &cp
	}
	return nil
}

// Metrics returns a snapshot of token cache activity.
func (m *Manager) Metrics() TokenMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts
}
