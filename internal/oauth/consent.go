package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os/exec"
	"runtime"
	"time"

	lerrors "github.com/lootly/lootly/internal/errors"
	"github.com/lootly/lootly/pkg/tokenstore"
)

// ConsentSession is the result of starting a consent flow.
type ConsentSession struct {
	AuthURL       string `json:"auth_url"`
	BrowserOpened bool   `json:"browser_opened"`
	State         string `json:"state"`
	RedirectURI   string `json:"redirect_uri"`
}

// ConsentResult is the result of completing a consent flow.
type ConsentResult struct {
	ExpiresAt time.Time `json:"expires_at"`
	Scopes    []string  `json:"scopes"`
}

// UserToken returns the persisted user access token if present and
// unexpired. Otherwise it fails with the consent-required signal; there is no
// silent refresh (expired user tokens always force re-consent — the stored
// refresh token is kept but deliberately unused).
func (m *Manager) UserToken(ctx context.Context) (string, error) {
	record, err := m.store.UserToken(m.cfg.ClientID)
	if err != nil {
		if errors.Is(err, tokenstore.ErrTokenNotFound) {
			return "", fmt.Errorf("no user token stored: %w", lerrors.ErrConsentRequired)
		}
		return "", fmt.Errorf("loading user token: %w", err)
	}
	if record.IsExpired() {
		m.logger.Warn().
			Time("expired_at", record.ExpiresAt).
			Msg("stored user token expired, re-consent required")
		return "", fmt.Errorf("user token expired at %s: %w",
			record.ExpiresAt.Format(time.RFC3339), lerrors.ErrConsentRequired)
	}
	return record.AccessToken, nil
}

// UserTokenInfo returns the stored user token record, or nil if absent.
func (m *Manager) UserTokenInfo() *tokenstore.UserToken {
	record, err := m.store.UserToken(m.cfg.ClientID)
	if err != nil {
		return nil
	}
	return record
}

// DeleteUserToken removes the stored user token. Returns true if one existed.
func (m *Manager) DeleteUserToken() (bool, error) {
	return m.store.DeleteUserToken(m.cfg.ClientID)
}

// InitiateConsentFlow generates a state nonce, builds the provider's
// authorization URL for the user-consent scopes, best-effort opens a local
// browser, and persists the pending consent state for callback verification.
func (m *Manager) InitiateConsentFlow(ctx context.Context) (*ConsentSession, error) {
	if m.cfg.ClientID == "" || m.cfg.ClientSecret == "" {
		return nil, lerrors.NewConfigError("EBAY_APP_ID/EBAY_CERT_ID")
	}

	state := m.newState()

	authURL, err := url.Parse(m.cfg.AuthorizeURL)
	if err != nil {
		return nil, fmt.Errorf("parsing authorize URL: %w", err)
	}
	q := authURL.Query()
	q.Set("client_id", m.cfg.ClientID)
	q.Set("response_type", "code")
	q.Set("redirect_uri", m.cfg.RedirectURI)
	q.Set("scope", UserConsentScopes)
	q.Set("state", state)
	authURL.RawQuery = q.Encode()

	if err := m.store.SaveConsent(m.cfg.ClientID, &tokenstore.ConsentState{
		State:       state,
		RedirectURI: m.cfg.RedirectURI,
	}); err != nil {
		return nil, fmt.Errorf("persisting consent state: %w", err)
	}

	opened := m.openBrowser(authURL.String())
	m.logger.Info().Bool("browser_opened", opened).Msg("consent flow initiated")

	return &ConsentSession{
		AuthURL:       authURL.String(),
		BrowserOpened: opened,
		State:         state,
		RedirectURI:   m.cfg.RedirectURI,
	}, nil
}

// CompleteConsentFlow parses the authorization callback URL, verifies the
// anti-CSRF state against the stored consent record, exchanges the code for
// tokens, persists the user token, and clears the consent state. State
// mismatch and missing code fail immediately; these are caller errors, never
// retried.
func (m *Manager) CompleteConsentFlow(ctx context.Context, callbackURL string) (*ConsentResult, error) {
	parsed, err := url.Parse(callbackURL)
	if err != nil {
		return nil, fmt.Errorf("parsing callback URL: %w", err)
	}
	code := parsed.Query().Get("code")
	state := parsed.Query().Get("state")
	if code == "" {
		return nil, fmt.Errorf("callback URL missing authorization code")
	}

	consent, err := m.store.Consent(m.cfg.ClientID)
	if err != nil {
		return nil, fmt.Errorf("no pending consent flow: %w", err)
	}
	if state != consent.State {
		return nil, fmt.Errorf("state mismatch in callback (possible CSRF): got %q", state)
	}

	resp, err := m.exchangeCode(ctx, code, consent.RedirectURI)
	if err != nil {
		return nil, err
	}

	expiresIn := resp.ExpiresIn
	if expiresIn == 0 {
		expiresIn = defaultExpiresIn
	}
	now := time.Now().UTC()
	record := &tokenstore.UserToken{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		TokenType:    resp.TokenType,
		ExpiresAt:    now.Add(time.Duration(expiresIn) * time.Second),
		Scope:        resp.Scope,
		CreatedAt:    now,
	}
	if record.TokenType == "" {
		record.TokenType = "Bearer"
	}
	if record.Scope == "" {
		record.Scope = UserConsentScopes
	}

	if err := m.store.SaveUserToken(m.cfg.ClientID, record); err != nil {
		return nil, fmt.Errorf("persisting user token: %w", err)
	}
	if err := m.store.ClearConsent(m.cfg.ClientID); err != nil {
		m.logger.Warn().Err(err).Msg("failed to clear consent state")
	}

	m.logger.Info().Time("expires_at", record.ExpiresAt).Msg("user consent completed")
	return &ConsentResult{
		ExpiresAt: record.ExpiresAt,
		Scopes:    SplitScopes(record.Scope),
	}, nil
}

// exchangeCode swaps an authorization code for user tokens.
func (m *Manager) exchangeCode(ctx context.Context, code, redirectURI string) (*tokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", redirectURI)

	m.logger.Info().Msg("exchanging authorization code for user tokens")
	resp, err := m.postTokenForm(ctx, form)
	if err != nil {
		return nil, fmt.Errorf("token exchange: %w", err)
	}
	return resp, nil
}

// launchBrowser best-effort opens url in the local default browser.
func launchBrowser(url string) bool {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start() == nil
}
