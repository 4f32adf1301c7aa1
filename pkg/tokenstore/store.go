// Package tokenstore persists user OAuth tokens and pending consent state,
// keyed by eBay application ID.
package tokenstore

import (
	"errors"
	"time"
)

var (
	ErrTokenNotFound   = errors.New("user token not found")
	ErrConsentNotFound = errors.New("consent state not found")
)

// UserToken is a persisted user access+refresh token pair obtained through
// the authorization-code flow.
type UserToken struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
	Scope        string    `json:"scope"`
	UserID       string    `json:"user_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// IsExpired checks if the token has expired.
func (t *UserToken) IsExpired() bool {
	return time.Now().UTC().After(t.ExpiresAt)
}

// valid reports whether a loaded record has the fields a usable token needs.
// Records failing this are treated as absent, not fatal.
func (t *UserToken) valid() bool {
	return t.AccessToken != "" && t.RefreshToken != "" && !t.ExpiresAt.IsZero()
}

// ConsentState is a pending-authorization record: the anti-CSRF state nonce
// and the redirect URI the flow was started with.
type ConsentState struct {
	State       string `json:"state"`
	RedirectURI string `json:"redirect_uri"`
}

// Store defines persistence for user tokens and consent state. Implementations
// own the records exclusively; callers never hold copies across calls.
type Store interface {
	// SaveUserToken stores the user token for an application.
	SaveUserToken(appID string, token *UserToken) error
	// UserToken retrieves the stored token. Returns ErrTokenNotFound if
	// absent or malformed (malformed records are removed).
	UserToken(appID string) (*UserToken, error)
	// DeleteUserToken removes the stored token. Returns true if one existed.
	DeleteUserToken(appID string) (bool, error)

	// SaveConsent stores a pending consent record.
	SaveConsent(appID string, consent *ConsentState) error
	// Consent retrieves the pending consent record, or ErrConsentNotFound.
	Consent(appID string) (*ConsentState, error)
	// ClearConsent removes the pending consent record.
	ClearConsent(appID string) error
}
