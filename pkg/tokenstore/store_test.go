package tokenstore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFileStore(t *testing.T) *FileStore {
	t.Helper()
	store, err := NewFileStore(filepath.Join(t.TempDir(), "tokens.json"))
	require.NoError(t, err)
	return store
}

func sampleToken() *UserToken {
	return &UserToken{
		AccessToken:  "v^1.1#access",
		RefreshToken: "v^1.1#refresh",
		TokenType:    "Bearer",
		ExpiresAt:    time.Now().UTC().Add(2 * time.Hour),
		Scope:        "https://api.ebay.com/oauth/api_scope/sell.account",
		CreatedAt:    time.Now().UTC(),
	}
}

func TestFileStore_SaveAndLoadUserToken(t *testing.T) {
	store := newTestFileStore(t)

	require.NoError(t, store.SaveUserToken("app1", sampleToken()))

	tok, err := store.UserToken("app1")
	require.NoError(t, err)
	assert.Equal(t, "v^1.1#access", tok.AccessToken)
	assert.Equal(t, "Bearer", tok.TokenType)
	assert.False(t, tok.IsExpired())
}

func TestFileStore_NotFound(t *testing.T) {
	store := newTestFileStore(t)

	_, err := store.UserToken("missing")
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestFileStore_MalformedTokenPruned(t *testing.T) {
	store := newTestFileStore(t)

	// A record missing refresh_token is malformed and must be treated as
	// absent and removed from the store.
	entries := map[string]any{
		"app1": map[string]any{
			"access_token": "tok",
			"token_type":   "Bearer",
			"expires_at":   time.Now().UTC().Add(time.Hour).Format(time.RFC3339),
		},
	}
	raw, err := json.Marshal(entries)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(store.path, raw, 0o600))

	_, err = store.UserToken("app1")
	assert.ErrorIs(t, err, ErrTokenNotFound)

	data, err := os.ReadFile(store.path)
	require.NoError(t, err)
	var remaining map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &remaining))
	assert.NotContains(t, remaining, "app1")
}

func TestFileStore_DeleteUserToken(t *testing.T) {
	store := newTestFileStore(t)

	deleted, err := store.DeleteUserToken("app1")
	require.NoError(t, err)
	assert.False(t, deleted)

	require.NoError(t, store.SaveUserToken("app1", sampleToken()))
	deleted, err = store.DeleteUserToken("app1")
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = store.UserToken("app1")
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestFileStore_ConsentLifecycle(t *testing.T) {
	store := newTestFileStore(t)

	require.NoError(t, store.SaveConsent("app1", &ConsentState{
		State:       "nonce-1",
		RedirectURI: "https://localhost",
	}))

	consent, err := store.Consent("app1")
	require.NoError(t, err)
	assert.Equal(t, "nonce-1", consent.State)
	assert.Equal(t, "https://localhost", consent.RedirectURI)

	require.NoError(t, store.ClearConsent("app1"))
	_, err = store.Consent("app1")
	assert.ErrorIs(t, err, ErrConsentNotFound)
}

func TestFileStore_ConsentDoesNotClobberToken(t *testing.T) {
	store := newTestFileStore(t)

	require.NoError(t, store.SaveUserToken("app1", sampleToken()))
	require.NoError(t, store.SaveConsent("app1", &ConsentState{State: "s", RedirectURI: "r"}))

	_, err := store.UserToken("app1")
	require.NoError(t, err)
	_, err = store.Consent("app1")
	require.NoError(t, err)
}

func TestFileStore_Permissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("file modes not enforced on windows")
	}
	store := newTestFileStore(t)
	require.NoError(t, store.SaveUserToken("app1", sampleToken()))

	info, err := os.Stat(store.path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.UserToken("app1")
	assert.ErrorIs(t, err, ErrTokenNotFound)

	require.NoError(t, store.SaveUserToken("app1", sampleToken()))
	tok, err := store.UserToken("app1")
	require.NoError(t, err)
	assert.Equal(t, "v^1.1#access", tok.AccessToken)

	deleted, err := store.DeleteUserToken("app1")
	require.NoError(t, err)
	assert.True(t, deleted)
}
