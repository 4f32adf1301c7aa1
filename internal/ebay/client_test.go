package ebay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lerrors "github.com/lootly/lootly/internal/errors"
	"github.com/lootly/lootly/internal/oauth"
	"github.com/lootly/lootly/internal/ratelimit"
	"github.com/lootly/lootly/pkg/tokenstore"
)

// testFixture wires a Client against fake token and API servers.
type testFixture struct {
	client     *Client
	store      tokenstore.Store
	tokenCalls *int
	delays     *[]time.Duration
}

func newFixture(t *testing.T, apiHandler http.HandlerFunc) *testFixture {
	t.Helper()

	tokenCalls := 0
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenCalls++
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			// Distinct token per acquisition so 401 re-auth is observable.
			"access_token": fmt.Sprintf("tok-%d", tokenCalls),
			"expires_in":   7200,
		})
	}))
	t.Cleanup(tokenSrv.Close)

	apiSrv := httptest.NewServer(apiHandler)
	t.Cleanup(apiSrv.Close)

	store := tokenstore.NewMemoryStore()
	oauthMgr := oauth.NewManager(oauth.Config{
		ClientID:     "app1",
		ClientSecret: "secret1",
		TokenURL:     tokenSrv.URL,
		AuthorizeURL: "https://auth.sandbox.ebay.com/oauth2/authorize",
		BaseDelay:    time.Millisecond,
	}, store, nil, zerolog.Nop())

	limiter := ratelimit.NewDailyLimiter(5000, zerolog.Nop())

	client := NewClient(ClientConfig{
		BaseURL:       apiSrv.URL,
		MarketplaceID: "EBAY_US",
	}, oauthMgr, limiter, nil, zerolog.Nop())

	delays := []time.Duration{}
	client.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	return &testFixture{client: client, store: store, tokenCalls: &tokenCalls, delays: &delays}
}

func TestRequest_Success(t *testing.T) {
	var gotAuth, gotMarketplace string
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotMarketplace = r.Header.Get("X-EBAY-C-MARKETPLACE-ID")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"itemId":"v1|123|0"}`))
	})

	body, err := f.client.Get(context.Background(), "/buy/browse/v1/item/v1|123|0",
		Options{Scope: oauth.ScopeAPI})
	require.NoError(t, err)

	var parsed struct {
		ItemID string `json:"itemId"`
	}
	require.NoError(t, json.Unmarshal(body, &parsed))
	assert.Equal(t, "v1|123|0", parsed.ItemID)
	assert.Equal(t, "Bearer tok-1", gotAuth)
	assert.Equal(t, "EBAY_US", gotMarketplace)
	assert.Equal(t, 1, f.client.RateLimitUsage().CallsToday)
}

func TestRequest_EmptyBodyReturnsEmptyObject(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	body, err := f.client.Delete(context.Background(), "/sell/inventory/v1/inventory_item/SKU1",
		Options{Scope: oauth.ScopeSellInventory})
	require.NoError(t, err)
	assert.JSONEq(t, "{}", string(body))
}

func TestRequest_QueryParamsAndBody(t *testing.T) {
	var gotQuery url.Values
	var gotBody map[string]any
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{}`))
	})

	params := url.Values{}
	params.Set("limit", "10")
	_, err := f.client.Post(context.Background(), "/buy/browse/v1/item_summary/search",
		Options{Scope: oauth.ScopeAPI, Params: params, Body: map[string]any{"q": "laptop"}})
	require.NoError(t, err)

	assert.Equal(t, "10", gotQuery.Get("limit"))
	assert.Equal(t, "laptop", gotBody["q"])
}

func TestRequest_401TriggersReauth(t *testing.T) {
	attempts := 0
	var authHeaders []string
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		authHeaders = append(authHeaders, r.Header.Get("Authorization"))
		if attempts == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"errors":[{"errorId":1001,"message":"Invalid access token"}]}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	_, err := f.client.Get(context.Background(), "/x", Options{Scope: oauth.ScopeAPI})
	require.NoError(t, err)

	// 401 cleared the cache, so attempt 2 carried a freshly acquired token.
	require.Len(t, authHeaders, 2)
	assert.Equal(t, "Bearer tok-1", authHeaders[0])
	assert.Equal(t, "Bearer tok-2", authHeaders[1])
	assert.Equal(t, 2, *f.tokenCalls)
}

func TestRequest_Persistent401RaisesAPIError(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-EBAY-C-REQUEST-ID", "req-401")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"errors":[{"errorId":1001,"message":"Invalid access token"}]}`))
	})

	_, err := f.client.Get(context.Background(), "/x", Options{Scope: oauth.ScopeAPI})
	require.Error(t, err)

	var apiErr *lerrors.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "req-401", apiErr.RequestID)
	assert.False(t, apiErr.IsRetryable())
}

func TestRequest_429HonorsResetHeader(t *testing.T) {
	attempts := 0
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.Header().Set("X-EBAY-C-LIMIT-RESET", "5")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"errors":[{"errorId":2001,"message":"Call limit reached"}]}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	_, err := f.client.Get(context.Background(), "/x", Options{Scope: oauth.ScopeAPI})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, []time.Duration{5 * time.Second}, *f.delays)
}

func TestRequest_429DefaultWait(t *testing.T) {
	attempts := 0
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	})

	_, err := f.client.Get(context.Background(), "/x", Options{Scope: oauth.ScopeAPI})
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{60 * time.Second}, *f.delays)
}

func TestRequest_ExhaustedRetriesOnServerError(t *testing.T) {
	attempts := 0
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"errors":[{"errorId":2003,"message":"Service unavailable"}]}`))
	})

	_, err := f.client.Get(context.Background(), "/x", Options{Scope: oauth.ScopeAPI})
	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	// Backoff between attempts 1→2 and 2→3.
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *f.delays)

	var apiErr *lerrors.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.True(t, apiErr.IsRetryable())
}

func TestRequest_TerminalClientErrorNotRetried(t *testing.T) {
	attempts := 0
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"errors":[{"errorId":11001,"message":"Item not found"}]}`))
	})

	_, err := f.client.Get(context.Background(), "/x", Options{Scope: oauth.ScopeAPI})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)

	var apiErr *lerrors.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.False(t, apiErr.IsRetryable())
}

func TestRequest_UserTokenPathConsentRequired(t *testing.T) {
	apiCalled := false
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		apiCalled = true
	})

	// No scope: the pipeline requires a persisted user token.
	_, err := f.client.Get(context.Background(), "/sell/account/v1/return_policy", Options{})
	require.Error(t, err)
	assert.True(t, lerrors.IsConsentRequired(err))
	assert.False(t, apiCalled)
}

func TestRequest_UserTokenPathSuccess(t *testing.T) {
	var gotAuth string
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{}`))
	})
	require.NoError(t, f.store.SaveUserToken("app1", &tokenstore.UserToken{
		AccessToken:  "user-tok",
		RefreshToken: "refresh",
		TokenType:    "Bearer",
		ExpiresAt:    time.Now().UTC().Add(time.Hour),
		CreatedAt:    time.Now().UTC(),
	}))

	_, err := f.client.Get(context.Background(), "/sell/account/v1/return_policy", Options{})
	require.NoError(t, err)
	assert.Equal(t, "Bearer user-tok", gotAuth)
}

func TestRequest_HeaderOverride(t *testing.T) {
	var gotMarketplace string
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		gotMarketplace = r.Header.Get("X-EBAY-C-MARKETPLACE-ID")
		_, _ = w.Write([]byte(`{}`))
	})

	_, err := f.client.Get(context.Background(), "/x", Options{
		Scope:   oauth.ScopeAPI,
		Headers: map[string]string{"X-EBAY-C-MARKETPLACE-ID": "EBAY_DE"},
	})
	require.NoError(t, err)
	assert.Equal(t, "EBAY_DE", gotMarketplace)
}
