package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lootly/lootly/internal/ebay"
	"github.com/lootly/lootly/internal/health"
	"github.com/lootly/lootly/internal/mcp"
	"github.com/lootly/lootly/internal/oauth"
	"github.com/lootly/lootly/internal/ratelimit"
	"github.com/lootly/lootly/pkg/tokenstore"
)

type echoTool struct{}

func (echoTool) Schema() mcp.ToolSchema {
	return mcp.ToolSchema{
		Name:        "echo",
		Description: "echoes its input back",
		InputSchema: mcp.MustSchema(map[string]any{"type": "object"}),
	}
}

func (echoTool) Execute(_ context.Context, _ *mcp.ToolContext, input json.RawMessage) (string, error) {
	var in map[string]any
	_ = json.Unmarshal(input, &in)
	return mcp.Success(in, "echoed"), nil
}

// testApp creates a Fiber app with all routes for testing.
func testApp(t *testing.T, cfg ServerConfig) *fiber.App {
	t.Helper()
	logger := zerolog.Nop()

	store := tokenstore.NewMemoryStore()
	mgr := oauth.NewManager(oauth.Config{}, store, nil, logger)
	limiter := ratelimit.NewDailyLimiter(5000, logger)
	client := ebay.NewClient(ebay.ClientConfig{BaseURL: "https://api.sandbox.ebay.com"}, mgr, limiter, nil, logger)

	registry := mcp.NewRegistry()
	registry.Register(echoTool{})

	checker := health.NewChecker(logger)
	checker.Register("credentials", func(ctx context.Context) health.Status {
		return health.StatusDegraded
	})

	handlers := NewHandlers(registry, mgr, client, checker, nil, logger)
	srv := NewServer(cfg, handlers, checker, nil, logger)
	return srv.App()
}

func TestServer_HealthzEndpoint(t *testing.T) {
	app := testApp(t, ServerConfig{})

	req, _ := http.NewRequest("GET", "/healthz", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestServer_ReadyzEndpoint(t *testing.T) {
	app := testApp(t, ServerConfig{})

	req, _ := http.NewRequest("GET", "/readyz", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode, "degraded checks must stay ready")

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ready", body["status"])
	checks := body["checks"].(map[string]any)
	assert.Equal(t, "degraded", checks["credentials"])
}

func TestServer_ListTools(t *testing.T) {
	app := testApp(t, ServerConfig{})

	req, _ := http.NewRequest("GET", "/v1/tools", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Count int              `json:"count"`
		Tools []mcp.ToolSchema `json:"tools"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "echo", body.Tools[0].Name)
}

func TestServer_CallTool(t *testing.T) {
	app := testApp(t, ServerConfig{})

	req, _ := http.NewRequest("POST", "/v1/tools/echo", bytes.NewReader([]byte(`{"hello":"world"}`)))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, "world", body["data"].(map[string]any)["hello"])
}

func TestServer_CallTool_PropagatesRequestID(t *testing.T) {
	app := testApp(t, ServerConfig{})

	req, _ := http.NewRequest("POST", "/v1/tools/echo", nil)
	req.Header.Set("X-Request-ID", "client-req-1")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, "client-req-1", resp.Header.Get("X-Request-ID"))
}

func TestServer_CallUnknownTool(t *testing.T) {
	app := testApp(t, ServerConfig{})

	req, _ := http.NewRequest("POST", "/v1/tools/nope", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var problem ProblemDetail
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&problem))
	assert.Equal(t, "unknown_tool", problem.Type)
}

func TestServer_RateLimitUsageEndpoint(t *testing.T) {
	app := testApp(t, ServerConfig{})

	req, _ := http.NewRequest("GET", "/v1/ratelimit", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var usage ratelimit.Usage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&usage))
	assert.Equal(t, 5000, usage.CallsLimit)
	assert.Equal(t, 0, usage.CallsToday)
}

func TestServer_OAuthMetricsEndpoint(t *testing.T) {
	app := testApp(t, ServerConfig{})

	req, _ := http.NewRequest("GET", "/v1/oauth/metrics", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var tm oauth.TokenMetrics
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&tm))
	assert.Zero(t, tm.Requests)
}

func TestServer_APIKeyAuth(t *testing.T) {
	cfg := ServerConfig{AuthConfig: AuthConfig{Mode: "api-key", APIKey: "secret-key"}}
	app := testApp(t, cfg)

	// Probes skip auth
	req, _ := http.NewRequest("GET", "/healthz", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Missing header
	req, _ = http.NewRequest("GET", "/v1/tools", nil)
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Wrong scheme
	req, _ = http.NewRequest("GET", "/v1/tools", nil)
	req.Header.Set("Authorization", "Basic abc")
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Wrong key
	req, _ = http.NewRequest("GET", "/v1/tools", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Correct key
	req, _ = http.NewRequest("GET", "/v1/tools", nil)
	req.Header.Set("Authorization", "Bearer secret-key")
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_JWTAuth(t *testing.T) {
	const secret = "jwt-test-secret"
	cfg := ServerConfig{AuthConfig: AuthConfig{Mode: "jwt", JWTSecret: secret}}
	app := testApp(t, cfg)

	sign := func(secret string, exp time.Time) string {
		claims := jwt.RegisteredClaims{
			Subject:   "tester",
			ExpiresAt: jwt.NewNumericDate(exp),
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
		require.NoError(t, err)
		return token
	}

	// Valid token
	req, _ := http.NewRequest("GET", "/v1/tools", nil)
	req.Header.Set("Authorization", "Bearer "+sign(secret, time.Now().Add(time.Hour)))
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Expired token
	req, _ = http.NewRequest("GET", "/v1/tools", nil)
	req.Header.Set("Authorization", "Bearer "+sign(secret, time.Now().Add(-time.Hour)))
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Wrong secret
	req, _ = http.NewRequest("GET", "/v1/tools", nil)
	req.Header.Set("Authorization", "Bearer "+sign("other-secret", time.Now().Add(time.Hour)))
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServer_HTTPRateLimit(t *testing.T) {
	cfg := ServerConfig{RateLimit: RateLimitConfig{RPS: 1, Burst: 1}}
	app := testApp(t, cfg)

	req, _ := http.NewRequest("GET", "/v1/tools", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	req, _ = http.NewRequest("GET", "/v1/tools", nil)
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	// Probes are never rate limited
	req, _ = http.NewRequest("GET", "/healthz", nil)
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
