package server

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/lootly/lootly/internal/ebay"
	"github.com/lootly/lootly/internal/health"
	"github.com/lootly/lootly/internal/mcp"
	"github.com/lootly/lootly/internal/metrics"
	"github.com/lootly/lootly/internal/oauth"
)

// Handlers implements the HTTP endpoints over the tool registry and the
// OAuth and rate-limit internals they expose.
type Handlers struct {
	registry *mcp.Registry
	oauthMgr *oauth.Manager
	client   *ebay.Client
	checker  *health.Checker
	prom     *metrics.Metrics
	logger   zerolog.Logger
}

// NewHandlers creates the endpoint handlers.
func NewHandlers(
	registry *mcp.Registry,
	oauthMgr *oauth.Manager,
	client *ebay.Client,
	checker *health.Checker,
	prom *metrics.Metrics,
	logger zerolog.Logger,
) *Handlers {
	return &Handlers{
		registry: registry,
		oauthMgr: oauthMgr,
		client:   client,
		checker:  checker,
		prom:     prom,
		logger:   logger.With().Str("component", "handlers").Logger(),
	}
}

// Liveness handles GET /healthz.
func (h *Handlers) Liveness(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// Readiness handles GET /readyz.
func (h *Handlers) Readiness(c *fiber.Ctx) error {
	results := h.checker.RunAll(c.Context())

	ready := true
	for _, s := range results {
		if s == health.StatusDown {
			ready = false
			break
		}
	}

	resp := fiber.Map{"checks": results}
	if ready {
		resp["status"] = "ready"
		return c.JSON(resp)
	}
	resp["status"] = "not_ready"
	return c.Status(fiber.StatusServiceUnavailable).JSON(resp)
}

// ListTools handles GET /v1/tools.
func (h *Handlers) ListTools(c *fiber.Ctx) error {
	schemas := h.registry.Schemas()
	return c.JSON(fiber.Map{
		"tools": schemas,
		"count": len(schemas),
	})
}

// CallTool handles POST /v1/tools/:name. Tool results and tool-level failures
// both come back as 200 with the envelope; only transport problems map to
// HTTP error statuses.
func (h *Handlers) CallTool(c *fiber.Ctx) error {
	name := c.Params("name")
	if _, ok := h.registry.Get(name); !ok {
		return problemResponse(c, fiber.StatusNotFound,
			"unknown_tool", "Not Found",
			"No tool named "+name)
	}

	input := json.RawMessage(c.Body())
	if len(input) == 0 {
		input = json.RawMessage(`{}`)
	}

	reqID, _ := c.Locals("request_id").(string)
	tc := mcp.NewToolContext(h.logger, reqID)

	out, err := h.registry.Execute(c.Context(), tc, name, input)
	if err != nil {
		out = mcp.FromError(err)
	}

	h.prom.RecordToolCall(name, envelopeStatus(out))

	c.Set("Content-Type", "application/json")
	return c.SendString(out)
}

// RateLimitUsage handles GET /v1/ratelimit.
func (h *Handlers) RateLimitUsage(c *fiber.Ctx) error {
	return c.JSON(h.client.RateLimitUsage())
}

// OAuthMetrics handles GET /v1/oauth/metrics.
func (h *Handlers) OAuthMetrics(c *fiber.Ctx) error {
	return c.JSON(h.oauthMgr.Metrics())
}

func envelopeStatus(out string) string {
	var env struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal([]byte(out), &env); err != nil || env.Status == "" {
		return "unknown"
	}
	return env.Status
}
