package server

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	Mode      string // "none", "api-key", "jwt"
	APIKey    string // from env LOOTLY_API_KEY
	JWTSecret string // from env LOOTLY_JWT_SECRET, HS256
}

// NewAuthMiddleware returns a Fiber middleware that validates the
// Authorization header according to the configured mode.
func NewAuthMiddleware(cfg AuthConfig, logger zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if cfg.Mode == "" || cfg.Mode == "none" {
			return c.Next()
		}

		// Skip auth for probe endpoints
		path := c.Path()
		if path == "/healthz" || path == "/readyz" || path == "/metrics" {
			return c.Next()
		}

		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return problemResponse(c, fiber.StatusUnauthorized,
				"missing_auth", "Unauthorized",
				"Authorization header is required")
		}
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return problemResponse(c, fiber.StatusUnauthorized,
				"invalid_auth_scheme", "Unauthorized",
				"Authorization header must use Bearer scheme")
		}
		token := strings.TrimPrefix(authHeader, "Bearer ")

		switch cfg.Mode {
		case "api-key":
			if cfg.APIKey != "" && token == cfg.APIKey {
				return c.Next()
			}
			logger.Warn().
				Str("path", path).
				Str("method", c.Method()).
				Msg("unauthorized request: invalid API key")
			return problemResponse(c, fiber.StatusUnauthorized,
				"invalid_api_key", "Unauthorized",
				"Invalid API key")

		case "jwt":
			if err := validateJWT(token, cfg.JWTSecret); err != nil {
				logger.Warn().
					Err(err).
					Str("path", path).
					Str("method", c.Method()).
					Msg("unauthorized request: invalid JWT")
				return problemResponse(c, fiber.StatusUnauthorized,
					"invalid_token", "Unauthorized",
					"Invalid or expired token")
			}
			return c.Next()

		default:
			return problemResponse(c, fiber.StatusUnauthorized,
				"unknown_auth_mode", "Unauthorized",
				fmt.Sprintf("Unknown auth mode %q", cfg.Mode))
		}
	}
}

// validateJWT parses and verifies an HS256 bearer token. Expiry and
// not-before claims are enforced by the parser.
func validateJWT(token, secret string) error {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return err
	}
	if !parsed.Valid {
		return fmt.Errorf("token invalid")
	}
	return nil
}
