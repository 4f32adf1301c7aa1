package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	lerrors "github.com/lootly/lootly/internal/errors"
)

// Config holds all application configuration loaded from environment variables.
// It is constructed once in main and passed by handle into each component.
type Config struct {
	// General
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	ServerName  string `envconfig:"LOOTLY_SERVER_NAME" default:"lootly"`

	// eBay credentials
	AppID  string `envconfig:"EBAY_APP_ID"`
	CertID string `envconfig:"EBAY_CERT_ID"`
	DevID  string `envconfig:"EBAY_DEV_ID"`

	// Environment selection and marketplace headers
	SandboxMode   bool   `envconfig:"EBAY_SANDBOX_MODE" default:"true"`
	MarketplaceID string `envconfig:"EBAY_MARKETPLACE_ID" default:"EBAY_US"`
	RedirectURI   string `envconfig:"EBAY_REDIRECT_URI" default:"https://localhost"`

	// Request policy
	RequestTimeout  time.Duration `envconfig:"EBAY_TIMEOUT" default:"30s"`
	MaxRetries      int           `envconfig:"EBAY_MAX_RETRIES" default:"3"`
	RetryBaseDelay  time.Duration `envconfig:"EBAY_RETRY_BASE_DELAY" default:"1s"`
	RateLimitPerDay int           `envconfig:"EBAY_RATE_LIMIT_PER_DAY" default:"5000"`

	// Token store
	TokenStorePath string `envconfig:"LOOTLY_TOKEN_STORE" default:".ebay_user_tokens.json"`

	// HTTP transport
	ListenAddr     string `envconfig:"LOOTLY_LISTEN_ADDR" default:":8000"`
	AuthMode       string `envconfig:"LOOTLY_AUTH_MODE" default:"none"`
	APIKey         string `envconfig:"LOOTLY_API_KEY"`
	JWTSecret      string `envconfig:"LOOTLY_JWT_SECRET"`
	CORSOrigins    string `envconfig:"LOOTLY_CORS_ORIGINS"`
	RateLimitRPS   int    `envconfig:"LOOTLY_RATE_LIMIT_RPS" default:"50"`
	RateLimitBurst int    `envconfig:"LOOTLY_RATE_LIMIT_BURST" default:"100"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return &cfg, nil
}

// CredentialsConfigured returns true if the eBay application keys are present.
func (c *Config) CredentialsConfigured() bool {
	return c.AppID != "" && c.CertID != ""
}

// ValidateCredentials fails with a configuration error naming the first
// missing eBay credential.
func (c *Config) ValidateCredentials() error {
	if c.AppID == "" {
		return lerrors.NewConfigError("EBAY_APP_ID")
	}
	if c.CertID == "" {
		return lerrors.NewConfigError("EBAY_CERT_ID")
	}
	return nil
}

// Domain returns the eBay API domain for the selected environment.
func (c *Config) Domain() string {
	if c.SandboxMode {
		return "sandbox.ebay.com"
	}
	return "ebay.com"
}

// BaseURL returns the REST API base URL for the selected environment.
func (c *Config) BaseURL() string {
	return fmt.Sprintf("https://api.%s", c.Domain())
}

// TokenURL returns the OAuth token endpoint for the selected environment.
func (c *Config) TokenURL() string {
	return fmt.Sprintf("https://api.%s/identity/v1/oauth2/token", c.Domain())
}

// AuthorizeURL returns the user authorization endpoint for the selected environment.
func (c *Config) AuthorizeURL() string {
	return fmt.Sprintf("https://auth.%s/oauth2/authorize", c.Domain())
}
