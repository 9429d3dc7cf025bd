package cryptopay

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Environment selects the service deployment the client talks to
type Environment string

const (
	EnvironmentProduction Environment = "production"
	EnvironmentSandbox    Environment = "sandbox"
)

// Default base URLs per environment
const (
	ProductionBaseURL = "https://api.cryptopay.dev"
	SandboxBaseURL    = "https://sandbox.api.cryptopay.dev"
)

// DefaultTimeout is the per-request timeout used when Config.Timeout is zero
const DefaultTimeout = 30 * time.Second

// API key prefixes per environment
const (
	liveKeyPrefix = "cp_live_"
	testKeyPrefix = "cp_test_"
)

// Config is the immutable client configuration
type Config struct {
	// APIKey authenticates API calls (required)
	APIKey string `mapstructure:"api_key"`

	// WebhookSecret verifies webhook signatures (required only for webhook verification)
	WebhookSecret string `mapstructure:"webhook_secret"`

	// BaseURL overrides the environment's default base URL (optional)
	BaseURL string `mapstructure:"base_url"`

	// Timeout for single requests (optional, defaults to 30s)
	Timeout time.Duration `mapstructure:"timeout"`

	// Environment selects production or sandbox (optional, defaults to production)
	Environment Environment `mapstructure:"environment"`

	// SignatureHeader is the webhook signature header name (optional)
	SignatureHeader string `mapstructure:"signature_header"`
}

// Validate checks the configuration: API key present and consistent with the environment,
// known environment, non-negative timeout.
func (c Config) Validate() error {
	key := strings.TrimSpace(c.APIKey)
	if key == "" {
		return newConfigurationError("apiKey", "API key is required")
	}

	env := c.Environment
	if env == "" {
		env = EnvironmentProduction
	}
	switch env {
	case EnvironmentProduction:
		if strings.HasPrefix(key, testKeyPrefix) {
			return newConfigurationError("apiKey", "sandbox API key used with the production environment")
		}
	case EnvironmentSandbox:
		if strings.HasPrefix(key, liveKeyPrefix) {
			return newConfigurationError("apiKey", "live API key used with the sandbox environment")
		}
	default:
		return newConfigurationError("environment", fmt.Sprintf("unknown environment %q", c.Environment))
	}

	if c.Timeout < 0 {
		return newConfigurationError("timeout", fmt.Sprintf("timeout must not be negative, got %s", c.Timeout))
	}
	return nil
}

// WithDefaults returns a copy with empty optional fields filled in
func (c Config) WithDefaults() Config {
	if c.Environment == "" {
		c.Environment = EnvironmentProduction
	}
	if c.BaseURL == "" {
		if c.Environment == EnvironmentSandbox {
			c.BaseURL = SandboxBaseURL
		} else {
			c.BaseURL = ProductionBaseURL
		}
	}
	c.BaseURL = strings.TrimSuffix(c.BaseURL, "/")
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.SignatureHeader == "" {
		c.SignatureHeader = DefaultSignatureHeader
	}
	return c
}

// ConfigFromEnv reads the configuration from CRYPTOPAY_* environment variables:
// CRYPTOPAY_API_KEY, CRYPTOPAY_WEBHOOK_SECRET, CRYPTOPAY_BASE_URL, CRYPTOPAY_TIMEOUT
// (a duration such as "15s"), CRYPTOPAY_ENVIRONMENT and CRYPTOPAY_SIGNATURE_HEADER.
func ConfigFromEnv() (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRYPTOPAY")
	v.AutomaticEnv()

	keys := []string{"api_key", "webhook_secret", "base_url", "timeout", "environment", "signature_header"}
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return Config{}, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}
	v.SetDefault("environment", string(EnvironmentProduction))

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, newConfigurationError("", fmt.Sprintf("failed to read configuration: %v", err))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg.WithDefaults(), nil
}
