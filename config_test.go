package cryptopay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name  string
		cfg   Config
		field string
	}{
		{"live key", Config{APIKey: "cp_live_x"}, ""},
		{"sandbox", Config{APIKey: "cp_test_x", Environment: EnvironmentSandbox}, ""},
		{"unprefixed key", Config{APIKey: "legacy-key"}, ""},
		{"missing key", Config{}, "apiKey"},
		{"blank key", Config{APIKey: "  "}, "apiKey"},
		{"test key in production", Config{APIKey: "cp_test_x"}, "apiKey"},
		{"live key in sandbox", Config{APIKey: "cp_live_x", Environment: EnvironmentSandbox}, "apiKey"},
		{"unknown environment", Config{APIKey: "cp_live_x", Environment: "staging"}, "environment"},
		{"negative timeout", Config{APIKey: "cp_live_x", Timeout: -time.Second}, "timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrConfiguration)
			var e *Error
			require.ErrorAs(t, err, &e)
			assert.Equal(t, tt.field, e.Field)
		})
	}
}

func TestConfigWithDefaults(t *testing.T) {
	cfg := Config{APIKey: "cp_live_x"}.WithDefaults()
	assert.Equal(t, EnvironmentProduction, cfg.Environment)
	assert.Equal(t, ProductionBaseURL, cfg.BaseURL)
	assert.Equal(t, DefaultTimeout, cfg.Timeout)
	assert.Equal(t, DefaultSignatureHeader, cfg.SignatureHeader)

	cfg = Config{APIKey: "cp_test_x", Environment: EnvironmentSandbox, BaseURL: "http://localhost:9000/"}.WithDefaults()
	assert.Equal(t, "http://localhost:9000", cfg.BaseURL)

	cfg = Config{APIKey: "cp_test_x", Environment: EnvironmentSandbox}.WithDefaults()
	assert.Equal(t, SandboxBaseURL, cfg.BaseURL)
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("CRYPTOPAY_API_KEY", "cp_test_env")
	t.Setenv("CRYPTOPAY_WEBHOOK_SECRET", "whsec_env")
	t.Setenv("CRYPTOPAY_ENVIRONMENT", "sandbox")
	t.Setenv("CRYPTOPAY_TIMEOUT", "15s")
	t.Setenv("CRYPTOPAY_SIGNATURE_HEADER", "X-Signature")

	cfg, err := ConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "cp_test_env", cfg.APIKey)
	assert.Equal(t, "whsec_env", cfg.WebhookSecret)
	assert.Equal(t, EnvironmentSandbox, cfg.Environment)
	assert.Equal(t, SandboxBaseURL, cfg.BaseURL)
	assert.Equal(t, 15*time.Second, cfg.Timeout)
	assert.Equal(t, "X-Signature", cfg.SignatureHeader)
}

func TestConfigFromEnvMissingKey(t *testing.T) {
	t.Setenv("CRYPTOPAY_API_KEY", "")
	_, err := ConfigFromEnv()
	assert.ErrorIs(t, err, ErrConfiguration)
}
