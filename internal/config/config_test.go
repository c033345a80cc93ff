package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Empty(t, cfg.APIKeys)
	assert.Equal(t, 500, cfg.BufferCapacity)
	assert.Equal(t, 50, cfg.ReplayLimit)
	assert.Equal(t, 5*time.Second, cfg.DeliveryTimeout)
	assert.Equal(t, 3, cfg.MaxDeliveryFailures)
	assert.Equal(t, 256, cfg.SendQueue)
	assert.Equal(t, float64(20), cfg.RateLimit)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.False(t, cfg.Tracing.Enabled)
	assert.Equal(t, "liverelay", cfg.Tracing.ServiceName)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("RELAY_ADDR", "127.0.0.1:9000")
	t.Setenv("RELAY_API_KEYS", "alpha,beta")
	t.Setenv("RELAY_API_KEYS_FILE", "/etc/relay/keys")
	t.Setenv("RELAY_BUFFER_CAPACITY", "10")
	t.Setenv("RELAY_REPLAY_LIMIT", "5")
	t.Setenv("RELAY_DELIVERY_TIMEOUT", "750ms")
	t.Setenv("RELAY_MAX_DELIVERY_FAILURES", "0")
	t.Setenv("RELAY_ALLOWED_ORIGINS", "example.com,*.example.org")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("PUBSUB_TRACING_ENABLED", "true")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Addr)
	assert.Equal(t, []string{"alpha", "beta"}, cfg.APIKeys)
	assert.Equal(t, "/etc/relay/keys", cfg.APIKeysFile)
	assert.Equal(t, 10, cfg.BufferCapacity)
	assert.Equal(t, 5, cfg.ReplayLimit)
	assert.Equal(t, 750*time.Millisecond, cfg.DeliveryTimeout)
	assert.Equal(t, 0, cfg.MaxDeliveryFailures)
	assert.Equal(t, []string{"example.com", "*.example.org"}, cfg.AllowedOrigins)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.True(t, cfg.Tracing.Enabled)
}

func TestFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"zero capacity", map[string]string{"RELAY_BUFFER_CAPACITY": "0"}},
		{"capacity not a number", map[string]string{"RELAY_BUFFER_CAPACITY": "lots"}},
		{"bad duration", map[string]string{"RELAY_DELIVERY_TIMEOUT": "soon"}},
		{"unknown log format", map[string]string{"LOG_FORMAT": "xml"}},
		{"unknown log level", map[string]string{"LOG_LEVEL": "verbose"}},
		{"non-positive rate", map[string]string{"RELAY_RATE_LIMIT": "0"}},
		{"empty send queue", map[string]string{"RELAY_SEND_QUEUE": "0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := FromEnv()
			assert.Error(t, err)
		})
	}
}

func TestFromEnv_ReplayLimitBoundedByCapacity(t *testing.T) {
	t.Setenv("RELAY_BUFFER_CAPACITY", "10")
	t.Setenv("RELAY_REPLAY_LIMIT", "11")

	_, err := FromEnv()
	assert.ErrorIs(t, err, ErrReplayExceedsCapacity)
}
