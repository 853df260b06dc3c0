package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromViper_Defaults(t *testing.T) {
	cfg, err := FromViper(newViper())

	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, DefaultMinSearchDelay, cfg.Match.MinDelay)
	assert.Equal(t, DefaultMaxSearchDelay, cfg.Match.MaxDelay)
	assert.False(t, cfg.Auth.Enabled)
	assert.Equal(t, "token", cfg.Auth.TokenQueryParam)
	assert.EqualValues(t, DefaultMaxMessageSize, cfg.WebSocket.MaxMessageSize)
}

func TestFromViper_EnvOverrides(t *testing.T) {
	t.Setenv("MODCHAT_SERVER_ADDR", ":9999")
	t.Setenv("MODCHAT_SERVER_ALLOWED_ORIGINS", "http://a.test, http://b.test")
	t.Setenv("MODCHAT_MATCH_MIN_DELAY", "10ms")
	t.Setenv("MODCHAT_MATCH_MAX_DELAY", "20ms")
	t.Setenv("MODCHAT_AUTH_ENABLED", "true")
	t.Setenv("MODCHAT_AUTH_JWT_SECRET", "s3cret")

	cfg, err := FromViper(newViper())

	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 10*time.Millisecond, cfg.Match.MinDelay)
	assert.Equal(t, 20*time.Millisecond, cfg.Match.MaxDelay)
	assert.True(t, cfg.Auth.Enabled)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
}

func TestFromViper_RejectsInvertedDelay(t *testing.T) {
	t.Setenv("MODCHAT_MATCH_MIN_DELAY", "5s")
	t.Setenv("MODCHAT_MATCH_MAX_DELAY", "1s")

	_, err := FromViper(newViper())

	assert.ErrorIs(t, err, ErrInvalidDelay)
}

func TestFromViper_AuthNeedsSecret(t *testing.T) {
	t.Setenv("MODCHAT_AUTH_ENABLED", "true")

	_, err := FromViper(newViper())

	assert.ErrorIs(t, err, ErrMissingSecret)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, LogConfig{Level: "warn", Format: "json"})

	logger.Info("hidden")
	logger.Warn("shown", "key", "value")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
	assert.Contains(t, buf.String(), `"key":"value"`)
}
