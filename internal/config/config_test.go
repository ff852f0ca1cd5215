package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("API_BASE_URL", "http://localhost:3000/api")
	t.Setenv("SOCKET_URL", "ws://localhost:3000/ws")
	t.Setenv("SESSION_CAMPAIGN_ID", "camp-1")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8787", cfg.Server.Addr)
	assert.Equal(t, time.Second, cfg.Socket.ReconnectBase)
	assert.Equal(t, 5, cfg.Socket.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Session.TypingIdle)
	assert.Equal(t, 5*time.Second, cfg.Session.TypingTTL)
	assert.Equal(t, 50, cfg.Session.HistoryLimit)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("SOCKET_MAX_ATTEMPTS", "3")
	t.Setenv("SESSION_TYPING_IDLE", "250ms")
	t.Setenv("SESSION_CREDENTIAL", "secret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Socket.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Session.TypingIdle)
	assert.Equal(t, "secret", cfg.Session.Credential)
}

func TestLoadMissingRequired(t *testing.T) {
	t.Setenv("API_BASE_URL", "")
	t.Setenv("SOCKET_URL", "ws://localhost:3000/ws")
	t.Setenv("SESSION_CAMPAIGN_ID", "camp-1")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsZeroAttempts(t *testing.T) {
	setRequired(t)
	t.Setenv("SOCKET_MAX_ATTEMPTS", "0")

	_, err := Load()
	assert.ErrorContains(t, err, "SOCKET_MAX_ATTEMPTS")
}

func TestLoadRejectsBadCORSPattern(t *testing.T) {
	setRequired(t)
	t.Setenv("SERVER_CORS_ORIGINS", "([")

	_, err := Load()
	assert.ErrorContains(t, err, "SERVER_CORS_ORIGINS")
}
