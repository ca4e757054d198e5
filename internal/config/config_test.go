package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("STORAGE_BUCKET", "media-bucket")
	t.Setenv("STORAGE_PUBLIC_BASE_URL", "https://assets.example.com/")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load("does-not-exist.env")
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.Server.Port)
	assert.Equal(t, "https://graph.facebook.com", cfg.WhatsApp.BaseURL)
	assert.Equal(t, "external-events", cfg.MongoDB.EventsCollection)
	assert.Equal(t, "chatbots", cfg.MongoDB.ChatBotsCollection)
	assert.Equal(t, "https://assets.example.com", cfg.Storage.PublicBaseURL)
	assert.Equal(t, "whatsapp-media", cfg.Storage.KeyNamespace)
	assert.Equal(t, int64(16), cfg.Relay.MediaConcurrency)
	assert.False(t, cfg.Relay.ResumeStream)
	assert.Equal(t, time.Duration(0), cfg.Relay.ChatBotCacheTTL)
	assert.Equal(t, "user-id", cfg.Gateway.IdentityHeader)
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("RELAY_MEDIA_CONCURRENCY", "4")
	t.Setenv("RELAY_RESUME_STREAM", "true")
	t.Setenv("CHATBOT_CACHE_TTL", "45s")
	t.Setenv("STORAGE_KEY_NAMESPACE", "/inbound/")

	cfg, err := Load("does-not-exist.env")
	require.NoError(t, err)

	assert.Equal(t, int64(4), cfg.Relay.MediaConcurrency)
	assert.True(t, cfg.Relay.ResumeStream)
	assert.Equal(t, 45*time.Second, cfg.Relay.ChatBotCacheTTL)
	assert.Equal(t, "inbound", cfg.Storage.KeyNamespace)
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	setRequired(t)
	t.Setenv("RELAY_EVENT_TIMEOUT", "soon")

	_, err := Load("does-not-exist.env")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RELAY_EVENT_TIMEOUT")
}

func TestValidateRequiresStorage(t *testing.T) {
	t.Setenv("STORAGE_BUCKET", "")
	t.Setenv("STORAGE_PUBLIC_BASE_URL", "")

	_, err := Load("does-not-exist.env")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STORAGE_BUCKET")
}
