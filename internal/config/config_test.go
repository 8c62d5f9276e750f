package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("API_BASE_URL", "")
	t.Setenv("SESSION_BACKEND", "")
	t.Setenv("SESSION_SECRET", "")
	t.Setenv("OUTPUT_FORMAT", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, OutputJSON, cfg.Output)
	assert.Empty(t, cfg.Session.Secret)
	assert.Equal(t, "http://localhost:5000/api/v1", cfg.API.BaseURL)
	assert.Equal(t, SessionBackendBolt, cfg.Session.Backend)
	assert.Equal(t, "user", cfg.Session.Key)
	assert.Equal(t, 30*time.Second, cfg.Cache.DefaultStale)
	assert.Equal(t, 5*time.Minute, cfg.Cache.GCTime)
	assert.Equal(t, 3, cfg.Retry.QueryMax)
	assert.Equal(t, 2, cfg.Retry.MutationMax)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("API_BASE_URL", "https://api.example.test/v1")
	t.Setenv("API_TIMEOUT", "3")
	t.Setenv("CACHE_GC_TIME", "90s")
	t.Setenv("QUERY_MAX_RETRIES", "not-a-number")
	t.Setenv("SESSION_BACKEND", SessionBackendRedis)
	t.Setenv("SESSION_SECRET", "s3cret")
	t.Setenv("OUTPUT_FORMAT", OutputYAML)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.test/v1", cfg.API.BaseURL)
	assert.Equal(t, 3*time.Second, cfg.API.Timeout)
	assert.Equal(t, 90*time.Second, cfg.Cache.GCTime)
	assert.Equal(t, 3, cfg.Retry.QueryMax)
	assert.Equal(t, SessionBackendRedis, cfg.Session.Backend)
	assert.Equal(t, "s3cret", cfg.Session.Secret)
	assert.Equal(t, OutputYAML, cfg.Output)
}
