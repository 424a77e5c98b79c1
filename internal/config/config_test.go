package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupFrom(vars map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func TestFromLookupDefaults(t *testing.T) {
	cfg, err := FromLookup("PROD", lookupFrom(map[string]string{
		"INTERNAL_API_SECRET": "internal",
		"ACCESS_TOKEN_SECRET": "access",
	}))
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Addr())
	assert.Equal(t, "localhost:6379", cfg.RedisAddr())
	assert.Equal(t, DefaultHeartbeatInterval, cfg.HeartbeatInterval)
	assert.Equal(t, DefaultShutdownTimeout, cfg.ShutdownTimeout)
	assert.Equal(t, DefaultRedisMaxRetries, cfg.RedisMaxRetries)
	assert.False(t, cfg.RedisTLS)
	assert.Empty(t, cfg.CORSOrigins)
}

func TestFromLookupOverrides(t *testing.T) {
	cfg, err := FromLookup("DEV", lookupFrom(map[string]string{
		"INTERNAL_API_SECRET":    "internal",
		"ACCESS_TOKEN_SECRET":    "access",
		"REDIS_HOST":             "cache.internal",
		"REDIS_PORT":             "6380",
		"REDIS_TLS":              "true",
		"REDIS_DB_NUMBER":        "2",
		"REDIS_MAX_RETRIES":      "5",
		"SSE_HEARTBEAT_INTERVAL": "35s",
		"CORS_ORIGINS":           "https://forum.example, https://admin.forum.example ,",
	}))
	require.NoError(t, err)

	assert.Equal(t, "cache.internal:6380", cfg.RedisAddr())
	assert.True(t, cfg.RedisTLS)
	assert.Equal(t, 2, cfg.RedisDB)
	assert.Equal(t, 5, cfg.RedisMaxRetries)
	assert.Equal(t, 35*time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, []string{"https://forum.example", "https://admin.forum.example"}, cfg.CORSOrigins)
}

func TestFromLookupReportsEveryProblem(t *testing.T) {
	_, err := FromLookup("PROD", lookupFrom(map[string]string{
		"REDIS_DB_NUMBER":        "one",
		"SSE_HEARTBEAT_INTERVAL": "10ms",
	}))
	require.Error(t, err)

	for _, key := range []string{"INTERNAL_API_SECRET", "ACCESS_TOKEN_SECRET", "REDIS_DB_NUMBER", "SSE_HEARTBEAT_INTERVAL"} {
		assert.Contains(t, err.Error(), key)
	}
}
