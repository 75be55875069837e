package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadMemoryDriverSkipsDatabase(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("STORAGE_DRIVER", "MEMORY")
	t.Setenv("CHECKIN_OPENS_BEFORE", "10m")
	t.Setenv("FINANCIAL_BLOCKED_STATUSES", " overdue , , frozen ")

	cfg := Load()
	assert.Equal(t, DriverMemory, cfg.StorageDriver)
	assert.Equal(t, "8080", cfg.Port)
	assert.Empty(t, cfg.DBHost)
	assert.Equal(t, 10*time.Minute, cfg.CheckIn.OpensBefore)
	assert.Equal(t, 20*time.Minute, cfg.CheckIn.ClosesAfter)
	assert.Equal(t, []string{"overdue", "frozen"}, cfg.CheckIn.BlockedStatuses)
}

func TestEnvListDash(t *testing.T) {
	t.Setenv("LIST", "-")
	assert.Empty(t, envList("LIST", []string{"x"}))
	assert.Equal(t, []string{"x"}, envList("UNSET_LIST_VAR", []string{"x"}))
}

func TestOutboxConfigClamps(t *testing.T) {
	t.Setenv("OUTBOX_BATCH_SIZE", "0")
	t.Setenv("OUTBOX_MAX_ATTEMPTS", "-3")
	t.Setenv("OUTBOX_BACKOFF_BASE", "10s")
	t.Setenv("OUTBOX_BACKOFF_MAX", "1s")
	t.Setenv("OUTBOX_POLL_INTERVAL", "nonsense")

	c := LoadOutboxConfig()
	assert.Equal(t, 1, c.BatchSize)
	assert.Equal(t, 1, c.MaxAttempts)
	assert.Equal(t, 10*time.Second, c.BackoffMax)
	assert.Equal(t, 2*time.Second, c.PollInterval)
}

func TestRateLimitTTLFloor(t *testing.T) {
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "1m")
	t.Setenv("RATE_LIMIT_TTL", "1s")
	c := LoadRateLimitConfig()
	assert.Equal(t, 5*time.Minute, c.TTL)
}

func TestCacheMethods(t *testing.T) {
	t.Setenv("CACHE_METHODS", "get, head")
	c := LoadCacheConfig()
	assert.True(t, c.Methods["GET"])
	assert.True(t, c.Methods["HEAD"])
	assert.False(t, c.Methods["POST"])
}

func TestRedisAddrFromHostPort(t *testing.T) {
	t.Setenv("REDIS_ADDR", "ignored:1")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("REDIS_PORT", "6380")
	assert.Equal(t, "cache:6380", LoadRedisConfig().Addr)
}
