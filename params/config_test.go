package params

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"API_ADDR", "CORS_ORIGINS", "LOG_LEVEL", "LOG_FILE", "HEARTBEAT_INTERVAL_MS", "SEND_QUEUE_SIZE",
	"ENGINE_READY_DELAY_MS", "RECLAIM_ON_CANCEL", "SEED_BOOK", "ENABLE_PRICEFEED", "PRICE_INTERVAL_MS",
	"BUS_BACKEND", "REDIS_PREFIX", "KAFKA_BROKERS", "KAFKA_TOPIC", "KAFKA_GROUP", "P2P_LISTEN",
	"P2P_BOOTSTRAP", "REDIS_URL", "PEBBLE_PATH", "JOURNAL_FILE", "JWT_SECRET", "AUTH_MAX_AGE_S",
}

func clearEnv(t *testing.T) {
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	clearEnv(t)
	cfg := LoadFromEnv(filepath.Join(t.TempDir(), "missing.env"))
	assert.Equal(t, Default(), cfg)
	assert.Empty(t, cfg.Bus.KafkaGroup, "each node picks its own consumer group")
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("API_ADDR", ":9090")
	t.Setenv("HEARTBEAT_INTERVAL_MS", "500")
	t.Setenv("SEND_QUEUE_SIZE", "8")
	t.Setenv("RECLAIM_ON_CANCEL", "true")
	t.Setenv("SEED_BOOK", "false")
	t.Setenv("BUS_BACKEND", "kafka")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("AUTH_MAX_AGE_S", "60")
	t.Setenv("PRICE_INTERVAL_MS", "not-a-number")

	cfg := LoadFromEnv(filepath.Join(t.TempDir(), "missing.env"))
	assert.Equal(t, ":9090", cfg.API.Addr)
	assert.Equal(t, 500*time.Millisecond, cfg.Stream.HeartbeatInterval)
	assert.Equal(t, 8, cfg.Stream.SendQueueSize)
	assert.True(t, cfg.Engine.ReclaimOnCancel)
	assert.False(t, cfg.Engine.SeedBook)
	assert.Equal(t, "kafka", cfg.Bus.Backend)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Bus.KafkaBrokers)
	assert.Equal(t, time.Minute, cfg.Auth.MaxAge)
	assert.Equal(t, Default().PriceFeed.Interval, cfg.PriceFeed.Interval)
}

func TestLoadFromEnv_DotEnvFile(t *testing.T) {
	clearEnv(t)
	// godotenv keeps variables that are already set, even when empty.
	require.NoError(t, os.Unsetenv("REDIS_PREFIX"))
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("REDIS_PREFIX=test:\n"), 0o644))

	cfg := LoadFromEnv(path)
	assert.Equal(t, "test:", cfg.Bus.RedisPrefix)
}
