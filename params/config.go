package params

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type API struct {
	Addr        string
	CORSOrigins []string
}

type Log struct {
	Level string
	File  string
}

type Stream struct {
	HeartbeatInterval time.Duration
	SendQueueSize     int
}

type Engine struct {
	// ReadyDelay holds order intake closed after startup.
	ReadyDelay      time.Duration
	ReclaimOnCancel bool
	SeedBook        bool
}

type PriceFeed struct {
	Enabled  bool
	Interval time.Duration
}

type Bus struct {
	Backend      string // local | redis | kafka | libp2p
	RedisPrefix  string
	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroup   string // empty gives every node its own consumer group
	P2PListen    string
	P2PBootstrap []string
}

type Storage struct {
	// RedisURL enables the Redis cache and price history. Empty disables them.
	RedisURL    string
	PebblePath  string
	JournalFile string
}

type Auth struct {
	JWTSecret string
	// MaxAge bounds how old a signed wallet credential may be.
	MaxAge time.Duration
}

type Config struct {
	API       API
	Log       Log
	Stream    Stream
	Engine    Engine
	PriceFeed PriceFeed
	Bus       Bus
	Storage   Storage
	Auth      Auth
}

func Default() Config {
	return Config{
		API: API{
			Addr:        ":8080",
			CORSOrigins: []string{"http://localhost:3000"},
		},
		Log: Log{
			Level: "info",
			File:  "data/node.log",
		},
		Stream: Stream{
			HeartbeatInterval: 30 * time.Second,
			SendQueueSize:     256,
		},
		Engine: Engine{
			ReadyDelay: 2 * time.Second,
			SeedBook:   true,
		},
		PriceFeed: PriceFeed{
			Enabled:  true,
			Interval: time.Second,
		},
		Bus: Bus{
			Backend:     "local",
			RedisPrefix: "bookcast:",
			KafkaTopic:  "bookcast-events",
		},
		Auth: Auth{
			JWTSecret: "bookcast-dev-secret",
			MaxAge:    5 * time.Minute,
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	cfg.API.Addr = getEnv("API_ADDR", cfg.API.Addr)
	cfg.API.CORSOrigins = getList("CORS_ORIGINS", cfg.API.CORSOrigins)

	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.File = getEnv("LOG_FILE", cfg.Log.File)

	cfg.Stream.HeartbeatInterval = getMillis("HEARTBEAT_INTERVAL_MS", cfg.Stream.HeartbeatInterval)
	cfg.Stream.SendQueueSize = getInt("SEND_QUEUE_SIZE", cfg.Stream.SendQueueSize)

	cfg.Engine.ReadyDelay = getMillis("ENGINE_READY_DELAY_MS", cfg.Engine.ReadyDelay)
	cfg.Engine.ReclaimOnCancel = getBool("RECLAIM_ON_CANCEL", cfg.Engine.ReclaimOnCancel)
	cfg.Engine.SeedBook = getBool("SEED_BOOK", cfg.Engine.SeedBook)

	cfg.PriceFeed.Enabled = getBool("ENABLE_PRICEFEED", cfg.PriceFeed.Enabled)
	cfg.PriceFeed.Interval = getMillis("PRICE_INTERVAL_MS", cfg.PriceFeed.Interval)

	cfg.Bus.Backend = getEnv("BUS_BACKEND", cfg.Bus.Backend)
	cfg.Bus.RedisPrefix = getEnv("REDIS_PREFIX", cfg.Bus.RedisPrefix)
	cfg.Bus.KafkaBrokers = getList("KAFKA_BROKERS", cfg.Bus.KafkaBrokers)
	cfg.Bus.KafkaTopic = getEnv("KAFKA_TOPIC", cfg.Bus.KafkaTopic)
	cfg.Bus.KafkaGroup = getEnv("KAFKA_GROUP", cfg.Bus.KafkaGroup)
	cfg.Bus.P2PListen = getEnv("P2P_LISTEN", cfg.Bus.P2PListen)
	cfg.Bus.P2PBootstrap = getList("P2P_BOOTSTRAP", cfg.Bus.P2PBootstrap)

	cfg.Storage.RedisURL = getEnv("REDIS_URL", cfg.Storage.RedisURL)
	cfg.Storage.PebblePath = getEnv("PEBBLE_PATH", cfg.Storage.PebblePath)
	cfg.Storage.JournalFile = getEnv("JOURNAL_FILE", cfg.Storage.JournalFile)

	cfg.Auth.JWTSecret = getEnv("JWT_SECRET", cfg.Auth.JWTSecret)
	if s := getInt("AUTH_MAX_AGE_S", 0); s > 0 {
		cfg.Auth.MaxAge = time.Duration(s) * time.Second
	}

	return cfg
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return defaultValue
}

func getMillis(key string, defaultValue time.Duration) time.Duration {
	if ms, err := strconv.Atoi(os.Getenv(key)); err == nil && ms >= 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	if b, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return b
	}
	return defaultValue
}

// getList splits a comma-separated value, dropping blanks.
func getList(key string, defaultValue []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
