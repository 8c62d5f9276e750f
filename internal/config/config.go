package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates all runtime settings required by the client.
type Config struct {
	AppName     string
	Environment string
	Output      string
	API         APIConfig
	Session     SessionConfig
	Redis       RedisConfig
	Cache       CacheConfig
	Retry       RetryConfig
	Context     ContextConfig
	Logger      LoggerConfig
	Monitor     MonitorConfig
}

type APIConfig struct {
	BaseURL       string
	Timeout       time.Duration
	MaxConns      int
	RefreshCookie string
	UserAgent     string
}

type SessionConfig struct {
	Backend string
	Path    string
	Key     string
	TTL     time.Duration
	// Secret seals the stored record when set.
	Secret string
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
}

type CacheConfig struct {
	DefaultStale time.Duration
	GCTime       time.Duration
	GCInterval   time.Duration
}

type RetryConfig struct {
	QueryMax    int
	MutationMax int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

type ContextConfig struct {
	ShutdownTimeout time.Duration
}

type LoggerConfig struct {
	Level    string
	Encoding string
}

type MonitorConfig struct {
	Interval time.Duration
}

const (
	OutputJSON = "json"
	OutputYAML = "yaml"
)

const (
	SessionBackendBolt   = "bolt"
	SessionBackendRedis  = "redis"
	SessionBackendMemory = "memory"
)

// Load reads configuration from environment variables (optionally .env)
// and applies defaults so the client works against a local API out of the box.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		AppName:     getString("APP_NAME", "classroom"),
		Environment: getString("APP_ENV", "development"),
		Output:      getString("OUTPUT_FORMAT", OutputJSON),
		API: APIConfig{
			BaseURL:       getString("API_BASE_URL", "http://localhost:5000/api/v1"),
			Timeout:       getDuration("API_TIMEOUT", 10*time.Second),
			MaxConns:      getInt("API_MAX_CONNS", 16),
			RefreshCookie: getString("REFRESH_COOKIE_NAME", "refreshToken"),
			UserAgent:     getString("API_USER_AGENT", "classroom-cli"),
		},
		Session: SessionConfig{
			Backend: getString("SESSION_BACKEND", SessionBackendBolt),
			Path:    getString("SESSION_PATH", defaultSessionPath()),
			Key:     getString("SESSION_KEY", "user"),
			TTL:     getDuration("SESSION_TTL", 30*24*time.Hour),
			Secret:  os.Getenv("SESSION_SECRET"),
		},
		Redis: RedisConfig{
			URL:      getString("REDIS_URL", "redis://localhost:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getInt("REDIS_DB", 0),
		},
		Cache: CacheConfig{
			DefaultStale: getDuration("CACHE_DEFAULT_STALE", 30*time.Second),
			GCTime:       getDuration("CACHE_GC_TIME", 5*time.Minute),
			GCInterval:   getDuration("CACHE_GC_INTERVAL", time.Minute),
		},
		Retry: RetryConfig{
			QueryMax:    getInt("QUERY_MAX_RETRIES", 3),
			MutationMax: getInt("MUTATION_MAX_RETRIES", 2),
			BaseDelay:   getDuration("RETRY_BASE_DELAY", time.Second),
			MaxDelay:    getDuration("RETRY_MAX_DELAY", 30*time.Second),
		},
		Context: ContextConfig{
			ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 5*time.Second),
		},
		Logger: LoggerConfig{
			Level:    getString("LOG_LEVEL", "warn"),
			Encoding: getString("LOG_ENCODING", "console"),
		},
		Monitor: MonitorConfig{
			Interval: getDuration("MONITOR_INTERVAL", 10*time.Second),
		},
	}

	return cfg, nil
}

// MustLoad panics if configuration cannot be loaded.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

func defaultSessionPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(".classroom", "session.db")
	}
	return filepath.Join(home, ".classroom", "session.db")
}

func getString(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
		if seconds, err := strconv.Atoi(val); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return fallback
}
