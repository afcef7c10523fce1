package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the client.
type Config struct {
	App         AppConfig
	API         APIConfig
	Credentials CredentialsConfig
	Logger      LoggerConfig
	Refresh     RefreshConfig
}

// AppConfig identifies the client instance.
type AppConfig struct {
	Name string
	Env  string
}

// APIConfig points the client at the ticketing backend.
type APIConfig struct {
	BaseURL        string
	TimeoutSeconds int
}

// CredentialsConfig selects and configures the durable credential store.
type CredentialsConfig struct {
	// Backend is one of "file", "redis", "memory".
	Backend string
	// Dir is where the file backend keeps its entries.
	Dir string
	// Redis settings apply when Backend == "redis".
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
	// File enables a rotating log file sink when non-empty.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// RefreshConfig controls the proactive token-refresh worker.
type RefreshConfig struct {
	Enabled         bool
	IntervalSeconds int
	LeadSeconds     int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		App: AppConfig{
			Name: getEnv("APP_NAME", "ticket-client"),
			Env:  getEnv("APP_ENV", "development"),
		},
		API: APIConfig{
			BaseURL:        getEnv("API_BASE_URL", "http://localhost:8000/api"),
			TimeoutSeconds: getEnvAsInt("API_TIMEOUT_SECONDS", 30),
		},
		Credentials: CredentialsConfig{
			Backend:       getEnv("CREDENTIALS_BACKEND", "file"),
			Dir:           getEnv("CREDENTIALS_DIR", defaultCredentialsDir()),
			RedisAddr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			RedisPassword: os.Getenv("REDIS_PASSWORD"),
			RedisDB:       getEnvAsInt("REDIS_DB", 0),
		},
		Logger: LoggerConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			File:       os.Getenv("LOG_FILE"),
			MaxSizeMB:  getEnvAsInt("LOG_MAX_SIZE_MB", 20),
			MaxBackups: getEnvAsInt("LOG_MAX_BACKUPS", 3),
			MaxAgeDays: getEnvAsInt("LOG_MAX_AGE_DAYS", 14),
		},
		Refresh: RefreshConfig{
			Enabled:         getEnvAsBool("REFRESH_WORKER_ENABLED", false),
			IntervalSeconds: getEnvAsInt("REFRESH_WORKER_INTERVAL_SECONDS", 30),
			LeadSeconds:     getEnvAsInt("REFRESH_WORKER_LEAD_SECONDS", 60),
		},
	}

	return cfg, nil
}

// RequestTimeout returns the configured HTTP timeout duration.
func (a APIConfig) RequestTimeout() time.Duration {
	if a.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.TimeoutSeconds) * time.Second
}

// Interval returns the worker poll interval.
func (r RefreshConfig) Interval() time.Duration {
	if r.IntervalSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(r.IntervalSeconds) * time.Second
}

// Lead returns how far before expiry a refresh is attempted.
func (r RefreshConfig) Lead() time.Duration {
	if r.LeadSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(r.LeadSeconds) * time.Second
}

func defaultCredentialsDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ticket-client"
	}
	return home + "/.ticket-client"
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
