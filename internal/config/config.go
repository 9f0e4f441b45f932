package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Sync     SyncConfig
	API      APIConfig
	Status   StatusConfig
	Identity IdentityConfig
	Logging  LoggingConfig
}

type SyncConfig struct {
	URL              string
	ConnectTimeout   time.Duration
	WriteWait        time.Duration
	DebounceInterval time.Duration
}

type APIConfig struct {
	BaseURL string
	Token   string
}

type StatusConfig struct {
	Host string
	Port string
}

type IdentityConfig struct {
	Token string
	// UserID overrides the token-derived id when non-zero.
	UserID int
}

type LoggingConfig struct {
	Level string
}

func Load() (*Config, error) {
	godotenv.Load()

	connectTimeout, err := getEnvAsDuration("SYNC_CONNECT_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}
	writeWait, err := getEnvAsDuration("SYNC_WRITE_WAIT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	debounce, err := getEnvAsDuration("SYNC_DEBOUNCE_INTERVAL", time.Second)
	if err != nil {
		return nil, err
	}

	return &Config{
		Sync: SyncConfig{
			URL:              getEnv("SYNC_WS_URL", "wss://laynote-websocket.fly.dev/notes"),
			ConnectTimeout:   connectTimeout,
			WriteWait:        writeWait,
			DebounceInterval: debounce,
		},
		API: APIConfig{
			BaseURL: getEnv("API_BASE_URL", "http://localhost:3000/api"),
			Token:   getEnv("API_TOKEN", ""),
		},
		Status: StatusConfig{
			Host: getEnv("STATUS_HOST", "127.0.0.1"),
			Port: getEnv("STATUS_PORT", "8090"),
		},
		Identity: IdentityConfig{
			Token:  getEnv("IDENTITY_TOKEN", ""),
			UserID: getEnvAsInt("USER_ID", 0),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}
