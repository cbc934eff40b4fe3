package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"hvt/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Cache    CacheConfig
	Tasks    TasksConfig
	Judge    JudgeConfig
	Database DatabaseConfig
	Server   ServerConfig
	LogLevel string
}

// CacheConfig holds result cache settings
type CacheConfig struct {
	Dir     string
	Backend string
}

// Cache backends
const (
	CacheBackendFile   = "file"
	CacheBackendBadger = "badger"
)

// TasksConfig controls which tasks are registered at startup
type TasksConfig struct {
	File        string
	UseBuiltins bool
	JudgeMin    float64
}

// JudgeConfig holds remote judge settings; an empty key disables the remote judge
type JudgeConfig struct {
	OpenAIKey string
	Model     string
	BaseURL   string
	Timeout   time.Duration
}

// DatabaseConfig holds the optional decision ledger connection
type DatabaseConfig struct {
	URL     string
	MaxOpen int
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Port    string
	OpsPort string
	GinMode string
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := &Config{
		Cache:    *loadCacheConfig(),
		Tasks:    *loadTasksConfig(),
		Judge:    *loadJudgeConfig(),
		Database: *loadDatabaseConfig(),
		Server:   *loadServerConfig(),
		LogLevel: getEnvOrDefault("LOG_LEVEL", "INFO"),
	}

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return config, nil
}

func loadCacheConfig() *CacheConfig {
	return &CacheConfig{
		Dir:     getEnvOrDefault("HVT_CACHE_DIR", ""),
		Backend: strings.ToLower(getEnvOrDefault("HVT_CACHE_BACKEND", CacheBackendFile)),
	}
}

func loadTasksConfig() *TasksConfig {
	return &TasksConfig{
		File:        getEnvOrDefault("HVT_TASKS_FILE", ""),
		UseBuiltins: getEnvBoolOrDefault("HVT_USE_BUILTINS", true),
		JudgeMin:    getEnvFloatOrDefault("HVT_JUDGE_MIN", 0.8),
	}
}

func loadJudgeConfig() *JudgeConfig {
	return &JudgeConfig{
		OpenAIKey: os.Getenv("OPENAI_API_KEY"),
		Model:     getEnvOrDefault("LLM_MODEL", "gpt-4o-mini"),
		BaseURL:   getEnvOrDefault("LLM_BASE_URL", ""),
		Timeout:   getEnvDurationOrDefault("LLM_TIMEOUT", 30*time.Second),
	}
}

func loadDatabaseConfig() *DatabaseConfig {
	return &DatabaseConfig{
		URL:     getEnvOrDefault("DATABASE_URL", ""),
		MaxOpen: getEnvIntOrDefault("DB_MAX_OPEN", 10),
	}
}

func loadServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:    getEnvOrDefault("PORT", "8080"),
		OpsPort: getEnvOrDefault("OPS_PORT", "9090"),
		GinMode: getEnvOrDefault("GIN_MODE", "release"),
	}
}

func validateConfig(config *Config) error {
	switch config.Cache.Backend {
	case CacheBackendFile:
	case CacheBackendBadger:
		if config.Cache.Dir == "" {
			return errors.ConfigInvalid("HVT_CACHE_DIR is required for the badger backend")
		}
	default:
		return errors.ConfigInvalid("HVT_CACHE_BACKEND must be file or badger, got " + config.Cache.Backend)
	}
	if config.Tasks.JudgeMin < 0 || config.Tasks.JudgeMin > 1 {
		return errors.ConfigInvalid("HVT_JUDGE_MIN must be within [0, 1]")
	}
	if config.Server.Port == "" {
		return errors.ConfigInvalid("PORT is required")
	}
	return nil
}

// HasLedger reports whether a decision ledger database is configured
func (c *Config) HasLedger() bool {
	return c.Database.URL != ""
}

// HasRemoteJudge reports whether the OpenAI judge can be constructed
func (c *Config) HasRemoteJudge() bool {
	return c.Judge.OpenAIKey != ""
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
