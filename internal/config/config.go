package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the application
type Config struct {
	Storage    StorageConfig
	Popularity PopularityConfig
	Server     ServerConfig
	Log        LogConfig
}

// StorageConfig holds storage-related configuration
type StorageConfig struct {
	Type          string // "dynamodb", "mongodb", "postgresql", "memory"
	Region        string // For AWS DynamoDB
	TableName     string // DynamoDB table, MongoDB collection and PostgreSQL table
	Endpoint      string // Custom endpoint for local testing
	MongoDBURI    string
	MongoDatabase string
	PostgresURI   string
	Timeout       time.Duration
}

// PopularityConfig holds ranking and statistics configuration
type PopularityConfig struct {
	DefaultLimit int
	RecentCount  int
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level  string
	Format string // "json" or "text"
}

// ClientConfig holds settings for applications calling the tracking API through
// the client package. The server itself never reads it.
type ClientConfig struct {
	BaseURL    string
	Timeout    time.Duration
	RetryCount int
}

// Load loads configuration from environment variables with defaults
func Load() (*Config, error) {
	cfg := &Config{
		Storage: StorageConfig{
			Type:          getEnv("STORAGE_TYPE", "mongodb"),
			Region:        getEnv("AWS_REGION", "us-west-2"),
			TableName:     getEnv("TABLE_NAME", "movie_searches"),
			Endpoint:      getEnv("DYNAMODB_ENDPOINT", ""), // For local DynamoDB
			MongoDBURI:    getEnv("MONGODB_URI", ""),
			MongoDatabase: getEnv("MONGODB_DATABASE", "movies"),
			PostgresURI:   getEnv("POSTGRES_URI", ""),
			Timeout:       getEnvDuration("STORAGE_TIMEOUT", 5*time.Second),
		},
		Popularity: PopularityConfig{
			DefaultLimit: getEnvInt("TRENDING_DEFAULT_LIMIT", 20),
			RecentCount:  getEnvInt("RECENT_SEARCHES_COUNT", 5),
		},
		Server: ServerConfig{
			Port:            getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvDuration("READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("WRITE_TIMEOUT", 15*time.Second),
			ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Log: LogConfig{
			Level:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
			Format: strings.ToLower(getEnv("LOG_FORMAT", "json")),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadClient loads client settings from environment variables with defaults
func LoadClient() ClientConfig {
	return ClientConfig{
		BaseURL:    getEnv("TRACKING_API_URL", "http://localhost:8080"),
		Timeout:    getEnvDuration("TRACKING_TIMEOUT", 3*time.Second),
		RetryCount: getEnvInt("TRACKING_RETRY_COUNT", 3),
	}
}

// Validate checks that the selected storage backend has what it needs to connect
func (c *Config) Validate() error {
	switch c.Storage.Type {
	case "dynamodb":
		if c.Storage.TableName == "" {
			return fmt.Errorf("TABLE_NAME is required for dynamodb storage")
		}
	case "mongodb":
		if c.Storage.MongoDBURI == "" {
			return fmt.Errorf("MONGODB_URI is required for mongodb storage")
		}
	case "postgresql":
		if c.Storage.PostgresURI == "" {
			return fmt.Errorf("POSTGRES_URI is required for postgresql storage")
		}
	case "memory":
	default:
		return fmt.Errorf("unsupported storage type: %s", c.Storage.Type)
	}

	if c.Storage.Timeout <= 0 {
		return fmt.Errorf("STORAGE_TIMEOUT must be positive")
	}
	if c.Popularity.DefaultLimit <= 0 {
		c.Popularity.DefaultLimit = 20
	}
	if c.Popularity.RecentCount <= 0 {
		c.Popularity.RecentCount = 5
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
