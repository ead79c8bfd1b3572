package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/FACorreiaa/echo-ingest/pkg/money"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Auth          AuthConfig
	Storage       StorageConfig
	Import        ImportConfig
	Observability ObservabilityConfig
}

type ServerConfig struct {
	Host               string
	Port               int
	RateLimitPerSecond int
	RateLimitBurst     int
	MaxUploadBytes     int64
	CORSOrigins        []string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MinConns int
}

type AuthConfig struct {
	JWTSecret string
}

type StorageConfig struct {
	Type              string
	LocalPath         string
	S3Bucket          string
	S3Region          string
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string
}

type ImportConfig struct {
	PreviewLimit    int
	Polarity        string
	DefaultCurrency string
	OCRLanguage     string
	StaleAfter      time.Duration
	SweepSchedule   string
	// ParseWorkers bounds concurrent page table detection; 0 uses GOMAXPROCS
	ParseWorkers    int
}

type ObservabilityConfig struct {
	MetricsEnabled bool
	ServiceName    string
}

// Load reads configuration from environment variables, after loading any
// .env file in the working directory.
func Load() (*Config, error) {
	// A missing .env is fine; real environments set variables directly.
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Host:               getEnv("SERVER_HOST", "localhost"),
			Port:               getEnvAsInt("SERVER_PORT", 8080),
			RateLimitPerSecond: getEnvAsInt("SERVER_RATE_LIMIT_PER_SECOND", 100),
			RateLimitBurst:     getEnvAsInt("SERVER_RATE_LIMIT_BURST", 200),
			MaxUploadBytes:     int64(getEnvAsInt("SERVER_MAX_UPLOAD_BYTES", 20<<20)),
			CORSOrigins:        getEnvAsList("SERVER_CORS_ORIGINS", []string{"http://localhost:3000"}),
		},
		Database: DatabaseConfig{
			Host:     getEnv("POSTGRES_HOST", "localhost"),
			Port:     getEnvAsInt("POSTGRES_PORT", 5469),
			User:     getEnv("POSTGRES_USER", "postgres"),
			Password: getEnv("POSTGRES_PASSWORD", "postgres"),
			Database: getEnv("POSTGRES_DB", "echo-dev"),
			SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
			MaxConns: getEnvAsInt("POSTGRES_MAX_CONNS", 10),
			MinConns: getEnvAsInt("POSTGRES_MIN_CONNS", 1),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", "changeme"),
		},
		Storage: StorageConfig{
			Type:              getEnv("STORAGE_TYPE", "local"),
			LocalPath:         getEnv("STORAGE_LOCAL_PATH", "./data/uploads"),
			S3Bucket:          getEnv("STORAGE_S3_BUCKET", ""),
			S3Region:          getEnv("STORAGE_S3_REGION", ""),
			S3Endpoint:        getEnv("STORAGE_S3_ENDPOINT", ""),
			S3AccessKeyID:     getEnv("STORAGE_S3_ACCESS_KEY_ID", ""),
			S3SecretAccessKey: getEnv("STORAGE_S3_SECRET_ACCESS_KEY", ""),
		},
		Import: ImportConfig{
			PreviewLimit:    getEnvAsInt("IMPORT_PREVIEW_LIMIT", 50),
			Polarity:        getEnv("IMPORT_POLARITY", "negative_is_income"),
			DefaultCurrency: strings.ToUpper(getEnv("IMPORT_DEFAULT_CURRENCY", "INR")),
			OCRLanguage:     getEnv("IMPORT_OCR_LANGUAGE", "eng"),
			StaleAfter:      getEnvAsDuration("IMPORT_STALE_AFTER", 30*time.Minute),
			SweepSchedule:   getEnv("IMPORT_SWEEP_SCHEDULE", "@every 5m"),
			ParseWorkers:    getEnvAsInt("IMPORT_PARSE_WORKERS", 0),
		},
		Observability: ObservabilityConfig{
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "echo-ingest"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the services cannot run with
func (c *Config) Validate() error {
	switch c.Import.Polarity {
	case "negative_is_income", "negative_is_expense":
	default:
		return fmt.Errorf("IMPORT_POLARITY must be negative_is_income or negative_is_expense, got %q", c.Import.Polarity)
	}

	switch c.Storage.Type {
	case "local":
		if c.Storage.LocalPath == "" {
			return errors.New("STORAGE_LOCAL_PATH is required for local storage")
		}
	case "s3":
		if c.Storage.S3Bucket == "" || c.Storage.S3Region == "" {
			return errors.New("STORAGE_S3_BUCKET and STORAGE_S3_REGION are required for s3 storage")
		}
	default:
		return fmt.Errorf("STORAGE_TYPE must be local or s3, got %q", c.Storage.Type)
	}

	if c.Import.PreviewLimit <= 0 {
		return errors.New("IMPORT_PREVIEW_LIMIT must be positive")
	}
	if c.Import.StaleAfter <= 0 {
		return errors.New("IMPORT_STALE_AFTER must be positive")
	}
	if !money.IsKnownCurrency(c.Import.DefaultCurrency) {
		return fmt.Errorf("IMPORT_DEFAULT_CURRENCY must be an ISO 4217 code, got %q", c.Import.DefaultCurrency)
	}
	if c.Server.MaxUploadBytes <= 0 {
		return errors.New("SERVER_MAX_UPLOAD_BYTES must be positive")
	}
	return nil
}

// DSN returns the database connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
