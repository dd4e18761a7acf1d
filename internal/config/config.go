package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers
const (
	StoreDriverPostgres = "postgres"
	StoreDriverBadger   = "badger"
)

// Secret manager backends
const (
	SecretManagerEnv   = "env"
	SecretManagerFile  = "file"
	SecretManagerAWS   = "aws"
	SecretManagerVault = "vault"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Store    StoreConfig
	Database DatabaseConfig
	Gateway  GatewayConfig
	Secrets  SecretsConfig
	Events   EventsConfig
	Logger   LoggerConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int
	MetricsPort     int
	UIBaseURL       string // Redirect target for browser callbacks; empty means JSON responses
	CallbackBaseURL string // Public base URL the gateway redirects customers back to
	RateLimitRPS    float64
	RateLimitBurst  int
	ShutdownTimeout time.Duration
}

// StoreConfig selects the document store
type StoreConfig struct {
	Driver         string
	BadgerDir      string
	BadgerInMemory bool
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL      string // DATABASE_URL, takes precedence over the individual fields
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int32
	MinConns int32
}

// GatewayConfig holds payment gateway configuration
type GatewayConfig struct {
	BaseURL    string
	SecretKey  string // Used directly when set
	SecretPath string // Otherwise loaded from the secret manager
	Currency   string
	Timeout    time.Duration
}

// SecretsConfig selects and configures the secret manager
type SecretsConfig struct {
	Manager     string
	CacheTTL    time.Duration
	LocalDir    string
	AWSRegion   string
	AWSProfile  string
	AWSEndpoint string
	VaultAddr   string
	VaultToken  string
	VaultMount  string
}

// EventsConfig holds change event publishing configuration
type EventsConfig struct {
	KafkaBrokers string // Comma-separated; empty logs events instead
	KafkaTopic   string
}

// LoggerConfig holds logging configuration
type LoggerConfig struct {
	Level       string // debug, info, warn, error
	Environment string
}

// LoadDotEnv loads variables from .env style files that exist. Variables
// already set in the environment win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if err := godotenv.Load(file); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", file, err)
		}
	}
	return nil
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvAsInt("HTTP_PORT", 8080),
			MetricsPort:     getEnvAsInt("METRICS_PORT", 9090),
			UIBaseURL:       getEnv("UI_BASE_URL", ""),
			CallbackBaseURL: getEnv("CALLBACK_BASE_URL", "http://localhost:8080"),
			RateLimitRPS:    getEnvAsFloat("RATE_LIMIT_RPS", 10),
			RateLimitBurst:  getEnvAsInt("RATE_LIMIT_BURST", 20),
			ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Store: StoreConfig{
			Driver:         getEnv("STORE_DRIVER", StoreDriverPostgres),
			BadgerDir:      getEnv("BADGER_DIR", "./data/badger"),
			BadgerInMemory: getEnvAsBool("BADGER_IN_MEMORY", false),
		},
		Database: LoadDatabaseFromEnv(),
		Gateway: GatewayConfig{
			BaseURL:    getEnv("GATEWAY_BASE_URL", "https://api.paystack.co"),
			SecretKey:  getEnv("GATEWAY_SECRET_KEY", ""),
			SecretPath: getEnv("GATEWAY_SECRET_PATH", ""),
			Currency:   getEnv("GATEWAY_CURRENCY", "NGN"),
			Timeout:    getEnvAsDuration("GATEWAY_TIMEOUT", 15*time.Second),
		},
		Secrets: SecretsConfig{
			Manager:     getEnv("SECRET_MANAGER", SecretManagerEnv),
			CacheTTL:    getEnvAsDuration("SECRET_CACHE_TTL", 5*time.Minute),
			LocalDir:    getEnv("SECRETS_DIR", "./secrets"),
			AWSRegion:   getEnv("AWS_REGION", "us-east-1"),
			AWSProfile:  getEnv("AWS_PROFILE", ""),
			AWSEndpoint: getEnv("AWS_SECRETS_ENDPOINT", ""),
			VaultAddr:   getEnv("VAULT_ADDR", "http://localhost:8200"),
			VaultToken:  getEnv("VAULT_TOKEN", ""),
			VaultMount:  getEnv("VAULT_MOUNT_PATH", "secret"),
		},
		Events: EventsConfig{
			KafkaBrokers: getEnv("KAFKA_BROKERS", ""),
			KafkaTopic:   getEnv("KAFKA_TOPIC", "bakery.changes"),
		},
		Logger: LoggerConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Environment: getEnv("ENVIRONMENT", "development"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDatabaseFromEnv reads only the PostgreSQL settings
func LoadDatabaseFromEnv() DatabaseConfig {
	return DatabaseConfig{
		URL:      getEnv("DATABASE_URL", ""),
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnvAsInt("DB_PORT", 5432),
		User:     getEnv("DB_USER", "postgres"),
		Password: getEnv("DB_PASSWORD", ""),
		Database: getEnv("DB_NAME", "bakery"),
		SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		MaxConns: int32(getEnvAsInt("DB_MAX_CONNS", 25)),
		MinConns: int32(getEnvAsInt("DB_MIN_CONNS", 5)),
	}
}

// Validate checks required and mutually dependent settings
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case StoreDriverPostgres:
		if c.Database.URL == "" && c.Database.Password == "" {
			return fmt.Errorf("DB_PASSWORD or DATABASE_URL is required for the postgres store")
		}
	case StoreDriverBadger:
		if !c.Store.BadgerInMemory && c.Store.BadgerDir == "" {
			return fmt.Errorf("BADGER_DIR is required unless BADGER_IN_MEMORY is set")
		}
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.Store.Driver)
	}

	switch c.Secrets.Manager {
	case SecretManagerEnv, SecretManagerFile, SecretManagerAWS, SecretManagerVault:
	default:
		return fmt.Errorf("unsupported SECRET_MANAGER %q", c.Secrets.Manager)
	}

	if c.Gateway.SecretKey == "" && c.Gateway.SecretPath == "" {
		return fmt.Errorf("GATEWAY_SECRET_KEY or GATEWAY_SECRET_PATH is required")
	}
	if c.Server.RateLimitRPS <= 0 || c.Server.RateLimitBurst <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	return nil
}

// ConnectionString returns the PostgreSQL connection string
func (c *DatabaseConfig) ConnectionString() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// CallbackURL is the gateway return URL for browser callbacks
func (c *ServerConfig) CallbackURL() string {
	return c.CallbackBaseURL + "/payment/callback"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration accepts Go durations ("15s") or whole seconds ("15")
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(valueStr); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
