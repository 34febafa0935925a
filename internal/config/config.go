package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	AppEnv    string
	Port      string
	JWTSecret string
	Database  DatabaseConfig
	Backend   BackendConfig
	Logger    LoggerConfig
}

// DatabaseConfig holds the local store configuration.
// Driver is "sqlite" (device-local file) or "postgres".
type DatabaseConfig struct {
	Driver     string
	SQLitePath string
	Host       string
	Port       string
	Username   string
	Password   string
	Database   string
	Alter      bool
}

// BackendConfig points at the inventory REST API the counts are mirrored to
type BackendConfig struct {
	URL            string
	Token          string
	OrganizationID string
	Timeout        int // seconds
}

// LoggerConfig holds zap settings
type LoggerConfig struct {
	Level             string
	Encoding          string
	DisableCaller     bool
	DisableStacktrace bool
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	cfg := &Config{
		AppEnv:    getEnv("APP_ENV", "development"),
		Port:      getEnv("PORT", "3210"),
		JWTSecret: jwtSecret,
		Database: DatabaseConfig{
			Driver:     getEnv("DB_DRIVER", "sqlite"),
			SQLitePath: getEnv("SQLITE_PATH", "./happybar.db"),
			Host:       getEnv("PG_HOST", "localhost"),
			Port:       getEnv("PG_PORT", "5432"),
			Username:   getEnv("PG_USERNAME", "postgres"),
			Password:   os.Getenv("PG_PASSWORD"),
			Database:   getEnv("PG_DATABASE", "happybar"),
			Alter:      getEnv("DB_ALTER", "false") == "true",
		},
		Backend: BackendConfig{
			URL:            os.Getenv("BACKEND_URL"),
			Token:          os.Getenv("BACKEND_TOKEN"),
			OrganizationID: os.Getenv("ORGANIZATION_ID"),
			Timeout:        getIntEnv("BACKEND_TIMEOUT", 15),
		},
		Logger: LoggerConfig{
			Level:             getEnv("LOG_LEVEL", "info"),
			Encoding:          getEnv("LOG_ENCODING", "json"),
			DisableCaller:     getBoolEnv("LOG_DISABLE_CALLER", false),
			DisableStacktrace: getBoolEnv("LOG_DISABLE_STACKTRACE", true),
		},
	}

	switch cfg.Database.Driver {
	case "sqlite", "postgres":
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.Database.Driver)
	}

	return cfg, nil
}

// IsDevelopment reports whether the app runs in a development environment
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development" || c.AppEnv == "dev"
}

// OfflineOnly is true when no backend is configured; counts then stay local.
func (c *Config) OfflineOnly() bool {
	return c.Backend.URL == ""
}

// getEnv gets environment variable with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
