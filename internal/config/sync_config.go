package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// SyncConfig holds count reconciliation scheduling
type SyncConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`

	// ============ SCHEDULING ============
	AutoSyncInterval int  `json:"auto_sync_interval" yaml:"auto_sync_interval"` // seconds
	SyncOnStartup    bool `json:"sync_on_startup" yaml:"sync_on_startup"`
	SyncOnForeground bool `json:"sync_on_foreground" yaml:"sync_on_foreground"`

	// ============ LIMITS ============
	SyncTimeout       int `json:"sync_timeout" yaml:"sync_timeout"`             // seconds, per run
	BackgroundTimeout int `json:"background_timeout" yaml:"background_timeout"` // seconds, fire-and-forget status transitions
}

// LoadSyncConfig loads sync configuration from a JSON or YAML file named by
// SYNC_CONFIG_PATH, falling back to environment defaults.
func LoadSyncConfig() *SyncConfig {
	if configPath := os.Getenv("SYNC_CONFIG_PATH"); configPath != "" {
		if cfg, err := loadSyncConfigFromFile(configPath); err == nil {
			return cfg
		}
	}

	return getDefaultSyncConfig()
}

// loadSyncConfigFromFile reads a sync config; the extension picks the format.
// Missing fields keep their defaults.
func loadSyncConfigFromFile(path string) (*SyncConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := getDefaultSyncConfig()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".json", "":
		err = json.Unmarshal(data, cfg)
	default:
		return nil, fmt.Errorf("unsupported sync config format: %s", path)
	}
	if err != nil {
		return nil, err
	}

	cfg.normalize()
	return cfg, nil
}

// getDefaultSyncConfig returns default sync configuration
func getDefaultSyncConfig() *SyncConfig {
	cfg := &SyncConfig{
		Enabled:           getBoolEnv("SYNC_ENABLED", true),
		AutoSyncInterval:  getIntEnv("SYNC_INTERVAL", 30),
		SyncOnStartup:     getBoolEnv("SYNC_ON_STARTUP", true),
		SyncOnForeground:  getBoolEnv("SYNC_ON_FOREGROUND", true),
		SyncTimeout:       getIntEnv("SYNC_TIMEOUT", 60),
		BackgroundTimeout: getIntEnv("SYNC_BACKGROUND_TIMEOUT", 15),
	}
	cfg.normalize()
	return cfg
}

func (c *SyncConfig) normalize() {
	if c.AutoSyncInterval <= 0 {
		c.AutoSyncInterval = 30
	}
	if c.SyncTimeout <= 0 {
		c.SyncTimeout = 60
	}
	if c.BackgroundTimeout <= 0 {
		c.BackgroundTimeout = 15
	}
}

// Helper functions for environment variables

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}
