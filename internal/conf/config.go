// Package conf loads and holds the GBIF3D runtime configuration.
package conf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// LogConfig holds log rotation settings for file-backed service loggers.
type LogConfig struct {
	Enabled    bool   // true to write per-service log files
	Path       string // directory for log files
	Rotation   string // daily, weekly or size
	MaxSize    int64  // max log size in bytes for size rotation
	MaxBackups int    // rotated files to keep
}

// Rotation types for LogConfig.Rotation
const (
	RotationDaily  = "daily"
	RotationWeekly = "weekly"
	RotationSize   = "size"
)

// ServerSettings holds the HTTP server configuration.
type ServerSettings struct {
	Port       int    // HTTP listen port
	Host       string // bind address
	CORSOrigin string // allowed origin for browser clients, * by default
}

// GBIFSettings holds the occurrence API client configuration.
type GBIFSettings struct {
	BaseURL          string // GBIF API base URL
	TimeoutSeconds   int    // per-request timeout
	PageTTLMinutes   int    // cache TTL for occurrence search pages
	LookupTTLMinutes int    // cache TTL for species suggest/search lookups
}

// FetchSettings bounds the chunked fetch orchestrator.
type FetchSettings struct {
	MaxTotal     int // hard ceiling on records per fetch operation
	ChunkDelayMS int // delay between successive page requests
	DebounceMS   int // quiet period before a refetch is issued
}

// PlacesSettings holds the geocoder proxy configuration.
type PlacesSettings struct {
	BaseURL   string // geocoding service base URL
	UserAgent string // descriptive client identifier required by the service
}

// StoreSettings holds local persistence configuration.
type StoreSettings struct {
	Path string // SQLite database path
}

// Settings is the top-level GBIF3D configuration.
type Settings struct {
	Debug  bool
	Log    LogConfig
	Server ServerSettings
	GBIF   GBIFSettings
	Fetch  FetchSettings
	Places PlacesSettings
	Store  StoreSettings
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration from disk, creating a default config file on
// first run, and returns the populated settings.
func Load() (*Settings, error) {
	settings := &Settings{}

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return nil, fmt.Errorf("error getting default config paths: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	setDefaultConfig()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if err := createDefaultConfig(configPaths[0]); err != nil {
			return nil, err
		}
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	settingsMutex.Lock()
	settingsInstance = settings
	settingsMutex.Unlock()

	return settings, nil
}

// Setting returns the loaded settings instance, or nil before Load.
func Setting() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// GetDefaultConfigPaths returns the list of directories searched for the
// config file, most specific first.
func GetDefaultConfigPaths() ([]string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fall back to the working directory only
		return []string{"."}, nil
	}
	return []string{".", filepath.Join(home, ".config", "gbif3d")}, nil
}

// createDefaultConfig writes the default settings as a commented YAML file so
// a fresh install has something to edit.
func createDefaultConfig(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	defaults := viper.AllSettings()
	data, err := yaml.Marshal(defaults)
	if err != nil {
		return fmt.Errorf("error marshaling default config: %w", err)
	}

	configPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return fmt.Errorf("error writing default config to %s: %w", configPath, err)
	}
	return nil
}
