// Package config provides configuration management for the heap-analysis
// tooling.
package config

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Index    IndexConfig    `mapstructure:"index"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
}

// IndexConfig holds index-build configuration.
type IndexConfig struct {
	// DataDir is where fetched dumps are staged.
	DataDir string `mapstructure:"data_dir"`
	// MaxWorker bounds how many dumps are indexed concurrently.
	MaxWorker int `mapstructure:"max_worker"`
}

// StorageConfig holds dump storage configuration.
type StorageConfig struct {
	Type      string `mapstructure:"type"` // cos or local
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	SecretID  string `mapstructure:"secret_id"`
	SecretKey string `mapstructure:"secret_key"`
	Domain    string `mapstructure:"domain"`     // e.g. "myqcloud.com"
	Scheme    string `mapstructure:"scheme"`     // e.g. "https" or "http"
	LocalPath string `mapstructure:"local_path"` // for local storage
}

// DatabaseConfig holds the dump-catalog database configuration. The
// catalog is optional; an empty host disables it.
type DatabaseConfig struct {
	Type     string `mapstructure:"type"` // postgres or mysql
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	MaxConns int    `mapstructure:"max_conns"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Load reads configuration from the specified file path, falling back to
// standard locations and defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/heap-analysis")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// No config file, run on defaults.
		} else if os.IsNotExist(err) {
			// Explicit path that doesn't exist, run on defaults.
		} else {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadFromReader loads configuration from raw content (useful for testing).
func LoadFromReader(configType string, content []byte) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType(configType)
	if err := v.ReadConfig(bytes.NewReader(content)); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("index.data_dir", "./data")
	v.SetDefault("index.max_worker", 2)

	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.local_path", "./storage")

	v.SetDefault("database.type", "postgres")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.max_conns", 10)

	v.SetDefault("log.level", "info")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Index.MaxWorker < 1 {
		return fmt.Errorf("index max_worker must be at least 1")
	}

	// The catalog database is optional; only validate when configured.
	if c.Database.Host != "" {
		if c.Database.Type != "postgres" && c.Database.Type != "mysql" {
			return fmt.Errorf("unsupported database type: %s", c.Database.Type)
		}
	}

	return nil
}

// CatalogEnabled reports whether the dump catalog database is configured.
func (c *Config) CatalogEnabled() bool {
	return c.Database.Host != ""
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *Config) EnsureDataDir() error {
	if c.Index.DataDir == "" {
		return nil
	}
	return os.MkdirAll(c.Index.DataDir, 0755)
}
