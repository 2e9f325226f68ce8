// Package config handles Entropy server configuration.
//
// Configuration merges three sources, strongest last:
//
//	defaults -> YAML file (optional) -> ENTROPY_* environment variables
//
// Command-line flags are layered on top by the CLI.
//
// Environment variables:
//
//	ENTROPY_DATA_DIR     database directory (default ./data)
//	ENTROPY_IN_MEMORY    "true" runs the store without persistence
//	ENTROPY_SYNC_WRITES  "true" forces fsync per write
//	ENTROPY_HTTP_ADDRESS HTTP bind address (default 0.0.0.0)
//	ENTROPY_HTTP_PORT    HTTP port (default 3000)
//	ENTROPY_LOG_LEVEL    trace|debug|info|warn|error (default info)
//	ENTROPY_LOG_FORMAT   text|json (default text)
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the full server configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	HTTP     HTTPConfig     `yaml:"http"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// DatabaseConfig selects and tunes the storage engine.
type DatabaseConfig struct {
	DataDir    string `yaml:"data_dir"`
	InMemory   bool   `yaml:"in_memory"`
	SyncWrites bool   `yaml:"sync_writes"`
}

// HTTPConfig is the bind surface of the API server.
type HTTPConfig struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

// LoggingConfig tunes logrus.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{DataDir: "./data"},
		HTTP:     HTTPConfig{Address: "0.0.0.0", Port: 3000},
		Logging:  LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load builds a Config from defaults, an optional YAML file and the
// environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.loadEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file %q: %w", path, err)
	}
	return nil
}

func (c *Config) loadEnv() {
	if v := os.Getenv("ENTROPY_DATA_DIR"); v != "" {
		c.Database.DataDir = v
	}
	if v := os.Getenv("ENTROPY_IN_MEMORY"); v != "" {
		c.Database.InMemory = v == "true" || v == "1"
	}
	if v := os.Getenv("ENTROPY_SYNC_WRITES"); v != "" {
		c.Database.SyncWrites = v == "true" || v == "1"
	}
	if v := os.Getenv("ENTROPY_HTTP_ADDRESS"); v != "" {
		c.HTTP.Address = v
	}
	if v := os.Getenv("ENTROPY_HTTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.HTTP.Port = port
		}
	}
	if v := os.Getenv("ENTROPY_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("ENTROPY_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	if !c.Database.InMemory && c.Database.DataDir == "" {
		return fmt.Errorf("config: data_dir is required unless in_memory is set")
	}
	if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
		return fmt.Errorf("config: http port %d out of range", c.HTTP.Port)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: unknown log format %q", c.Logging.Format)
	}
	return nil
}

// ListenAddr is the address:port string the HTTP server binds.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.HTTP.Address, c.HTTP.Port)
}
