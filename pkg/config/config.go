// Package config loads the buffer pool manager's on-disk YAML
// configuration file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	flushmanager "github.com/sushant-115/gojodb/core/write_engine/flush_manager"
	"github.com/sushant-115/gojodb/pkg/logger"
	"github.com/sushant-115/gojodb/pkg/telemetry"
)

// Config is the top-level configuration for a bufferpoolctl process.
type Config struct {
	// DBFile is the path to the backing database file the disk manager
	// reads from and writes to.
	DBFile string `yaml:"db_file"`
	// PageSize is the fixed size, in bytes, of every page.
	PageSize int `yaml:"page_size"`
	// PoolSize is the number of frames the buffer pool holds.
	PoolSize int `yaml:"pool_size"`
	// Compression selects the on-disk page encoding: "none", "snappy", or "lz4".
	Compression string `yaml:"compression"`

	Logger    logger.Config    `yaml:"logger"`
	Telemetry telemetry.Config `yaml:"telemetry"`
}

// Default returns a Config with reasonable values for local use.
func Default() *Config {
	return &Config{
		DBFile:      "bufferpool.db",
		PageSize:    4096,
		PoolSize:    128,
		Compression: "none",
		Logger: logger.Config{
			Level:      "info",
			Format:     "console",
			OutputFile: "stdout",
		},
		Telemetry: telemetry.Config{
			Enabled:          true,
			ServiceName:      "bufferpoolctl",
			PrometheusPort:   9464,
			TraceSampleRatio: 1.0,
		},
	}
}

// Load reads and parses the YAML configuration file at path, filling in
// defaults for any field left unset.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	if cfg.PoolSize <= 0 {
		return nil, fmt.Errorf("config: pool_size must be greater than zero")
	}
	if cfg.PageSize <= 0 {
		return nil, fmt.Errorf("config: page_size must be greater than zero")
	}
	return cfg, nil
}

// CompressionType translates the configured compression name into the disk
// manager's CompressionType, defaulting to CompressionNone for an
// unrecognized or empty value.
func (c *Config) CompressionType() flushmanager.CompressionType {
	switch c.Compression {
	case "snappy":
		return flushmanager.CompressionSnappy
	case "lz4":
		return flushmanager.CompressionLZ4
	default:
		return flushmanager.CompressionNone
	}
}
