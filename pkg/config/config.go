// Package config provides configuration management for the halo-exchange
// engine and its demo driver.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Topology  TopologyConfig  `mapstructure:"topology"`
	Driver    DriverConfig    `mapstructure:"driver"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Log       LogConfig       `mapstructure:"log"`
}

// TopologyConfig describes the process grid and simulation box a rank's
// Engine is built against.
type TopologyConfig struct {
	GridDims   [3]int     `mapstructure:"grid_dims"`
	BoxLengths [3]float64 `mapstructure:"box_lengths"`
	Periodic   [3]bool    `mapstructure:"periodic"`
	DataDir    string     `mapstructure:"data_dir"`
}

// DriverConfig controls the demo driver that steps the exchange engine.
type DriverConfig struct {
	Steps          int `mapstructure:"steps"`
	PollInterval   int `mapstructure:"poll_interval"` // in milliseconds, between steps
	WorkerCount    int `mapstructure:"worker_count"`  // one goroutine per rank, capped here
	BufferCapacity int `mapstructure:"buffer_capacity"`
}

// DatabaseConfig holds the diagnostics database connection configuration.
type DatabaseConfig struct {
	Type     string `mapstructure:"type"` // postgres, mysql, or sqlite
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	MaxConns int    `mapstructure:"max_conns"`
}

// StorageConfig holds snapshot archive storage configuration.
type StorageConfig struct {
	Type      string `mapstructure:"type"` // cos or local
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	SecretID  string `mapstructure:"secret_id"`
	SecretKey string `mapstructure:"secret_key"`
	Domain    string `mapstructure:"domain"`     // e.g., "myqcloud.com"
	Scheme    string `mapstructure:"scheme"`     // e.g., "https" or "http"
	LocalPath string `mapstructure:"local_path"` // for local storage
}

// TelemetryConfig holds OpenTelemetry trace export configuration.
type TelemetryConfig struct {
	URL     string `mapstructure:"url"`
	Enabled bool   `mapstructure:"enabled"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"` // json or text
}

// Load reads configuration from the specified file path.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set default values
	setDefaults(v)

	// Determine config file path
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Look for config in standard locations
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/haloexchange")
	}

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		// Check if it's a "file not found" error (either viper's type or os error)
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found, use defaults
			fmt.Println("Config file not found, using defaults")
		} else if os.IsNotExist(err) {
			// File specified but doesn't exist, use defaults
			fmt.Printf("Config file %s not found, using defaults\n", configPath)
		} else {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Allow environment variables to override config
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadFromReader loads configuration from an io.Reader (useful for testing).
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
	// Topology defaults: a single rank, unit box, non-periodic.
	v.SetDefault("topology.grid_dims", []int{1, 1, 1})
	v.SetDefault("topology.box_lengths", []float64{1, 1, 1})
	v.SetDefault("topology.periodic", []bool{false, false, false})
	v.SetDefault("topology.data_dir", "./data")

	// Driver defaults
	v.SetDefault("driver.steps", 100)
	v.SetDefault("driver.poll_interval", 0)
	v.SetDefault("driver.worker_count", 1)
	v.SetDefault("driver.buffer_capacity", 4096)

	// Database defaults
	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.max_conns", 10)

	// Storage defaults
	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.local_path", "./snapshots")

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.output_path", "./logs")
	v.SetDefault("log.format", "text")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Database.Type {
	case "postgres", "mysql":
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
	case "sqlite":
		// sqlite needs no host; Database names a file path instead.
	default:
		return fmt.Errorf("unsupported database type: %s", c.Database.Type)
	}

	for i, d := range c.Topology.GridDims {
		if d < 1 {
			return fmt.Errorf("topology.grid_dims[%d] must be at least 1", i)
		}
	}

	if c.Driver.WorkerCount < 1 {
		return fmt.Errorf("worker count must be at least 1")
	}

	return nil
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *Config) EnsureDataDir() error {
	if c.Topology.DataDir == "" {
		return nil
	}
	return os.MkdirAll(c.Topology.DataDir, 0755)
}

// GetRunDir returns the run-specific directory path under the data dir.
func (c *Config) GetRunDir(runID string) string {
	return filepath.Join(c.Topology.DataDir, runID)
}
