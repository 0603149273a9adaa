package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

const (
	BackendBadger = "badger"
	BackendMemory = "memory"

	CompressionNone = "none"
	CompressionLZMA = "lzma"
)

type Config struct {
	Paths                     []string `yaml:"paths"`
	MinimumFreeGB             int      `yaml:"minimumFreeGB"`
	Backend                   string   `yaml:"backend"`
	SyncWrites                bool     `yaml:"syncWrites"`
	Compression               string   `yaml:"compression"`
	CompressionThreshold      int      `yaml:"compressionThreshold"`
	GarbageCollectionInterval int      `yaml:"garbageCollectionInterval"` // in minutes, 0 disables
	RepairInterval            int      `yaml:"repairInterval"`            // in minutes, 0 disables
	Workers                   int      `yaml:"workers"`
	Agent                     string   `yaml:"agent"`
	LogLevel                  string   `yaml:"logLevel"`
	LogFormat                 string   `yaml:"logFormat"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	c := Config{}
	c.applyDefaults()
	return c
}

// Load reads a YAML file and fills unset fields with defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.UnmarshalStrict(data, &c); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) applyDefaults() {
	if len(c.Paths) == 0 {
		c.Paths = []string{"./data"}
	}
	if c.Backend == "" {
		c.Backend = BackendBadger
	}
	if c.Compression == "" {
		c.Compression = CompressionNone
	}
	if c.CompressionThreshold == 0 {
		c.CompressionThreshold = 512
	}
	if c.Agent == "" {
		c.Agent = "local"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
}

// Validate rejects values no component can work with.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendBadger, BackendMemory:
	default:
		return fmt.Errorf("config: unknown backend %q", c.Backend)
	}
	switch c.Compression {
	case CompressionNone, CompressionLZMA:
	default:
		return fmt.Errorf("config: unknown compression %q", c.Compression)
	}
	if c.MinimumFreeGB < 0 || c.CompressionThreshold < 0 || c.GarbageCollectionInterval < 0 ||
		c.RepairInterval < 0 || c.Workers < 0 {
		return fmt.Errorf("config: negative sizes and intervals are not allowed")
	}
	return nil
}
