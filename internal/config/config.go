// Package config manages the sesame-tx service configuration. It handles
// loading, validating, and providing access to configuration settings from
// YAML files, with defaults for every setting and thread-safe access.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server struct {
		Port            int      `yaml:"port"`
		Host            string   `yaml:"host"`
		AllowedOrigins  []string `yaml:"allowedOrigins"`
		ReadTimeout     int      `yaml:"readTimeout"`
		WriteTimeout    int      `yaml:"writeTimeout"`
		ShutdownTimeout int      `yaml:"shutdownTimeout"`
	} `yaml:"server"`

	Radio struct {
		Backend            string `yaml:"backend"`            // "sim"
		BitDurationMicros  int    `yaml:"bitDurationMicros"`  // per-bit OOK level time
		TxPollIntervalMs   int    `yaml:"txPollIntervalMs"`   // wait loop cadence during async tx
		TxSettleMs         int    `yaml:"txSettleMs"`         // pause after each burst
		InterTargetPauseMs int    `yaml:"interTargetPauseMs"` // pause between sweep targets
	} `yaml:"radio"`

	Attack struct {
		PayloadsPerChunk    int `yaml:"payloadsPerChunk"`    // stream/de Bruijn batch size
		CodeBufferSize      int `yaml:"codeBufferSize"`      // ring of recent codes
		ReplayCount         int `yaml:"replayCount"`         // transmissions per replay run
		ReplayPauseMs       int `yaml:"replayPauseMs"`       // pause between replays
		DeBruijnMemoryLimit int `yaml:"deBruijnMemoryLimit"` // max k^n working set
	} `yaml:"attack"`

	Database struct {
		Path        string `yaml:"path"`
		BusyTimeout int    `yaml:"busyTimeout"`
		JournalMode string `yaml:"journalMode"`
	} `yaml:"database"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	path string
	mu   sync.RWMutex
}

var (
	instance *Config
	once     sync.Once
)

// GetConfig returns the singleton configuration instance
func GetConfig() *Config {
	once.Do(func() {
		instance = &Config{}
		setDefaults(instance)
	})
	return instance
}

// New returns an independent configuration populated with defaults, for
// tests and embedding.
func New() *Config {
	c := &Config{}
	setDefaults(c)
	return c
}

// LoadConfig loads configuration from a YAML file
func (c *Config) LoadConfig(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.path = path

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("configuration file does not exist: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read configuration file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse configuration file: %w", err)
	}

	if dir := filepath.Dir(c.Database.Path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	if err := c.validateLocked(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log.Info().Str("path", path).Msg("Configuration loaded successfully")
	return nil
}

// Reload reloads the configuration from the file
func (c *Config) Reload() error {
	if c.path == "" {
		return errors.New("configuration was not loaded from a file")
	}
	return c.LoadConfig(c.path)
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.validateLocked()
}

func (c *Config) validateLocked() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Radio.Backend != "sim" {
		return fmt.Errorf("unknown radio backend: %q", c.Radio.Backend)
	}
	if c.Radio.BitDurationMicros <= 0 {
		return fmt.Errorf("invalid bit duration: %d", c.Radio.BitDurationMicros)
	}
	if c.Radio.TxPollIntervalMs <= 0 {
		return fmt.Errorf("invalid tx poll interval: %d", c.Radio.TxPollIntervalMs)
	}

	if c.Attack.PayloadsPerChunk <= 0 {
		return fmt.Errorf("invalid payloads per chunk: %d", c.Attack.PayloadsPerChunk)
	}
	if c.Attack.CodeBufferSize <= 0 {
		return fmt.Errorf("invalid code buffer size: %d", c.Attack.CodeBufferSize)
	}
	if c.Attack.ReplayCount <= 0 {
		return fmt.Errorf("invalid replay count: %d", c.Attack.ReplayCount)
	}
	if c.Attack.DeBruijnMemoryLimit <= 0 {
		return fmt.Errorf("invalid de Bruijn memory limit: %d", c.Attack.DeBruijnMemoryLimit)
	}

	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	return nil
}

// setDefaults initializes the configuration with default values
func setDefaults(c *Config) {
	// Server defaults
	c.Server.Port = 8080
	c.Server.Host = "127.0.0.1"
	c.Server.AllowedOrigins = []string{"*"}
	c.Server.ReadTimeout = 30
	c.Server.WriteTimeout = 30
	c.Server.ShutdownTimeout = 10

	// Radio defaults
	c.Radio.Backend = "sim"
	c.Radio.BitDurationMicros = 650
	c.Radio.TxPollIntervalMs = 10
	c.Radio.TxSettleMs = 5
	c.Radio.InterTargetPauseMs = 100

	// Attack defaults
	c.Attack.PayloadsPerChunk = 16
	c.Attack.CodeBufferSize = 320
	c.Attack.ReplayCount = 5
	c.Attack.ReplayPauseMs = 50
	c.Attack.DeBruijnMemoryLimit = 10000

	// Database defaults
	c.Database.Path = "./data/sesame.db"
	c.Database.BusyTimeout = 10000
	c.Database.JournalMode = "WAL"

	// Logging defaults
	c.Logging.Level = "info"
	c.Logging.Format = "console"
}
