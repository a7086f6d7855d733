package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values for the PRS server
const (
	DefaultServicePort      = 30000
	DefaultStartPort        = 40000
	DefaultEndPort          = 40100
	DefaultKeepAliveTimeout = 10
)

// Config represents the complete service configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Registry RegistryConfig `yaml:"registry"`
	HTTP     HTTPConfig     `yaml:"http"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig contains UDP server configuration
type ServerConfig struct {
	UDPPort     int    `yaml:"udp_port"`
	BindAddress string `yaml:"bind_address"`
	BufferSize  int    `yaml:"buffer_size"`
}

// RegistryConfig contains the reservation pool parameters
type RegistryConfig struct {
	StartPort        int `yaml:"start_port"`
	EndPort          int `yaml:"end_port"`
	KeepAliveTimeout int `yaml:"keep_alive_timeout"` // seconds
}

// HTTPConfig contains HTTP monitoring server configuration
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string         `yaml:"level"`
	Format   string         `yaml:"format"`
	Output   string         `yaml:"output"`
	Rotation RotationConfig `yaml:"rotation"`
}

// RotationConfig controls rotation when logging to a file
type RotationConfig struct {
	Enabled    bool `yaml:"enabled"`
	MaxSizeMB  int  `yaml:"max_size_mb"`
	MaxBackups int  `yaml:"max_backups"`
	MaxAgeDays int  `yaml:"max_age_days"`
	Compress   bool `yaml:"compress"`
}

// Default returns a configuration populated with the built-in defaults
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			UDPPort:     DefaultServicePort,
			BindAddress: "0.0.0.0",
			BufferSize:  65536,
		},
		Registry: RegistryConfig{
			StartPort:        DefaultStartPort,
			EndPort:          DefaultEndPort,
			KeepAliveTimeout: DefaultKeepAliveTimeout,
		},
		HTTP: HTTPConfig{
			Port:    8080,
			Address: "127.0.0.1",
			Enabled: false,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
			Rotation: RotationConfig{
				MaxSizeMB:  50,
				MaxBackups: 3,
				MaxAgeDays: 28,
			},
		},
	}
}

// Load reads and parses the configuration file on top of the defaults
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate performs validation of every section
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.Registry.Validate(); err != nil {
		return fmt.Errorf("registry config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	if s.UDPPort < 1 || s.UDPPort > 65535 {
		return fmt.Errorf("udp_port must be between 1 and 65535, got %d", s.UDPPort)
	}

	if s.BindAddress == "" {
		return fmt.Errorf("bind_address cannot be empty")
	}

	if s.BufferSize < 1024 {
		return fmt.Errorf("buffer_size must be at least 1024 bytes, got %d", s.BufferSize)
	}

	return nil
}

// Validate validates the reservation pool
func (r *RegistryConfig) Validate() error {
	if r.StartPort < 0 || r.StartPort > 65535 {
		return fmt.Errorf("start_port must be between 0 and 65535, got %d", r.StartPort)
	}

	if r.EndPort < 0 || r.EndPort > 65535 {
		return fmt.Errorf("end_port must be between 0 and 65535, got %d", r.EndPort)
	}

	if r.StartPort > r.EndPort {
		return fmt.Errorf("start_port (%d) must not exceed end_port (%d)", r.StartPort, r.EndPort)
	}

	if r.KeepAliveTimeout < 1 {
		return fmt.Errorf("keep_alive_timeout must be at least 1 second, got %d", r.KeepAliveTimeout)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	if l.Rotation.Enabled {
		if l.Output == "" || l.Output == "stdout" || l.Output == "stderr" {
			return fmt.Errorf("rotation requires a file output, got '%s'", l.Output)
		}
		if l.Rotation.MaxSizeMB < 1 {
			return fmt.Errorf("rotation max_size_mb must be at least 1, got %d", l.Rotation.MaxSizeMB)
		}
		if l.Rotation.MaxBackups < 0 || l.Rotation.MaxAgeDays < 0 {
			return fmt.Errorf("rotation max_backups and max_age_days cannot be negative")
		}
	}

	return nil
}

// GetKeepAliveTimeoutDuration returns the keep-alive timeout as a time.Duration
func (r *RegistryConfig) GetKeepAliveTimeoutDuration() time.Duration {
	return time.Duration(r.KeepAliveTimeout) * time.Second
}

// GetUDPAddress returns the host:port the UDP server binds to
func (s *ServerConfig) GetUDPAddress() string {
	return fmt.Sprintf("%s:%d", s.BindAddress, s.UDPPort)
}

// GetHTTPAddress returns the host:port the HTTP server binds to
func (h *HTTPConfig) GetHTTPAddress() string {
	return fmt.Sprintf("%s:%d", h.Address, h.Port)
}
