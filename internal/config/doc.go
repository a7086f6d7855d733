// Package config provides configuration loading and validation for the PRS server.
// It handles YAML-based configuration with defaults and per-section validation.
package config
