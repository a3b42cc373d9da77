package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalid is returned by Validate for out-of-range settings.
var ErrInvalid = errors.New("invalid config")

// Load loads configuration with priority: defaults < file < flags.
func Load() (*Config, error) {
	// Start with defaults
	cfg := Default()

	// Try to load from file (explicit path takes priority)
	configPath := ConfigPath()
	if configPath == "" {
		configPath = findConfigFile()
	}

	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config from %s: %w", configPath, err)
		}
	}

	// Apply CLI flags (highest priority)
	applyFlags(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values the loaders cannot clamp themselves.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Animation.LoopMode) {
	case "", "loop", "pingpong", "ping-pong":
	default:
		return fmt.Errorf("%w: animation.loop_mode %q", ErrInvalid, c.Animation.LoopMode)
	}
	if c.Animation.Speed < 0 {
		return fmt.Errorf("%w: animation.speed %v", ErrInvalid, c.Animation.Speed)
	}
	if c.Animation.FPS <= 0 {
		return fmt.Errorf("%w: animation.fps %d", ErrInvalid, c.Animation.FPS)
	}
	if c.Terrain.TileSize <= 0 {
		return fmt.Errorf("%w: terrain.tile_size %v", ErrInvalid, c.Terrain.TileSize)
	}
	if c.Terrain.LoadRadius < 0 || c.Terrain.Workers < 1 {
		return fmt.Errorf("%w: terrain radius %d with %d workers", ErrInvalid, c.Terrain.LoadRadius, c.Terrain.Workers)
	}
	if c.Resolver.MaxStringLen <= 0 || c.Resolver.AnimMaxStringLen <= 0 {
		return fmt.Errorf("%w: resolver string limits must be positive", ErrInvalid)
	}
	return nil
}

// findConfigFile looks for config in standard locations.
func findConfigFile() string {
	candidates := []string{
		"./bdae.yaml",
		filepath.Join(ConfigDir(), "config.yaml"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// ConfigDir returns the OS-appropriate config directory.
func ConfigDir() string {
	switch runtime.GOOS {
	case "darwin":
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "Library", "Application Support", "BDAEViewer")
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "BDAEViewer")
	default: // Linux and others
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "bdae-viewer")
		}
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "bdae-viewer")
	}
}

// loadFromFile loads config from a YAML file, merging with existing values.
func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}
