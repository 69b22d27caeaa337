// Package config provides configuration loading and management for panotiler.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Processing parameters
	Processing struct {
		// NumCores specifies how many CPU cores to use for parallel processing
		NumCores int `yaml:"numCores"`

		// Levels is the number of resolution levels in the pyramid
		Levels int `yaml:"levels"`

		// BaseFaceSize is the side length of a cube face at the highest
		// resolution level. Zero derives it as 256 * 2^(levels-1).
		BaseFaceSize int `yaml:"baseFaceSize"`

		// TileSize is the tile side length, constant across levels except
		// the lowest, which is a single tile of its own size
		TileSize int `yaml:"tileSize"`
	} `yaml:"processing"`

	// Output parameters
	Output struct {
		// Format is the tile image format, "jpg" or "png"
		Format string `yaml:"format"`

		// TileQuality is the JPEG quality for tiles (ignored for png)
		TileQuality int `yaml:"tileQuality"`

		// PreviewQuality is the JPEG quality for the composite preview
		PreviewQuality int `yaml:"previewQuality"`

		// PreviewFaceSize is the per-face side length in the preview cross
		PreviewFaceSize int `yaml:"previewFaceSize"`
	} `yaml:"output"`

	// Logging parameters
	Logging struct {
		// Level is the minimum log level: debug, info, warn, error
		Level string `yaml:"level"`

		// File enables rotated file logging when set to a path
		File string `yaml:"file"`
	} `yaml:"logging"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Set default processing parameters
	cfg.Processing.NumCores = runtime.NumCPU() // Use all available cores by default
	cfg.Processing.Levels = 4
	cfg.Processing.BaseFaceSize = 0 // derived from level count
	cfg.Processing.TileSize = 512

	// Set default output parameters
	cfg.Output.Format = "jpg"
	cfg.Output.TileQuality = 90
	cfg.Output.PreviewQuality = 85
	cfg.Output.PreviewFaceSize = 256

	// Set default logging parameters
	cfg.Logging.Level = "info"
	cfg.Logging.File = ""

	return cfg
}

// FaceSize returns the effective base face side length, deriving the
// default of 256 * 2^(levels-1) when BaseFaceSize is unset.
func (c *Config) FaceSize() int {
	if c.Processing.BaseFaceSize > 0 {
		return c.Processing.BaseFaceSize
	}
	return 256 << (c.Processing.Levels - 1)
}

// Validate checks the configuration for values the pipeline cannot run with
func (c *Config) Validate() error {
	if c.Processing.Levels < 1 {
		return fmt.Errorf("levels must be at least 1, got %d", c.Processing.Levels)
	}
	if c.Processing.TileSize < 1 {
		return fmt.Errorf("tileSize must be positive, got %d", c.Processing.TileSize)
	}
	if c.Processing.NumCores < 1 {
		return fmt.Errorf("numCores must be positive, got %d", c.Processing.NumCores)
	}
	if c.FaceSize() < c.Processing.TileSize {
		return fmt.Errorf("base face size %d is smaller than tile size %d",
			c.FaceSize(), c.Processing.TileSize)
	}
	switch c.Output.Format {
	case "jpg", "jpeg", "png":
	default:
		return fmt.Errorf("unsupported output format %q (must be jpg or png)", c.Output.Format)
	}
	if c.Output.TileQuality < 1 || c.Output.TileQuality > 100 {
		return fmt.Errorf("tileQuality must be in 1..100, got %d", c.Output.TileQuality)
	}
	if c.Output.PreviewQuality < 1 || c.Output.PreviewQuality > 100 {
		return fmt.Errorf("previewQuality must be in 1..100, got %d", c.Output.PreviewQuality)
	}
	return nil
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	return SaveConfig(DefaultConfig(), configPath)
}
