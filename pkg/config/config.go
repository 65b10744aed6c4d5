// Package config provides configuration loading and management for roilifetime.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Calibration holds the instrument constants of the pixel transform
	Calibration struct {
		// PulseCorrection is the baseline fluorescence subtracted from the pulse channel
		PulseCorrection float64 `yaml:"pulseCorrection"`

		// PulseSlope converts corrected pulse intensity to concentration
		PulseSlope float64 `yaml:"pulseSlope"`

		ChaseCorrection float64 `yaml:"chaseCorrection"`
		ChaseSlope      float64 `yaml:"chaseSlope"`

		// TimeConstant is the labeling interval used by the lifetime formula
		TimeConstant float64 `yaml:"timeConstant"`

		// Epsilon keeps the fraction ratio away from zero
		Epsilon float64 `yaml:"epsilon"`

		// PulseChannel and ChaseChannel are zero-based channel indices in the raw image
		PulseChannel int `yaml:"pulseChannel"`
		ChaseChannel int `yaml:"chaseChannel"`
	} `yaml:"calibration"`

	// Processing parameters
	Processing struct {
		// NumCores specifies how many slices are processed concurrently
		NumCores int `yaml:"numCores"`

		// SkipFailedSlices logs and skips slices with structural errors
		// instead of aborting the whole mouse
		SkipFailedSlices bool `yaml:"skipFailedSlices"`

		// ExcludedSubtrees lists region labels whose whole subtree is dropped
		ExcludedSubtrees []string `yaml:"excludedSubtrees"`

		// RootLabel is the name of the atlas root region, always dropped
		RootLabel string `yaml:"rootLabel"`
	} `yaml:"processing"`

	// Paths locate the per-mouse inputs relative to <dataRoot>/<mouse>
	Paths struct {
		DataRoot  string `yaml:"dataRoot"`
		ImageDir  string `yaml:"imageDir"`
		AtlasDir  string `yaml:"atlasDir"`
		OutputDir string `yaml:"outputDir"`

		// ImageExt is the extension of the image paired with each atlas file
		ImageExt string `yaml:"imageExt"`
	} `yaml:"paths"`

	// Output parameters
	Output struct {
		// Save determines whether results are persisted at all
		Save bool `yaml:"save"`

		// Database is the SQLite file receiving every run. Relative paths
		// resolve against the data root.
		Database string `yaml:"database"`

		// Formats lists the flat exports written per mouse ("csv", "json")
		Formats []string `yaml:"formats"`

		// SaveLifetimeMaps writes grayscale images of each slice's derived
		// planes
		SaveLifetimeMaps bool `yaml:"saveLifetimeMaps"`

		// MapChannels selects the planes written as maps ("pulse", "chase",
		// "lifetime")
		MapChannels []string `yaml:"mapChannels"`

		// SaveCharts writes a per-mouse bar chart of leaf region lifetimes
		SaveCharts bool `yaml:"saveCharts"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`

		// LogFormat is "console" for humans or "json" for log collectors
		LogFormat string `yaml:"logFormat"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Calibration of the current instrument
	cfg.Calibration.PulseCorrection = 67.7
	cfg.Calibration.PulseSlope = 1169.1
	cfg.Calibration.ChaseCorrection = 67.7
	cfg.Calibration.ChaseSlope = 1169.1
	cfg.Calibration.TimeConstant = 3
	cfg.Calibration.Epsilon = 1e-9
	cfg.Calibration.PulseChannel = 3
	cfg.Calibration.ChaseChannel = 2

	cfg.Processing.NumCores = runtime.NumCPU()
	cfg.Processing.SkipFailedSlices = true
	cfg.Processing.ExcludedSubtrees = []string{"fiber tracts", "VS"}
	cfg.Processing.RootLabel = "Root"

	cfg.Paths.DataRoot = "."
	cfg.Paths.ImageDir = filepath.Join("QProject", "exported_tiffs")
	cfg.Paths.AtlasDir = filepath.Join("abbaProject", "atlas_json")
	cfg.Paths.OutputDir = "analyzed_data"
	cfg.Paths.ImageExt = ".tif"

	cfg.Output.Save = true
	cfg.Output.Database = "roilifetime.db"
	cfg.Output.Formats = []string{"csv"}
	cfg.Output.SaveLifetimeMaps = false
	cfg.Output.MapChannels = []string{"lifetime"}
	cfg.Output.SaveCharts = false
	cfg.Output.Verbose = false
	cfg.Output.LogFormat = "console"

	return cfg
}

// Validate reports the first setting that cannot be used
func (c *Config) Validate() error {
	cal := c.Calibration
	if cal.PulseSlope == 0 || cal.ChaseSlope == 0 {
		return errors.New("calibration slopes must be non-zero")
	}
	if cal.Epsilon <= 0 {
		return errors.New("calibration epsilon must be positive")
	}
	if cal.PulseChannel < 0 || cal.ChaseChannel < 0 {
		return errors.New("channel indices must be non-negative")
	}
	if cal.PulseChannel == cal.ChaseChannel {
		return fmt.Errorf("pulse and chase channels must differ, both are %d", cal.PulseChannel)
	}
	if c.Processing.NumCores < 1 {
		return fmt.Errorf("numCores must be at least 1, got %d", c.Processing.NumCores)
	}
	for _, f := range c.Output.Formats {
		if f != "csv" && f != "json" {
			return fmt.Errorf("unknown output format %q", f)
		}
	}
	for _, ch := range c.Output.MapChannels {
		if ch != "pulse" && ch != "chase" && ch != "lifetime" {
			return fmt.Errorf("unknown map channel %q", ch)
		}
	}
	if f := c.Output.LogFormat; f != "console" && f != "json" {
		return fmt.Errorf("unknown log format %q", f)
	}
	return nil
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath == "" {
		return cfg, nil
	}

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
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

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
