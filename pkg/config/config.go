// Package config provides configuration loading and management for zsearch.
// It handles loading run configuration from YAML files and provides
// default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Config represents the run configuration loaded from YAML.
type Config struct {
	// Target describes the source position on the sky.
	Target struct {
		// RA is the right ascension as [hours, minutes, seconds].
		RA []float64 `yaml:"ra"`

		// Dec is the declination as [degrees, arcminutes, arcseconds].
		Dec []float64 `yaml:"dec"`

		// DecSign is +1 or -1 so a -0d declination is representable.
		DecSign int `yaml:"decSign"`
	} `yaml:"target"`

	// Photometry parameters.
	Photometry struct {
		// ApertureRadius is the aperture radius in pixels.
		ApertureRadius float64 `yaml:"apertureRadius"`

		// BValue is the beam major/minor axis in arcseconds.
		BValue float64 `yaml:"bvalue"`
	} `yaml:"photometry"`

	// Sampling parameters.
	Sampling struct {
		// Points is the number of sample points including the target.
		Points int `yaml:"points"`

		// MinSeparation is the minimum distance between points in pixels.
		MinSeparation float64 `yaml:"minSeparation"`

		// Seed fixes the random layout; 0 means time-seeded.
		Seed int64 `yaml:"seed"`
	} `yaml:"sampling"`

	// Search parameters.
	Search struct {
		// Transition is the rest-frame transition frequency in GHz.
		Transition float64 `yaml:"transition"`

		// ZStart, ZStep, ZEnd define the candidate redshift grid.
		ZStart float64 `yaml:"zStart"`
		ZStep  float64 `yaml:"zStep"`
		ZEnd   float64 `yaml:"zEnd"`
	} `yaml:"search"`

	// Processing parameters.
	Processing struct {
		// Workers caps how many sample points are processed concurrently.
		Workers int `yaml:"workers"`
	} `yaml:"processing"`
}

// DefaultConfig returns a configuration with default values for a CO(1-0)
// line search.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Target.DecSign = 1

	cfg.Photometry.ApertureRadius = 3
	cfg.Photometry.BValue = 3

	cfg.Sampling.Points = 1
	cfg.Sampling.MinSeparation = 1.0

	cfg.Search.Transition = 115.2712
	cfg.Search.ZStart = 0
	cfg.Search.ZStep = 0.01
	cfg.Search.ZEnd = 10

	cfg.Processing.Workers = runtime.NumCPU()

	return cfg
}

// LoadConfig loads configuration from a YAML file. If the file doesn't
// exist, it returns the default configuration.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

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

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file.
func SaveConfig(cfg *Config, configPath string) error {
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

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if len(c.Target.RA) != 3 {
		return fmt.Errorf("target ra must have 3 components [h, m, s], got %d", len(c.Target.RA))
	}
	if len(c.Target.Dec) != 3 {
		return fmt.Errorf("target dec must have 3 components [d, m, s], got %d", len(c.Target.Dec))
	}
	if c.Photometry.ApertureRadius <= 0 {
		return fmt.Errorf("aperture radius must be positive, got %g", c.Photometry.ApertureRadius)
	}
	if c.Sampling.Points < 1 {
		return fmt.Errorf("need at least one sample point, got %d", c.Sampling.Points)
	}
	if c.Search.Transition <= 0 {
		return fmt.Errorf("transition frequency must be positive, got %g", c.Search.Transition)
	}
	if c.Search.ZStep <= 0 {
		return fmt.Errorf("redshift step must be positive, got %g", c.Search.ZStep)
	}
	if c.Search.ZEnd < c.Search.ZStart {
		return fmt.Errorf("redshift range [%g, %g] is not increasing", c.Search.ZStart, c.Search.ZEnd)
	}
	return nil
}
