// Package config defines and validates the run configuration.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is one run's input configuration.
type Config struct {
	StartURLs     []string      `mapstructure:"start_urls" yaml:"start_urls" validate:"min=1,dive,url"`
	ResultsWanted int           `mapstructure:"results_wanted" yaml:"results_wanted" validate:"min=1"`
	MaxPages      int           `mapstructure:"max_pages" yaml:"max_pages" validate:"min=1,max=200"`
	ProxyURL      string        `mapstructure:"proxy_url" yaml:"proxy_url" validate:"omitempty,url"`
	DirectRetry   bool          `mapstructure:"direct_retry" yaml:"direct_retry"`
	Timeout       time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"min=10s"`
	Output        string        `mapstructure:"output" yaml:"output"`
	Format        string        `mapstructure:"format" yaml:"format" validate:"oneof=jsonl json yaml"`
	DebugDir      string        `mapstructure:"debug_dir" yaml:"debug_dir"`
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		ResultsWanted: 20,
		MaxPages:      20,
		DirectRetry:   true,
		Timeout:       5 * time.Minute,
		Format:        "jsonl",
	}
}

// Normalize floors and caps fields the way the run expects them, before
// validation so out-of-range user input degrades instead of failing.
func (c *Config) Normalize() {
	if c.ResultsWanted < 1 {
		c.ResultsWanted = 20
	}
	if c.MaxPages < 1 {
		c.MaxPages = 20
	}
	if c.MaxPages > 200 {
		c.MaxPages = 200
	}
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Minute
	}
	if c.Format == "" {
		c.Format = "jsonl"
	}
}

// Validate checks the configuration, returning a descriptive error.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
			e := errs[0]
			return fmt.Errorf("config field %s failed %s validation", e.Field(), e.Tag())
		}
		return fmt.Errorf("config validation: %w", err)
	}
	return nil
}
