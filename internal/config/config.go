// Package config loads the snapdiff YAML configuration: artifact
// folders, browser settings, and the named scenarios to check.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where the CLI looks for configuration when --config
// is not given.
const DefaultPath = "snapdiff.yaml"

// Config holds all snapdiff configuration.
type Config struct {
	BaseFolder string        `yaml:"base_folder"`
	DiffFolder string        `yaml:"diff_folder"`
	HistoryDB  string        `yaml:"history_db"`
	Threshold  float64       `yaml:"threshold"`
	Browser    BrowserConfig `yaml:"browser"`
	Scenarios  []Scenario    `yaml:"scenarios"`
}

// BrowserConfig selects and configures the page driver.
type BrowserConfig struct {
	// CDPURL, when set, attaches to a running browser's DevTools
	// WebSocket endpoint instead of launching Chrome.
	CDPURL   string `yaml:"cdp_url"`
	Headless *bool  `yaml:"headless"`
	Stealth  bool   `yaml:"stealth"`
}

// Scenario names one page state to assert on.
type Scenario struct {
	Name                           string   `yaml:"name"`
	URL                            string   `yaml:"url"`
	AllowedMismatchedPixelsPercent float64  `yaml:"allowed_mismatched_pixels_percent"`
	PreserveTexts                  []string `yaml:"preserve_texts"`
	HideElements                   []string `yaml:"hide_elements"`
}

func (c *Config) defaults() {
	if c.BaseFolder == "" {
		c.BaseFolder = "screenshots/base"
	}
	if c.DiffFolder == "" {
		c.DiffFolder = "screenshots/diff"
	}
	if c.Browser.Headless == nil {
		headless := true
		c.Browser.Headless = &headless
	}
}

func (c *Config) validate() error {
	seen := make(map[string]bool, len(c.Scenarios))
	for i, sc := range c.Scenarios {
		if sc.Name == "" {
			return fmt.Errorf("scenario %d: name must not be empty", i)
		}
		if seen[sc.Name] {
			return fmt.Errorf("scenario %q: duplicate name", sc.Name)
		}
		seen[sc.Name] = true
		if sc.URL == "" {
			return fmt.Errorf("scenario %q: url must not be empty", sc.Name)
		}
	}
	return nil
}

// Load reads a YAML config file and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.defaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}
