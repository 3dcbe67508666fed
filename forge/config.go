// Package forge is the pipeline facade: probe a site, author a recipe,
// then repair it until it validates. One Pipeline owns the browser
// lifecycle, the trail store, and the fix session for a single site at
// a time; multi-site concurrency belongs to the caller.
package forge

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level pipeline configuration, loaded from YAML.
type Config struct {
	Browser BrowserConfig `yaml:"browser"`
	Probe   ProbeConfig   `yaml:"probe"`
	Engine  EngineConfig  `yaml:"engine"`
	Fixer   FixerConfig   `yaml:"fixer"`
	Repair  RepairConfig  `yaml:"repair"`

	// RecipeDir is where recipe artifacts are written. Artifacts are
	// kept on failure for manual inspection.
	RecipeDir string `yaml:"recipe_dir"`
	// TrailDB is the SQLite attempt-trail path. Empty disables the trail.
	TrailDB string `yaml:"trail_db"`
}

// BrowserConfig controls the Chrome lifecycle.
type BrowserConfig struct {
	Remote           string        `yaml:"remote"`
	ResourceBlocking []string      `yaml:"resource_blocking"`
	NavigateTimeout  time.Duration `yaml:"navigate_timeout"`
	XvfbDisplay      string        `yaml:"xvfb_display"`
	// Bypass enables a second, headed browser for the interactive
	// anti-bot handoff.
	Bypass bool `yaml:"bypass"`
}

// ProbeConfig tunes evidence collection.
type ProbeConfig struct {
	TypeDelay  time.Duration `yaml:"type_delay"`
	SettleWait time.Duration `yaml:"settle_wait"`
	MinResults int           `yaml:"min_results"`
	LinkSample int           `yaml:"link_sample"`
}

// EngineConfig points at the execution collaborator binary.
type EngineConfig struct {
	Bin     string        `yaml:"bin"`
	Args    []string      `yaml:"args"`
	Timeout time.Duration `yaml:"timeout"`
}

// FixerConfig points at the authoring/fixing collaborator binary.
type FixerConfig struct {
	Bin           string        `yaml:"bin"`
	Args          []string      `yaml:"args"`
	AuthorTimeout time.Duration `yaml:"author_timeout"`
}

// RepairConfig bounds the repair loop.
type RepairConfig struct {
	MaxIterations    int           `yaml:"max_iterations"`
	OverlapThreshold float64       `yaml:"overlap_threshold"`
	DebugTimeout     time.Duration `yaml:"debug_timeout"`
}

// LoadConfigFile reads a YAML configuration file and applies defaults.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("forge: read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("forge: parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Browser.NavigateTimeout <= 0 {
		c.Browser.NavigateTimeout = 30 * time.Second
	}
	if c.Probe.TypeDelay <= 0 {
		c.Probe.TypeDelay = 150 * time.Millisecond
	}
	if c.Probe.SettleWait <= 0 {
		c.Probe.SettleWait = 2 * time.Second
	}
	if c.Probe.MinResults <= 0 {
		c.Probe.MinResults = 3
	}
	if c.Engine.Timeout <= 0 {
		c.Engine.Timeout = 90 * time.Second
	}
	if c.Repair.MaxIterations <= 0 {
		c.Repair.MaxIterations = 5
	}
	if c.Repair.OverlapThreshold <= 0 {
		c.Repair.OverlapThreshold = 0.7
	}
	if c.RecipeDir == "" {
		c.RecipeDir = "recipes"
	}
}
