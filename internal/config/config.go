// Package config loads and validates momentum configuration from YAML with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds all momentum configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// LLM provider configuration
	LLM LLMConfig `yaml:"llm"`

	// SQLite storage
	Database DatabaseConfig `yaml:"database"`

	// Coaching engine settings
	Coach CoachConfig `yaml:"coach"`

	// Habit matcher thresholds
	Matcher MatcherConfig `yaml:"matcher"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the model provider used by the dispatch loop and the
// resolver's assisted-extraction stage.
type LLMConfig struct {
	Provider string `yaml:"provider"` // anthropic, openai, zai
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	Timeout  string `yaml:"timeout"`
}

// DatabaseConfig configures the SQLite store.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// CoachConfig bounds the engine's behavior.
type CoachConfig struct {
	// FocusLimit is the maximum focus-set size. Valid range is 3-5.
	FocusLimit int `yaml:"focus_limit"`

	// MaxIterations caps the dispatch loop's action/result cycles per turn.
	MaxIterations int `yaml:"max_iterations"`

	// HabitWindowDays is the trailing window for completion-rate and streak
	// computation in context reads.
	HabitWindowDays int `yaml:"habit_window_days"`
}

// MatcherConfig holds the habit matcher's confidence thresholds. These were
// empirically chosen; keep them configurable rather than hard-coded.
type MatcherConfig struct {
	// MinTokenCoverage is the fraction of description tokens that must appear
	// in a habit's title for a token-overlap match (default 0.6).
	MinTokenCoverage float64 `yaml:"min_token_coverage"`

	// MinRawScore is the alternative absolute overlap score threshold.
	MinRawScore int `yaml:"min_raw_score"`

	// FocusNarrowThreshold is the unscoped candidate-set size above which the
	// matcher narrows to the current focus set's habits first.
	FocusNarrowThreshold int `yaml:"focus_narrow_threshold"`
}

// LoggingConfig controls the categorized debug logger.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Level      string          `yaml:"level"`
	Categories map[string]bool `yaml:"categories"`
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		Name:    "momentum",
		Version: "0.3.0",
		LLM: LLMConfig{
			Provider: "anthropic",
			Model:    "",
			Timeout:  "120s",
		},
		Database: DatabaseConfig{
			Path: filepath.Join(".momentum", "momentum.db"),
		},
		Coach: CoachConfig{
			FocusLimit:      3,
			MaxIterations:   10,
			HabitWindowDays: 30,
		},
		Matcher: MatcherConfig{
			MinTokenCoverage:     0.6,
			MinRawScore:          5,
			FocusNarrowThreshold: 8,
		},
		Logging: LoggingConfig{
			DebugMode: false,
			Level:     "info",
		},
	}
}

// Load reads configuration from a YAML file, layering it over defaults and
// then applying environment overrides. A missing file is not an error; the
// defaults plus environment are used.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides layers environment variables over the loaded config.
// The env var matching the configured provider wins outright; a key env var
// is never attached to a different provider. Only when the configured
// provider ends up with no key at all does the precedence order
// (ANTHROPIC > OPENAI > ZAI) pick the provider and key together.
func (c *Config) applyEnvOverrides() {
	providers := []struct {
		envVar   string
		provider string
	}{
		{"ANTHROPIC_API_KEY", "anthropic"},
		{"OPENAI_API_KEY", "openai"},
		{"ZAI_API_KEY", "zai"},
	}
	overridden := false
	for _, p := range providers {
		if p.provider != c.LLM.Provider {
			continue
		}
		if key := os.Getenv(p.envVar); key != "" {
			c.LLM.APIKey = key
			overridden = true
		}
	}
	if !overridden && c.LLM.APIKey == "" {
		for _, p := range providers {
			if key := os.Getenv(p.envVar); key != "" {
				c.LLM.Provider = p.provider
				c.LLM.APIKey = key
				break
			}
		}
	}

	if model := os.Getenv("MOMENTUM_MODEL"); model != "" {
		c.LLM.Model = model
	}
	if db := os.Getenv("MOMENTUM_DB"); db != "" {
		c.Database.Path = db
	}
	if os.Getenv("MOMENTUM_DEBUG") == "1" {
		c.Logging.DebugMode = true
	}
}

// Validate checks invariants that the rest of the engine relies on.
func (c *Config) Validate() error {
	if c.Coach.FocusLimit < 3 || c.Coach.FocusLimit > 5 {
		return fmt.Errorf("coach.focus_limit must be between 3 and 5, got %d", c.Coach.FocusLimit)
	}
	if c.Coach.MaxIterations < 1 {
		return fmt.Errorf("coach.max_iterations must be positive, got %d", c.Coach.MaxIterations)
	}
	if c.Coach.HabitWindowDays < 1 {
		return fmt.Errorf("coach.habit_window_days must be positive, got %d", c.Coach.HabitWindowDays)
	}
	if c.Matcher.MinTokenCoverage <= 0 || c.Matcher.MinTokenCoverage > 1 {
		return fmt.Errorf("matcher.min_token_coverage must be in (0,1], got %v", c.Matcher.MinTokenCoverage)
	}
	if c.Matcher.MinRawScore < 1 {
		return fmt.Errorf("matcher.min_raw_score must be positive, got %d", c.Matcher.MinRawScore)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	return nil
}
