// Package config provides configuration management for cruise.
// Configuration is loaded from (highest to lowest priority):
// 1. Command-line flags
// 2. Environment variables (CRUISE_*, plus DEBUG and FAIL_FAST)
// 3. Project config (.cruise/config.yaml in cwd)
// 4. Home config (~/.cruise/config.yaml)
// 5. Defaults
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config holds all cruise configuration.
type Config struct {
	// Runner selects the primary agent CLI ("claude" or "gemini").
	Runner string `yaml:"runner" json:"runner" validate:"oneof=claude gemini"`

	// ReviewerRunner selects the reviewer agent CLI.
	ReviewerRunner string `yaml:"reviewer_runner" json:"reviewer_runner" validate:"oneof=claude gemini"`

	// TeamMode selects the coordination mode (sequential, pingpong, github).
	TeamMode string `yaml:"team_mode" json:"team_mode" validate:"oneof=sequential pingpong github"`

	// MaxIterations bounds the ping-pong sweep.
	MaxIterations int `yaml:"max_iterations" json:"max_iterations" validate:"gte=1"`

	// MaxEscalations bounds permission recovery per watcher invocation.
	MaxEscalations int `yaml:"max_escalations" json:"max_escalations" validate:"gte=0"`

	// MaxConcurrentReviewers bounds parallel PR-mediated reviews.
	MaxConcurrentReviewers int `yaml:"max_concurrent_reviewers" json:"max_concurrent_reviewers" validate:"gte=1"`

	// TimeoutSecs is the total timeout for each agent invocation.
	TimeoutSecs int `yaml:"timeout_secs" json:"timeout_secs" validate:"gte=1"`

	// IdleTimeoutSecs is the idle timeout for each agent invocation.
	IdleTimeoutSecs int `yaml:"idle_timeout_secs" json:"idle_timeout_secs" validate:"gte=1,ltfield=TimeoutSecs"`

	// LogsDir is where per-invocation log bundles are written.
	LogsDir string `yaml:"logs_dir" json:"logs_dir"`

	// Org is the host organization. It is loaded and kept in the config
	// only; PR creation does not read it and always uses the sandbox
	// repository's own origin remote.
	Org string `yaml:"org" json:"org"`

	// BaseBranch is loaded and kept in the config only; PR creation does
	// not pass it, so PRs target the host's default base branch.
	BaseBranch string `yaml:"base_branch" json:"base_branch"`

	// Poll configures the PR review poll backoff.
	Poll PollConfig `yaml:"poll" json:"poll"`

	// Debug enables verbose diagnostics (DEBUG=1).
	Debug bool `yaml:"debug" json:"debug"`

	// FailFast aborts on first error instead of attempting recovery
	// (FAIL_FAST=1).
	FailFast bool `yaml:"fail_fast" json:"fail_fast"`
}

// PollConfig shapes the exponential backoff used while waiting for a PR
// review decision.
type PollConfig struct {
	InitialSecs int     `yaml:"initial_secs" json:"initial_secs" validate:"gte=1"`
	MaxSecs     int     `yaml:"max_secs" json:"max_secs" validate:"gtefield=InitialSecs"`
	Multiplier  float64 `yaml:"multiplier" json:"multiplier" validate:"gte=1"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Runner:                 "claude",
		ReviewerRunner:         "gemini",
		TeamMode:               "github",
		MaxIterations:          3,
		MaxEscalations:         5,
		MaxConcurrentReviewers: 3,
		TimeoutSecs:            1800,
		IdleTimeoutSecs:        120,
		LogsDir:                ".cruise/logs",
		BaseBranch:             "main",
		Poll: PollConfig{
			InitialSecs: 10,
			MaxSecs:     300,
			Multiplier:  2.0,
		},
	}
}

var validate = validator.New()

// Validate checks the loaded configuration's invariants, including
// idle_timeout < total_timeout.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Load loads configuration with proper precedence.
// Priority: flags > env > project > home > defaults.
func Load(flagOverrides *Config) (*Config, error) {
	cfg := Default()

	homeConfig, _ := loadFromPath(homeConfigPath())
	if homeConfig != nil {
		cfg = merge(cfg, homeConfig)
	}

	projectConfig, _ := loadFromPath(projectConfigPath())
	if projectConfig != nil {
		cfg = merge(cfg, projectConfig)
	}

	cfg = applyEnv(cfg)

	if flagOverrides != nil {
		cfg = merge(cfg, flagOverrides)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// homeConfigPath returns the home config path.
func homeConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".cruise", "config.yaml")
}

// projectConfigPath returns the project config path, honoring the
// CRUISE_CONFIG override.
func projectConfigPath() string {
	if override := strings.TrimSpace(os.Getenv("CRUISE_CONFIG")); override != "" {
		return override
	}
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return filepath.Join(cwd, ".cruise", "config.yaml")
}

// loadFromPath loads config from a YAML file.
func loadFromPath(path string) (*Config, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyEnv applies environment variable overrides.
func applyEnv(cfg *Config) *Config {
	if v := os.Getenv("CRUISE_RUNNER"); v != "" {
		cfg.Runner = v
	}
	if v := os.Getenv("CRUISE_REVIEWER_RUNNER"); v != "" {
		cfg.ReviewerRunner = v
	}
	if v := os.Getenv("CRUISE_TEAM_MODE"); v != "" {
		cfg.TeamMode = v
	}
	if v := os.Getenv("CRUISE_LOGS_DIR"); v != "" {
		cfg.LogsDir = v
	}
	if v := os.Getenv("CRUISE_ORG"); v != "" {
		cfg.Org = v
	}
	if v := os.Getenv("CRUISE_BASE_BRANCH"); v != "" {
		cfg.BaseBranch = v
	}
	if envBool("DEBUG") {
		cfg.Debug = true
	}
	if envBool("FAIL_FAST") {
		cfg.FailFast = true
	}
	return cfg
}

func envBool(key string) bool {
	v := os.Getenv(key)
	return v == "1" || v == "true"
}

// merge merges src into dst, with src values taking precedence. Zero
// values in src mean "not set" and leave dst alone; booleans only merge
// upward (true wins).
func merge(dst, src *Config) *Config {
	if src.Runner != "" {
		dst.Runner = src.Runner
	}
	if src.ReviewerRunner != "" {
		dst.ReviewerRunner = src.ReviewerRunner
	}
	if src.TeamMode != "" {
		dst.TeamMode = src.TeamMode
	}
	if src.MaxIterations != 0 {
		dst.MaxIterations = src.MaxIterations
	}
	if src.MaxEscalations != 0 {
		dst.MaxEscalations = src.MaxEscalations
	}
	if src.MaxConcurrentReviewers != 0 {
		dst.MaxConcurrentReviewers = src.MaxConcurrentReviewers
	}
	if src.TimeoutSecs != 0 {
		dst.TimeoutSecs = src.TimeoutSecs
	}
	if src.IdleTimeoutSecs != 0 {
		dst.IdleTimeoutSecs = src.IdleTimeoutSecs
	}
	if src.LogsDir != "" {
		dst.LogsDir = src.LogsDir
	}
	if src.Org != "" {
		dst.Org = src.Org
	}
	if src.BaseBranch != "" {
		dst.BaseBranch = src.BaseBranch
	}
	if src.Poll.InitialSecs != 0 {
		dst.Poll.InitialSecs = src.Poll.InitialSecs
	}
	if src.Poll.MaxSecs != 0 {
		dst.Poll.MaxSecs = src.Poll.MaxSecs
	}
	if src.Poll.Multiplier != 0 {
		dst.Poll.Multiplier = src.Poll.Multiplier
	}
	if src.Debug {
		dst.Debug = true
	}
	if src.FailFast {
		dst.FailFast = true
	}
	return dst
}
