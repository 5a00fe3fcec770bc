package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete taskloop configuration
type Config struct {
	Agents   AgentsConfig   `mapstructure:"agents"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// AgentsConfig holds the per-agent invocation settings
type AgentsConfig struct {
	// Planner is the planning/orchestrator CLI (requirements, plan)
	Planner AgentConfig `mapstructure:"planner"`
	// Coder is the implementation CLI
	Coder AgentConfig `mapstructure:"coder"`
	// Reviewer is the claude review CLI; the model is selected per stage
	Reviewer AgentConfig `mapstructure:"reviewer"`
	// Codex is the codex review CLI with resumable sessions
	Codex AgentConfig `mapstructure:"codex"`
}

// AgentConfig describes how to invoke one external agent CLI
type AgentConfig struct {
	// Command is the executable name (resolved against PATH)
	Command string `mapstructure:"command"`
	// Args are extra arguments always passed to the CLI
	Args []string `mapstructure:"args"`
	// ModelFlag is the flag used to select a model, e.g. "--model".
	// Empty means the CLI takes no model selection.
	ModelFlag string `mapstructure:"model_flag"`
	// TimeoutMinutes bounds one invocation (0 = package default)
	TimeoutMinutes int `mapstructure:"timeout_minutes"`
	// Capabilities are capability grants appended as "--allow <cap>" pairs
	Capabilities []string `mapstructure:"capabilities"`
	// InstructionsFile is the agent instruction markdown path, relative
	// to the project root. Empty means the built-in prompt is used.
	InstructionsFile string `mapstructure:"instructions_file"`
}

// Timeout returns the invocation timeout as a time.Duration
func (a *AgentConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutMinutes) * time.Minute
}

// PipelineConfig controls the review-loop policy knobs
type PipelineConfig struct {
	// MaxIterations is the fix-loop cap per review stage (default: 10)
	MaxIterations int `mapstructure:"max_iterations"`
	// CodeReviewRejected decides what a rejected code review means:
	// "rework" treats it as needs_changes with a deeper rework directive,
	// "escalate" halts for human decision (default: "rework")
	CodeReviewRejected string `mapstructure:"code_review_rejected"`
	// ClarificationCountsTowardCap makes clarification rounds consume
	// iterations like fix rounds do (default: false)
	ClarificationCountsTowardCap bool `mapstructure:"clarification_counts_toward_cap"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Enabled controls whether debug logging is enabled (default: true)
	Enabled bool `mapstructure:"enabled"`
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Agents: AgentsConfig{
			Planner: AgentConfig{
				Command:        "claude",
				Args:           []string{"--print"},
				ModelFlag:      "--model",
				TimeoutMinutes: 10,
			},
			Coder: AgentConfig{
				Command:        "claude",
				Args:           []string{"--print"},
				ModelFlag:      "--model",
				TimeoutMinutes: 20,
			},
			Reviewer: AgentConfig{
				Command:        "claude",
				Args:           []string{"--print"},
				ModelFlag:      "--model",
				TimeoutMinutes: 10,
			},
			Codex: AgentConfig{
				Command:        "codex",
				Args:           []string{"exec"},
				TimeoutMinutes: 10,
			},
		},
		Pipeline: PipelineConfig{
			MaxIterations:                10, // Cap to prevent infinite fix loops
			CodeReviewRejected:           "rework",
			ClarificationCountsTowardCap: false,
		},
		Logging: LoggingConfig{
			Enabled: true,
			Level:   "info",
		},
	}
}

// Agent returns the configuration for a named agent kind
// ("planner", "coder", "reviewer", "codex").
func (c *Config) Agent(name string) (AgentConfig, bool) {
	switch name {
	case "planner":
		return c.Agents.Planner, true
	case "coder":
		return c.Agents.Coder, true
	case "reviewer":
		return c.Agents.Reviewer, true
	case "codex":
		return c.Agents.Codex, true
	}
	return AgentConfig{}, false
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Agent defaults
	viper.SetDefault("agents.planner.command", defaults.Agents.Planner.Command)
	viper.SetDefault("agents.planner.args", defaults.Agents.Planner.Args)
	viper.SetDefault("agents.planner.model_flag", defaults.Agents.Planner.ModelFlag)
	viper.SetDefault("agents.planner.timeout_minutes", defaults.Agents.Planner.TimeoutMinutes)
	viper.SetDefault("agents.coder.command", defaults.Agents.Coder.Command)
	viper.SetDefault("agents.coder.args", defaults.Agents.Coder.Args)
	viper.SetDefault("agents.coder.model_flag", defaults.Agents.Coder.ModelFlag)
	viper.SetDefault("agents.coder.timeout_minutes", defaults.Agents.Coder.TimeoutMinutes)
	viper.SetDefault("agents.reviewer.command", defaults.Agents.Reviewer.Command)
	viper.SetDefault("agents.reviewer.args", defaults.Agents.Reviewer.Args)
	viper.SetDefault("agents.reviewer.model_flag", defaults.Agents.Reviewer.ModelFlag)
	viper.SetDefault("agents.reviewer.timeout_minutes", defaults.Agents.Reviewer.TimeoutMinutes)
	viper.SetDefault("agents.codex.command", defaults.Agents.Codex.Command)
	viper.SetDefault("agents.codex.args", defaults.Agents.Codex.Args)
	viper.SetDefault("agents.codex.timeout_minutes", defaults.Agents.Codex.TimeoutMinutes)

	// Pipeline defaults
	viper.SetDefault("pipeline.max_iterations", defaults.Pipeline.MaxIterations)
	viper.SetDefault("pipeline.code_review_rejected", defaults.Pipeline.CodeReviewRejected)
	viper.SetDefault("pipeline.clarification_counts_toward_cap", defaults.Pipeline.ClarificationCountsTowardCap)

	// Logging defaults
	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "taskloop")
	}
	// Fall back to ~/.config/taskloop
	home, err := os.UserHomeDir()
	if err != nil {
		return ".taskloop"
	}
	return filepath.Join(home, ".config", "taskloop")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// LocalOverrideFile is the per-project config override, merged over the
// base configuration when present in the working directory.
const LocalOverrideFile = ".taskloop.local.yaml"
