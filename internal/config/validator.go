package config

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "pipeline.max_iterations")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// ValidRejectedPolicies returns the valid code_review_rejected values
func ValidRejectedPolicies() []string {
	return []string{"rework", "escalate"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateAgents()...)
	errors = append(errors, c.validatePipeline()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

func (c *Config) validateAgents() []ValidationError {
	var errors []ValidationError

	agents := []struct {
		field string
		cfg   AgentConfig
	}{
		{"agents.planner", c.Agents.Planner},
		{"agents.coder", c.Agents.Coder},
		{"agents.reviewer", c.Agents.Reviewer},
		{"agents.codex", c.Agents.Codex},
	}

	for _, a := range agents {
		if a.cfg.Command == "" {
			errors = append(errors, ValidationError{
				Field:   a.field + ".command",
				Value:   a.cfg.Command,
				Message: "command must not be empty",
			})
		}
		if a.cfg.TimeoutMinutes < 0 {
			errors = append(errors, ValidationError{
				Field:   a.field + ".timeout_minutes",
				Value:   a.cfg.TimeoutMinutes,
				Message: "timeout must not be negative",
			})
		}
	}

	return errors
}

func (c *Config) validatePipeline() []ValidationError {
	var errors []ValidationError

	if c.Pipeline.MaxIterations < 1 || c.Pipeline.MaxIterations > 100 {
		errors = append(errors, ValidationError{
			Field:   "pipeline.max_iterations",
			Value:   c.Pipeline.MaxIterations,
			Message: "must be between 1 and 100",
		})
	}

	if !slices.Contains(ValidRejectedPolicies(), c.Pipeline.CodeReviewRejected) {
		errors = append(errors, ValidationError{
			Field:   "pipeline.code_review_rejected",
			Value:   c.Pipeline.CodeReviewRejected,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidRejectedPolicies(), ", ")),
		})
	}

	return errors
}

func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	return errors
}
