package config

import (
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	if cfg.Agents.Planner.Command != "claude" {
		t.Errorf("planner command = %q", cfg.Agents.Planner.Command)
	}
	if cfg.Agents.Codex.Command != "codex" {
		t.Errorf("codex command = %q", cfg.Agents.Codex.Command)
	}
	if cfg.Agents.Coder.Timeout() != 20*time.Minute {
		t.Errorf("coder timeout = %s, want 20m", cfg.Agents.Coder.Timeout())
	}
	if cfg.Agents.Reviewer.Timeout() != 10*time.Minute {
		t.Errorf("reviewer timeout = %s, want 10m", cfg.Agents.Reviewer.Timeout())
	}
	if cfg.Pipeline.MaxIterations != 10 {
		t.Errorf("max iterations = %d, want 10", cfg.Pipeline.MaxIterations)
	}
	if cfg.Pipeline.CodeReviewRejected != "rework" {
		t.Errorf("rejected policy = %q, want rework", cfg.Pipeline.CodeReviewRejected)
	}
	if cfg.Pipeline.ClarificationCountsTowardCap {
		t.Error("clarification must not count toward the cap by default")
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		t.Errorf("default config must validate, got %v", ValidationErrors(errs))
	}
}

func TestAgentLookup(t *testing.T) {
	cfg := Default()

	for _, name := range []string{"planner", "coder", "reviewer", "codex"} {
		if _, ok := cfg.Agent(name); !ok {
			t.Errorf("agent %q not found", name)
		}
	}
	if _, ok := cfg.Agent("compiler"); ok {
		t.Error("unknown agent must not resolve")
	}
}

func TestValidateRejectsEmptyCommand(t *testing.T) {
	cfg := Default()
	cfg.Agents.Coder.Command = ""

	errs := cfg.Validate()
	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %v", ValidationErrors(errs))
	}
	if errs[0].Field != "agents.coder.command" {
		t.Errorf("field = %q", errs[0].Field)
	}
}

func TestValidateRejectsNegativeTimeout(t *testing.T) {
	cfg := Default()
	cfg.Agents.Reviewer.TimeoutMinutes = -5

	errs := cfg.Validate()
	if len(errs) != 1 || errs[0].Field != "agents.reviewer.timeout_minutes" {
		t.Errorf("errors = %v", ValidationErrors(errs))
	}
}

func TestValidateIterationBounds(t *testing.T) {
	for _, n := range []int{0, -1, 101} {
		cfg := Default()
		cfg.Pipeline.MaxIterations = n
		if errs := cfg.Validate(); len(errs) == 0 {
			t.Errorf("max_iterations=%d must fail validation", n)
		}
	}
	for _, n := range []int{1, 10, 100} {
		cfg := Default()
		cfg.Pipeline.MaxIterations = n
		if errs := cfg.Validate(); len(errs) != 0 {
			t.Errorf("max_iterations=%d must validate, got %v", n, ValidationErrors(errs))
		}
	}
}

func TestValidateRejectedPolicy(t *testing.T) {
	cfg := Default()
	cfg.Pipeline.CodeReviewRejected = "retry"

	errs := cfg.Validate()
	if len(errs) != 1 || errs[0].Field != "pipeline.code_review_rejected" {
		t.Errorf("errors = %v", ValidationErrors(errs))
	}
}

func TestValidateLogLevel(t *testing.T) {
	cfg := Default()
	cfg.Logging.Level = "verbose"
	if errs := cfg.Validate(); len(errs) != 1 {
		t.Errorf("errors = %v", ValidationErrors(errs))
	}

	cfg.Logging.Level = "DEBUG"
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("level match must be case-insensitive, got %v", ValidationErrors(errs))
	}
}

func TestValidationErrorsMessage(t *testing.T) {
	errs := ValidationErrors{
		{Field: "a", Value: 1, Message: "bad"},
		{Field: "b", Value: "x", Message: "worse"},
	}
	msg := errs.Error()
	if msg == "" {
		t.Fatal("expected a combined message")
	}
	single := ValidationErrors{{Field: "a", Value: 1, Message: "bad"}}
	if single.Error() != single[0].Error() {
		t.Error("single error must render without a count header")
	}
}
