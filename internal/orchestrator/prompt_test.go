package orchestrator

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/taskloop/taskloop/internal/artifact"
	"github.com/taskloop/taskloop/internal/config"
	"github.com/taskloop/taskloop/internal/pipeline"
)

func newPromptFixture(t *testing.T) (*PromptBuilder, *config.Config, string, *pipeline.StagePlan) {
	t.Helper()
	root := t.TempDir()
	layout := artifact.NewLayout(root)
	if err := os.MkdirAll(layout.Dir(), 0755); err != nil {
		t.Fatalf("failed to create task dir: %v", err)
	}
	cfg := config.Default()
	return NewPromptBuilder(root, layout, cfg), cfg, root, pipeline.NewStagePlan(layout)
}

func TestSplitFrontMatter(t *testing.T) {
	fm, body, err := splitFrontMatter([]byte("---\nmodel: opus\ntimeout_minutes: 15\n---\nDo the review.\n"))
	if err != nil {
		t.Fatalf("splitFrontMatter failed: %v", err)
	}
	if fm.Model != "opus" {
		t.Errorf("model = %q", fm.Model)
	}
	if fm.Timeout() != 15*time.Minute {
		t.Errorf("timeout = %s", fm.Timeout())
	}
	if body != "Do the review.\n" {
		t.Errorf("body = %q", body)
	}
}

func TestSplitFrontMatterAbsent(t *testing.T) {
	fm, body, err := splitFrontMatter([]byte("Just instructions.\n"))
	if err != nil {
		t.Fatalf("splitFrontMatter failed: %v", err)
	}
	if fm.Model != "" || fm.TimeoutMinutes != 0 {
		t.Errorf("unexpected front matter: %+v", fm)
	}
	if body != "Just instructions.\n" {
		t.Errorf("body = %q", body)
	}
}

func TestSplitFrontMatterUnterminated(t *testing.T) {
	if _, _, err := splitFrontMatter([]byte("---\nmodel: opus\nno closing delimiter")); err == nil {
		t.Error("expected error for unterminated front matter")
	}
}

func TestBuildInvokeUsesInstructionFile(t *testing.T) {
	b, cfg, root, plan := newPromptFixture(t)

	path := filepath.Join(root, "planner.md")
	content := "---\nmodel: haiku\ntimeout_minutes: 3\n---\nPlan carefully.\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write instructions: %v", err)
	}
	cfg.Agents.Planner.InstructionsFile = "planner.md"

	stage, _ := plan.ByName(pipeline.StagePlanning)
	prompt, err := b.BuildInvoke(stage)
	if err != nil {
		t.Fatalf("BuildInvoke failed: %v", err)
	}

	if !strings.HasPrefix(prompt.Text, "Plan carefully.") {
		t.Errorf("prompt does not start with instructions: %q", prompt.Text[:40])
	}
	if prompt.Model != "haiku" {
		t.Errorf("model override = %q", prompt.Model)
	}
	if prompt.Timeout != 3*time.Minute {
		t.Errorf("timeout override = %s", prompt.Timeout)
	}
	if !strings.Contains(prompt.Text, "user-story.json") {
		t.Error("plan prompt must reference the user story input")
	}
	if !strings.Contains(prompt.Text, "plan-refined.json") {
		t.Error("plan prompt must name its output artifact")
	}
}

func TestBuildInvokeFallsBackToBuiltin(t *testing.T) {
	b, _, _, plan := newPromptFixture(t)

	stage, _ := plan.ByName(pipeline.StageImplementation)
	prompt, err := b.BuildInvoke(stage)
	if err != nil {
		t.Fatalf("BuildInvoke failed: %v", err)
	}
	if prompt.Text == "" {
		t.Fatal("expected builtin instructions")
	}
	if !strings.Contains(prompt.Text, `"complete"`) {
		t.Error("implementation prompt must state the status contract")
	}
}

func TestBuildInvokeIncludesClarificationAnswers(t *testing.T) {
	b, _, root, plan := newPromptFixture(t)

	answers := filepath.Join(root, ".task", "clarification-answers.json")
	if err := os.WriteFile(answers, []byte(`{"Which region?": "eu-west-1"}`), 0644); err != nil {
		t.Fatalf("failed to write answers: %v", err)
	}

	stage, _ := plan.ByName(pipeline.StagePlanReviewOpus)
	prompt, err := b.BuildInvoke(stage)
	if err != nil {
		t.Fatalf("BuildInvoke failed: %v", err)
	}
	if !strings.Contains(prompt.Text, "eu-west-1") {
		t.Error("clarification answers not embedded")
	}
}

func TestBuildFixEmbedsReviewFeedback(t *testing.T) {
	b, _, _, plan := newPromptFixture(t)

	review := artifact.Document{
		"status":  "needs_changes",
		"summary": "step 3 ignores migrations",
	}
	fixStage, _ := plan.ByName(pipeline.StageImplementation)

	prompt, err := b.BuildFix(fixStage, review, false)
	if err != nil {
		t.Fatalf("BuildFix failed: %v", err)
	}
	if !strings.Contains(prompt.Text, "step 3 ignores migrations") {
		t.Error("summary not embedded")
	}
	if !strings.Contains(prompt.Text, `"needs_changes"`) {
		t.Error("verbatim review JSON not embedded")
	}
	if strings.Contains(prompt.Text, "REJECTED") {
		t.Error("ordinary fix must not carry the rework directive")
	}

	deep, err := b.BuildFix(fixStage, review, true)
	if err != nil {
		t.Fatalf("BuildFix failed: %v", err)
	}
	if !strings.Contains(deep.Text, "REJECTED") {
		t.Error("deep rework directive missing")
	}
}
