package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/taskloop/taskloop/internal/artifact"
	"github.com/taskloop/taskloop/internal/config"
	errs "github.com/taskloop/taskloop/internal/errors"
	"github.com/taskloop/taskloop/internal/invoker"
	"github.com/taskloop/taskloop/internal/pipeline"
	"github.com/taskloop/taskloop/internal/session"
)

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("test uses sh scripts as fake agents")
	}
}

// writeScript installs an executable fake agent under dir.
func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}
	return path
}

type runnerFixture struct {
	root     string
	layout   artifact.Layout
	cfg      *config.Config
	sessions *session.Manager
	runner   *AgentRunner
}

func newRunnerFixture(t *testing.T) *runnerFixture {
	t.Helper()
	root := t.TempDir()
	layout := artifact.NewLayout(root)
	if err := os.MkdirAll(layout.Dir(), 0755); err != nil {
		t.Fatalf("failed to create task dir: %v", err)
	}
	cfg := config.Default()
	sessions := session.NewManager(layout, nil)
	return &runnerFixture{
		root:     root,
		layout:   layout,
		cfg:      cfg,
		sessions: sessions,
		runner:   NewAgentRunner(cfg, invoker.New(invoker.HostPlatform(), nil), sessions, root, nil),
	}
}

func TestAgentRunnerValidatesOutput(t *testing.T) {
	requireShell(t)
	f := newRunnerFixture(t)
	output := f.layout.UserStory()

	f.cfg.Agents.Planner = config.AgentConfig{
		Command: writeScript(t, f.root, "planner",
			fmt.Sprintf("cat > /dev/null\nprintf '{\"title\": \"story\"}' > %q\n", output)),
	}

	doc, err := f.runner.Invoke(context.Background(), InvokeRequest{
		Agent:      pipeline.AgentPlanner,
		Prompt:     Prompt{Text: "write the story"},
		OutputPath: output,
		OutputKind: artifact.KindPlan,
	})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if doc["title"] != "story" {
		t.Errorf("doc = %v", doc)
	}
}

func TestAgentRunnerOutputNeverWritten(t *testing.T) {
	requireShell(t)
	f := newRunnerFixture(t)

	f.cfg.Agents.Planner = config.AgentConfig{
		Command: writeScript(t, f.root, "planner", "cat > /dev/null\nexit 0\n"),
	}

	_, err := f.runner.Invoke(context.Background(), InvokeRequest{
		Agent:      pipeline.AgentPlanner,
		Prompt:     Prompt{Text: "write the story"},
		OutputPath: f.layout.UserStory(),
		OutputKind: artifact.KindPlan,
	})
	if !errs.Is(err, errs.ErrOutputMissing) {
		t.Errorf("expected ErrOutputMissing, got %v", err)
	}
	if errs.ExitCode(err) != errs.ExitOutputError {
		t.Errorf("exit code = %d, want 1", errs.ExitCode(err))
	}
}

func TestAgentRunnerReclassifiesAuthFailure(t *testing.T) {
	requireShell(t)
	f := newRunnerFixture(t)

	f.cfg.Agents.Reviewer = config.AgentConfig{
		Command: writeScript(t, f.root, "reviewer",
			"cat > /dev/null\necho 'Error: not logged in' >&2\nexit 1\n"),
	}

	_, err := f.runner.Invoke(context.Background(), InvokeRequest{
		Agent:      pipeline.AgentReviewer,
		Prompt:     Prompt{Text: "review"},
		OutputPath: f.layout.PlanReview(artifact.ReviewerSonnet),
		OutputKind: artifact.KindReview,
	})
	if !errs.Is(err, errs.ErrAuthRequired) {
		t.Errorf("expected ErrAuthRequired, got %v", err)
	}
	if errs.ExitCode(err) != errs.ExitNotInstalled {
		t.Errorf("exit code = %d, want 2", errs.ExitCode(err))
	}
}

func TestAgentRunnerSessionExpiredRetriesFresh(t *testing.T) {
	requireShell(t)
	f := newRunnerFixture(t)
	output := f.layout.CodeReview(artifact.ReviewerCodex)

	// Resume invocations fail with the expiry signature; fresh ones
	// produce a valid review.
	f.cfg.Agents.Codex = config.AgentConfig{
		Command: writeScript(t, f.root, "codex", fmt.Sprintf(`cat > /dev/null
case "$*" in
  *resume*) echo "session expired" >&2; exit 1;;
  *) printf '{"status": "approved", "summary": "ok"}' > %q;;
esac
`, output)),
	}

	if err := f.sessions.RecordSuccess(session.KindCode); err != nil {
		t.Fatalf("marker setup failed: %v", err)
	}

	doc, err := f.runner.Invoke(context.Background(), InvokeRequest{
		Agent:      pipeline.AgentCodexReviewer,
		Prompt:     Prompt{Text: "review the diff"},
		OutputPath: output,
		OutputKind: artifact.KindReview,
		Session:    session.KindCode,
	})
	if err != nil {
		t.Fatalf("expected fresh retry to recover, got %v", err)
	}
	if doc.Status() != "approved" {
		t.Errorf("status = %q", doc.Status())
	}

	// The validated fresh run re-records the marker.
	if mode := f.sessions.DecideMode(session.KindCode); mode != session.ModeResume {
		t.Errorf("mode after recovery = %s, want resume", mode)
	}
}

func TestAgentRunnerRetryFailurePropagatesOriginal(t *testing.T) {
	requireShell(t)
	f := newRunnerFixture(t)

	// Resume fails with the expiry signature; the fresh retry fails
	// differently. The caller must see the original session failure.
	f.cfg.Agents.Codex = config.AgentConfig{
		Command: writeScript(t, f.root, "codex", `cat > /dev/null
case "$*" in
  *resume*) echo "session expired" >&2; exit 1;;
  *) echo "model overloaded" >&2; exit 1;;
esac
`),
	}

	if err := f.sessions.RecordSuccess(session.KindPlan); err != nil {
		t.Fatalf("marker setup failed: %v", err)
	}

	_, err := f.runner.Invoke(context.Background(), InvokeRequest{
		Agent:      pipeline.AgentCodexReviewer,
		Prompt:     Prompt{Text: "review the plan"},
		OutputPath: f.layout.PlanReview(artifact.ReviewerCodex),
		OutputKind: artifact.KindReview,
		Session:    session.KindPlan,
	})
	if !errs.Is(err, errs.ErrSessionExpired) {
		t.Errorf("expected original session failure, got %v", err)
	}

	// The stale marker is gone, so the next round starts fresh.
	if mode := f.sessions.DecideMode(session.KindPlan); mode != session.ModeFresh {
		t.Errorf("mode = %s, want fresh", mode)
	}
}

func TestAgentRunnerFreshWithoutMarker(t *testing.T) {
	requireShell(t)
	f := newRunnerFixture(t)
	output := f.layout.PlanReview(artifact.ReviewerCodex)

	// A resume argument with no marker present would fail the case match.
	f.cfg.Agents.Codex = config.AgentConfig{
		Command: writeScript(t, f.root, "codex", fmt.Sprintf(`cat > /dev/null
case "$*" in
  *resume*) echo "unexpected resume" >&2; exit 1;;
  *) printf '{"status": "approved", "summary": "ok"}' > %q;;
esac
`, output)),
	}

	if _, err := f.runner.Invoke(context.Background(), InvokeRequest{
		Agent:      pipeline.AgentCodexReviewer,
		Prompt:     Prompt{Text: "review"},
		OutputPath: output,
		OutputKind: artifact.KindReview,
		Session:    session.KindPlan,
	}); err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if mode := f.sessions.DecideMode(session.KindPlan); mode != session.ModeResume {
		t.Errorf("marker not recorded after first success")
	}
}
