package artifact

import (
	"os"
	"path/filepath"
	"testing"

	errs "github.com/taskloop/taskloop/internal/errors"
)

func writeArtifact(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write artifact: %v", err)
	}
	return path
}

func TestValidateOutputMissing(t *testing.T) {
	_, err := ValidateOutput(filepath.Join(t.TempDir(), "review.json"), KindReview)
	if !errs.Is(err, errs.ErrOutputMissing) {
		t.Errorf("expected ErrOutputMissing, got %v", err)
	}
	if errs.PhaseOf(err) != errs.PhaseOutputValidation {
		t.Errorf("phase = %s, want output_validation", errs.PhaseOf(err))
	}
}

func TestValidateOutputEmpty(t *testing.T) {
	dir := t.TempDir()
	path := writeArtifact(t, dir, "review.json", "  \n\t ")

	_, err := ValidateOutput(path, KindReview)
	if !errs.Is(err, errs.ErrOutputEmpty) {
		t.Errorf("expected ErrOutputEmpty, got %v", err)
	}
}

func TestValidateOutputNotJSON(t *testing.T) {
	dir := t.TempDir()
	path := writeArtifact(t, dir, "review.json", "I approve of this plan")

	_, err := ValidateOutput(path, KindReview)
	if !errs.Is(err, errs.ErrOutputNotJSON) {
		t.Errorf("expected ErrOutputNotJSON, got %v", err)
	}
}

func TestValidateOutputMissingStatus(t *testing.T) {
	dir := t.TempDir()
	path := writeArtifact(t, dir, "review.json", `{"summary": "looks fine"}`)

	_, err := ValidateOutput(path, KindReview)
	if !errs.Is(err, errs.ErrOutputMissingField) {
		t.Errorf("expected ErrOutputMissingField, got %v", err)
	}
	var missing *errs.MissingFieldError
	if !errs.As(err, &missing) || missing.Field != "status" {
		t.Errorf("expected MissingFieldError for status, got %v", err)
	}
}

func TestValidateOutputInvalidStatus(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
		kind    Kind
	}{
		{"unknown verdict", `{"status": "maybe", "summary": "s"}`, KindReview},
		{"non-string status", `{"status": 7, "summary": "s"}`, KindReview},
		{"impl status on review", `{"status": "complete", "summary": "s"}`, KindReview},
		{"review status on impl", `{"status": "approved"}`, KindImplementation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeArtifact(t, dir, "doc.json", tt.content)
			_, err := ValidateOutput(path, tt.kind)
			if !errs.Is(err, errs.ErrOutputInvalidStatus) {
				t.Errorf("expected ErrOutputInvalidStatus, got %v", err)
			}
		})
	}
}

func TestValidateOutputApprovedWithoutSummary(t *testing.T) {
	dir := t.TempDir()
	path := writeArtifact(t, dir, "review.json", `{"status": "approved"}`)

	_, err := ValidateOutput(path, KindReview)
	var missing *errs.MissingFieldError
	if !errs.As(err, &missing) || missing.Field != "summary" {
		t.Errorf("approved review without summary must fail on summary, got %v", err)
	}
}

func TestValidateOutputValidReview(t *testing.T) {
	dir := t.TempDir()
	path := writeArtifact(t, dir, "review.json",
		`{"status": "needs_changes", "summary": "two issues", "findings": [{"severity": "high"}]}`)

	doc, err := ValidateOutput(path, KindReview)
	if err != nil {
		t.Fatalf("ValidateOutput failed: %v", err)
	}
	if doc.Status() != "needs_changes" {
		t.Errorf("status = %q", doc.Status())
	}
	if doc.Summary() != "two issues" {
		t.Errorf("summary = %q", doc.Summary())
	}
	// Extra payload passes through opaquely.
	if _, ok := doc["findings"]; !ok {
		t.Error("findings payload lost")
	}
}

func TestValidateOutputPlanKindSkipsStatus(t *testing.T) {
	dir := t.TempDir()
	path := writeArtifact(t, dir, "user-story.json", `{"title": "add search", "acceptance_criteria": []}`)

	if _, err := ValidateOutput(path, KindPlan); err != nil {
		t.Errorf("plan-kind document should pass without status: %v", err)
	}
}

func TestValidateOutputIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := writeArtifact(t, dir, "impl.json", `{"status": "complete"}`)

	first, err1 := ValidateOutput(path, KindImplementation)
	second, err2 := ValidateOutput(path, KindImplementation)
	if err1 != nil || err2 != nil {
		t.Fatalf("validation failed: %v / %v", err1, err2)
	}
	if first.Status() != second.Status() {
		t.Error("validation of an unchanged file changed outcome")
	}
}

func TestClarificationQuestions(t *testing.T) {
	dir := t.TempDir()
	path := writeArtifact(t, dir, "review.json",
		`{"status": "needs_clarification", "summary": "unclear", "clarification_questions": ["Which DB?", 42, "Which region?"]}`)

	doc, err := ValidateOutput(path, KindReview)
	if err != nil {
		t.Fatalf("ValidateOutput failed: %v", err)
	}
	questions := doc.ClarificationQuestions()
	if len(questions) != 2 || questions[0] != "Which DB?" || questions[1] != "Which region?" {
		t.Errorf("questions = %v", questions)
	}
}

func TestStatusEnums(t *testing.T) {
	if !ReviewStatus("approved").IsApproving() {
		t.Error("approved must approve")
	}
	for _, s := range []ReviewStatus{ReviewNeedsChanges, ReviewNeedsClarification, ReviewRejected} {
		if s.IsApproving() {
			t.Errorf("%s must not approve", s)
		}
		if !s.IsValid() {
			t.Errorf("%s must be valid", s)
		}
	}
	if ReviewStatus("ok").IsValid() {
		t.Error("unknown verdict must be invalid")
	}

	if !ImplStatus("complete").IsApproving() {
		t.Error("complete must approve")
	}
	for _, s := range []ImplStatus{ImplPartial, ImplFailed} {
		if s.IsApproving() {
			t.Errorf("%s must not approve", s)
		}
	}
}

func TestLayoutPaths(t *testing.T) {
	layout := NewLayout("/work/project")

	if got := layout.State(); got != filepath.Join("/work/project", ".task", "state.json") {
		t.Errorf("State = %q", got)
	}
	if got := layout.PlanReview(ReviewerOpus); filepath.Base(got) != "review-opus.json" {
		t.Errorf("PlanReview = %q", got)
	}
	if got := layout.CodeReview(ReviewerCodex); filepath.Base(got) != "code-review-codex.json" {
		t.Errorf("CodeReview = %q", got)
	}
	if got := layout.SessionMarker("plan"); filepath.Base(got) != ".codex-session-plan" {
		t.Errorf("SessionMarker = %q", got)
	}

	all := layout.All()
	if len(all) != 13 {
		t.Errorf("All() returned %d paths", len(all))
	}
}
