package session

import (
	"os"
	"testing"

	"github.com/taskloop/taskloop/internal/artifact"
)

func newManager(t *testing.T) (*Manager, artifact.Layout) {
	t.Helper()
	layout := artifact.NewLayout(t.TempDir())
	if err := os.MkdirAll(layout.Dir(), 0755); err != nil {
		t.Fatalf("failed to create task dir: %v", err)
	}
	return NewManager(layout, nil), layout
}

func TestDecideModeFreshWithoutMarker(t *testing.T) {
	m, _ := newManager(t)

	if mode := m.DecideMode(KindPlan); mode != ModeFresh {
		t.Errorf("mode = %s, want fresh", mode)
	}
}

func TestRecordSuccessEnablesResume(t *testing.T) {
	m, _ := newManager(t)

	if err := m.RecordSuccess(KindCode); err != nil {
		t.Fatalf("RecordSuccess failed: %v", err)
	}
	if mode := m.DecideMode(KindCode); mode != ModeResume {
		t.Errorf("mode = %s, want resume", mode)
	}
	// The other kind is unaffected.
	if mode := m.DecideMode(KindPlan); mode != ModeFresh {
		t.Errorf("plan mode = %s, want fresh", mode)
	}
}

func TestRecordExpiredClearsMarker(t *testing.T) {
	m, _ := newManager(t)

	if err := m.RecordSuccess(KindPlan); err != nil {
		t.Fatalf("RecordSuccess failed: %v", err)
	}
	if err := m.RecordExpired(KindPlan); err != nil {
		t.Fatalf("RecordExpired failed: %v", err)
	}
	if mode := m.DecideMode(KindPlan); mode != ModeFresh {
		t.Errorf("mode after expiry = %s, want fresh", mode)
	}
}

func TestRecordExpiredWithoutMarkerIsNoOp(t *testing.T) {
	m, _ := newManager(t)

	if err := m.RecordExpired(KindCode); err != nil {
		t.Errorf("expected no error removing a missing marker, got %v", err)
	}
}

func TestRecordSuccessIsIdempotent(t *testing.T) {
	m, _ := newManager(t)

	for i := 0; i < 3; i++ {
		if err := m.RecordSuccess(KindPlan); err != nil {
			t.Fatalf("RecordSuccess round %d failed: %v", i, err)
		}
	}
	if mode := m.DecideMode(KindPlan); mode != ModeResume {
		t.Errorf("mode = %s, want resume", mode)
	}
}

func TestClassifyFailure(t *testing.T) {
	tests := []struct {
		name   string
		stderr string
		want   FailureKind
	}{
		{"clean stderr", "some unrelated noise", FailureGeneric},
		{"empty stderr", "", FailureGeneric},
		{"session expired", "Error: session expired, please start over", FailureSessionExpired},
		{"session not found", "SESSION NOT FOUND", FailureSessionExpired},
		{"no conversation", "fatal: no conversation found for resume", FailureSessionExpired},
		{"resume failed", "resume failed: state missing", FailureSessionExpired},
		{"not logged in", "You are not logged in.", FailureAuthRequired},
		{"unauthorized", "401 Unauthorized", FailureAuthRequired},
		{"auth wins over session", "authentication expired; session expired", FailureAuthRequired},
		{"windows not recognized", "'claude' is not recognized as an internal or external command", FailureNotInstalled},
		{"posix not found", "sh: claude: command not found", FailureNotInstalled},
		{"missing file", "exec: no such file or directory", FailureNotInstalled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyFailure(tt.stderr); got != tt.want {
				t.Errorf("ClassifyFailure(%q) = %s, want %s", tt.stderr, got, tt.want)
			}
		})
	}
}

func TestReviewKindValidity(t *testing.T) {
	if !KindPlan.IsValid() || !KindCode.IsValid() {
		t.Error("plan and code kinds must be valid")
	}
	if ReviewKind("").IsValid() || ReviewKind("impl").IsValid() {
		t.Error("unknown kinds must be invalid")
	}
}
