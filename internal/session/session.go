// Package session tracks resumable reviewer conversations. The codex
// reviewer keeps a conversation open between review rounds; a marker file
// per review kind records that a session exists so the next invocation can
// resume it instead of starting fresh. The marker's existence is the only
// signal; its content is never read.
package session

import (
	"fmt"
	"os"
	"strings"

	"github.com/taskloop/taskloop/internal/artifact"
	"github.com/taskloop/taskloop/internal/logging"
)

// ReviewKind scopes a reviewer session. Plan and code review sessions are
// independent of one another.
type ReviewKind string

const (
	KindPlan ReviewKind = "plan"
	KindCode ReviewKind = "code"
)

// String returns the string representation of the review kind.
func (k ReviewKind) String() string { return string(k) }

// IsValid returns true if the kind is recognized.
func (k ReviewKind) IsValid() bool {
	return k == KindPlan || k == KindCode
}

// Mode selects between a fresh invocation and a session resume.
type Mode int

const (
	// ModeFresh starts a new reviewer conversation.
	ModeFresh Mode = iota
	// ModeResume continues the conversation recorded by the marker file.
	ModeResume
)

// String returns the string representation of the mode.
func (m Mode) String() string {
	if m == ModeResume {
		return "resume"
	}
	return "fresh"
}

// Manager owns the session marker files for both review kinds.
type Manager struct {
	layout artifact.Layout
	log    *logging.Logger
}

// NewManager creates a Manager over the given artifact layout.
func NewManager(layout artifact.Layout, log *logging.Logger) *Manager {
	if log == nil {
		log = logging.NopLogger()
	}
	return &Manager{layout: layout, log: log}
}

// DecideMode returns ModeResume if a session marker exists for the kind,
// ModeFresh otherwise.
func (m *Manager) DecideMode(kind ReviewKind) Mode {
	if artifact.Exists(m.layout.SessionMarker(kind.String())) {
		return ModeResume
	}
	return ModeFresh
}

// RecordSuccess creates (or touches) the session marker for the kind.
// Called only after a successful, validated invocation.
func (m *Manager) RecordSuccess(kind ReviewKind) error {
	path := m.layout.SessionMarker(kind.String())
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to create session marker: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close session marker: %w", err)
	}
	m.log.Debug("session marker recorded", "kind", kind.String())
	return nil
}

// RecordExpired removes the session marker for the kind. The caller is
// responsible for retrying with ModeFresh exactly once.
func (m *Manager) RecordExpired(kind ReviewKind) error {
	path := m.layout.SessionMarker(kind.String())
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove session marker: %w", err)
	}
	m.log.Debug("session marker cleared", "kind", kind.String())
	return nil
}

// FailureKind reclassifies a generic nonzero-exit failure based on the
// child's captured error stream.
type FailureKind string

const (
	FailureGeneric        FailureKind = "generic"
	FailureAuthRequired   FailureKind = "auth_required"
	FailureNotInstalled   FailureKind = "not_installed"
	FailureSessionExpired FailureKind = "session_expired"
)

// String returns the string representation of the failure kind.
func (f FailureKind) String() string { return string(f) }

// Substring groups checked against lowercased stderr, in priority order.
// Auth problems win over session problems so an expired login is never
// "recovered" by a pointless fresh retry.
var (
	authPatterns = []string{
		"not logged in",
		"login required",
		"unauthorized",
		"authentication",
		"auth required",
		"please run login",
	}
	notInstalledPatterns = []string{
		"command not found",
		"not recognized as an internal or external command",
		"no such file or directory",
	}
	sessionPatterns = []string{
		"session expired",
		"session not found",
		"no conversation found",
		"conversation expired",
		"resume failed",
	}
)

// ClassifyFailure inspects captured stderr and reclassifies an otherwise
// generic failure as auth-required, not-installed, or session-expired.
// Returns FailureGeneric when nothing matches.
func ClassifyFailure(stderr string) FailureKind {
	lowered := strings.ToLower(stderr)

	for _, p := range authPatterns {
		if strings.Contains(lowered, p) {
			return FailureAuthRequired
		}
	}
	for _, p := range notInstalledPatterns {
		if strings.Contains(lowered, p) {
			return FailureNotInstalled
		}
	}
	for _, p := range sessionPatterns {
		if strings.Contains(lowered, p) {
			return FailureSessionExpired
		}
	}
	return FailureGeneric
}
