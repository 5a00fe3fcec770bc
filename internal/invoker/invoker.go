// Package invoker spawns the external AI CLI processes. It resolves the
// executable, picks a spawn strategy (direct argv or shell interpretation
// for batch shims), delivers input on stdin, enforces a hard timeout, and
// classifies every failure so the orchestration loop never has to inspect
// raw OS errors.
package invoker

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os/exec"
	"strings"
	"time"

	errs "github.com/taskloop/taskloop/internal/errors"
	"github.com/taskloop/taskloop/internal/logging"
)

// Classification describes how an invocation ended.
type Classification string

const (
	ClassSuccess      Classification = "success"
	ClassNonZeroExit  Classification = "nonzero_exit"
	ClassTimeout      Classification = "timeout"
	ClassCanceled     Classification = "canceled"
	ClassNotInstalled Classification = "not_installed"
	ClassSpawnError   Classification = "spawn_error"
)

// String returns the string representation of the classification.
func (c Classification) String() string { return string(c) }

// Spec describes one child-process invocation.
type Spec struct {
	// Command is the executable name; resolved against PATH.
	Command string
	// Args is the argument list, passed verbatim (escaping happens only
	// when shell interpretation is required).
	Args []string
	// Stdin is written to the child's standard input, which is then closed.
	Stdin string
	// Timeout bounds the child's total runtime. Zero means no limit.
	Timeout time.Duration
	// Dir is the working directory; empty means inherit.
	Dir string
}

// Result records the outcome of an invocation. Stderr is captured so the
// session manager can run its expiry heuristics over it.
type Result struct {
	Succeeded      bool
	Classification Classification
	ExitCode       int
	Duration       time.Duration
	Stderr         string
}

// Invoker runs child processes according to the host platform's spawn
// capabilities.
type Invoker struct {
	platform Platform
	log      *logging.Logger
}

// New creates an Invoker for the given platform. A nil logger disables
// diagnostics.
func New(platform Platform, log *logging.Logger) *Invoker {
	if log == nil {
		log = logging.NopLogger()
	}
	return &Invoker{platform: platform, log: log}
}

// Run spawns the process described by spec and waits for it, bounded by
// spec.Timeout. The returned error wraps the matching sentinel from the
// errors package; the Result is always populated so callers can inspect
// stderr and duration even on failure.
func (i *Invoker) Run(ctx context.Context, spec Spec) (Result, error) {
	start := time.Now()

	resolved, err := exec.LookPath(spec.Command)
	if err != nil {
		result := Result{
			Classification: ClassNotInstalled,
			Duration:       time.Since(start),
		}
		return result, errs.Wrapf(errs.ErrNotInstalled, "%s", spec.Command)
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if spec.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	cmd := i.buildCommand(runCtx, resolved, spec)
	cmd.Dir = spec.Dir
	cmd.Stdin = strings.NewReader(spec.Stdin)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	i.log.Debug("spawning process",
		"command", spec.Command,
		"args", strings.Join(spec.Args, " "),
		"timeout", spec.Timeout.String(),
	)

	err = cmd.Run()
	duration := time.Since(start)

	result := Result{
		Duration: duration,
		Stderr:   stderr.String(),
	}

	switch {
	case err == nil:
		result.Succeeded = true
		result.Classification = ClassSuccess
		return result, nil

	case runCtx.Err() == context.DeadlineExceeded:
		// The child was killed by the timeout, not a genuine exit.
		result.Classification = ClassTimeout
		return result, errs.NewTimeoutError(spec.Command, spec.Timeout)

	case runCtx.Err() == context.Canceled:
		// The caller canceled the invocation, not the agent failing.
		result.Classification = ClassCanceled
		return result, errs.Wrapf(context.Canceled, "%s", spec.Command)

	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.Classification = ClassNonZeroExit
			result.ExitCode = exitErr.ExitCode()
			return result, errs.Wrapf(errs.ErrNonZeroExit, "%s exited with code %d", spec.Command, result.ExitCode)
		}
		if isNotFound(err) {
			result.Classification = ClassNotInstalled
			return result, errs.Wrapf(errs.ErrNotInstalled, "%s", spec.Command)
		}
		result.Classification = ClassSpawnError
		return result, errs.Wrapf(errs.ErrSpawnFailed, "%s: %v", spec.Command, err)
	}
}

// buildCommand selects the spawn strategy for the resolved executable:
// direct argv execution, or a single shell-escaped command string when the
// platform requires shell interpretation for this executable.
func (i *Invoker) buildCommand(ctx context.Context, resolved string, spec Spec) *exec.Cmd {
	if i.platform.RequiresShell(resolved) {
		shell, flag := i.platform.ShellInvocation()
		line := BuildCommandLine(resolved, spec.Args)
		return exec.CommandContext(ctx, shell, flag, line)
	}
	return exec.CommandContext(ctx, resolved, spec.Args...)
}

// isNotFound reports whether a spawn error means the executable is absent.
func isNotFound(err error) bool {
	return errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist)
}
