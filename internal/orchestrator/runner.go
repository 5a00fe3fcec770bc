package orchestrator

import (
	"context"
	"time"

	"github.com/taskloop/taskloop/internal/artifact"
	"github.com/taskloop/taskloop/internal/config"
	errs "github.com/taskloop/taskloop/internal/errors"
	"github.com/taskloop/taskloop/internal/invoker"
	"github.com/taskloop/taskloop/internal/logging"
	"github.com/taskloop/taskloop/internal/pipeline"
	"github.com/taskloop/taskloop/internal/session"
)

// defaultTimeout bounds invocations when neither config nor front matter
// set one.
const defaultTimeout = 10 * time.Minute

// InvokeRequest describes one agent invocation and the output contract it
// must satisfy.
type InvokeRequest struct {
	Agent      pipeline.AgentKind
	Model      string
	Prompt     Prompt
	OutputPath string
	OutputKind artifact.Kind
	// Session scopes a resumable reviewer conversation; empty for
	// one-shot agents.
	Session session.ReviewKind
}

// Runner executes agent invocations. The orchestrator depends on this
// interface so ticks can be tested without spawning real processes.
type Runner interface {
	Invoke(ctx context.Context, req InvokeRequest) (artifact.Document, error)
}

// AgentRunner is the production Runner: it builds the command line from
// agent configuration, delivers the prompt on stdin, validates the output
// artifact, and maintains session markers for resumable reviewers.
type AgentRunner struct {
	cfg      *config.Config
	inv      *invoker.Invoker
	sessions *session.Manager
	log      *logging.Logger
	root     string
}

// NewAgentRunner creates an AgentRunner.
func NewAgentRunner(cfg *config.Config, inv *invoker.Invoker, sessions *session.Manager, root string, log *logging.Logger) *AgentRunner {
	if log == nil {
		log = logging.NopLogger()
	}
	return &AgentRunner{cfg: cfg, inv: inv, sessions: sessions, log: log, root: root}
}

// Invoke runs one agent and validates its output document. Session expiry
// on a resume invocation is recovered with exactly one fresh retry; if the
// retry also fails, the original failure propagates.
func (r *AgentRunner) Invoke(ctx context.Context, req InvokeRequest) (artifact.Document, error) {
	agentCfg, ok := r.cfg.Agent(req.Agent.String())
	if !ok {
		return nil, errs.Wrapf(errs.ErrSpawnFailed, "no configuration for agent %q", req.Agent)
	}

	mode := session.ModeFresh
	if req.Session.IsValid() {
		mode = r.sessions.DecideMode(req.Session)
	}

	result, err := r.run(ctx, agentCfg, req, mode)
	if err != nil {
		err = r.reclassify(err, result)

		if errs.Is(err, errs.ErrSessionExpired) && mode == session.ModeResume {
			r.log.Warn("reviewer session expired; retrying fresh", "session", req.Session.String())
			if markErr := r.sessions.RecordExpired(req.Session); markErr != nil {
				return nil, markErr
			}
			retryResult, retryErr := r.run(ctx, agentCfg, req, session.ModeFresh)
			if retryErr != nil {
				// The fresh retry failed too; the original failure is the
				// one worth reporting.
				return nil, err
			}
			result = retryResult
		} else {
			return nil, err
		}
	}

	doc, err := artifact.ValidateOutput(req.OutputPath, req.OutputKind)
	if err != nil {
		return nil, err
	}

	if req.Session.IsValid() {
		if err := r.sessions.RecordSuccess(req.Session); err != nil {
			return nil, err
		}
	}

	r.log.Info("agent invocation validated",
		"agent", req.Agent.String(),
		"output", req.OutputPath,
		"duration", result.Duration.String(),
	)
	return doc, nil
}

// run performs a single spawn with the mode-appropriate argument list.
func (r *AgentRunner) run(ctx context.Context, agentCfg config.AgentConfig, req InvokeRequest, mode session.Mode) (invoker.Result, error) {
	timeout := req.Prompt.Timeout
	if timeout == 0 {
		timeout = agentCfg.Timeout()
	}
	if timeout == 0 {
		timeout = defaultTimeout
	}

	model := req.Prompt.Model
	if model == "" {
		model = req.Model
	}

	args := append([]string{}, agentCfg.Args...)
	if mode == session.ModeResume {
		args = append(args, "resume", "--last")
	}
	if model != "" && agentCfg.ModelFlag != "" {
		args = append(args, agentCfg.ModelFlag, model)
	}
	for _, capability := range agentCfg.Capabilities {
		args = append(args, "--allow", capability)
	}

	return r.inv.Run(ctx, invoker.Spec{
		Command: agentCfg.Command,
		Args:    args,
		Stdin:   req.Prompt.Text,
		Timeout: timeout,
		Dir:     r.root,
	})
}

// reclassify upgrades a generic nonzero-exit failure using the stderr
// heuristics: authentication problems, a missing executable behind a
// wrapper script, or an expired reviewer session.
func (r *AgentRunner) reclassify(err error, result invoker.Result) error {
	if result.Classification != invoker.ClassNonZeroExit {
		return err
	}
	switch session.ClassifyFailure(result.Stderr) {
	case session.FailureAuthRequired:
		return errs.Wrap(errs.ErrAuthRequired, err.Error())
	case session.FailureNotInstalled:
		return errs.Wrap(errs.ErrNotInstalled, err.Error())
	case session.FailureSessionExpired:
		return errs.Wrap(errs.ErrSessionExpired, err.Error())
	default:
		return err
	}
}
