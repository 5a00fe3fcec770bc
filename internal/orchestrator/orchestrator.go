// Package orchestrator drives the pipeline: each tick detects the next
// action from the artifacts on disk, invokes the agents that action
// requires, and records progress in the state document. The loop repeats
// ticks until the pipeline completes, escalates, or needs human input.
package orchestrator

import (
	"context"
	"os"

	"github.com/taskloop/taskloop/internal/artifact"
	"github.com/taskloop/taskloop/internal/config"
	errs "github.com/taskloop/taskloop/internal/errors"
	"github.com/taskloop/taskloop/internal/logging"
	"github.com/taskloop/taskloop/internal/pipeline"
	"github.com/taskloop/taskloop/internal/statefile"
)

// DefaultMaxTicks bounds a single run invocation. The iteration caps make
// runaway loops impossible in theory; this bound makes them impossible in
// practice even if an agent keeps producing the same unmet artifact.
const DefaultMaxTicks = 200

// Orchestrator owns one pipeline over one project root.
type Orchestrator struct {
	plan     *pipeline.StagePlan
	detector *pipeline.Detector
	runner   Runner
	prompts  *PromptBuilder
	emitter  *Emitter
	layout   artifact.Layout
	log      *logging.Logger
	maxTicks int
}

// New creates an Orchestrator rooted at the project directory.
func New(root string, cfg *config.Config, runner Runner, emitter *Emitter, log *logging.Logger) *Orchestrator {
	if log == nil {
		log = logging.NopLogger()
	}
	layout := artifact.NewLayout(root)
	plan := pipeline.NewStagePlan(layout)
	policy := pipeline.Policy{
		MaxIterations:                cfg.Pipeline.MaxIterations,
		CodeReviewRejected:           pipeline.RejectedPolicy(cfg.Pipeline.CodeReviewRejected),
		ClarificationCountsTowardCap: cfg.Pipeline.ClarificationCountsTowardCap,
	}
	return &Orchestrator{
		plan:     plan,
		detector: pipeline.NewDetector(plan, policy),
		runner:   runner,
		prompts:  NewPromptBuilder(root, layout, cfg),
		emitter:  emitter,
		layout:   layout,
		log:      log,
		maxTicks: DefaultMaxTicks,
	}
}

// SetMaxTicks overrides the per-run tick bound. Values below one are
// ignored.
func (o *Orchestrator) SetMaxTicks(n int) {
	if n > 0 {
		o.maxTicks = n
	}
}

// Detect exposes the phase detector without performing any invocation.
// The status command uses it to report what would happen next.
func (o *Orchestrator) Detect() (pipeline.Detection, error) {
	return o.detector.Detect()
}

// Tick performs one orchestration step: detect the next action and carry
// it out. Escalation, clarification, and completion are outcomes, not
// errors; only invocation and state failures return a non-nil error.
func (o *Orchestrator) Tick(ctx context.Context) (pipeline.Detection, error) {
	if err := o.ensureState(); err != nil {
		o.emitter.Error("", errs.PhaseOf(err), err)
		return pipeline.Detection{}, err
	}

	det, err := o.detector.Detect()
	if err != nil {
		o.emitter.Error("", errs.PhaseOf(err), err)
		return pipeline.Detection{}, err
	}

	// Supplied answers turn a pending clarification back into a reviewer
	// invocation; the answers are embedded in the prompt and consumed.
	answered := det.Type == pipeline.ActionClarify && artifact.Exists(o.layout.ClarificationAnswers())
	if answered {
		det.Type = pipeline.ActionInvoke
		det.Reason = "clarification answered"
	}

	o.emitter.Start(det.Stage.Name, det.Type.String())
	o.log.Info("tick",
		"action", det.Type.String(),
		"stage", det.Stage.Name,
		"reason", det.Reason,
	)

	switch det.Type {
	case pipeline.ActionComplete:
		err = o.markStatus(artifact.PipelineComplete, "")
		if err == nil {
			o.emitter.Complete("", string(artifact.PipelineComplete), 0)
		}
		return det, err

	case pipeline.ActionEscalate:
		err = statefile.Set(o.layout.State(),
			statefile.SetString("status", string(artifact.PipelineEscalated)),
			statefile.SetString("escalated_stage", det.Stage.Name),
			statefile.SetString("escalation_reason", det.Reason),
			statefile.SetNow("updated_at"),
		)
		if err == nil {
			o.emitter.Complete(det.Stage.Name, string(artifact.PipelineEscalated), det.Iteration)
		}
		return det, err

	case pipeline.ActionClarify:
		err = o.markStatus(artifact.PipelineInProgress, det.Stage.Name)
		if err == nil {
			o.emitter.Clarify(det.Stage.Name, det.Questions)
		}
		return det, err

	case pipeline.ActionFix:
		return det, o.fix(ctx, det)

	default: // ActionInvoke
		if err := o.invoke(ctx, det.Stage); err != nil {
			return det, err
		}
		if answered {
			// One answer set serves one reviewer round; a later
			// clarification must wait for fresh answers.
			if err := os.Remove(o.layout.ClarificationAnswers()); err != nil && !os.IsNotExist(err) {
				o.log.Warn("failed to remove consumed answers", "error", err.Error())
			}
		}
		return det, nil
	}
}

// Run loops ticks until the pipeline reaches a resting point: complete,
// escalated, or waiting on clarification answers. It returns the final
// detection so the caller can render the outcome.
func (o *Orchestrator) Run(ctx context.Context) (pipeline.Detection, error) {
	var det pipeline.Detection
	var err error

	for i := 0; i < o.maxTicks; i++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return det, ctxErr
		}

		det, err = o.Tick(ctx)
		if err != nil {
			return det, err
		}

		switch det.Type {
		case pipeline.ActionComplete, pipeline.ActionEscalate, pipeline.ActionClarify:
			return det, nil
		}
	}

	return det, errs.Wrapf(errs.New("run did not settle"), "after %d ticks", o.maxTicks)
}

// invoke runs a stage's primary agent and validates the artifact it wrote.
func (o *Orchestrator) invoke(ctx context.Context, stage pipeline.Stage) error {
	if err := o.markStatus(artifact.PipelineInProgress, stage.Name); err != nil {
		return err
	}

	prompt, err := o.prompts.BuildInvoke(stage)
	if err != nil {
		return o.fail(stage.Name, errs.NewStageError(stage.Name, errs.PhaseInputValidation, err))
	}

	doc, err := o.invokeAgent(ctx, stage, prompt)
	if err != nil {
		return err
	}

	o.emitter.Complete(stage.Name, doc.Status(), 0)
	return o.touch()
}

// fix consumes one iteration: rework the upstream artifact with the
// review feedback, then re-run the reviewer that demanded the changes.
// The counter is incremented first so a crash mid-fix never grants a
// free round.
func (o *Orchestrator) fix(ctx context.Context, det pipeline.Detection) error {
	if err := statefile.Set(o.layout.State(),
		statefile.Increment("iterations."+det.Stage.Name),
		statefile.SetString("status", string(artifact.PipelineInProgress)),
		statefile.SetString("current_stage", det.Stage.Name),
		statefile.SetNow("updated_at"),
	); err != nil {
		return errs.Wrap(errs.ErrStateCorrupted, err.Error())
	}

	fixStage, ok := o.plan.ByName(det.Stage.FixStage)
	if !ok {
		return errs.NewStageError(det.Stage.Name, errs.PhaseInputValidation,
			errs.Wrapf(errs.New("unknown fix stage"), "%q", det.Stage.FixStage))
	}

	prompt, err := o.prompts.BuildFix(fixStage, det.Doc, det.DeepRework)
	if err != nil {
		return o.fail(det.Stage.Name, errs.NewStageError(det.Stage.Name, errs.PhaseInputValidation, err))
	}
	if _, err := o.invokeAgent(ctx, fixStage, prompt); err != nil {
		return err
	}

	reviewPrompt, err := o.prompts.BuildInvoke(det.Stage)
	if err != nil {
		return o.fail(det.Stage.Name, errs.NewStageError(det.Stage.Name, errs.PhaseInputValidation, err))
	}
	doc, err := o.invokeAgent(ctx, det.Stage, reviewPrompt)
	if err != nil {
		return err
	}

	o.emitter.Complete(det.Stage.Name, doc.Status(), det.Iteration+1)
	return o.touch()
}

// invokeAgent performs one runner invocation with event emission and
// stage-context error wrapping.
func (o *Orchestrator) invokeAgent(ctx context.Context, stage pipeline.Stage, prompt Prompt) (artifact.Document, error) {
	model := prompt.Model
	if model == "" {
		model = stage.Model
	}
	o.emitter.Invoking(stage.Name, stage.Agent.String(), model)

	doc, err := o.runner.Invoke(ctx, InvokeRequest{
		Agent:      stage.Agent,
		Model:      stage.Model,
		Prompt:     prompt,
		OutputPath: stage.Artifact,
		OutputKind: stage.Kind,
		Session:    stage.Session,
	})
	if err != nil {
		return nil, o.fail(stage.Name, errs.NewStageError(stage.Name, errs.PhaseOf(err), err))
	}
	return doc, nil
}

// fail records the failure in the state document, emits the error event,
// and returns the error for propagation.
func (o *Orchestrator) fail(stageName string, err error) error {
	o.emitter.Error(stageName, errs.PhaseOf(err), err)
	o.log.Error("stage failed", "stage", stageName, "error", err.Error())

	// Best effort: the invocation failure is the error worth reporting
	// even if the state write fails too.
	if stateErr := statefile.Set(o.layout.State(),
		statefile.SetString("status", string(artifact.PipelineFailed)),
		statefile.SetString("last_error", err.Error()),
		statefile.SetNow("updated_at"),
	); stateErr != nil {
		o.log.Error("failed to record failure in state", "error", stateErr.Error())
	}
	return err
}

// ensureState creates the state document on first contact with a task.
// An existing document must carry a status from the pipeline vocabulary;
// external tooling writes through `state set` and can leave anything there.
func (o *Orchestrator) ensureState() error {
	path := o.layout.State()
	if artifact.Exists(path) {
		if _, err := artifact.ValidateOutput(path, artifact.KindState); err != nil {
			return errs.Wrap(errs.ErrStateCorrupted, err.Error())
		}
		return nil
	}
	return statefile.Set(path,
		statefile.SetString("status", string(artifact.PipelineIdle)),
		statefile.SetValue("iterations", map[string]any{}),
		statefile.SetNow("started_at"),
		statefile.SetNow("updated_at"),
	)
}

// markStatus updates the pipeline status and, when non-empty, the current
// stage.
func (o *Orchestrator) markStatus(status artifact.PipelineStatus, stageName string) error {
	mutations := []statefile.Mutation{
		statefile.SetString("status", string(status)),
		statefile.SetNow("updated_at"),
	}
	if stageName != "" {
		mutations = append(mutations, statefile.SetString("current_stage", stageName))
	}
	return statefile.Set(o.layout.State(), mutations...)
}

// touch refreshes the state document's updated_at stamp.
func (o *Orchestrator) touch() error {
	return statefile.Set(o.layout.State(), statefile.SetNow("updated_at"))
}
