package pipeline

import (
	"github.com/taskloop/taskloop/internal/artifact"
	errs "github.com/taskloop/taskloop/internal/errors"
	"github.com/taskloop/taskloop/internal/statefile"
)

// DefaultMaxIterations is the fix-loop cap per review stage. Reaching it
// forces escalation regardless of the artifact's status.
const DefaultMaxIterations = 10

// RejectedPolicy decides what a rejected verdict on a code review stage
// means. Plan review rejections always escalate; code review rejections
// are a policy knob.
type RejectedPolicy string

const (
	// RejectedRework treats a code-review rejection like needs_changes,
	// with a directive for deeper rework.
	RejectedRework RejectedPolicy = "rework"
	// RejectedEscalate halts for human decision, like reaching the cap.
	RejectedEscalate RejectedPolicy = "escalate"
)

// IsValid returns true if the policy is a recognized value.
func (p RejectedPolicy) IsValid() bool {
	return p == RejectedRework || p == RejectedEscalate
}

// Policy holds the configurable control-flow choices of the detector.
type Policy struct {
	// MaxIterations is the per-stage fix-loop cap (default 10).
	MaxIterations int
	// CodeReviewRejected selects rework or escalation on code-review
	// rejections.
	CodeReviewRejected RejectedPolicy
	// ClarificationCountsTowardCap makes clarification rounds consume
	// iterations like fix rounds do.
	ClarificationCountsTowardCap bool
}

// DefaultPolicy returns the standard policy: cap 10, rejections rework,
// clarifications free.
func DefaultPolicy() Policy {
	return Policy{
		MaxIterations:      DefaultMaxIterations,
		CodeReviewRejected: RejectedRework,
	}
}

// ActionType is the kind of next step the detector selected.
type ActionType int

const (
	// ActionInvoke runs the current stage's primary agent.
	ActionInvoke ActionType = iota
	// ActionFix runs the upstream fixer with the review feedback, then
	// re-runs this stage's reviewer. Consumes one iteration.
	ActionFix
	// ActionClarify surfaces the reviewer's questions and waits for
	// externally supplied answers. No agent is invoked.
	ActionClarify
	// ActionEscalate halts automatic progression for human decision.
	ActionEscalate
	// ActionComplete means every stage carries an approving artifact.
	ActionComplete
)

// String returns the string representation of the action type.
func (a ActionType) String() string {
	switch a {
	case ActionInvoke:
		return "invoke"
	case ActionFix:
		return "fix"
	case ActionClarify:
		return "clarify"
	case ActionEscalate:
		return "escalate"
	case ActionComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// Detection is the single next action for one orchestrator tick.
type Detection struct {
	Type  ActionType
	Stage Stage
	// Doc is the current stage's parsed artifact, when one exists and
	// validates.
	Doc artifact.Document
	// Iteration is the stage's current fix-loop count (review stages).
	Iteration int
	// Questions holds the clarification questions for ActionClarify.
	Questions []string
	// DeepRework is set when a code-review rejection demands a rework
	// directive stronger than an ordinary fix round.
	DeepRework bool
	// Reason records why this action was chosen, for events and logs.
	Reason string
}

// Detector inspects the artifact set and picks the next action.
type Detector struct {
	plan   *StagePlan
	policy Policy
}

// NewDetector creates a Detector over a stage plan.
func NewDetector(plan *StagePlan, policy Policy) *Detector {
	if policy.MaxIterations <= 0 {
		policy.MaxIterations = DefaultMaxIterations
	}
	if !policy.CodeReviewRejected.IsValid() {
		policy.CodeReviewRejected = RejectedRework
	}
	return &Detector{plan: plan, policy: policy}
}

// Detect walks the stage order and returns the action for the first stage
// that is not satisfied: missing artifact, or an artifact whose status is
// not approving. Stage k is only reachable once every stage before it is
// satisfied, so a stale later-stage file never influences the outcome.
func (d *Detector) Detect() (Detection, error) {
	statePath := d.plan.Layout().State()

	for _, stage := range d.plan.Stages() {
		if !artifact.Exists(stage.Artifact) {
			return Detection{
				Type:   ActionInvoke,
				Stage:  stage,
				Reason: "artifact missing",
			}, nil
		}

		doc, err := artifact.ValidateOutput(stage.Artifact, stage.Kind)
		if err != nil {
			// A corrupt leftover never satisfies its stage; re-invocation
			// overwrites it wholesale.
			return Detection{
				Type:   ActionInvoke,
				Stage:  stage,
				Reason: "artifact invalid: " + err.Error(),
			}, nil
		}

		detection, satisfied, err := d.inspect(stage, doc, statePath)
		if err != nil {
			return Detection{}, err
		}
		if !satisfied {
			return detection, nil
		}
	}

	return Detection{Type: ActionComplete, Reason: "all stages approved"}, nil
}

// inspect decides whether a stage's validated artifact satisfies it, and
// if not, what to do about it.
func (d *Detector) inspect(stage Stage, doc artifact.Document, statePath string) (Detection, bool, error) {
	switch stage.Kind {
	case artifact.KindPlan:
		// Presence alone satisfies plan-kind stages.
		return Detection{}, true, nil

	case artifact.KindImplementation:
		status := artifact.ImplStatus(doc.Status())
		if status.IsApproving() {
			return Detection{}, true, nil
		}
		return Detection{
			Type:   ActionInvoke,
			Stage:  stage,
			Doc:    doc,
			Reason: "implementation " + string(status),
		}, false, nil

	case artifact.KindReview:
		return d.inspectReview(stage, doc, statePath)

	default:
		return Detection{}, true, nil
	}
}

func (d *Detector) inspectReview(stage Stage, doc artifact.Document, statePath string) (Detection, bool, error) {
	status := artifact.ReviewStatus(doc.Status())
	if status.IsApproving() {
		return Detection{}, true, nil
	}

	iteration, err := d.iteration(statePath, stage.Name)
	if err != nil {
		return Detection{}, false, err
	}

	switch status {
	case artifact.ReviewNeedsChanges:
		return d.fixOrEscalate(stage, doc, iteration, false)

	case artifact.ReviewNeedsClarification:
		if d.policy.ClarificationCountsTowardCap && iteration >= d.policy.MaxIterations {
			return d.escalation(stage, doc, iteration, errs.ErrIterationCapExceeded.Error()), false, nil
		}
		return Detection{
			Type:      ActionClarify,
			Stage:     stage,
			Doc:       doc,
			Iteration: iteration,
			Questions: doc.ClarificationQuestions(),
			Reason:    "reviewer needs clarification",
		}, false, nil

	case artifact.ReviewRejected:
		if IsPlanReview(stage.Name) || d.policy.CodeReviewRejected == RejectedEscalate {
			return d.escalation(stage, doc, iteration, "review rejected"), false, nil
		}
		return d.fixOrEscalate(stage, doc, iteration, true)

	default:
		// ValidateOutput already rejected unknown statuses; re-invoke to
		// overwrite whatever is there.
		return Detection{
			Type:   ActionInvoke,
			Stage:  stage,
			Doc:    doc,
			Reason: "unexpected review status " + string(status),
		}, false, nil
	}
}

func (d *Detector) fixOrEscalate(stage Stage, doc artifact.Document, iteration int, deepRework bool) (Detection, bool, error) {
	if iteration >= d.policy.MaxIterations {
		return d.escalation(stage, doc, iteration, errs.ErrIterationCapExceeded.Error()), false, nil
	}
	reason := "review needs changes"
	if deepRework {
		reason = "review rejected; deep rework"
	}
	return Detection{
		Type:       ActionFix,
		Stage:      stage,
		Doc:        doc,
		Iteration:  iteration,
		DeepRework: deepRework,
		Reason:     reason,
	}, false, nil
}

func (d *Detector) escalation(stage Stage, doc artifact.Document, iteration int, reason string) Detection {
	return Detection{
		Type:      ActionEscalate,
		Stage:     stage,
		Doc:       doc,
		Iteration: iteration,
		Reason:    reason,
	}
}

// iteration reads the stage's fix-loop count from the state document,
// defaulting to zero when the document or counter does not exist yet.
func (d *Detector) iteration(statePath, stageName string) (int, error) {
	value, err := statefile.GetDefault(statePath, "iterations."+stageName, float64(0))
	if err != nil {
		return 0, errs.Wrap(errs.ErrStateCorrupted, err.Error())
	}
	switch v := value.(type) {
	case float64:
		return int(v), nil
	case int:
		return v, nil
	default:
		return 0, errs.Wrapf(errs.ErrStateCorrupted, "iteration counter %s is %T", stageName, value)
	}
}
