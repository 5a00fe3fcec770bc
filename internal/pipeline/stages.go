// Package pipeline defines the fixed stage order of a feature-development
// run and the phase detector that decides, from the artifacts on disk, the
// single next action. Filesystem existence drives control flow, but every
// existence check lives behind the StagePlan so the total order is defined
// in exactly one place.
package pipeline

import (
	"github.com/taskloop/taskloop/internal/artifact"
	"github.com/taskloop/taskloop/internal/session"
)

// Stage names. Review stage names double as iteration counter keys in the
// state document, so they are part of the wire contract.
const (
	StageRequirements     = "requirements"
	StagePlanning         = "plan"
	StagePlanReviewSonnet = "plan_review_sonnet"
	StagePlanReviewOpus   = "plan_review_opus"
	StagePlanReviewCodex  = "plan_review_codex"
	StageImplementation   = "implementation"
	StageCodeReviewSonnet = "code_review_sonnet"
	StageCodeReviewOpus   = "code_review_opus"
	StageCodeReviewCodex  = "code_review_codex"
)

// AgentKind identifies which external CLI serves a stage.
type AgentKind string

const (
	// AgentPlanner is the planning/orchestrator CLI.
	AgentPlanner AgentKind = "planner"
	// AgentCoder is the coding CLI.
	AgentCoder AgentKind = "coder"
	// AgentReviewer is the claude review CLI (model selected per stage).
	AgentReviewer AgentKind = "reviewer"
	// AgentCodexReviewer is the codex review CLI, resumable across rounds.
	AgentCodexReviewer AgentKind = "codex"
)

// String returns the string representation of the agent kind.
func (a AgentKind) String() string { return string(a) }

// Stage describes one step of the pipeline: the artifact it produces, the
// agent that produces it, and how failures loop back.
type Stage struct {
	// Name is the stage identifier and, for review stages, the iteration
	// counter key.
	Name string
	// Artifact is the absolute path of the document this stage produces.
	Artifact string
	// Kind is the validation contract for the artifact.
	Kind artifact.Kind
	// Agent is the CLI invoked to produce the artifact.
	Agent AgentKind
	// Model is the model name passed to the agent, if any.
	Model string
	// FixStage names the stage whose agent reworks the upstream artifact
	// when this stage reports needs_changes. Empty for non-review stages.
	FixStage string
	// Session is the resumable-session scope, or "" for one-shot agents.
	Session session.ReviewKind
}

// IsReview returns true for stages that carry an iteration counter.
func (s Stage) IsReview() bool { return s.Kind == artifact.KindReview }

// StagePlan holds the strict total order of stages. The detector walks it
// front to back; the first unmet stage always wins, so stale files from a
// later stage are never consulted before their predecessors are satisfied.
type StagePlan struct {
	layout artifact.Layout
	stages []Stage
}

// NewStagePlan builds the fixed stage order over the given layout:
// requirements < plan < plan reviews (sonnet, opus, codex) <
// implementation < code reviews (sonnet, opus, codex).
func NewStagePlan(layout artifact.Layout) *StagePlan {
	return &StagePlan{
		layout: layout,
		stages: []Stage{
			{
				Name:     StageRequirements,
				Artifact: layout.UserStory(),
				Kind:     artifact.KindPlan,
				Agent:    AgentPlanner,
			},
			{
				Name:     StagePlanning,
				Artifact: layout.PlanRefined(),
				Kind:     artifact.KindPlan,
				Agent:    AgentPlanner,
			},
			{
				Name:     StagePlanReviewSonnet,
				Artifact: layout.PlanReview(artifact.ReviewerSonnet),
				Kind:     artifact.KindReview,
				Agent:    AgentReviewer,
				Model:    artifact.ReviewerSonnet,
				FixStage: StagePlanning,
			},
			{
				Name:     StagePlanReviewOpus,
				Artifact: layout.PlanReview(artifact.ReviewerOpus),
				Kind:     artifact.KindReview,
				Agent:    AgentReviewer,
				Model:    artifact.ReviewerOpus,
				FixStage: StagePlanning,
			},
			{
				Name:     StagePlanReviewCodex,
				Artifact: layout.PlanReview(artifact.ReviewerCodex),
				Kind:     artifact.KindReview,
				Agent:    AgentCodexReviewer,
				FixStage: StagePlanning,
				Session:  session.KindPlan,
			},
			{
				Name:     StageImplementation,
				Artifact: layout.ImplResult(),
				Kind:     artifact.KindImplementation,
				Agent:    AgentCoder,
			},
			{
				Name:     StageCodeReviewSonnet,
				Artifact: layout.CodeReview(artifact.ReviewerSonnet),
				Kind:     artifact.KindReview,
				Agent:    AgentReviewer,
				Model:    artifact.ReviewerSonnet,
				FixStage: StageImplementation,
			},
			{
				Name:     StageCodeReviewOpus,
				Artifact: layout.CodeReview(artifact.ReviewerOpus),
				Kind:     artifact.KindReview,
				Agent:    AgentReviewer,
				Model:    artifact.ReviewerOpus,
				FixStage: StageImplementation,
			},
			{
				Name:     StageCodeReviewCodex,
				Artifact: layout.CodeReview(artifact.ReviewerCodex),
				Kind:     artifact.KindReview,
				Agent:    AgentCodexReviewer,
				FixStage: StageImplementation,
				Session:  session.KindCode,
			},
		},
	}
}

// Stages returns the stages in pipeline order.
func (p *StagePlan) Stages() []Stage {
	return p.stages
}

// ByName returns the stage with the given name.
func (p *StagePlan) ByName(name string) (Stage, bool) {
	for _, s := range p.stages {
		if s.Name == name {
			return s, true
		}
	}
	return Stage{}, false
}

// Layout returns the artifact layout the plan was built over.
func (p *StagePlan) Layout() artifact.Layout {
	return p.layout
}

// IsPlanReview reports whether a stage name belongs to the plan review
// block, where a rejected verdict is always terminal.
func IsPlanReview(name string) bool {
	switch name {
	case StagePlanReviewSonnet, StagePlanReviewOpus, StagePlanReviewCodex:
		return true
	}
	return false
}
