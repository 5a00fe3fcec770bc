package artifact

import "path/filepath"

// TaskDir is the directory all pipeline artifacts live under, relative to
// the project root. The file names below are a wire contract: external
// tooling depends on them verbatim.
const TaskDir = ".task"

// Reviewer names used in artifact file names and iteration counter keys.
const (
	ReviewerSonnet = "sonnet"
	ReviewerOpus   = "opus"
	ReviewerCodex  = "codex"
)

// Layout resolves artifact paths under a project root.
type Layout struct {
	root string
}

// NewLayout creates a Layout rooted at the given project directory.
func NewLayout(root string) Layout {
	return Layout{root: root}
}

// Dir returns the .task directory path.
func (l Layout) Dir() string {
	return filepath.Join(l.root, TaskDir)
}

// State returns the pipeline state document path.
func (l Layout) State() string {
	return filepath.Join(l.Dir(), "state.json")
}

// UserStory returns the requirements artifact path.
func (l Layout) UserStory() string {
	return filepath.Join(l.Dir(), "user-story.json")
}

// PlanRefined returns the refined plan artifact path.
func (l Layout) PlanRefined() string {
	return filepath.Join(l.Dir(), "plan-refined.json")
}

// PlanReview returns the plan review artifact path for a reviewer.
func (l Layout) PlanReview(reviewer string) string {
	return filepath.Join(l.Dir(), "review-"+reviewer+".json")
}

// ImplResult returns the implementation result artifact path.
func (l Layout) ImplResult() string {
	return filepath.Join(l.Dir(), "impl-result.json")
}

// CodeReview returns the code review artifact path for a reviewer.
func (l Layout) CodeReview(reviewer string) string {
	return filepath.Join(l.Dir(), "code-review-"+reviewer+".json")
}

// SessionMarker returns the resumable-session marker path for a review
// kind ("plan" or "code").
func (l Layout) SessionMarker(kind string) string {
	return filepath.Join(l.Dir(), ".codex-session-"+kind)
}

// ClarificationAnswers returns the path where externally supplied answers
// to a reviewer's clarification questions are dropped.
func (l Layout) ClarificationAnswers() string {
	return filepath.Join(l.Dir(), "clarification-answers.json")
}

// All returns every artifact path that a full pipeline reset removes.
// Session markers and the state document are included; agent instruction
// files are not.
func (l Layout) All() []string {
	return []string{
		l.State(),
		l.UserStory(),
		l.PlanRefined(),
		l.PlanReview(ReviewerSonnet),
		l.PlanReview(ReviewerOpus),
		l.PlanReview(ReviewerCodex),
		l.ImplResult(),
		l.CodeReview(ReviewerSonnet),
		l.CodeReview(ReviewerOpus),
		l.CodeReview(ReviewerCodex),
		l.SessionMarker("plan"),
		l.SessionMarker("code"),
		l.ClarificationAnswers(),
	}
}
