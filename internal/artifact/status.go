// Package artifact defines the JSON documents the pipeline stages exchange
// on disk: their well-known paths, the closed status vocabulary of each
// document kind, and the validator that gates every agent result before
// the orchestrator trusts it.
package artifact

// Kind identifies the contract a document must satisfy.
type Kind string

const (
	// KindPlan documents (user story, refined plan) are opaque payload;
	// their presence alone satisfies their stage.
	KindPlan Kind = "plan"
	// KindReview documents carry a review verdict and summary.
	KindReview Kind = "review"
	// KindImplementation documents report coding-agent progress.
	KindImplementation Kind = "implementation"
	// KindState is the singleton pipeline state document.
	KindState Kind = "state"
)

// String returns the string representation of the kind.
func (k Kind) String() string { return string(k) }

// ReviewStatus is the verdict on a review document.
type ReviewStatus string

const (
	ReviewApproved           ReviewStatus = "approved"
	ReviewNeedsChanges       ReviewStatus = "needs_changes"
	ReviewNeedsClarification ReviewStatus = "needs_clarification"
	ReviewRejected           ReviewStatus = "rejected"
)

// IsValid returns true if the status is a recognized review verdict.
func (s ReviewStatus) IsValid() bool {
	switch s {
	case ReviewApproved, ReviewNeedsChanges, ReviewNeedsClarification, ReviewRejected:
		return true
	}
	return false
}

// IsApproving returns true for the verdict that lets the pipeline advance.
func (s ReviewStatus) IsApproving() bool { return s == ReviewApproved }

// ImplStatus is the outcome reported by the coding agent.
type ImplStatus string

const (
	ImplComplete ImplStatus = "complete"
	ImplPartial  ImplStatus = "partial"
	ImplFailed   ImplStatus = "failed"
)

// IsValid returns true if the status is a recognized implementation outcome.
func (s ImplStatus) IsValid() bool {
	switch s {
	case ImplComplete, ImplPartial, ImplFailed:
		return true
	}
	return false
}

// IsApproving returns true when the implementation satisfies its stage.
func (s ImplStatus) IsApproving() bool { return s == ImplComplete }

// PipelineStatus is the overall status recorded in the state document.
type PipelineStatus string

const (
	PipelineIdle       PipelineStatus = "idle"
	PipelineInProgress PipelineStatus = "in_progress"
	PipelineComplete   PipelineStatus = "complete"
	PipelineEscalated  PipelineStatus = "escalated"
	PipelineFailed     PipelineStatus = "failed"
)

// IsValid returns true if the status is a recognized pipeline status.
func (s PipelineStatus) IsValid() bool {
	switch s {
	case PipelineIdle, PipelineInProgress, PipelineComplete, PipelineEscalated, PipelineFailed:
		return true
	}
	return false
}

// allowedStatuses returns the valid status strings for a kind, or nil for
// kinds that carry no status contract.
func allowedStatuses(kind Kind) []string {
	switch kind {
	case KindReview:
		return []string{
			string(ReviewApproved),
			string(ReviewNeedsChanges),
			string(ReviewNeedsClarification),
			string(ReviewRejected),
		}
	case KindImplementation:
		return []string{
			string(ImplComplete),
			string(ImplPartial),
			string(ImplFailed),
		}
	case KindState:
		return []string{
			string(PipelineIdle),
			string(PipelineInProgress),
			string(PipelineComplete),
			string(PipelineEscalated),
			string(PipelineFailed),
		}
	default:
		return nil
	}
}
