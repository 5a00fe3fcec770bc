package orchestrator

import (
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	errs "github.com/taskloop/taskloop/internal/errors"
)

// EventType identifies a lifecycle event.
type EventType string

const (
	// EventStart opens a tick: the detected stage and action.
	EventStart EventType = "start"
	// EventInvoking announces one agent invocation.
	EventInvoking EventType = "invoking"
	// EventComplete closes a successful tick.
	EventComplete EventType = "complete"
	// EventError closes a failed tick with phase and error detail.
	EventError EventType = "error"
)

// Event is one newline-delimited JSON record on standard output. This is
// the sole machine-readable contract between taskloop and its caller; no
// other stdout format is accepted.
type Event struct {
	Event     EventType `json:"event"`
	RunID     string    `json:"run_id"`
	Timestamp string    `json:"ts"`
	Stage     string    `json:"stage,omitempty"`
	Action    string    `json:"action,omitempty"`
	Agent     string    `json:"agent,omitempty"`
	Model     string    `json:"model,omitempty"`
	Status    string    `json:"status,omitempty"`
	Iteration int       `json:"iteration,omitempty"`
	Questions []string  `json:"questions,omitempty"`
	Phase     string    `json:"phase,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Emitter writes lifecycle events as NDJSON. Safe for concurrent use.
type Emitter struct {
	mu    sync.Mutex
	enc   *json.Encoder
	runID string
}

// NewEmitter creates an Emitter writing to w with a fresh run ID.
func NewEmitter(w io.Writer) *Emitter {
	return &Emitter{
		enc:   json.NewEncoder(w),
		runID: uuid.NewString(),
	}
}

// RunID returns the identifier stamped on every event of this run.
func (e *Emitter) RunID() string { return e.runID }

// Emit writes one event, filling in run ID and timestamp.
func (e *Emitter) Emit(ev Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ev.RunID = e.runID
	ev.Timestamp = time.Now().UTC().Format(time.RFC3339)
	// An encoding failure has nowhere to go; the stream stays consistent
	// because Encode writes nothing on error.
	_ = e.enc.Encode(ev)
}

// Start emits the tick-opening event.
func (e *Emitter) Start(stage, action string) {
	e.Emit(Event{Event: EventStart, Stage: stage, Action: action})
}

// Invoking emits the per-invocation event.
func (e *Emitter) Invoking(stage, agent, model string) {
	e.Emit(Event{Event: EventInvoking, Stage: stage, Agent: agent, Model: model})
}

// Complete emits the tick-closing success event.
func (e *Emitter) Complete(stage, status string, iteration int) {
	e.Emit(Event{Event: EventComplete, Stage: stage, Status: status, Iteration: iteration})
}

// Clarify emits a completion that surfaces reviewer questions to the
// human-in-the-loop caller.
func (e *Emitter) Clarify(stage string, questions []string) {
	e.Emit(Event{
		Event:     EventComplete,
		Stage:     stage,
		Status:    "needs_clarification",
		Questions: questions,
	})
}

// Error emits the tick-closing failure event with structured phase data.
func (e *Emitter) Error(stage string, phase errs.Phase, err error) {
	e.Emit(Event{
		Event: EventError,
		Stage: stage,
		Phase: phase.String(),
		Error: err.Error(),
	})
}
