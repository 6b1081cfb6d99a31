package engine

import (
	"github.com/weftdb/weft/internal/expr"
)

// State is the execution state of one task.
type State int

const (
	StateQueued State = iota + 1
	StateRunning
	StateSucceeded
	StateFailed
	StateSkipped
)

func (s State) String() string {
	switch s {
	case StateQueued:
		return "queued"
	case StateRunning:
		return "running"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Outcome labels used on completion events and metrics.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
)

// Task is one (transform, trigger) execution. Tasks are owned by the
// dispatcher loop; workers receive a task, run one attempt, and report a
// completion. Attempts counts finished attempts, so a task with
// Attempts < maxRetries after a failure is re-enqueued.
type Task struct {
	ID            string
	TransformID   string
	Trigger       string
	CorrelationID string
	State         State
	Attempts      int
}

// completion is a worker's report back to the dispatcher.
type completion struct {
	task    *Task
	state   State
	result  expr.Value
	err     error
	skipped string // input that was never written, when state is StateSkipped
}
