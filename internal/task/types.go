package task

import (
	"time"
)

// Status represents the execution status of a task.
type Status string

const (
	// StatusNotStarted is the initial status of every task.
	StatusNotStarted Status = "not_started"

	// StatusQueued marks a task selected for execution.
	StatusQueued Status = "queued"

	// StatusInProgress marks the single task currently executing.
	StatusInProgress Status = "in_progress"

	// StatusCompleted is terminal; no transition leaves it.
	StatusCompleted Status = "completed"
)

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusNotStarted, StatusQueued, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

// Task is a node in the task graph. Identity is the dotted hierarchical ID;
// IDs are unique across the whole tree. Children are owned by their parent
// and kept in document order.
type Task struct {
	ID          string  `json:"id"`
	Description string  `json:"description"`
	Status      Status  `json:"status"`
	IsOptional  bool    `json:"is_optional"`
	ParentID    string  `json:"parent_id,omitempty"`
	Children    []*Task `json:"children,omitempty"`
}

// IsLeaf reports whether the task has no children.
func (t *Task) IsLeaf() bool {
	return len(t.Children) == 0
}

// TransitionEvent is emitted to registered listeners after every successful
// status transition.
type TransitionEvent struct {
	TaskID         string    `json:"task_id"`
	PreviousStatus Status    `json:"previous_status"`
	NewStatus      Status    `json:"new_status"`
	Timestamp      time.Time `json:"timestamp"`
}

// Listener receives transition events. Listeners must not block; slow
// consumers should hand off to their own channel.
type Listener func(TransitionEvent)
