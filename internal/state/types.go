package state

import (
	"time"
)

// ExecutionState is the persisted snapshot of one orchestration run. It is
// created when a spec is loaded, mutated on every status transition and
// every correction attempt, and cleared explicitly.
type ExecutionState struct {
	// CurrentSpec names the spec being executed.
	CurrentSpec string `json:"current_spec"`

	// CurrentTask is the ID of the task in flight, or empty when halted.
	CurrentTask string `json:"current_task,omitempty"`

	// CompletedTasks holds the IDs of completed tasks.
	CompletedTasks []string `json:"completed_tasks"`

	// SkippedTasks holds the IDs of optional tasks that were skipped.
	SkippedTasks []string `json:"skipped_tasks"`

	// RalphLoopAttempts maps task ID to consumed correction attempts.
	RalphLoopAttempts map[string]int `json:"ralph_loop_attempts"`

	// ExecutionStartTime is when the run started; nil before the first
	// task is selected. Stored in RFC 3339 with nanoseconds so it
	// round-trips exactly.
	ExecutionStartTime *time.Time `json:"execution_start_time,omitempty"`
}

// NewExecutionState returns an empty snapshot for the given spec.
func NewExecutionState(spec string) *ExecutionState {
	return &ExecutionState{
		CurrentSpec:       spec,
		CompletedTasks:    []string{},
		SkippedTasks:      []string{},
		RalphLoopAttempts: map[string]int{},
	}
}

// Clone returns a deep copy of the snapshot.
func (s *ExecutionState) Clone() *ExecutionState {
	c := &ExecutionState{
		CurrentSpec:       s.CurrentSpec,
		CurrentTask:       s.CurrentTask,
		CompletedTasks:    append([]string{}, s.CompletedTasks...),
		SkippedTasks:      append([]string{}, s.SkippedTasks...),
		RalphLoopAttempts: make(map[string]int, len(s.RalphLoopAttempts)),
	}
	for k, v := range s.RalphLoopAttempts {
		c.RalphLoopAttempts[k] = v
	}
	if s.ExecutionStartTime != nil {
		ts := *s.ExecutionStartTime
		c.ExecutionStartTime = &ts
	}
	return c
}
