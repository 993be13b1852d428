package ralph

import (
	"context"

	"github.com/fyrsmithlabs/pland/internal/analyzer"
	"github.com/fyrsmithlabs/pland/internal/mutator"
)

// LoopState is the per-task retry state, derived from the attempt counter.
type LoopState string

const (
	// StateIdle means no correction attempt has been made.
	StateIdle LoopState = "idle"

	// StateAttempting means at least one attempt was made and budget
	// remains.
	StateAttempting LoopState = "attempting"

	// StateExhausted means the attempt budget is spent; only an explicit
	// reset re-arms the loop.
	StateExhausted LoopState = "exhausted"
)

// Result reports one ExecuteCorrection outcome.
type Result struct {
	// Success means a correction was committed and confirmed.
	Success bool `json:"success"`

	// AttemptNumber is the attempt this call consumed (or the current
	// count when short-circuited by exhaustion).
	AttemptNumber int `json:"attempt_number"`

	// Exhausted means no automatic attempts remain for this task.
	Exhausted bool `json:"exhausted"`

	// Error describes the failure, if any.
	Error string `json:"error,omitempty"`
}

// AttemptStore tracks consumed correction attempts per task. The task
// manager implements it on top of the persisted execution snapshot.
type AttemptStore interface {
	AttemptCount(taskID string) int
	IncrementAttempts(taskID string) (int, error)
	ResetAttempts(taskID string) error
}

// Generator produces a correction plan from an analysis. It is an external
// collaborator (an LLM, a human, a playbook).
type Generator interface {
	GenerateCorrection(ctx context.Context, analysis *analyzer.ErrorAnalysis, attempt int) (*mutator.CorrectionPlan, error)
}

// Applier commits correction plans; satisfied by mutator.Applier.
type Applier interface {
	Apply(ctx context.Context, plan *mutator.CorrectionPlan, opts mutator.Options) mutator.Result
}

// Confirmer proves that a committed correction actually fixed the failure,
// typically by re-running the failed test or a validator check.
type Confirmer interface {
	Confirm(ctx context.Context, ec *analyzer.ErrorContext) (bool, string, error)
}

// ConfirmerFunc adapts a function to the Confirmer interface.
type ConfirmerFunc func(ctx context.Context, ec *analyzer.ErrorContext) (bool, string, error)

// Confirm implements Confirmer.
func (f ConfirmerFunc) Confirm(ctx context.Context, ec *analyzer.ErrorContext) (bool, string, error) {
	return f(ctx, ec)
}
