package validator

import (
	"time"
)

// ValidationResult is the outcome of one proof-of-completion check.
type ValidationResult struct {
	// Passed reports whether the check succeeded.
	Passed bool `json:"passed"`

	// Evidence describes what the check observed.
	Evidence string `json:"evidence"`

	// Confidence is 0-100; boolean-shaped checks always report 100.
	Confidence int `json:"confidence"`

	// Duration is the probe time in milliseconds.
	Duration int64 `json:"duration"`

	// Timestamp is the completion time in ISO 8601.
	Timestamp string `json:"timestamp"`

	// Error holds the failure reason, if any.
	Error string `json:"error,omitempty"`
}

// Check is a single validation probe, runnable by ValidateParallel.
type Check func() *ValidationResult

func newResult(passed bool, evidence string, start time.Time, errMsg string) *ValidationResult {
	return &ValidationResult{
		Passed:     passed,
		Evidence:   evidence,
		Confidence: 100,
		Duration:   time.Since(start).Milliseconds(),
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		Error:      errMsg,
	}
}
