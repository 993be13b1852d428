package analyzer

import (
	"time"
)

// ErrorType categorizes a captured failure.
type ErrorType string

const (
	ErrorTestFailure       ErrorType = "test_failure"
	ErrorCompilation       ErrorType = "compilation_error"
	ErrorRuntime           ErrorType = "runtime_error"
	ErrorMissingDependency ErrorType = "missing_dependency"
	ErrorInvalidSpec       ErrorType = "invalid_spec"
	ErrorTimeout           ErrorType = "timeout_error"
	ErrorUnknown           ErrorType = "unknown_error"
)

// Valid reports whether e is a known error type.
func (e ErrorType) Valid() bool {
	switch e {
	case ErrorTestFailure, ErrorCompilation, ErrorRuntime,
		ErrorMissingDependency, ErrorInvalidSpec, ErrorTimeout, ErrorUnknown:
		return true
	}
	return false
}

// TargetFile names the source document a correction should be applied to.
type TargetFile string

const (
	TargetRequirements TargetFile = "requirements"
	TargetDesign       TargetFile = "design"
	TargetTasks        TargetFile = "tasks"
)

// Valid reports whether f is a known target document.
func (f TargetFile) Valid() bool {
	switch f {
	case TargetRequirements, TargetDesign, TargetTasks:
		return true
	}
	return false
}

// ErrorContext is an immutable capture of one task failure. It is built
// once when execution halts and handed to the self-correction loop.
type ErrorContext struct {
	ID           string    `json:"id"`
	TaskID       string    `json:"task_id"`
	ErrorMessage string    `json:"error_message"`
	StackTrace   string    `json:"stack_trace,omitempty"`
	FailedTest   string    `json:"failed_test,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// AnalysisContext carries optional, extracted detail about a failure.
type AnalysisContext struct {
	// PropertyRef references a property-based test ("Property 12").
	PropertyRef string `json:"property_ref,omitempty"`

	// RequirementRef references a requirement named in the message.
	RequirementRef string `json:"requirement_ref,omitempty"`

	// ErrorLocation is the first file:line pair from the stack trace.
	ErrorLocation string `json:"error_location,omitempty"`

	// Suggestion is a short remediation hint keyed by error type.
	Suggestion string `json:"suggestion,omitempty"`
}

// ErrorAnalysis is the classification result for one failure.
type ErrorAnalysis struct {
	ErrorType  ErrorType       `json:"error_type"`
	RootCause  string          `json:"root_cause"`
	TargetFile TargetFile      `json:"target_file"`
	Confidence int             `json:"confidence"`
	Context    AnalysisContext `json:"context"`
}
