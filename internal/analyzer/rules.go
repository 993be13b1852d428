package analyzer

import (
	"fmt"
	"regexp"
	"strings"
)

// Extraction patterns shared by the classification rules.
var (
	propertyRefPattern = regexp.MustCompile(`(?i)\bproperty\s+(\d+)\b`)
	requirementPattern = regexp.MustCompile(`(?i)\brequirement\s+([\w.]+)`)
	counterexample     = regexp.MustCompile(`(?i)counterexample`)

	assertionPattern = regexp.MustCompile(`(?i)assert(ion)?(error)?|\bexpected\b.*\b(received|got|but was)\b|\bto (equal|be|contain)\b`)
	propertyFailure  = regexp.MustCompile(`(?i)\bproperty\b.*\b(fail|falsified)|falsifying`)

	diagnosticCode   = regexp.MustCompile(`\bTS(\d{4,5})\b`)
	syntaxError      = regexp.MustCompile(`SyntaxError(?::\s*(.*))?`)
	unresolvedName   = regexp.MustCompile(`(?i)cannot find name '([^']+)'|undefined reference(?: to)? ['` + "`" + `]?([\w$]+)`)
	unexpectedToken  = regexp.MustCompile(`(?i)unexpected token`)
	runtimeTypeError = regexp.MustCompile(`TypeError:?\s+.*?propert(?:y|ies)\s+'([^']+)'\s+of\s+(?:undefined|null)`)
	runtimeRefError  = regexp.MustCompile(`ReferenceError:?\s+([\w$]+) is not defined`)

	missingModule = regexp.MustCompile(`(?i)cannot find module\s+'([^']+)'`)
	missingFile   = regexp.MustCompile(`(?i)ENOENT[^']*'([^']+)'|no such file or directory[:\s]+'?([^'\s]+)'?`)

	invalidSpec  = regexp.MustCompile(`(?i)(invalid|malformed)\s+(spec(ification)?|requirements?\s+document|design\s+document|tasks\s+document)`)
	namedDoc     = regexp.MustCompile(`(?i)\b(requirements|design|tasks)(\.md)?\b`)
	timeoutShape = regexp.MustCompile(`(?i)\btim(?:ed?\s?-?\s?out|eout)\b|exceeded.*\b(time|deadline|limit)\b|\b(time|deadline|limit)\b.*exceeded`)
	durationSpec = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(ms|milliseconds?|s\b|seconds?|m\b|minutes?)`)

	frameLocation = regexp.MustCompile(`([\w$./\\-]+\.\w+):(\d+)`)
)

// targetByType is the fixed mapping from error kind to remediation document.
// invalid_spec may be overridden by a document named in the message.
var targetByType = map[ErrorType]TargetFile{
	ErrorTestFailure:       TargetDesign,
	ErrorCompilation:       TargetDesign,
	ErrorRuntime:           TargetTasks,
	ErrorMissingDependency: TargetRequirements,
	ErrorInvalidSpec:       TargetRequirements,
	ErrorTimeout:           TargetTasks,
	ErrorUnknown:           TargetTasks,
}

// suggestionByType is a short fixed remediation hint per error kind.
var suggestionByType = map[ErrorType]string{
	ErrorTestFailure:       "Review the corresponding section of design.md against the failing test's expectations",
	ErrorCompilation:       "Update the type definitions and interfaces described in design.md",
	ErrorRuntime:           "Add null checks and guard clauses to the affected step in tasks.md",
	ErrorMissingDependency: "Declare the missing dependency in requirements.md",
	ErrorInvalidSpec:       "Regenerate the named document so it passes structural validation",
	ErrorTimeout:           "Split the step in tasks.md or raise its time budget",
	ErrorUnknown:           "Inspect the raw error output and re-run the task",
}

// rule is one entry of the ordered classification table. Rules are
// evaluated in precedence order; the first match wins.
type rule struct {
	errorType ErrorType
	matches   func(ec *ErrorContext) bool
	build     func(ec *ErrorContext, a *ErrorAnalysis)
}

// classificationRules is the precedence-ordered rule table.
var classificationRules = []rule{
	{
		errorType: ErrorTestFailure,
		matches: func(ec *ErrorContext) bool {
			return ec.FailedTest != "" ||
				propertyFailure.MatchString(ec.ErrorMessage) ||
				assertionPattern.MatchString(ec.ErrorMessage)
		},
		build: buildTestFailure,
	},
	{
		errorType: ErrorCompilation,
		matches: func(ec *ErrorContext) bool {
			return diagnosticCode.MatchString(ec.ErrorMessage) ||
				syntaxError.MatchString(ec.ErrorMessage) ||
				unresolvedName.MatchString(ec.ErrorMessage)
		},
		build: buildCompilation,
	},
	{
		errorType: ErrorRuntime,
		matches: func(ec *ErrorContext) bool {
			return runtimeTypeError.MatchString(ec.ErrorMessage) ||
				runtimeRefError.MatchString(ec.ErrorMessage)
		},
		build: buildRuntime,
	},
	{
		errorType: ErrorMissingDependency,
		matches: func(ec *ErrorContext) bool {
			return missingModule.MatchString(ec.ErrorMessage) ||
				missingFile.MatchString(ec.ErrorMessage)
		},
		build: buildMissingDependency,
	},
	{
		errorType: ErrorInvalidSpec,
		matches: func(ec *ErrorContext) bool {
			return invalidSpec.MatchString(ec.ErrorMessage)
		},
		build: buildInvalidSpec,
	},
	{
		errorType: ErrorTimeout,
		matches: func(ec *ErrorContext) bool {
			return timeoutShape.MatchString(ec.ErrorMessage)
		},
		build: buildTimeout,
	},
}

func buildTestFailure(ec *ErrorContext, a *ErrorAnalysis) {
	if m := propertyRefPattern.FindStringSubmatch(ec.ErrorMessage + " " + ec.FailedTest); m != nil {
		a.Context.PropertyRef = "Property " + m[1]
	}

	switch {
	case propertyFailure.MatchString(ec.ErrorMessage) || a.Context.PropertyRef != "":
		a.RootCause = "Property test failure"
		if counterexample.MatchString(ec.ErrorMessage) {
			a.RootCause = "Property test failure with counterexample: " + ec.ErrorMessage
		}
		a.Confidence = 85
	case ec.FailedTest != "":
		a.RootCause = fmt.Sprintf("Test %q failed: %s", ec.FailedTest, ec.ErrorMessage)
		a.Confidence = 85
	default:
		a.RootCause = "Test assertion failed: " + ec.ErrorMessage
		a.Confidence = 75
	}
}

func buildCompilation(ec *ErrorContext, a *ErrorAnalysis) {
	switch {
	case diagnosticCode.MatchString(ec.ErrorMessage):
		a.RootCause = "TypeScript compilation error: " + ec.ErrorMessage
		a.Confidence = 80
	case unexpectedToken.MatchString(ec.ErrorMessage) || syntaxError.MatchString(ec.ErrorMessage):
		a.RootCause = "Unexpected token: " + ec.ErrorMessage
		a.Confidence = 75
	default:
		m := unresolvedName.FindStringSubmatch(ec.ErrorMessage)
		name := m[1]
		if name == "" {
			name = m[2]
		}
		a.RootCause = "Undefined reference: " + name
		a.Confidence = 80
	}
}

func buildRuntime(ec *ErrorContext, a *ErrorAnalysis) {
	if m := runtimeTypeError.FindStringSubmatch(ec.ErrorMessage); m != nil {
		a.RootCause = fmt.Sprintf("Runtime TypeError: cannot read property %q", m[1])
		a.Confidence = 80
	} else if m := runtimeRefError.FindStringSubmatch(ec.ErrorMessage); m != nil {
		a.RootCause = fmt.Sprintf("Runtime ReferenceError: %s is not defined", m[1])
		a.Confidence = 80
	}
	a.Context.ErrorLocation = firstFrameLocation(ec.StackTrace)
}

func buildMissingDependency(ec *ErrorContext, a *ErrorAnalysis) {
	if m := missingModule.FindStringSubmatch(ec.ErrorMessage); m != nil {
		a.RootCause = "Missing module " + m[1]
		a.Confidence = 85
		return
	}
	m := missingFile.FindStringSubmatch(ec.ErrorMessage)
	name := m[1]
	if name == "" {
		name = m[2]
	}
	a.RootCause = "Missing file " + name
	a.Confidence = 85
}

func buildInvalidSpec(ec *ErrorContext, a *ErrorAnalysis) {
	a.RootCause = "Invalid specification: " + ec.ErrorMessage
	a.Confidence = 75
	if m := namedDoc.FindStringSubmatch(ec.ErrorMessage); m != nil {
		a.TargetFile = TargetFile(strings.ToLower(m[1]))
	}
}

func buildTimeout(ec *ErrorContext, a *ErrorAnalysis) {
	a.RootCause = "Operation timed out"
	a.Confidence = 60
	if m := durationSpec.FindStringSubmatch(ec.ErrorMessage); m != nil {
		a.RootCause = fmt.Sprintf("Operation timed out after %s %s", m[1], normalizeUnit(m[2]))
		a.Confidence = 70
	}
}

// firstFrameLocation returns the "file:line" pair of the first stack frame.
func firstFrameLocation(stack string) string {
	if stack == "" {
		return ""
	}
	first := stack
	if i := strings.IndexByte(stack, '\n'); i >= 0 {
		first = stack[:i]
	}
	m := frameLocation.FindStringSubmatch(first)
	if m == nil {
		// Frames occasionally span lines; fall back to the whole trace.
		m = frameLocation.FindStringSubmatch(stack)
	}
	if m == nil {
		return ""
	}
	return m[1] + ":" + m[2]
}

func normalizeUnit(unit string) string {
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "ms", "millisecond", "milliseconds":
		return "ms"
	case "s", "second", "seconds":
		return "seconds"
	case "m", "minute", "minutes":
		return "minutes"
	}
	return unit
}
