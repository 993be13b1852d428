package analyzer

import (
	"strings"
)

// maxRootCauseLen bounds the root cause; longer causes are truncated with
// an ellipsis.
const maxRootCauseLen = 200

// Analyze classifies a captured failure. It is a pure function: the same
// context always yields the same analysis.
func Analyze(ec *ErrorContext) *ErrorAnalysis {
	a := &ErrorAnalysis{}

	matched := false
	for _, r := range classificationRules {
		if r.matches(ec) {
			a.ErrorType = r.errorType
			a.TargetFile = targetByType[r.errorType]
			r.build(ec, a)
			matched = true
			break
		}
	}
	if !matched {
		a.ErrorType = ErrorUnknown
		a.TargetFile = targetByType[ErrorUnknown]
		a.RootCause = ec.ErrorMessage
		a.Confidence = unknownConfidence(ec.ErrorMessage)
	}

	if a.Context.RequirementRef == "" {
		if m := requirementPattern.FindStringSubmatch(ec.ErrorMessage); m != nil {
			a.Context.RequirementRef = m[1]
		}
	}
	a.Context.Suggestion = suggestionByType[a.ErrorType]

	// Weak evidence caps confidence regardless of the matched rule.
	if ec.FailedTest == "" && len(strings.Fields(ec.ErrorMessage)) < 2 && a.Confidence > 49 {
		a.Confidence = 49
	}

	a.RootCause = truncate(a.RootCause, maxRootCauseLen)
	return a
}

// unknownConfidence scores the fallback class strictly below 50.
func unknownConfidence(msg string) int {
	words := len(strings.Fields(msg))
	switch {
	case words == 0:
		return 10
	case words == 1:
		return 30
	default:
		return 45
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
