package mutator

import (
	"fmt"
	"regexp"

	"github.com/fyrsmithlabs/pland/internal/analyzer"
)

// structuralRule is one shape requirement for a document type. Rules are
// data: adding a requirement means adding a table entry, not a branch.
type structuralRule struct {
	pattern   *regexp.Regexp
	violation string
}

// structuralRules maps each document type to the markers its content must
// contain.
var structuralRules = map[analyzer.TargetFile][]structuralRule{
	analyzer.TargetRequirements: {
		{
			pattern:   regexp.MustCompile(`(?mi)^#{2,3}\s+Requirement\b`),
			violation: "requirements document must contain at least one requirement section",
		},
		{
			pattern:   regexp.MustCompile(`(?mi)^#{3,5}\s+Acceptance Criteria\b`),
			violation: "requirements document must contain at least one acceptance criteria block",
		},
	},
	analyzer.TargetDesign: {
		{
			pattern:   regexp.MustCompile(`(?m)^##\s+\S`),
			violation: "design document must contain at least one major section heading",
		},
	},
	analyzer.TargetTasks: {
		{
			pattern:   regexp.MustCompile(`(?m)^\s*- \[[ xX~]\] `),
			violation: "tasks document must contain at least one checkbox line",
		},
	},
}

// validatePlan is the gate run before any disk I/O.
func validatePlan(plan *CorrectionPlan, strict bool) error {
	if plan == nil {
		return fmt.Errorf("correction plan is required")
	}
	if !plan.TargetFile.Valid() {
		return fmt.Errorf("unknown target file %q", plan.TargetFile)
	}
	if !plan.ErrorType.Valid() {
		return fmt.Errorf("unknown error type %q", plan.ErrorType)
	}
	if plan.AttemptNumber < 1 {
		return fmt.Errorf("attempt number must be >= 1, got %d", plan.AttemptNumber)
	}
	if plan.Correction == "" {
		return fmt.Errorf("correction description cannot be empty")
	}
	if plan.UpdatedContent == "" {
		return fmt.Errorf("updated content cannot be empty")
	}
	if !strict {
		return nil
	}

	for _, rule := range structuralRules[plan.TargetFile] {
		if !rule.pattern.MatchString(plan.UpdatedContent) {
			return fmt.Errorf("structural validation failed: %s", rule.violation)
		}
	}
	return nil
}
