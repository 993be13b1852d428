package sandbox

import (
	"context"
	"time"
)

// Limits bounds one command execution.
type Limits struct {
	// MaxCPU is the CPU core budget; 0 means no limit.
	MaxCPU float64 `json:"max_cpu,omitempty"`

	// MaxMemory is the memory budget in bytes; 0 means no limit.
	MaxMemory int64 `json:"max_memory,omitempty"`

	// MaxTime is the wall-clock budget; 0 means no limit.
	MaxTime time.Duration `json:"max_time,omitempty"`

	// AllowedPaths restricts filesystem access when the executor supports
	// path isolation.
	AllowedPaths []string `json:"allowed_paths,omitempty"`

	// AllowedNetworks restricts network access when the executor supports
	// network isolation.
	AllowedNetworks []string `json:"allowed_networks,omitempty"`
}

// ExecutionResult reports one completed command.
type ExecutionResult struct {
	ExitCode int           `json:"exit_code"`
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	Duration time.Duration `json:"duration"`

	// TimedOut is set when MaxTime expired before the command finished.
	TimedOut bool `json:"timed_out"`
}

// Executor runs a command under the given limits.
type Executor interface {
	Execute(ctx context.Context, command string, limits Limits) (*ExecutionResult, error)
}

// RiskLevel grades a safety rule violation.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// rank orders risk levels for aggregation.
func (r RiskLevel) rank() int {
	switch r {
	case RiskCritical:
		return 4
	case RiskHigh:
		return 3
	case RiskMedium:
		return 2
	case RiskLow:
		return 1
	default:
		return 0
	}
}

// Violation is one matched safety rule.
type Violation struct {
	// Violation describes what the command would do.
	Violation string `json:"violation"`

	// RiskLevel grades the violation.
	RiskLevel RiskLevel `json:"risk_level"`

	// Alternative suggests a safer way to achieve the likely intent, when
	// one exists.
	Alternative string `json:"alternative,omitempty"`
}

// SafetyReport is the outcome of screening one command line.
type SafetyReport struct {
	// Safe is true when no rule matched.
	Safe bool `json:"safe"`

	// RiskLevel is the highest risk among the violations; empty when safe.
	RiskLevel RiskLevel `json:"risk_level,omitempty"`

	// Violations lists every matched rule in table order.
	Violations []Violation `json:"violations,omitempty"`
}
