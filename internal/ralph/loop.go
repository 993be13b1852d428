package ralph

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/pland/internal/analyzer"
	"github.com/fyrsmithlabs/pland/internal/mutator"
)

const instrumentationName = "github.com/fyrsmithlabs/pland/internal/ralph"

// DefaultMaxAttempts bounds automatic corrections per task.
const DefaultMaxAttempts = 3

// Config configures the self-correction loop.
type Config struct {
	// MaxAttempts is the per-task attempt budget (default: 3).
	MaxAttempts int

	// MutatorOptions is passed to the applier on every commit.
	MutatorOptions mutator.Options
}

// Loop drives the analyze/generate/apply/confirm pipeline for failed tasks.
type Loop struct {
	config   *Config
	attempts AttemptStore
	gen      Generator
	applier  Applier
	confirm  Confirmer
	logger   *zap.Logger

	tracer         trace.Tracer
	meter          metric.Meter
	attemptCounter metric.Int64Counter
}

// NewLoop creates a self-correction loop.
func NewLoop(cfg *Config, attempts AttemptStore, gen Generator, applier Applier, confirm Confirmer, logger *zap.Logger) (*Loop, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if attempts == nil {
		return nil, errors.New("attempt store is required")
	}
	if gen == nil {
		return nil, errors.New("correction generator is required")
	}
	if applier == nil {
		return nil, errors.New("document applier is required")
	}
	if confirm == nil {
		return nil, errors.New("confirmer is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	l := &Loop{
		config:   cfg,
		attempts: attempts,
		gen:      gen,
		applier:  applier,
		confirm:  confirm,
		logger:   logger,
		tracer:   otel.Tracer(instrumentationName),
		meter:    otel.Meter(instrumentationName),
	}
	l.initMetrics()
	return l, nil
}

// initMetrics initializes OpenTelemetry metrics.
func (l *Loop) initMetrics() {
	var err error
	l.attemptCounter, err = l.meter.Int64Counter(
		"pland.ralph.attempts_total",
		metric.WithDescription("Total number of correction attempts"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		l.logger.Warn("failed to create attempt counter", zap.Error(err))
	}
}

// StateOf derives the loop state for a task from its attempt counter.
func (l *Loop) StateOf(taskID string) LoopState {
	n := l.attempts.AttemptCount(taskID)
	switch {
	case n == 0:
		return StateIdle
	case n >= l.config.MaxAttempts:
		return StateExhausted
	default:
		return StateAttempting
	}
}

// IsExhausted reports whether a task has spent its attempt budget.
func (l *Loop) IsExhausted(taskID string) bool {
	return l.attempts.AttemptCount(taskID) >= l.config.MaxAttempts
}

// RemainingAttempts returns the attempts left for a task, never negative.
func (l *Loop) RemainingAttempts(taskID string) int {
	remaining := l.config.MaxAttempts - l.attempts.AttemptCount(taskID)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// ResetAttempts re-arms the loop for a task. This is the operator escape
// hatch out of exhaustion.
func (l *Loop) ResetAttempts(taskID string) error {
	l.logger.Info("reset correction attempts", zap.String("task_id", taskID))
	return l.attempts.ResetAttempts(taskID)
}

// ExecuteCorrection runs one correction attempt for a captured failure.
//
// An exhausted task short-circuits without consuming anything. Otherwise
// the attempt counter is incremented and persisted before the pipeline
// runs, so a crash mid-pipeline still costs the attempt on resume.
func (l *Loop) ExecuteCorrection(ctx context.Context, ec *analyzer.ErrorContext) (*Result, error) {
	ctx, span := l.tracer.Start(ctx, "ralph.execute_correction")
	defer span.End()
	span.SetAttributes(attribute.String("task_id", ec.TaskID))

	if l.IsExhausted(ec.TaskID) {
		l.logger.Warn("correction loop exhausted",
			zap.String("task_id", ec.TaskID),
			zap.Int("max_attempts", l.config.MaxAttempts),
		)
		return &Result{
			Success:       false,
			AttemptNumber: l.attempts.AttemptCount(ec.TaskID),
			Exhausted:     true,
			Error:         fmt.Sprintf("Ralph-Loop exhausted after %d attempts", l.config.MaxAttempts),
		}, nil
	}

	attempt, err := l.attempts.IncrementAttempts(ec.TaskID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to consume correction attempt: %w", err)
	}
	span.SetAttributes(attribute.Int("attempt", attempt))
	if l.attemptCounter != nil {
		l.attemptCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("task_id", ec.TaskID)))
	}

	result := l.runPipeline(ctx, ec, attempt)
	result.AttemptNumber = attempt
	result.Exhausted = !result.Success && attempt >= l.config.MaxAttempts

	if !result.Success {
		span.SetStatus(codes.Error, result.Error)
	}
	l.logger.Info("correction attempt finished",
		zap.String("task_id", ec.TaskID),
		zap.Int("attempt", attempt),
		zap.Bool("success", result.Success),
		zap.Bool("exhausted", result.Exhausted),
	)
	return result, nil
}

// runPipeline executes analyze -> generate -> apply -> confirm for one
// attempt.
func (l *Loop) runPipeline(ctx context.Context, ec *analyzer.ErrorContext, attempt int) *Result {
	analysis := analyzer.Analyze(ec)
	l.logger.Debug("classified failure",
		zap.String("task_id", ec.TaskID),
		zap.String("error_type", string(analysis.ErrorType)),
		zap.String("target_file", string(analysis.TargetFile)),
		zap.Int("confidence", analysis.Confidence),
	)

	plan, err := l.gen.GenerateCorrection(ctx, analysis, attempt)
	if err != nil {
		return &Result{Error: fmt.Sprintf("correction generation failed: %v", err)}
	}
	if plan.AttemptNumber == 0 {
		plan.AttemptNumber = attempt
	}

	applied := l.applier.Apply(ctx, plan, l.config.MutatorOptions)
	if !applied.Success {
		return &Result{Error: fmt.Sprintf("correction rejected: %s", applied.Error)}
	}

	ok, evidence, err := l.confirm.Confirm(ctx, ec)
	if err != nil {
		return &Result{Error: fmt.Sprintf("confirmation failed: %v", err)}
	}
	if !ok {
		return &Result{Error: fmt.Sprintf("correction did not fix the failure: %s", evidence)}
	}
	return &Result{Success: true}
}
