package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"go.uber.org/zap"
)

// PassthroughExecutor runs commands directly on the host through the shell.
// It honors Limits.MaxTime but provides no CPU, memory, path, or network
// isolation; the fields are accepted and ignored. Use it in tests and in
// trusted local setups only.
type PassthroughExecutor struct {
	logger *zap.Logger
}

// NewPassthroughExecutor creates a host-level executor.
func NewPassthroughExecutor(logger *zap.Logger) *PassthroughExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PassthroughExecutor{logger: logger}
}

// Execute runs the command via `sh -c` and captures its output.
func (p *PassthroughExecutor) Execute(ctx context.Context, command string, limits Limits) (*ExecutionResult, error) {
	if command == "" {
		return nil, errors.New("command is required")
	}

	cancel := func() {}
	if limits.MaxTime > 0 {
		ctx, cancel = context.WithTimeout(ctx, limits.MaxTime)
	}
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	result := &ExecutionResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
		TimedOut: ctx.Err() == context.DeadlineExceeded,
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		result.ExitCode = 0
	case errors.As(err, &exitErr):
		result.ExitCode = exitErr.ExitCode()
	default:
		return nil, fmt.Errorf("failed to run command: %w", err)
	}

	p.logger.Debug("executed command",
		zap.String("command", command),
		zap.Int("exit_code", result.ExitCode),
		zap.Duration("duration", result.Duration),
		zap.Bool("timed_out", result.TimedOut),
	)
	return result, nil
}
