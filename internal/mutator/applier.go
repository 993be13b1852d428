package mutator

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/pland/internal/analyzer"
)

const instrumentationName = "github.com/fyrsmithlabs/pland/internal/mutator"

// backupTimeFormat names backup files; nanosecond precision keeps rapid
// successive backups distinct.
const backupTimeFormat = "20060102T150405.000000000"

// fileNameByTarget maps a target document to its file name in the spec
// directory.
var fileNameByTarget = map[analyzer.TargetFile]string{
	analyzer.TargetRequirements: "requirements.md",
	analyzer.TargetDesign:       "design.md",
	analyzer.TargetTasks:        "tasks.md",
}

// Applier commits correction plans to the source documents.
type Applier struct {
	logger *zap.Logger

	tracer       trace.Tracer
	meter        metric.Meter
	applyCounter metric.Int64Counter
}

// NewApplier creates a document mutator.
func NewApplier(logger *zap.Logger) *Applier {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Applier{
		logger: logger,
		tracer: otel.Tracer(instrumentationName),
		meter:  otel.Meter(instrumentationName),
	}
	a.initMetrics()
	return a
}

// initMetrics initializes OpenTelemetry metrics.
func (a *Applier) initMetrics() {
	var err error
	a.applyCounter, err = a.meter.Int64Counter(
		"pland.mutator.applies_total",
		metric.WithDescription("Total number of correction applications"),
		metric.WithUnit("{apply}"),
	)
	if err != nil {
		a.logger.Warn("failed to create apply counter", zap.Error(err))
	}
}

// TargetPath returns the file the plan would mutate.
func TargetPath(specDir string, target analyzer.TargetFile) string {
	return filepath.Join(specDir, fileNameByTarget[target])
}

// Apply validates the plan and commits its content. Validation failures and
// I/O failures leave the target file byte-for-byte unchanged.
func (a *Applier) Apply(ctx context.Context, plan *CorrectionPlan, opts Options) Result {
	ctx, span := a.tracer.Start(ctx, "mutator.apply")
	defer span.End()

	result := a.apply(ctx, plan, opts)

	if a.applyCounter != nil {
		a.applyCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.Bool("success", result.Success),
			attribute.String("target", targetLabel(plan)),
		))
	}
	if !result.Success {
		span.SetStatus(codes.Error, result.Error)
	}
	return result
}

func (a *Applier) apply(ctx context.Context, plan *CorrectionPlan, opts Options) Result {
	if err := validatePlan(plan, opts.StrictValidation); err != nil {
		a.logger.Warn("correction rejected", zap.Error(err))
		return Result{Success: false, Error: err.Error()}
	}
	if opts.SpecDir == "" {
		return Result{Success: false, Error: "spec directory is required"}
	}

	targetPath := TargetPath(opts.SpecDir, plan.TargetFile)

	// Back up the current bytes before touching anything. Brand-new files
	// have nothing to back up.
	original, err := os.ReadFile(targetPath)
	exists := err == nil
	if err != nil && !os.IsNotExist(err) {
		return Result{Success: false, FilePath: targetPath,
			Error: fmt.Sprintf("failed to read target file: %v", err)}
	}
	if exists && opts.CreateBackup {
		if err := a.writeBackup(targetPath, original, opts); err != nil {
			return Result{Success: false, FilePath: targetPath,
				Error: fmt.Sprintf("failed to create backup: %v", err)}
		}
	}

	if err := a.commit(targetPath, []byte(plan.UpdatedContent)); err != nil {
		return Result{Success: false, FilePath: targetPath, Error: err.Error()}
	}

	// Read back and compare after line-ending normalization.
	written, err := os.ReadFile(targetPath)
	if err != nil {
		return Result{Success: false, FilePath: targetPath,
			Error: fmt.Sprintf("failed to verify written file: %v", err)}
	}
	if !bytes.Equal(normalizeLineEndings(written), normalizeLineEndings([]byte(plan.UpdatedContent))) {
		return Result{Success: false, FilePath: targetPath,
			Error: "post-write verification failed: written content differs from plan"}
	}

	a.logger.Info("applied correction",
		zap.String("target", string(plan.TargetFile)),
		zap.String("path", targetPath),
		zap.Int("attempt", plan.AttemptNumber),
		zap.Int("confidence", plan.Confidence),
	)
	return Result{Success: true, FilePath: targetPath}
}

// commit writes content to a temp file in the target directory and renames
// it over the target, so readers never observe a partial write. The temp
// file is removed on every failure path.
func (a *Applier) commit(targetPath string, content []byte) error {
	dir := filepath.Dir(targetPath)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(targetPath)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, targetPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace target file: %w", err)
	}
	return nil
}

// writeBackup copies the pre-change bytes to a timestamped file and prunes
// backups beyond MaxBackups, oldest first.
func (a *Applier) writeBackup(targetPath string, original []byte, opts Options) error {
	backupDir := opts.BackupDir
	if backupDir == "" {
		backupDir = filepath.Dir(targetPath)
	}
	if err := os.MkdirAll(backupDir, 0o700); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}

	base := filepath.Base(targetPath)
	backupPath := filepath.Join(backupDir,
		fmt.Sprintf("%s.%s.bak", base, time.Now().UTC().Format(backupTimeFormat)))
	if err := os.WriteFile(backupPath, original, 0o600); err != nil {
		return fmt.Errorf("failed to write backup: %w", err)
	}

	a.logger.Debug("wrote backup",
		zap.String("path", backupPath),
		zap.Int("bytes", len(original)),
	)

	if opts.MaxBackups > 0 {
		if err := pruneBackups(backupDir, base, opts.MaxBackups); err != nil {
			a.logger.Warn("failed to prune backups", zap.Error(err))
		}
	}
	return nil
}

// pruneBackups removes the oldest backups of base beyond keep.
func pruneBackups(backupDir, base string, keep int) error {
	entries, err := os.ReadDir(backupDir)
	if err != nil {
		return err
	}

	var backups []string
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() && strings.HasPrefix(name, base+".") && strings.HasSuffix(name, ".bak") {
			backups = append(backups, name)
		}
	}
	if len(backups) <= keep {
		return nil
	}

	// Timestamped names sort chronologically.
	sort.Strings(backups)
	for _, name := range backups[:len(backups)-keep] {
		if err := os.Remove(filepath.Join(backupDir, name)); err != nil {
			return err
		}
	}
	return nil
}

// Backups lists backup files for a target, oldest first.
func Backups(backupDir string, target analyzer.TargetFile) ([]string, error) {
	entries, err := os.ReadDir(backupDir)
	if err != nil {
		return nil, err
	}
	base := fileNameByTarget[target]
	var backups []string
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() && strings.HasPrefix(name, base+".") && strings.HasSuffix(name, ".bak") {
			backups = append(backups, filepath.Join(backupDir, name))
		}
	}
	sort.Strings(backups)
	return backups, nil
}

func normalizeLineEndings(b []byte) []byte {
	b = bytes.ReplaceAll(b, []byte("\r\n"), []byte("\n"))
	return bytes.ReplaceAll(b, []byte("\r"), []byte("\n"))
}

func targetLabel(plan *CorrectionPlan) string {
	if plan == nil {
		return "unknown"
	}
	return string(plan.TargetFile)
}
