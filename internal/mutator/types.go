package mutator

import (
	"github.com/fyrsmithlabs/pland/internal/analyzer"
)

// CorrectionPlan is a proposed full replacement of one source document. It
// is produced by an external correction generator and consumed here.
type CorrectionPlan struct {
	// ErrorType is the classified kind of the failure being corrected.
	ErrorType analyzer.ErrorType `json:"error_type"`

	// TargetFile names the document to replace.
	TargetFile analyzer.TargetFile `json:"target_file"`

	// Correction describes the change in prose. Must be non-empty.
	Correction string `json:"correction"`

	// UpdatedContent is the complete replacement text. Must be non-empty.
	UpdatedContent string `json:"updated_content"`

	// AttemptNumber is the 1-based correction attempt.
	AttemptNumber int `json:"attempt_number"`

	// Confidence is the generator's confidence, 0-100.
	Confidence int `json:"confidence"`
}

// Options controls how a correction is applied.
type Options struct {
	// SpecDir is the directory holding the three documents.
	SpecDir string

	// CreateBackup copies the pre-change file aside before mutating.
	CreateBackup bool

	// BackupDir overrides where backups are written (default: SpecDir).
	BackupDir string

	// StrictValidation enables the structural shape check per target type.
	StrictValidation bool

	// MaxBackups prunes older backups beyond this count (0 = unlimited).
	MaxBackups int
}

// DefaultOptions returns options with backups and strict validation on.
func DefaultOptions(specDir string) Options {
	return Options{
		SpecDir:          specDir,
		CreateBackup:     true,
		StrictValidation: true,
		MaxBackups:       10,
	}
}

// Result reports the outcome of applying a correction.
type Result struct {
	Success  bool   `json:"success"`
	FilePath string `json:"file_path,omitempty"`
	Error    string `json:"error,omitempty"`
}
