package mutator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/pland/internal/analyzer"
)

const validTasksDoc = `# Implementation Plan

- [ ] 1. Build the thing
  - [ ] 1.1 Design the thing
`

const validDesignDoc = `# Design

## Architecture

Components and their interactions.
`

const validRequirementsDoc = `# Requirements

## Requirement 1: User login

Users can sign in.

#### Acceptance Criteria

- WHEN a user submits valid credentials THEN a session is created
`

func validPlan(target analyzer.TargetFile, content string) *CorrectionPlan {
	return &CorrectionPlan{
		ErrorType:      analyzer.ErrorTestFailure,
		TargetFile:     target,
		Correction:     "rewrite the affected section",
		UpdatedContent: content,
		AttemptNumber:  1,
		Confidence:     80,
	}
}

func setupSpecDir(t *testing.T, target analyzer.TargetFile, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(TargetPath(dir, target), []byte(content), 0o600))
	return dir
}

func TestApply_CommitsValidPlan(t *testing.T) {
	a := NewApplier(zap.NewNop())
	dir := setupSpecDir(t, analyzer.TargetTasks, validTasksDoc)
	updated := validTasksDoc + "- [ ] 2. A second task\n"

	result := a.Apply(context.Background(), validPlan(analyzer.TargetTasks, updated), DefaultOptions(dir))
	require.True(t, result.Success, result.Error)
	assert.Equal(t, TargetPath(dir, analyzer.TargetTasks), result.FilePath)

	got, err := os.ReadFile(result.FilePath)
	require.NoError(t, err)
	assert.Equal(t, updated, string(got))
}

func TestApply_CreatesExactlyOneBackupWithPreCallBytes(t *testing.T) {
	a := NewApplier(zap.NewNop())
	dir := setupSpecDir(t, analyzer.TargetDesign, validDesignDoc)

	result := a.Apply(context.Background(),
		validPlan(analyzer.TargetDesign, validDesignDoc+"\n## Data Model\n\nMore.\n"),
		DefaultOptions(dir))
	require.True(t, result.Success, result.Error)

	backups, err := Backups(dir, analyzer.TargetDesign)
	require.NoError(t, err)
	require.Len(t, backups, 1)

	backed, err := os.ReadFile(backups[0])
	require.NoError(t, err)
	assert.Equal(t, validDesignDoc, string(backed))
}

func TestApply_NoBackupForBrandNewFile(t *testing.T) {
	a := NewApplier(zap.NewNop())
	dir := t.TempDir()

	result := a.Apply(context.Background(),
		validPlan(analyzer.TargetTasks, validTasksDoc), DefaultOptions(dir))
	require.True(t, result.Success, result.Error)

	backups, err := Backups(dir, analyzer.TargetTasks)
	require.NoError(t, err)
	assert.Empty(t, backups)
}

func TestApply_StructurallyInvalidContentLeavesFileUntouched(t *testing.T) {
	a := NewApplier(zap.NewNop())

	tests := []struct {
		target  analyzer.TargetFile
		initial string
		bad     string
	}{
		{analyzer.TargetTasks, validTasksDoc, "just prose, no checkboxes"},
		{analyzer.TargetDesign, validDesignDoc, "no headings at all"},
		{analyzer.TargetRequirements, validRequirementsDoc, "## Requirement 1\n\nno acceptance criteria"},
	}

	for _, tt := range tests {
		t.Run(string(tt.target), func(t *testing.T) {
			dir := setupSpecDir(t, tt.target, tt.initial)

			result := a.Apply(context.Background(), validPlan(tt.target, tt.bad), DefaultOptions(dir))
			assert.False(t, result.Success)
			assert.Contains(t, result.Error, "structural validation")

			got, err := os.ReadFile(TargetPath(dir, tt.target))
			require.NoError(t, err)
			assert.Equal(t, tt.initial, string(got), "target bytes must be identical after rejected apply")

			entries, err := os.ReadDir(dir)
			require.NoError(t, err)
			assert.Len(t, entries, 1, "no temp files or backups may remain")
		})
	}
}

func TestApply_PlanGateRejections(t *testing.T) {
	a := NewApplier(zap.NewNop())
	dir := setupSpecDir(t, analyzer.TargetTasks, validTasksDoc)

	tests := []struct {
		name   string
		mutate func(p *CorrectionPlan)
	}{
		{"bad target", func(p *CorrectionPlan) { p.TargetFile = "readme" }},
		{"bad error type", func(p *CorrectionPlan) { p.ErrorType = "cosmic_ray" }},
		{"zero attempt", func(p *CorrectionPlan) { p.AttemptNumber = 0 }},
		{"empty correction", func(p *CorrectionPlan) { p.Correction = "" }},
		{"empty content", func(p *CorrectionPlan) { p.UpdatedContent = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := validPlan(analyzer.TargetTasks, validTasksDoc)
			tt.mutate(plan)

			result := a.Apply(context.Background(), plan, DefaultOptions(dir))
			assert.False(t, result.Success)

			got, err := os.ReadFile(TargetPath(dir, analyzer.TargetTasks))
			require.NoError(t, err)
			assert.Equal(t, validTasksDoc, string(got))
		})
	}
}

func TestApply_StrictValidationOff(t *testing.T) {
	a := NewApplier(zap.NewNop())
	dir := setupSpecDir(t, analyzer.TargetTasks, validTasksDoc)

	opts := DefaultOptions(dir)
	opts.StrictValidation = false

	result := a.Apply(context.Background(), validPlan(analyzer.TargetTasks, "free-form notes"), opts)
	assert.True(t, result.Success, result.Error)
}

func TestApply_LineEndingNormalizationInVerification(t *testing.T) {
	a := NewApplier(zap.NewNop())
	dir := t.TempDir()

	crlf := strings.ReplaceAll(validTasksDoc, "\n", "\r\n")
	result := a.Apply(context.Background(), validPlan(analyzer.TargetTasks, crlf), DefaultOptions(dir))
	assert.True(t, result.Success, result.Error)
}

func TestApply_PrunesOldestBackups(t *testing.T) {
	a := NewApplier(zap.NewNop())
	dir := setupSpecDir(t, analyzer.TargetTasks, validTasksDoc)

	opts := DefaultOptions(dir)
	opts.MaxBackups = 2

	for i := 0; i < 5; i++ {
		content := fmt.Sprintf("%s- [ ] %d. Task number %d\n", validTasksDoc, i+2, i+2)
		plan := validPlan(analyzer.TargetTasks, content)
		plan.AttemptNumber = i + 1
		result := a.Apply(context.Background(), plan, opts)
		require.True(t, result.Success, result.Error)
	}

	backups, err := Backups(dir, analyzer.TargetTasks)
	require.NoError(t, err)
	assert.Len(t, backups, 2)
}

func TestApply_BackupDirOverride(t *testing.T) {
	a := NewApplier(zap.NewNop())
	dir := setupSpecDir(t, analyzer.TargetTasks, validTasksDoc)
	backupDir := filepath.Join(t.TempDir(), "backups")

	opts := DefaultOptions(dir)
	opts.BackupDir = backupDir

	result := a.Apply(context.Background(),
		validPlan(analyzer.TargetTasks, validTasksDoc+"- [ ] 2. More\n"), opts)
	require.True(t, result.Success, result.Error)

	backups, err := Backups(backupDir, analyzer.TargetTasks)
	require.NoError(t, err)
	assert.Len(t, backups, 1)
}
