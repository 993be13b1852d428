package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// Store persists ExecutionState snapshots to a single JSON file.
type Store struct {
	path   string
	logger *zap.Logger
}

// NewStore creates a store writing to the given file path.
func NewStore(path string, logger *zap.Logger) (*Store, error) {
	if path == "" {
		return nil, errors.New("state file path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{path: path, logger: logger}, nil
}

// Path returns the state file path.
func (s *Store) Path() string {
	return s.path
}

// Save writes the snapshot atomically. The JSON is first written to a
// temporary file in the same directory and then renamed over the state
// file, so readers never observe a partial write.
func (s *Store) Save(st *ExecutionState) error {
	if st == nil {
		return errors.New("state cannot be nil")
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".state-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to sync temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp state file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}

// Load reads the persisted snapshot. A missing, unreadable, or corrupt file
// returns (nil, nil): absence of saved state is non-fatal and means a fresh
// start.
func (s *Store) Load() (*ExecutionState, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("state file unreadable, starting fresh",
				zap.String("path", s.path),
				zap.Error(err),
			)
		}
		return nil, nil
	}

	var st ExecutionState
	if err := json.Unmarshal(data, &st); err != nil {
		s.logger.Warn("state file corrupt, starting fresh",
			zap.String("path", s.path),
			zap.Error(err),
		)
		return nil, nil
	}
	if st.RalphLoopAttempts == nil {
		st.RalphLoopAttempts = map[string]int{}
	}
	if st.CompletedTasks == nil {
		st.CompletedTasks = []string{}
	}
	if st.SkippedTasks == nil {
		st.SkippedTasks = []string{}
	}
	return &st, nil
}

// Clear removes the state file. Clearing an absent file is not an error.
func (s *Store) Clear() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove state file: %w", err)
	}
	return nil
}
