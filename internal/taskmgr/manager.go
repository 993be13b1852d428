package taskmgr

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/pland/internal/analyzer"
	"github.com/fyrsmithlabs/pland/internal/state"
	"github.com/fyrsmithlabs/pland/internal/task"
)

const instrumentationName = "github.com/fyrsmithlabs/pland/internal/taskmgr"

// ErrNotQueued is returned by StartTask for a task that is not queued.
var ErrNotQueued = errors.New("task is not queued")

// Manager owns the task graph for one orchestration run. All mutating
// operations persist the execution snapshot before returning.
type Manager struct {
	graph *task.Graph
	store *state.Store

	// index and deps are built once; tree structure is immutable per run.
	index map[string]*task.Task
	deps  map[string]*depEntry

	logger *zap.Logger

	meter            metric.Meter
	startedCounter   metric.Int64Counter
	completedCounter metric.Int64Counter
	haltCounter      metric.Int64Counter

	mu sync.Mutex
	st *state.ExecutionState
}

// NewManager creates a manager for the given spec and graph. A persisted
// snapshot matching the spec is adopted: completed and skipped tasks,
// attempt counters, and the in-flight task are restored onto the graph.
func NewManager(spec string, g *task.Graph, store *state.Store, logger *zap.Logger) (*Manager, error) {
	if g == nil {
		return nil, errors.New("task graph is required")
	}
	if store == nil {
		return nil, errors.New("state store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	index := make(map[string]*task.Task, g.Len())
	g.Walk(func(t *task.Task) bool {
		index[t.ID] = t
		return true
	})

	m := &Manager{
		graph:  g,
		store:  store,
		index:  index,
		deps:   buildDependencies(g),
		logger: logger,
		meter:  otel.Meter(instrumentationName),
		st:     state.NewExecutionState(spec),
	}
	m.initMetrics()

	saved, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load execution state: %w", err)
	}
	if saved != nil && saved.CurrentSpec == spec {
		if err := m.resume(saved); err != nil {
			return nil, fmt.Errorf("failed to resume execution state: %w", err)
		}
	}
	return m, nil
}

// initMetrics initializes OpenTelemetry metrics.
func (m *Manager) initMetrics() {
	var err error

	m.startedCounter, err = m.meter.Int64Counter(
		"pland.tasks.started_total",
		metric.WithDescription("Total number of tasks started"),
		metric.WithUnit("{task}"),
	)
	if err != nil {
		m.logger.Warn("failed to create started counter", zap.Error(err))
	}

	m.completedCounter, err = m.meter.Int64Counter(
		"pland.tasks.completed_total",
		metric.WithDescription("Total number of tasks completed"),
		metric.WithUnit("{task}"),
	)
	if err != nil {
		m.logger.Warn("failed to create completed counter", zap.Error(err))
	}

	m.haltCounter, err = m.meter.Int64Counter(
		"pland.tasks.halted_total",
		metric.WithDescription("Total number of execution halts on failure"),
		metric.WithUnit("{halt}"),
	)
	if err != nil {
		m.logger.Warn("failed to create halt counter", zap.Error(err))
	}
}

// resume restores graph statuses from a persisted snapshot. Unknown IDs in
// the snapshot are ignored; the documents may have evolved since.
func (m *Manager) resume(saved *state.ExecutionState) error {
	m.st = saved
	for _, id := range saved.CompletedTasks {
		if _, ok := m.index[id]; !ok {
			continue
		}
		if err := m.graph.Restore(id, task.StatusCompleted); err != nil {
			return err
		}
	}
	if saved.CurrentTask != "" {
		if _, ok := m.index[saved.CurrentTask]; ok {
			if err := m.graph.Restore(saved.CurrentTask, task.StatusInProgress); err != nil {
				return err
			}
		}
	}
	m.logger.Info("resumed execution state",
		zap.String("spec", saved.CurrentSpec),
		zap.Int("completed", len(saved.CompletedTasks)),
		zap.String("current_task", saved.CurrentTask),
	)
	return nil
}

// Graph returns the underlying task graph.
func (m *Manager) Graph() *task.Graph {
	return m.graph
}

// State returns a copy of the current execution snapshot.
func (m *Manager) State() *state.ExecutionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.Clone()
}

// persist writes the snapshot to durable storage. Called with m.mu held.
func (m *Manager) persist() error {
	if err := m.store.Save(m.st); err != nil {
		return fmt.Errorf("failed to persist execution state: %w", err)
	}
	return nil
}

// SelectNextTask returns the first eligible task in depth-first document
// order, or nil when nothing is runnable. It returns nil immediately while
// any task is in progress: at most one task is in flight system-wide.
func (m *Manager) SelectNextTask(includeOptional bool) *task.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.selectNextLocked(includeOptional)
}

func (m *Manager) selectNextLocked(includeOptional bool) *task.Task {
	if m.graph.InFlight() != "" {
		return nil
	}

	skipped := make(map[string]bool, len(m.st.SkippedTasks))
	for _, id := range m.st.SkippedTasks {
		skipped[id] = true
	}

	var selected *task.Task
	m.graph.Walk(func(t *task.Task) bool {
		if t.Status == task.StatusCompleted || skipped[t.ID] {
			return true
		}
		if t.IsOptional && !includeOptional {
			return true
		}
		// A parent waits for its non-optional children; keep scanning so
		// the children themselves can be picked.
		if !t.IsLeaf() && !m.childrenCompletedLocked(t) {
			return true
		}
		incomplete, err := m.incompletePrerequisites(t.ID)
		if err != nil || len(incomplete) > 0 {
			return true
		}
		selected = t
		return false
	})
	return selected
}

func (m *Manager) childrenCompletedLocked(t *task.Task) bool {
	for _, c := range t.Children {
		if !c.IsOptional && c.Status != task.StatusCompleted {
			return false
		}
	}
	return true
}

// QueueTask moves a not-started task to queued and persists.
func (m *Manager) QueueTask(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.graph.Transition(id, task.StatusQueued); err != nil {
		return err
	}
	return m.persist()
}

// StartTask begins execution of a queued task whose prerequisites are all
// completed. The error names the incomplete prerequisite IDs otherwise.
func (m *Manager) StartTask(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.index[id]
	if !ok {
		return fmt.Errorf("%w: %s", task.ErrTaskNotFound, id)
	}
	if t.Status != task.StatusQueued {
		return fmt.Errorf("%w: task %s has status %s", ErrNotQueued, id, t.Status)
	}
	if err := m.ValidatePrerequisites(id); err != nil {
		return err
	}
	if err := m.graph.Transition(id, task.StatusInProgress); err != nil {
		return err
	}

	m.st.CurrentTask = id
	if m.st.ExecutionStartTime == nil {
		now := time.Now().UTC()
		m.st.ExecutionStartTime = &now
	}
	if m.startedCounter != nil {
		m.startedCounter.Add(context.Background(), 1)
	}

	m.logger.Info("started task",
		zap.String("task_id", id),
		zap.String("description", t.Description),
	)
	return m.persist()
}

// CanCompleteParentTask reports whether a task may complete: leaves always
// can, a parent only once all its non-optional children are completed.
func (m *Manager) CanCompleteParentTask(id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.index[id]
	if !ok {
		return false, fmt.Errorf("%w: %s", task.ErrTaskNotFound, id)
	}
	if t.IsLeaf() {
		return true, nil
	}
	return m.childrenCompletedLocked(t), nil
}

// CompleteAndQueueNext completes the task, clears the in-flight marker,
// and queues the next eligible task if one exists. Returns the queued task
// or nil.
func (m *Manager) CompleteAndQueueNext(id string) (*task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.index[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", task.ErrTaskNotFound, id)
	}
	if !t.IsLeaf() && !m.childrenCompletedLocked(t) {
		return nil, fmt.Errorf("task %s cannot complete: non-optional children incomplete", id)
	}
	if err := m.graph.Transition(id, task.StatusCompleted); err != nil {
		return nil, err
	}

	m.st.CompletedTasks = append(m.st.CompletedTasks, id)
	m.st.CurrentTask = ""
	if m.completedCounter != nil {
		m.completedCounter.Add(context.Background(), 1)
	}
	m.logger.Info("completed task", zap.String("task_id", id))

	if err := m.persist(); err != nil {
		return nil, err
	}

	next := m.selectNextLocked(false)
	if next == nil {
		return nil, nil
	}
	if next.Status == task.StatusNotStarted {
		if err := m.graph.Transition(next.ID, task.StatusQueued); err != nil {
			return nil, err
		}
		if err := m.persist(); err != nil {
			return nil, err
		}
	}
	return next, nil
}

// HaltOnFailure captures a failure, resets the failed task for retry, and
// clears the in-flight marker. The returned context feeds the
// self-correction loop.
func (m *Manager) HaltOnFailure(id, errorMessage, stackTrace, failedTest string) (*analyzer.ErrorContext, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.index[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", task.ErrTaskNotFound, id)
	}
	if t.Status == task.StatusInProgress {
		if err := m.graph.Transition(id, task.StatusNotStarted); err != nil {
			return nil, err
		}
	}
	m.st.CurrentTask = ""
	if m.haltCounter != nil {
		m.haltCounter.Add(context.Background(), 1, metric.WithAttributes(attribute.String("task_id", id)))
	}

	ec := &analyzer.ErrorContext{
		ID:           uuid.New().String(),
		TaskID:       id,
		ErrorMessage: errorMessage,
		StackTrace:   stackTrace,
		FailedTest:   failedTest,
		Timestamp:    time.Now().UTC(),
	}
	m.logger.Warn("halted execution on failure",
		zap.String("task_id", id),
		zap.String("error", errorMessage),
		zap.String("failed_test", failedTest),
	)
	if err := m.persist(); err != nil {
		return nil, err
	}
	return ec, nil
}

// SkipTask records an optional task as skipped. Required tasks cannot be
// skipped.
func (m *Manager) SkipTask(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.index[id]
	if !ok {
		return fmt.Errorf("%w: %s", task.ErrTaskNotFound, id)
	}
	if !t.IsOptional {
		return fmt.Errorf("task %s is not optional and cannot be skipped", id)
	}
	for _, s := range m.st.SkippedTasks {
		if s == id {
			return nil
		}
	}
	m.st.SkippedTasks = append(m.st.SkippedTasks, id)
	return m.persist()
}

// AttemptCount returns the consumed correction attempts for a task.
func (m *Manager) AttemptCount(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.RalphLoopAttempts[id]
}

// IncrementAttempts consumes one correction attempt and persists the new
// count before returning it.
func (m *Manager) IncrementAttempts(id string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.RalphLoopAttempts[id]++
	if err := m.persist(); err != nil {
		return 0, err
	}
	return m.st.RalphLoopAttempts[id], nil
}

// ResetAttempts clears a task's attempt counter, re-arming its
// self-correction loop. This is an operator action.
func (m *Manager) ResetAttempts(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.st.RalphLoopAttempts, id)
	return m.persist()
}

// ClearExecution discards the execution snapshot, in memory and on disk.
func (m *Manager) ClearExecution() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st = state.NewExecutionState(m.st.CurrentSpec)
	if err := m.store.Clear(); err != nil {
		return err
	}
	m.logger.Info("cleared execution state")
	return nil
}
