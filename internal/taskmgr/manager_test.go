package taskmgr

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/pland/internal/state"
	"github.com/fyrsmithlabs/pland/internal/task"
)

const linearPlan = `# Implementation Plan

- [ ] 1. Set up project scaffolding
- [ ] 2. Implement core data model
- [ ] 3. Wire the HTTP surface
`

const nestedPlan = `# Implementation Plan

- [ ] 1. Build the parser
  - [ ] 1.1 Tokenize input
  - [ ] 1.2 Assemble syntax tree
  - [ ] 1.3 Add pretty printer (optional)
- [ ] 2. Build the evaluator
`

func newTestStore(t *testing.T) *state.Store {
	t.Helper()
	store, err := state.NewStore(filepath.Join(t.TempDir(), "execution-state.json"), zap.NewNop())
	require.NoError(t, err)
	return store
}

func newTestManager(t *testing.T, doc string, store *state.Store) *Manager {
	t.Helper()
	g, err := task.ParseTasksDocument([]byte(doc))
	require.NoError(t, err)
	m, err := NewManager("demo-spec", g, store, zap.NewNop())
	require.NoError(t, err)
	return m
}

func TestNewManager_Validation(t *testing.T) {
	g, err := task.ParseTasksDocument([]byte(linearPlan))
	require.NoError(t, err)
	store := newTestStore(t)

	_, err = NewManager("s", nil, store, nil)
	assert.ErrorContains(t, err, "task graph")

	_, err = NewManager("s", g, nil, nil)
	assert.ErrorContains(t, err, "state store")
}

func TestLinearPlanEndToEnd(t *testing.T) {
	m := newTestManager(t, linearPlan, newTestStore(t))

	next := m.SelectNextTask(false)
	require.NotNil(t, next)
	assert.Equal(t, "1", next.ID)

	// Task 2 cannot start before task 1 completes.
	require.NoError(t, m.QueueTask("2"))
	err := m.StartTask("2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "incomplete prerequisites")
	assert.Contains(t, err.Error(), "1")

	require.NoError(t, m.QueueTask("1"))
	require.NoError(t, m.StartTask("1"))
	assert.Equal(t, "1", m.State().CurrentTask)
	assert.NotNil(t, m.State().ExecutionStartTime)

	// Nothing else is selectable while task 1 is in flight.
	assert.Nil(t, m.SelectNextTask(false))

	queued, err := m.CompleteAndQueueNext("1")
	require.NoError(t, err)
	require.NotNil(t, queued)
	assert.Equal(t, "2", queued.ID)
	assert.Equal(t, task.StatusQueued, queued.Status)
	assert.Equal(t, []string{"1"}, m.State().CompletedTasks)
	assert.Empty(t, m.State().CurrentTask)

	require.NoError(t, m.StartTask("2"))
	queued, err = m.CompleteAndQueueNext("2")
	require.NoError(t, err)
	require.NotNil(t, queued)
	assert.Equal(t, "3", queued.ID)

	require.NoError(t, m.StartTask("3"))
	queued, err = m.CompleteAndQueueNext("3")
	require.NoError(t, err)
	assert.Nil(t, queued, "no task remains after the plan completes")
	assert.Equal(t, []string{"1", "2", "3"}, m.State().CompletedTasks)
}

func TestStartTask_RequiresQueued(t *testing.T) {
	m := newTestManager(t, linearPlan, newTestStore(t))

	err := m.StartTask("1")
	assert.ErrorIs(t, err, ErrNotQueued)

	err = m.StartTask("99")
	assert.ErrorIs(t, err, task.ErrTaskNotFound)
}

func TestParentCompletion(t *testing.T) {
	m := newTestManager(t, nestedPlan, newTestStore(t))

	// Selection descends into children: parent 1 waits for 1.1 and 1.2.
	next := m.SelectNextTask(false)
	require.NotNil(t, next)
	assert.Equal(t, "1.1", next.ID)

	ok, err := m.CanCompleteParentTask("1")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = m.CompleteAndQueueNext("1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "children incomplete")

	// 1.1 is queued by hand; CompleteAndQueueNext queues 1.2 automatically.
	require.NoError(t, m.QueueTask("1.1"))
	for _, id := range []string{"1.1", "1.2"} {
		require.NoError(t, m.StartTask(id))
		_, err = m.CompleteAndQueueNext(id)
		require.NoError(t, err)
	}

	// The optional child 1.3 does not gate the parent.
	ok, err = m.CanCompleteParentTask("1")
	require.NoError(t, err)
	assert.True(t, ok)

	next = m.SelectNextTask(false)
	require.NotNil(t, next)
	assert.Equal(t, "1", next.ID)
}

func TestOptionalTasks(t *testing.T) {
	m := newTestManager(t, nestedPlan, newTestStore(t))

	// Complete 1.1 so both 1.2 and 1.3 become reachable.
	require.NoError(t, m.QueueTask("1.1"))
	require.NoError(t, m.StartTask("1.1"))
	_, err := m.CompleteAndQueueNext("1.1")
	require.NoError(t, err)

	// Skipped optional tasks are never selected, even with includeOptional.
	require.NoError(t, m.SkipTask("1.3"))
	require.NoError(t, m.SkipTask("1.3")) // idempotent
	assert.Equal(t, []string{"1.3"}, m.State().SkippedTasks)

	err = m.SkipTask("1.1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not optional")
}

func TestSelectNextTask_IncludeOptional(t *testing.T) {
	m := newTestManager(t, nestedPlan, newTestStore(t))

	require.NoError(t, m.QueueTask("1.1"))
	for _, id := range []string{"1.1", "1.2", "1"} {
		require.NoError(t, m.StartTask(id))
		_, err := m.CompleteAndQueueNext(id)
		require.NoError(t, err)
	}

	// Without includeOptional the optional 1.3 is passed over in favor of 2.
	next := m.SelectNextTask(false)
	require.NotNil(t, next)
	assert.Equal(t, "2", next.ID)

	next = m.SelectNextTask(true)
	require.NotNil(t, next)
	assert.Equal(t, "1.3", next.ID)
}

func TestHaltOnFailure(t *testing.T) {
	m := newTestManager(t, linearPlan, newTestStore(t))

	require.NoError(t, m.QueueTask("1"))
	require.NoError(t, m.StartTask("1"))

	ec, err := m.HaltOnFailure("1", "Expected 5 but received 3", "at totals.test.ts:12", "computes totals")
	require.NoError(t, err)
	require.NotNil(t, ec)
	assert.NotEmpty(t, ec.ID)
	assert.Equal(t, "1", ec.TaskID)
	assert.Equal(t, "Expected 5 but received 3", ec.ErrorMessage)
	assert.Equal(t, "computes totals", ec.FailedTest)
	assert.False(t, ec.Timestamp.IsZero())

	// The task is reset for retry and nothing is in flight.
	st, err := m.Graph().Status("1")
	require.NoError(t, err)
	assert.Equal(t, task.StatusNotStarted, st)
	assert.Empty(t, m.State().CurrentTask)
	assert.Empty(t, m.Graph().InFlight())
}

func TestAttemptStore(t *testing.T) {
	m := newTestManager(t, linearPlan, newTestStore(t))

	assert.Equal(t, 0, m.AttemptCount("1"))

	n, err := m.IncrementAttempts("1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = m.IncrementAttempts("1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 0, m.AttemptCount("2"))

	require.NoError(t, m.ResetAttempts("1"))
	assert.Equal(t, 0, m.AttemptCount("1"))
}

func TestPersistenceAndResume(t *testing.T) {
	store := newTestStore(t)
	m := newTestManager(t, linearPlan, store)

	require.NoError(t, m.QueueTask("1"))
	require.NoError(t, m.StartTask("1"))
	_, err := m.CompleteAndQueueNext("1")
	require.NoError(t, err)
	require.NoError(t, m.StartTask("2"))
	_, err = m.IncrementAttempts("2")
	require.NoError(t, err)

	// A new manager over the same store adopts the snapshot.
	resumed := newTestManager(t, linearPlan, store)

	st, err := resumed.Graph().Status("1")
	require.NoError(t, err)
	assert.Equal(t, task.StatusCompleted, st)

	st, err = resumed.Graph().Status("2")
	require.NoError(t, err)
	assert.Equal(t, task.StatusInProgress, st)
	assert.Equal(t, "2", resumed.Graph().InFlight())
	assert.Equal(t, "2", resumed.State().CurrentTask)
	assert.Equal(t, 1, resumed.AttemptCount("2"))
	assert.NotNil(t, resumed.State().ExecutionStartTime)
}

func TestResume_DifferentSpecStartsFresh(t *testing.T) {
	store := newTestStore(t)
	m := newTestManager(t, linearPlan, store)
	require.NoError(t, m.QueueTask("1"))
	require.NoError(t, m.StartTask("1"))
	_, err := m.CompleteAndQueueNext("1")
	require.NoError(t, err)

	g, err := task.ParseTasksDocument([]byte(linearPlan))
	require.NoError(t, err)
	fresh, err := NewManager("another-spec", g, store, zap.NewNop())
	require.NoError(t, err)

	st, err := fresh.Graph().Status("1")
	require.NoError(t, err)
	assert.Equal(t, task.StatusNotStarted, st)
	assert.Empty(t, fresh.State().CompletedTasks)
}

func TestResume_UnknownTaskIDsIgnored(t *testing.T) {
	store := newTestStore(t)
	saved := state.NewExecutionState("demo-spec")
	saved.CompletedTasks = []string{"1", "42"}
	require.NoError(t, store.Save(saved))

	m := newTestManager(t, linearPlan, store)
	st, err := m.Graph().Status("1")
	require.NoError(t, err)
	assert.Equal(t, task.StatusCompleted, st)
}

func TestClearExecution(t *testing.T) {
	store := newTestStore(t)
	m := newTestManager(t, linearPlan, store)
	require.NoError(t, m.QueueTask("1"))
	require.NoError(t, m.StartTask("1"))

	require.NoError(t, m.ClearExecution())
	assert.Empty(t, m.State().CurrentTask)
	assert.Empty(t, m.State().CompletedTasks)

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, loaded)
}
