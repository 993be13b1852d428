package task

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Sentinel errors returned by graph operations.
var (
	// ErrTaskNotFound is returned when an ID does not exist in the graph.
	ErrTaskNotFound = errors.New("task not found")

	// ErrInvalidTransition is returned for any edge outside the transition
	// table. The task's status is left unchanged and no event is emitted.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrTaskInFlight is returned when a transition to in_progress would
	// violate the single-active-task invariant.
	ErrTaskInFlight = errors.New("another task is already in progress")

	// ErrDuplicateID is returned by Build when two tasks share an ID.
	ErrDuplicateID = errors.New("duplicate task id")
)

// legalTransitions is the complete transition table. Any (from, to) pair
// absent here is rejected. completed is absorbing.
var legalTransitions = map[Status]map[Status]bool{
	StatusNotStarted: {StatusQueued: true},
	StatusQueued:     {StatusInProgress: true},
	StatusInProgress: {StatusCompleted: true, StatusNotStarted: true},
	StatusCompleted:  {},
}

// Graph holds the task tree and an index of every task by ID. Structure is
// immutable after Build; Transition is the only mutation path.
type Graph struct {
	mu    sync.RWMutex
	roots []*Task
	index map[string]*Task

	// inFlight holds the ID of the single in_progress task, or "".
	inFlight string

	listeners  map[int]Listener
	nextListID int
}

// Build constructs a graph from the root tasks, indexing every node and
// validating ID uniqueness. ParentID fields are filled from tree position.
func Build(roots []*Task) (*Graph, error) {
	g := &Graph{
		roots:     roots,
		index:     make(map[string]*Task),
		listeners: make(map[int]Listener),
	}

	var walk func(t *Task, parentID string) error
	walk = func(t *Task, parentID string) error {
		if t.ID == "" {
			return errors.New("task id cannot be empty")
		}
		if _, ok := g.index[t.ID]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateID, t.ID)
		}
		if t.Status == "" {
			t.Status = StatusNotStarted
		}
		if !t.Status.Valid() {
			return fmt.Errorf("task %s has invalid status %q", t.ID, t.Status)
		}
		t.ParentID = parentID
		g.index[t.ID] = t
		if t.Status == StatusInProgress {
			if g.inFlight != "" {
				return fmt.Errorf("%w: %s and %s", ErrTaskInFlight, g.inFlight, t.ID)
			}
			g.inFlight = t.ID
		}
		for _, c := range t.Children {
			if err := walk(c, t.ID); err != nil {
				return err
			}
		}
		return nil
	}

	for _, r := range roots {
		if err := walk(r, ""); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// Get returns the task with the given ID.
func (g *Graph) Get(id string) (*Task, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	t, ok := g.index[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return t, nil
}

// Status returns the current status of a task.
func (g *Graph) Status(id string) (Status, error) {
	t, err := g.Get(id)
	if err != nil {
		return "", err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return t.Status, nil
}

// Roots returns the top-level tasks in document order.
func (g *Graph) Roots() []*Task {
	return g.roots
}

// Len returns the total number of tasks in the graph.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.index)
}

// InFlight returns the ID of the task currently in progress, or "".
func (g *Graph) InFlight() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.inFlight
}

// Walk visits every task in depth-first document order until fn returns
// false.
func (g *Graph) Walk(fn func(t *Task) bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var visit func(t *Task) bool
	visit = func(t *Task) bool {
		if !fn(t) {
			return false
		}
		for _, c := range t.Children {
			if !visit(c) {
				return false
			}
		}
		return true
	}
	for _, r := range g.roots {
		if !visit(r) {
			return
		}
	}
}

// Transition moves a task to a new status. Only edges in the transition
// table are allowed; the single-active-task invariant is enforced under the
// same lock as the status write, so a check-then-set race cannot admit a
// second in_progress task. On success every registered listener receives a
// TransitionEvent. On failure the status is unchanged and nothing is
// emitted.
func (g *Graph) Transition(id string, to Status) error {
	g.mu.Lock()
	t, ok := g.index[id]
	if !ok {
		g.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}

	from := t.Status
	if !legalTransitions[from][to] {
		g.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s for task %s", ErrInvalidTransition, from, to, id)
	}
	if to == StatusInProgress && g.inFlight != "" && g.inFlight != id {
		g.mu.Unlock()
		return fmt.Errorf("%w: %s blocks %s", ErrTaskInFlight, g.inFlight, id)
	}

	t.Status = to
	switch {
	case to == StatusInProgress:
		g.inFlight = id
	case from == StatusInProgress:
		g.inFlight = ""
	}

	event := TransitionEvent{
		TaskID:         id,
		PreviousStatus: from,
		NewStatus:      to,
		Timestamp:      time.Now().UTC(),
	}
	listeners := make([]Listener, 0, len(g.listeners))
	for _, l := range g.listeners {
		listeners = append(listeners, l)
	}
	g.mu.Unlock()

	for _, l := range listeners {
		l(event)
	}
	return nil
}

// Restore sets a task's status directly, bypassing the transition table.
// It exists only for rebuilding in-memory state from a persisted snapshot;
// the single-active-task invariant still holds and no event is emitted.
func (g *Graph) Restore(id string, s Status) error {
	if !s.Valid() {
		return fmt.Errorf("invalid status %q", s)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.index[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if s == StatusInProgress && g.inFlight != "" && g.inFlight != id {
		return fmt.Errorf("%w: %s blocks %s", ErrTaskInFlight, g.inFlight, id)
	}
	if t.Status == StatusInProgress && s != StatusInProgress && g.inFlight == id {
		g.inFlight = ""
	}
	if s == StatusInProgress {
		g.inFlight = id
	}
	t.Status = s
	return nil
}

// AddListener registers a transition listener and returns a handle for
// RemoveListener.
func (g *Graph) AddListener(l Listener) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.nextListID
	g.nextListID++
	g.listeners[id] = l
	return id
}

// RemoveListener unregisters a previously added listener.
func (g *Graph) RemoveListener(handle int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.listeners, handle)
}

// CountByStatus returns the number of tasks in each status.
func (g *Graph) CountByStatus() map[Status]int {
	counts := make(map[Status]int, 4)
	g.Walk(func(t *Task) bool {
		counts[t.Status]++
		return true
	})
	return counts
}
