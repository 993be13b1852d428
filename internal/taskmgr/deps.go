package taskmgr

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fyrsmithlabs/pland/internal/task"
)

// depEntry holds the derived dependency links of one task. Links are
// bidirectional: A listed as a prerequisite of B implies B listed as a
// dependent of A.
type depEntry struct {
	prerequisites []string
	dependents    []string
}

// buildDependencies derives the dependency graph from the task tree. It is
// computed once per manager; the tree's structure never changes within a
// run.
func buildDependencies(g *task.Graph) map[string]*depEntry {
	deps := make(map[string]*depEntry, g.Len())
	entry := func(id string) *depEntry {
		e, ok := deps[id]
		if !ok {
			e = &depEntry{}
			deps[id] = e
		}
		return e
	}

	link := func(prereq, dependent string) {
		entry(dependent).prerequisites = append(entry(dependent).prerequisites, prereq)
		entry(prereq).dependents = append(entry(prereq).dependents, dependent)
	}

	var visit func(siblings []*task.Task)
	visit = func(siblings []*task.Task) {
		lastRequired := ""
		for _, t := range siblings {
			entry(t.ID)

			// Document order among siblings: the nearest preceding
			// non-optional sibling gates this task. Transitivity follows
			// from that sibling's own links.
			if lastRequired != "" {
				link(lastRequired, t.ID)
			}
			if !t.IsOptional {
				lastRequired = t.ID
			}

			// Non-optional children gate their parent, not the reverse.
			for _, c := range t.Children {
				if !c.IsOptional {
					link(c.ID, t.ID)
				}
			}
			visit(t.Children)
		}
	}
	visit(g.Roots())

	for _, e := range deps {
		sort.Strings(e.prerequisites)
		sort.Strings(e.dependents)
	}
	return deps
}

// Prerequisites returns the IDs that must complete before the given task.
func (m *Manager) Prerequisites(id string) ([]string, error) {
	e, ok := m.deps[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", task.ErrTaskNotFound, id)
	}
	return append([]string{}, e.prerequisites...), nil
}

// Dependents returns the IDs gated by the given task.
func (m *Manager) Dependents(id string) ([]string, error) {
	e, ok := m.deps[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", task.ErrTaskNotFound, id)
	}
	return append([]string{}, e.dependents...), nil
}

// ArePrerequisitesCompleted reports whether every non-optional prerequisite
// of the task is completed. A task without prerequisites trivially
// qualifies.
func (m *Manager) ArePrerequisitesCompleted(id string) (bool, error) {
	incomplete, err := m.incompletePrerequisites(id)
	if err != nil {
		return false, err
	}
	return len(incomplete) == 0, nil
}

// ValidatePrerequisites returns an error naming the incomplete prerequisite
// IDs when the task is not ready to start.
func (m *Manager) ValidatePrerequisites(id string) error {
	incomplete, err := m.incompletePrerequisites(id)
	if err != nil {
		return err
	}
	if len(incomplete) > 0 {
		return fmt.Errorf("task %s has incomplete prerequisites: %s", id, strings.Join(incomplete, ", "))
	}
	return nil
}

func (m *Manager) incompletePrerequisites(id string) ([]string, error) {
	e, ok := m.deps[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", task.ErrTaskNotFound, id)
	}
	var incomplete []string
	for _, pid := range e.prerequisites {
		p := m.index[pid]
		if p.IsOptional {
			continue
		}
		if p.Status != task.StatusCompleted {
			incomplete = append(incomplete, pid)
		}
	}
	return incomplete, nil
}
