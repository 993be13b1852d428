package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTasksDoc = `# Implementation Plan

Some introductory prose that is not a task line.

- [ ] 1. Set up project scaffolding
  - [x] 1.1 Create module layout
  - [ ] 1.2 Add CI pipeline (optional)
- [ ] 2. Implement core engine
  - [ ] 2.1 Parse documents
  - [ ] 2.2 Build graph
- [x] 3. Write release notes
`

func TestParseTasksDocument_Hierarchy(t *testing.T) {
	g, err := ParseTasksDocument([]byte(sampleTasksDoc))
	require.NoError(t, err)
	assert.Equal(t, 7, g.Len())

	roots := g.Roots()
	require.Len(t, roots, 3)
	assert.Equal(t, "1", roots[0].ID)
	require.Len(t, roots[0].Children, 2)
	assert.Equal(t, "1.1", roots[0].Children[0].ID)
	assert.Equal(t, "1", roots[0].Children[0].ParentID)
}

func TestParseTasksDocument_StatusAndOptionalMarkers(t *testing.T) {
	g, err := ParseTasksDocument([]byte(sampleTasksDoc))
	require.NoError(t, err)

	done, err := g.Get("1.1")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)
	assert.False(t, done.IsOptional)

	opt, err := g.Get("1.2")
	require.NoError(t, err)
	assert.Equal(t, StatusNotStarted, opt.Status)
	assert.True(t, opt.IsOptional)
	assert.Equal(t, "Add CI pipeline", opt.Description, "optional marker must be stripped from description")
}

func TestParseTasksDocument_InProgressMark(t *testing.T) {
	g, err := ParseTasksDocument([]byte("- [~] 1. Running task\n"))
	require.NoError(t, err)
	assert.Equal(t, "1", g.InFlight())
}

func TestParseTasksDocument_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{name: "empty document", doc: "# Plan\n\nno tasks here\n"},
		{name: "skipped nesting level", doc: "- [ ] 1. Root\n    - [ ] 1.1 Too deep\n"},
		{name: "odd indentation", doc: "- [ ] 1. Root\n - [ ] 1.1 One space\n"},
		{name: "duplicate ids", doc: "- [ ] 1. First\n- [ ] 1. Again\n"},
		{name: "two in progress", doc: "- [~] 1. One\n- [~] 2. Two\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTasksDocument([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestRenderTasksDocument_RoundTrip(t *testing.T) {
	g, err := ParseTasksDocument([]byte(sampleTasksDoc))
	require.NoError(t, err)

	rendered := RenderTasksDocument(g)
	reparsed, err := ParseTasksDocument(rendered)
	require.NoError(t, err)

	var want, got []string
	g.Walk(func(n *Task) bool {
		want = append(want, n.ID+"|"+n.Description+"|"+string(n.Status))
		return true
	})
	reparsed.Walk(func(n *Task) bool {
		got = append(got, n.ID+"|"+n.Description+"|"+string(n.Status))
		return true
	})
	assert.Equal(t, want, got)
}
