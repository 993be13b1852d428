package task

import (
	"bufio"
	"bytes"
	"fmt"
	"regexp"
	"strings"
)

// taskLine matches one checkbox line of a tasks document:
//
//	- [ ] 1. Set up project scaffolding
//	  - [x] 1.1 Create module layout (optional)
//
// Capture groups: indentation, checkbox mark, task ID, description.
var taskLine = regexp.MustCompile(`^(\s*)- \[([ xX~])\] (\d+(?:\.\d+)*)\.?\s+(.*)$`)

// optionalSuffix marks a task as optional when it trails the description.
const optionalSuffix = "(optional)"

// indentWidth is the number of spaces per nesting level in tasks documents.
const indentWidth = 2

// ParseTasksDocument converts a tasks document into a task graph. Checkbox
// lines become tasks; indentation encodes parent/child nesting; non-task
// lines (headings, prose, blanks) are ignored. "[x]" marks a task
// completed, "[~]" in progress, "[ ]" not started.
func ParseTasksDocument(data []byte) (*Graph, error) {
	var roots []*Task

	// stack[i] is the most recent task seen at depth i.
	var stack []*Task

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		m := taskLine.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}

		indent, mark, id, desc := m[1], m[2], m[3], strings.TrimSpace(m[4])
		if len(indent)%indentWidth != 0 {
			return nil, fmt.Errorf("line %d: indentation of %d spaces is not a multiple of %d", lineNo, len(indent), indentWidth)
		}
		depth := len(indent) / indentWidth
		if depth > len(stack) {
			return nil, fmt.Errorf("line %d: task %s skips a nesting level", lineNo, id)
		}

		t := &Task{
			ID:          id,
			Description: strings.TrimSpace(strings.TrimSuffix(desc, optionalSuffix)),
			Status:      statusForMark(mark),
			IsOptional:  strings.HasSuffix(desc, optionalSuffix),
		}

		stack = stack[:depth]
		if depth == 0 {
			roots = append(roots, t)
		} else {
			parent := stack[depth-1]
			parent.Children = append(parent.Children, t)
		}
		stack = append(stack, t)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan tasks document: %w", err)
	}
	if len(roots) == 0 {
		return nil, fmt.Errorf("tasks document contains no task lines")
	}

	return Build(roots)
}

// RenderTasksDocument converts a graph back into a tasks document. The
// output is a pretty-printed view; it carries completed and in-progress
// marks but not queue state, which lives in the execution snapshot.
func RenderTasksDocument(g *Graph) []byte {
	var buf bytes.Buffer
	buf.WriteString("# Implementation Plan\n\n")

	var render func(t *Task, depth int)
	render = func(t *Task, depth int) {
		buf.WriteString(strings.Repeat(" ", depth*indentWidth))
		buf.WriteString("- [")
		buf.WriteString(markForStatus(t.Status))
		buf.WriteString("] ")
		buf.WriteString(t.ID)
		buf.WriteString(". ")
		buf.WriteString(t.Description)
		if t.IsOptional {
			buf.WriteString(" " + optionalSuffix)
		}
		buf.WriteByte('\n')
		for _, c := range t.Children {
			render(c, depth+1)
		}
	}
	for _, r := range g.Roots() {
		render(r, 0)
	}
	return buf.Bytes()
}

func statusForMark(mark string) Status {
	switch mark {
	case "x", "X":
		return StatusCompleted
	case "~":
		return StatusInProgress
	default:
		return StatusNotStarted
	}
}

func markForStatus(s Status) string {
	switch s {
	case StatusCompleted:
		return "x"
	case StatusInProgress:
		return "~"
	default:
		return " "
	}
}
