// Package task provides the in-memory task graph and its status state
// machine.
//
// The graph is an arena of task records addressed by dotted hierarchical
// IDs ("3.1"). Structure is fixed after Build; only statuses mutate. The
// status state machine admits exactly four transitions and enforces the
// global invariant that at most one task is in progress at any time.
//
// The tasks document (tasks.md) is a rendered view of the graph, not the
// source of truth during execution. ParseTasksDocument and
// RenderTasksDocument are pure converters between the two representations.
package task
