// Package taskmgr owns the task graph during an orchestration run.
//
// The manager derives prerequisite and dependent relationships from
// document order and the parent/child rules, selects the next runnable task
// under the single-active-task invariant, and persists the execution
// snapshot after every mutation so a crashed run can resume where it
// stopped.
//
// Prerequisites come from two sources: a task depends on its nearest
// preceding non-optional sibling, and a parent depends on all of its
// non-optional children (children run before their parent completes).
package taskmgr
