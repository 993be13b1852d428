// Package sandbox defines the execution boundary for task commands.
//
// The orchestrator never runs commands itself; it hands them to an Executor
// together with resource limits. PassthroughExecutor runs commands directly
// on the host and is intended for tests and trusted local use. CheckCommand
// screens a command line against a rule table of known-destructive patterns
// before any executor sees it.
package sandbox
