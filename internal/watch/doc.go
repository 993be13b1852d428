// Package watch detects out-of-band edits to the planning documents.
//
// The mutator is the only supported writer of requirements.md, design.md,
// and tasks.md while a run is active. The watcher observes the spec
// directory and flags writes it was not told to expect, so an operator
// editing a document under a running orchestrator gets a visible warning
// instead of silent divergence.
package watch
