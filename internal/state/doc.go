// Package state persists the execution snapshot that makes an orchestration
// run crash-recoverable.
//
// The snapshot is a single JSON file written atomically (temp file plus
// rename) after every mutation. A missing, unreadable, or corrupt file is
// treated as "no saved state" rather than an error, so a damaged snapshot
// can never prevent a fresh start.
package state
