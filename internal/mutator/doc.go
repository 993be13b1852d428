// Package mutator validates and atomically commits replacement content into
// one of the three source documents (requirements.md, design.md, tasks.md).
//
// A correction is rejected before any disk I/O if its plan is malformed or
// its content fails the structural shape check for the target document type.
// Commits go through a timestamped backup, a temp file in the target
// directory, and an atomic rename, followed by a read-back verification.
// Any failure leaves the original file byte-for-byte unchanged.
//
// Validation is structural only: required sections and markers must be
// present, but the semantic correctness of a correction is never judged
// here. That assurance boundary is deliberate; a correction that is
// well-formed nonsense will commit.
package mutator
