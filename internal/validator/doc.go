// Package validator provides proof-of-completion checks.
//
// Each check is an independent, read-only probe (file existence, port
// reachability, HTTP endpoint status, process existence, or a caller
// supplied predicate) producing a ValidationResult. Results are cached for
// a short TTL keyed by check kind and arguments, and every probe is bounded
// by a hard timeout. Two calls racing across the TTL boundary may both
// execute the probe; probes are read-only, so the duplicate is benign.
package validator
