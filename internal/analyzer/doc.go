// Package analyzer classifies captured task failures.
//
// Analyze is a pure function from an ErrorContext to an ErrorAnalysis: an
// error kind, a root cause, the source document to target for remediation,
// and a confidence score. Classification is driven by an ordered rule table
// evaluated first-match-wins, so new failure shapes are added as data rather
// than as new branches.
package analyzer
