// Package ralph implements the bounded self-correction loop invoked when a
// task's execution fails.
//
// Each attempt runs the full pipeline: classify the failure, ask the
// external generator for a correction, commit it through the document
// mutator, and confirm the fix. Attempts are counted per task and consumed
// before the pipeline runs, so a crash mid-attempt still costs the attempt
// on resume. Once the maximum is reached the loop is exhausted for that
// task and stays so until an operator resets it.
package ralph
