// Package scheduler runs caller-supplied work once after a delay or repeatedly
// at a fixed rate.
//
// One dispatcher goroutine owns a min-heap of jobs keyed by next fire time and
// hands due jobs to a fixed pool of workers. Both run under a supervisor so a
// panicking loop is restarted instead of taking the process down.
//
// Guarantees:
//   - Recurring jobs fire at start+delay+k*period (fixed rate). A run that
//     overruns its period is followed by back-to-back catch-up runs.
//   - A job never overlaps itself; different jobs run concurrently.
//   - Cancellation is a state flag checked before every run. A run already in
//     progress is not interrupted.
//   - Errors and panics from work are reported to the failure sink and never
//     affect other jobs.
package scheduler
