// Package export persists the accepted event stream.
//
// Three sinks share one Record shape: a CSV file for spreadsheet-grade
// analysis of a capture run, a SQLite archive for cross-run queries, and
// OpenTelemetry spans for latency waterfalls. Sinks must never block the
// consumer stage; the CSV writer hands records to a background goroutine
// over a bounded queue and sheds load when the queue is full, and a write
// failure disables the failing sink for the rest of the run instead of
// propagating.
//
// An optional expr predicate gates what reaches the durable sinks, so a
// noisy capture can be narrowed to one role or kind without touching the
// firmware.
package export
