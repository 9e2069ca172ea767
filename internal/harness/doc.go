// Package harness runs conformance scenarios against the operator bridge.
//
// A scenario names an element type, a list of source rows, a pipeline of
// sequence operators and a set of terminal checks. The harness runs the
// same scenario against every listed provider (the in-memory provider
// and the SQLite provider by default), records a trace of each bridge
// call and its outcome, and requires all providers to produce the same
// trace. Expectations are compared in the dynamic view using canonical
// JSON, so a row and its map spelling in YAML compare equal.
//
// Traces are deterministic: sequence numbers are assigned after the
// terminal checks complete, in declaration order, so golden files are
// stable even though checks execute concurrently.
package harness
