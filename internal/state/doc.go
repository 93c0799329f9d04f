// Package state holds Switchyard's canonical state document.
//
// Exactly one Store exists per process; every connection handler and
// both periodic loops read and mutate it through synchronized
// accessors. Reads are deep-copy snapshots, mutations are atomic, and
// the identifier sets (switch1..switch4, name1..name4) are closed:
// unknown keys are rejected, never created.
//
// The Repository persists the durable subset (names, switches,
// schedules, timers, system settings) to SQLite as a single JSON-column
// row. Physical switch positions and hardware liveness are runtime-only
// and reset on every start.
package state
