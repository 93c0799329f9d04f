// Package database provides the SQLite connection and migration layer.
//
// Switchyard stores its durable state in a single SQLite file opened in
// WAL mode with a one-connection pool (SQLite has a single writer).
// Schema migrations are embedded into the binary by the top-level
// migrations package and applied at startup, each in its own
// transaction.
package database
