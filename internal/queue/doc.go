// Package queue is the durable job record store: job rows, append-only
// per-job logs, atomic claim semantics, and terminal-state guards, all
// backed by SQLite.
package queue
