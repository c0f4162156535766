// Package publisher records job progress and structured log lines and
// fans them out to long-poll subscribers. Every event is persisted to
// the queue store first so clients can replay history that has fallen
// out of the in-memory buffer.
package publisher
