// Package daemon wires the long-running process: the queue store, the
// worker pool, the event hub, and the HTTP API that the CLI talks to.
package daemon
