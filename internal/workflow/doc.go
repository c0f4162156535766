// Package workflow runs the job pipeline. A manager owns a pool of
// workers that claim pending jobs from the store; each claimed job is
// handed to the executor, which walks the phases that apply to the job's
// type, publishes progress, and observes cancellation at phase
// boundaries. A background maintenance loop reclaims jobs whose worker
// stopped heartbeating and purges old terminal records.
package workflow
