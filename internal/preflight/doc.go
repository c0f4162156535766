// Package preflight verifies external readiness: directories, disk
// space, helper binaries, and remote APIs. The daemon runs the checks on
// startup and surfaces them through the status endpoint.
package preflight
