// Command shuttle is the CLI for submitting and tracking jobs against a
// running shuttled daemon.
package main
