// Package preflight provides readiness checks for the filesystem paths and
// the remote text service that refinery depends on.
//
// The "refinery status --check" command prints every result; "refinery run"
// refuses to start when a check fails so a doomed run does not spend hours
// logging failed batches.
package preflight
