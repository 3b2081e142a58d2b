// Package journal keeps an append-only SQLite record of batch outcomes.
//
// Each controller run writes one row per batch it attempted, with the stage
// reached, the outcome, and the error kind when it failed. The journal is
// for auditing and the history command; pipeline progress is always measured
// from the stage directories, never from here. Schema changes bump the
// version in schema.go.
package journal
