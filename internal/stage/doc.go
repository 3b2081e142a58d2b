// Package stage applies a Transform to every item of a batch and persists the
// result under the same file name in the next stage directory.
//
// Items may be transformed concurrently (bounded by Runner.Concurrency) but
// results are always written in input order, and a batch is written only if
// every item succeeded. Category and CreatedAt are carried from the input
// item regardless of what the transform returns.
package stage
