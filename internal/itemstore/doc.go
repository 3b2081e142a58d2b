// Package itemstore persists batches of work items as JSON files, one batch
// per file, in per-stage directories.
//
// A batch file holds either one bare record or a sequence of records; both
// are accepted on read and normalized to a slice, while writes always produce
// an indented sequence through an atomic rename. Item counts of a directory
// are the pipeline's only progress signal, so CountItems is cheap and treats
// a missing directory as empty.
package itemstore
