// Package textutil holds the small text helpers shared by generation and
// refinement: cleaning raw model output, shortening text for log lines, and
// token fingerprints for spotting near-duplicate propositions.
//
// Fingerprints are term-frequency vectors over lowercase words of three or
// more runes; CosineSimilarity compares two of them.
package textutil
