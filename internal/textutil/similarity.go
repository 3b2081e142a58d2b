package textutil

// CosineSimilarity computes the cosine similarity between two fingerprints.
// Returns 0 if either fingerprint is nil or has zero norm.
func CosineSimilarity(a, b *Fingerprint) float64 {
	if a == nil || b == nil || a.norm == 0 || b.norm == 0 {
		return 0
	}
	// Iterate the smaller map.
	if len(b.tokens) < len(a.tokens) {
		a, b = b, a
	}
	var dot float64
	for token, count := range a.tokens {
		if other, ok := b.tokens[token]; ok {
			dot += count * other
		}
	}
	if dot == 0 {
		return 0
	}
	return dot / (a.norm * b.norm)
}

// DuplicateSet remembers fingerprints of accepted texts and reports whether a
// candidate is too close to any of them.
type DuplicateSet struct {
	threshold float64
	seen      []*Fingerprint
}

// NewDuplicateSet returns a set that flags candidates whose similarity to an
// accepted text is at least threshold. A threshold outside (0,1] disables it.
func NewDuplicateSet(threshold float64) *DuplicateSet {
	return &DuplicateSet{threshold: threshold}
}

// Similar reports the highest similarity between text and any accepted text,
// and whether that reaches the threshold.
func (d *DuplicateSet) Similar(text string) (float64, bool) {
	if d == nil || d.threshold <= 0 || d.threshold > 1 {
		return 0, false
	}
	candidate := NewFingerprint(text)
	var best float64
	for _, fp := range d.seen {
		if score := CosineSimilarity(candidate, fp); score > best {
			best = score
		}
	}
	return best, best >= d.threshold
}

// Add records text as accepted.
func (d *DuplicateSet) Add(text string) {
	if d == nil {
		return
	}
	if fp := NewFingerprint(text); fp != nil {
		d.seen = append(d.seen, fp)
	}
}

// Len returns the number of accepted texts with usable fingerprints.
func (d *DuplicateSet) Len() int {
	if d == nil {
		return 0
	}
	return len(d.seen)
}
