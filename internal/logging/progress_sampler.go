package logging

import "strings"

// ProgressSampler throttles per-item progress lines inside a batch. It emits
// when the completion percentage crosses a bucket boundary or the label
// (typically the stage) changes, and always on the final item.
type ProgressSampler struct {
	bucketSize float64
	lastLabel  string
	lastBucket int
}

// NewProgressSampler builds a sampler with the given percentage bucket size.
// Non-positive sizes fall back to 10%.
func NewProgressSampler(bucketSize float64) *ProgressSampler {
	if bucketSize <= 0 {
		bucketSize = 10
	}
	return &ProgressSampler{bucketSize: bucketSize, lastBucket: -1}
}

// ShouldLog reports whether completing done of total items under label
// deserves a log line. A nil sampler logs everything.
func (s *ProgressSampler) ShouldLog(label string, done, total int) bool {
	if s == nil {
		return true
	}
	label = strings.TrimSpace(label)
	emit := false
	if label != s.lastLabel {
		s.lastLabel = label
		s.lastBucket = -1
		emit = true
	}
	if total <= 0 {
		return emit
	}
	if done >= total {
		done = total
		emit = true
	}
	bucket := int(Percent(done, total) / s.bucketSize)
	if bucket > s.lastBucket {
		s.lastBucket = bucket
		emit = true
	}
	return emit
}

// Reset clears sampler state so the next call always logs.
func (s *ProgressSampler) Reset() {
	if s == nil {
		return
	}
	s.lastLabel = ""
	s.lastBucket = -1
}

// Percent returns done/total as a percentage in [0,100]. A zero total reports 100.
func Percent(done, total int) float64 {
	if total <= 0 {
		return 100
	}
	if done <= 0 {
		return 0
	}
	if done >= total {
		return 100
	}
	return float64(done) * 100 / float64(total)
}
