package logging

// ProgressSampler suppresses repetitive progress logs so a job emits one line
// per percentage bucket instead of one per collaborator output line.
type ProgressSampler struct {
	bucketSize int
	lastBucket int
}

// NewProgressSampler constructs a sampler that emits when the percent crosses
// bucket boundaries (default 10%).
func NewProgressSampler(bucketSize int) *ProgressSampler {
	if bucketSize <= 0 {
		bucketSize = 10
	}
	return &ProgressSampler{bucketSize: bucketSize, lastBucket: -1}
}

// ShouldLog reports whether a progress value should be logged. Negative
// percentages mean "unknown" and never log.
func (s *ProgressSampler) ShouldLog(percent int) bool {
	if s == nil {
		return true
	}
	if percent < 0 {
		return false
	}
	if percent > 100 {
		percent = 100
	}
	bucket := percent / s.bucketSize
	if bucket <= s.lastBucket {
		return false
	}
	s.lastBucket = bucket
	return true
}
