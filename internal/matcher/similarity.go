// Package matcher scores captured window regions against stored templates.
//
// Both sides of a comparison are single-channel, contrast-stretched rasters of
// identical dimensions. The score is the absolute-difference ratio
// 1 - sum|a-b| / (n*255), so 1.0 means identical and 0.0 means every pixel
// differs by the full range.
package matcher

const (
	// DefaultThreshold is the minimum score at which a region matches.
	DefaultThreshold = 0.85
	// DefaultSubsampleCutoff is the buffer length above which every second
	// pixel is sampled.
	DefaultSubsampleCutoff = 10000
	// DefaultCheckEvery is how many sampled pixels pass between early-exit checks.
	DefaultCheckEvery = 64
)

// Scorer holds the tuning knobs of the comparison fast path.
type Scorer struct {
	Threshold       float64
	SubsampleCutoff int
	CheckEvery      int
}

// NewScorer returns a Scorer using the package defaults for any zero field.
func NewScorer(threshold float64, subsampleCutoff, checkEvery int) Scorer {
	s := Scorer{Threshold: threshold, SubsampleCutoff: subsampleCutoff, CheckEvery: checkEvery}
	if s.Threshold <= 0 || s.Threshold > 1 {
		s.Threshold = DefaultThreshold
	}
	if s.SubsampleCutoff <= 0 {
		s.SubsampleCutoff = DefaultSubsampleCutoff
	}
	if s.CheckEvery <= 0 {
		s.CheckEvery = DefaultCheckEvery
	}
	return s
}

// Compare scores a against b with the default tuning.
func Compare(a, b []byte, threshold float64) float64 {
	return NewScorer(threshold, 0, 0).Compare(a, b)
}

// Compare returns the similarity of two equally sized buffers in [0,1].
//
// The accumulated difference, scaled by the sampling stride, is checked
// against the largest difference a match may carry every CheckEvery samples.
// Once it is exceeded the result can only be a rejection, so 0 is returned
// immediately. Buffers of different or zero length score 0.
func (s Scorer) Compare(a, b []byte) float64 {
	n := len(a)
	if n == 0 || n != len(b) {
		return 0
	}

	stride := 1
	if n > s.SubsampleCutoff {
		stride = 2
	}
	maxDiff := float64(n) * 255
	maxAllowed := maxDiff * (1 - s.Threshold)

	var sum uint64
	sampled := 0
	for i := 0; i < n; i += stride {
		d := int(a[i]) - int(b[i])
		if d < 0 {
			d = -d
		}
		sum += uint64(d)
		sampled++
		if sampled%s.CheckEvery == 0 && float64(sum*uint64(stride)) > maxAllowed {
			return 0
		}
	}

	total := float64(sum * uint64(stride))
	if total > maxAllowed {
		return 0
	}
	score := 1 - total/maxDiff
	if score < 0 {
		return 0
	}
	return score
}

// Matches reports whether score clears the threshold.
func (s Scorer) Matches(score float64) bool {
	return score >= s.Threshold
}
