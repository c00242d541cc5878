package matcher

import (
	"bytes"
	"math"
	"testing"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solid(n int, v byte) []byte {
	return bytes.Repeat([]byte{v}, n)
}

func TestCompare(t *testing.T) {
	ramp := make([]byte, 20000)
	for i := range ramp {
		ramp[i] = byte(i % 251)
	}

	tests := []struct {
		name      string
		a, b      []byte
		threshold float64
		want      float64
	}{
		{"identical buffers score one", ramp[:100], ramp[:100], 0.85, 1},
		{"identical subsampled buffers score one", ramp, ramp, 0.85, 1},
		{"full-range difference scores zero", solid(100, 0), solid(100, 255), 0.85, 0},
		{"full-range difference with a low threshold", solid(100, 0), solid(100, 255), 0.01, 0},
		{"gray 128 against gray 140", solid(100, 128), solid(100, 140), 0.85, 1 - 1200.0/25500.0},
		{"below threshold exits with zero", solid(100, 0), solid(100, 60), 0.85, 0},
		{"length mismatch scores zero", solid(10, 1), solid(11, 1), 0.85, 0},
		{"empty buffers score zero", nil, nil, 0.85, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Compare(tt.a, tt.b, tt.threshold)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestCompare_ScenarioFires(t *testing.T) {
	s := NewScorer(0.85, 0, 0)
	score := s.Compare(solid(100, 140), solid(100, 128))
	assert.InDelta(t, 0.953, score, 0.001)
	assert.True(t, s.Matches(score))
}

func TestNewScorer_Defaults(t *testing.T) {
	s := NewScorer(0, -1, 0)
	assert.Equal(t, DefaultThreshold, s.Threshold)
	assert.Equal(t, DefaultSubsampleCutoff, s.SubsampleCutoff)
	assert.Equal(t, DefaultCheckEvery, s.CheckEvery)

	s = NewScorer(1.5, 5, 3)
	assert.Equal(t, DefaultThreshold, s.Threshold, "thresholds above one are not meaningful")
	assert.Equal(t, 5, s.SubsampleCutoff)
}

// The early exit is an optimization; a scorer that only checks at the end
// must reach the same accept/reject decision.
func FuzzCompare_EarlyExitAgreesWithFullScan(f *testing.F) {
	f.Add([]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}, 85)
	f.Fuzz(func(t *testing.T, data []byte, pct int) {
		c := fuzz.NewConsumer(data)
		a, err := c.GetBytes()
		if err != nil || len(a) == 0 {
			return
		}
		delta, err := c.GetInt()
		if err != nil {
			return
		}
		b := make([]byte, len(a))
		for i := range a {
			b[i] = a[i] ^ byte(delta>>(i%8))
		}
		threshold := float64(pct%100+1) / 100

		fast := Scorer{Threshold: threshold, SubsampleCutoff: 8, CheckEvery: 1}
		full := Scorer{Threshold: threshold, SubsampleCutoff: 8, CheckEvery: math.MaxInt}

		got, want := fast.Compare(a, b), full.Compare(a, b)
		require.GreaterOrEqual(t, got, 0.0)
		require.LessOrEqual(t, got, 1.0)
		assert.Equal(t, full.Matches(want), fast.Matches(got))
		assert.Equal(t, 1.0, fast.Compare(a, a))
	})
}
