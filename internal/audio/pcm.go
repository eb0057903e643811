package audio

import (
	"encoding/binary"
	"math"
	"sync"
	"time"
)

// DecodePCM16 converts little-endian 16-bit PCM bytes to samples. A trailing
// odd byte is ignored.
func DecodePCM16(data []byte) []int16 {
	n := len(data) / 2
	samples := make([]int16, n)
	for i := 0; i < n; i++ {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return samples
}

// CalculateRMS returns the root-mean-square energy of the samples.
func CalculateRMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		f := float64(s)
		sum += f * f
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// DetectSilence reports whether the samples fall below the energy threshold.
func DetectSilence(samples []int16, threshold float64) bool {
	return CalculateRMS(samples) < threshold
}

// SilenceTracker watches the caller's audio energy to drive silence-based
// call termination. Any chunk above the threshold resets the idle clock;
// Idle reports how long the line has been quiet.
type SilenceTracker struct {
	threshold float64

	mu       sync.Mutex
	lastLoud time.Time
	now      func() time.Time // test hook
}

// NewSilenceTracker creates a tracker with the given RMS energy threshold.
func NewSilenceTracker(threshold float64) *SilenceTracker {
	st := &SilenceTracker{
		threshold: threshold,
		now:       time.Now,
	}
	st.lastLoud = st.now()
	return st
}

// Observe feeds one PCM16 chunk into the tracker.
func (st *SilenceTracker) Observe(pcm []byte) {
	samples := DecodePCM16(pcm)
	if DetectSilence(samples, st.threshold) {
		return
	}
	st.mu.Lock()
	st.lastLoud = st.now()
	st.mu.Unlock()
}

// Reset restarts the idle clock, used when agent activity proves the call is
// alive even though the caller is quiet.
func (st *SilenceTracker) Reset() {
	st.mu.Lock()
	st.lastLoud = st.now()
	st.mu.Unlock()
}

// Idle returns how long the line has been below the energy threshold.
func (st *SilenceTracker) Idle() time.Duration {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.now().Sub(st.lastLoud)
}
