package audio

import (
	"sync"
	"time"
)

// Ring accumulates captured PCM16 samples and hands out time-addressed
// windows of them. Offsets are durations since the first appended sample.
// In live mode older audio is trimmed once it falls outside the retention
// window; with retention zero, everything is kept so the full recording can
// be saved at stop.
type Ring struct {
	mu         sync.Mutex
	sampleRate int
	channels   int
	retention  time.Duration

	samples []int16
	dropped int64 // samples trimmed off the front
}

func NewRing(sampleRate, channels int, retention time.Duration) *Ring {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	if channels <= 0 {
		channels = 1
	}
	return &Ring{
		sampleRate: sampleRate,
		channels:   channels,
		retention:  retention,
	}
}

func (r *Ring) SampleRate() int { return r.sampleRate }
func (r *Ring) Channels() int   { return r.channels }

// Append adds captured samples and trims audio older than the retention
// window. Safe to call from the capture pump while the scheduler slices.
func (r *Ring) Append(s []int16) {
	if len(s) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.samples = append(r.samples, s...)

	if r.retention > 0 {
		keep := r.samplesFor(r.retention)
		if excess := len(r.samples) - keep; excess > 0 {
			r.dropped += int64(excess)
			r.samples = append(r.samples[:0:0], r.samples[excess:]...)
		}
	}
}

// Slice returns a copy of the samples captured between offsets from and to.
// Bounds are clamped to what is still buffered; a window that has been
// entirely trimmed or not yet captured yields nil.
func (r *Ring) Slice(from, to time.Duration) []int16 {
	if to <= from {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	lo := int64(r.samplesFor(from)) - r.dropped
	hi := int64(r.samplesFor(to)) - r.dropped

	if lo < 0 {
		lo = 0
	}
	if hi > int64(len(r.samples)) {
		hi = int64(len(r.samples))
	}
	if hi <= lo {
		return nil
	}

	out := make([]int16, hi-lo)
	copy(out, r.samples[lo:hi])
	return out
}

// Duration reports how much audio has been captured in total, including any
// trimmed prefix.
func (r *Ring) Duration() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	total := r.dropped + int64(len(r.samples))
	perSec := int64(r.sampleRate * r.channels)
	return time.Duration(total * int64(time.Second) / perSec)
}

// samplesFor converts a duration offset to a sample count. Callers hold mu.
func (r *Ring) samplesFor(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	n := int64(d) * int64(r.sampleRate) / int64(time.Second)
	return int(n) * r.channels
}
