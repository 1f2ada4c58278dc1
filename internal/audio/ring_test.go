package audio

import (
	"testing"
	"time"
)

// fill appends n seconds of audio where every sample carries its absolute
// index, so windows can be verified by value.
func fill(r *Ring, startIdx, seconds int) {
	n := r.SampleRate() * r.Channels() * seconds
	s := make([]int16, n)
	for i := range s {
		s[i] = int16((startIdx + i) % 1000)
	}
	r.Append(s)
}

func TestRingSliceWindows(t *testing.T) {
	r := NewRing(100, 1, 0) // 100 samples/sec keeps the math readable
	fill(r, 0, 20)

	tests := []struct {
		name     string
		from, to time.Duration
		wantLen  int
	}{
		{"first chunk no overlap", 0, 10 * time.Second, 1000},
		{"second chunk with overlap", 8 * time.Second, 20 * time.Second, 1200},
		{"clamped past end", 18 * time.Second, 30 * time.Second, 200},
		{"empty window", 5 * time.Second, 5 * time.Second, 0},
		{"inverted window", 6 * time.Second, 5 * time.Second, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.Slice(tt.from, tt.to)
			if len(got) != tt.wantLen {
				t.Fatalf("Slice(%v, %v) len = %d, want %d", tt.from, tt.to, len(got), tt.wantLen)
			}
			if tt.wantLen > 0 {
				wantFirst := int16(int(tt.from/time.Second) * 100 % 1000)
				if got[0] != wantFirst {
					t.Errorf("first sample = %d, want %d", got[0], wantFirst)
				}
			}
		})
	}
}

func TestRingRetentionTrims(t *testing.T) {
	r := NewRing(100, 1, 5*time.Second)
	fill(r, 0, 20)

	if got := r.Duration(); got != 20*time.Second {
		t.Fatalf("Duration = %v, want 20s", got)
	}

	// Everything older than the last 5s is gone.
	if got := r.Slice(0, 10*time.Second); got != nil {
		t.Errorf("expected trimmed window to be nil, got %d samples", len(got))
	}

	// The retained tail is still addressable at its absolute offsets.
	got := r.Slice(16*time.Second, 20*time.Second)
	if len(got) != 400 {
		t.Fatalf("tail window len = %d, want 400", len(got))
	}
	if got[0] != int16(1600%1000) {
		t.Errorf("tail first sample = %d, want %d", got[0], 1600%1000)
	}
}

func TestRingSliceCopies(t *testing.T) {
	r := NewRing(100, 1, 0)
	r.Append([]int16{1, 2, 3})

	a := r.Slice(0, time.Second)
	a[0] = 99
	b := r.Slice(0, time.Second)
	if b[0] != 1 {
		t.Errorf("Slice must return a copy; buffer was mutated to %d", b[0])
	}
}

func TestEncodeWAVHeader(t *testing.T) {
	samples := []int16{0, 1, -1, 32767}
	b := EncodeWAV(samples, 16000, 1)

	if len(b) != 44+len(samples)*2 {
		t.Fatalf("encoded length = %d, want %d", len(b), 44+len(samples)*2)
	}
	if string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" {
		t.Errorf("missing RIFF/WAVE markers: %q %q", b[0:4], b[8:12])
	}
	if string(b[36:40]) != "data" {
		t.Errorf("missing data marker: %q", b[36:40])
	}
	// sample rate at offset 24, little endian
	rate := int(b[24]) | int(b[25])<<8 | int(b[26])<<16 | int(b[27])<<24
	if rate != 16000 {
		t.Errorf("sample rate = %d, want 16000", rate)
	}
}
