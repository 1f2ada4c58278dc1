package audio

import (
	"context"
	"encoding/binary"
	"io"
	"os"
	"time"
)

// Source is the capture collaborator. The device interface itself is
// external: a source only has to deliver PCM16 sample frames until the
// context is cancelled or the input ends. Failure to start is fatal to the
// session start; a closed channel just means the input ran out.
type Source interface {
	Start(ctx context.Context) (<-chan []int16, error)
	Close() error
}

// ReaderSource adapts any PCM16 little-endian byte stream (a pipe from
// ffmpeg/arecord, a raw file, stdin) into a Source. Frames are sized to
// frameDur of audio.
type ReaderSource struct {
	r          io.Reader
	sampleRate int
	channels   int
	frameDur   time.Duration
}

func NewReaderSource(r io.Reader, sampleRate, channels int) *ReaderSource {
	return &ReaderSource{
		r:          r,
		sampleRate: sampleRate,
		channels:   channels,
		frameDur:   100 * time.Millisecond,
	}
}

func (s *ReaderSource) Start(ctx context.Context) (<-chan []int16, error) {
	samplesPerFrame := int(int64(s.frameDur) * int64(s.sampleRate) / int64(time.Second))
	if samplesPerFrame < 1 {
		samplesPerFrame = 1
	}
	samplesPerFrame *= s.channels

	out := make(chan []int16, 8)
	go func() {
		defer close(out)
		raw := make([]byte, samplesPerFrame*2)
		for {
			if ctx.Err() != nil {
				return
			}
			n, err := io.ReadFull(s.r, raw)
			if n >= 2 {
				frame := make([]int16, n/2)
				for i := range frame {
					frame[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
				}
				select {
				case out <- frame:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()
	return out, nil
}

func (s *ReaderSource) Close() error {
	if c, ok := s.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// PathSource opens a PCM16 stream path (a FIFO fed by ffmpeg/arecord, or a
// raw file) when the session starts. Each session opens its own handle, so
// one PathSource value per session.
type PathSource struct {
	path       string
	sampleRate int
	channels   int

	inner *ReaderSource
}

func NewPathSource(path string, sampleRate, channels int) *PathSource {
	return &PathSource{path: path, sampleRate: sampleRate, channels: channels}
}

func (s *PathSource) Start(ctx context.Context) (<-chan []int16, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, err
	}
	s.inner = NewReaderSource(f, s.sampleRate, s.channels)
	return s.inner.Start(ctx)
}

func (s *PathSource) Close() error {
	if s.inner == nil {
		return nil
	}
	return s.inner.Close()
}
