package playback

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"
)

// Timeline is an Output that renders scheduled buffers into a continuous
// PCM16LE stream. The audio clock advances only as the stream is read, so a
// device pulling from it (oto, a file writer, a test) defines real time.
type Timeline struct {
	sampleRate int

	mu       sync.Mutex
	pos      int64
	segments []*segment
}

type segment struct {
	tl      *Timeline
	start   int64
	samples []int16
	onEnded func()
}

func (s *segment) end() int64 {
	return s.start + int64(len(s.samples))
}

// Stop removes the segment from the timeline without firing its ended callback.
func (s *segment) Stop() {
	s.tl.remove(s)
}

// NewTimeline creates a timeline at sampleRate.
func NewTimeline(sampleRate int) *Timeline {
	if sampleRate <= 0 {
		sampleRate = 24000
	}
	return &Timeline{sampleRate: sampleRate}
}

// SampleRate returns the stream rate.
func (t *Timeline) SampleRate() int {
	return t.sampleRate
}

// Now returns how much audio has been read from the stream.
func (t *Timeline) Now() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.durationOf(t.pos)
}

// Schedule places buf at the given clock time. Times already in the past are
// moved up to the current read position; the returned time is where it landed.
func (t *Timeline) Schedule(buf Buffer, at time.Duration, onEnded func()) (Source, time.Duration, error) {
	if buf.SampleRate != t.sampleRate {
		return nil, 0, fmt.Errorf("buffer sample rate %d does not match output rate %d", buf.SampleRate, t.sampleRate)
	}
	samples := make([]int16, buf.Samples())
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(buf.PCM[i*2:]))
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	start := t.sampleAt(at)
	if start < t.pos {
		start = t.pos
	}
	seg := &segment{tl: t, start: start, samples: samples, onEnded: onEnded}
	t.segments = append(t.segments, seg)
	return seg, t.durationOf(start), nil
}

// Pending returns the number of segments not yet fully played.
func (t *Timeline) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.segments)
}

// Read fills p with the next stretch of the stream, silence where nothing is
// scheduled. It never blocks and never returns an error.
func (t *Timeline) Read(p []byte) (int, error) {
	n := len(p) &^ 1
	if n == 0 {
		return 0, nil
	}
	clear(p[:n])

	t.mu.Lock()
	from := t.pos
	to := from + int64(n/2)
	var ended []func()
	kept := t.segments[:0]
	for _, seg := range t.segments {
		lo := max(seg.start, from)
		hi := min(seg.end(), to)
		for i := lo; i < hi; i++ {
			off := (i - from) * 2
			cur := int32(int16(binary.LittleEndian.Uint16(p[off:])))
			mixed := cur + int32(seg.samples[i-seg.start])
			binary.LittleEndian.PutUint16(p[off:], uint16(clampInt16(mixed)))
		}
		if seg.end() <= to {
			if seg.onEnded != nil {
				ended = append(ended, seg.onEnded)
			}
			continue
		}
		kept = append(kept, seg)
	}
	clear(t.segments[len(kept):])
	t.segments = kept
	t.pos = to
	t.mu.Unlock()

	for _, fn := range ended {
		fn()
	}
	return n, nil
}

func (t *Timeline) remove(seg *segment) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, s := range t.segments {
		if s == seg {
			t.segments = append(t.segments[:i], t.segments[i+1:]...)
			return
		}
	}
}

func (t *Timeline) sampleAt(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64(math.Round(d.Seconds() * float64(t.sampleRate)))
}

func (t *Timeline) durationOf(samples int64) time.Duration {
	return time.Duration(samples) * time.Second / time.Duration(t.sampleRate)
}

func clampInt16(v int32) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}
