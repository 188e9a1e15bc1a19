package pcm

import "sync"

// Framer regroups capture callbacks of arbitrary length into fixed-size frames.
type Framer struct {
	mu   sync.Mutex
	size int
	buf  []float32
}

// NewFramer creates a framer emitting frames of size samples.
// A non-positive size falls back to FrameSamples.
func NewFramer(size int) *Framer {
	if size <= 0 {
		size = FrameSamples
	}
	return &Framer{size: size, buf: make([]float32, 0, size*2)}
}

// Size returns the frame length in samples.
func (f *Framer) Size() int {
	return f.size
}

// Write appends samples and returns every complete frame, oldest first.
// Returned frames do not alias the framer's internal buffer.
func (f *Framer) Write(samples []float32) [][]float32 {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.buf = append(f.buf, samples...)
	var frames [][]float32
	for len(f.buf) >= f.size {
		frame := make([]float32, f.size)
		copy(frame, f.buf[:f.size])
		frames = append(frames, frame)
		f.buf = f.buf[f.size:]
	}
	return frames
}

// Buffered returns the number of samples waiting for a full frame.
func (f *Framer) Buffered() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.buf)
}

// Reset drops any partial frame.
func (f *Framer) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buf = f.buf[:0]
}
