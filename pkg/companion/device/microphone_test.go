package device

import (
	"encoding/binary"
	"io"
	"log/slog"
	"math"
	"testing"
)

func TestFloat32Samples(t *testing.T) {
	want := []float32{0, 1, -1, 0.25}
	b := make([]byte, len(want)*4+3) // trailing partial sample is ignored
	for i, v := range want {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
	}
	got := float32Samples(b)
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sample %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func newTestCapture(buffer int) *capture {
	return &capture{
		frames: make(chan []float32, buffer),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestCapture_DeliverDropsWhenFull(t *testing.T) {
	c := newTestCapture(1)
	c.deliver([]float32{1})
	c.deliver([]float32{2})
	c.deliver(nil)

	if got := c.dropped.Load(); got != 1 {
		t.Fatalf("dropped = %d, want 1", got)
	}
	if s := <-c.Frames(); s[0] != 1 {
		t.Fatalf("first delivery = %v", s)
	}
}

func TestCapture_CloseStopsDelivery(t *testing.T) {
	c := newTestCapture(4)
	c.deliver([]float32{1})
	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	c.deliver([]float32{2}) // must not panic on closed channel

	var n int
	for range c.Frames() {
		n++
	}
	if n != 1 {
		t.Fatalf("frames after close = %d, want 1", n)
	}
}
