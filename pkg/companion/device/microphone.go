// Package device binds the session to local audio hardware: malgo for
// capture and oto for output.
package device

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"github.com/vango-go/vai-companion/pkg/companion/session"
)

const (
	channels = 1
	// Capture callbacks arrive every periodMillis; the channel holds a few
	// seconds of them.
	periodMillis  = 20
	captureBuffer = 256
)

// Audio owns the malgo context shared by capture devices.
type Audio struct {
	ctx *malgo.AllocatedContext
}

// NewAudio initializes the platform audio backend.
func NewAudio() (*Audio, error) {
	cfg := malgo.ContextConfig{}
	cfg.ThreadPriority = malgo.ThreadPriorityRealtime
	ctx, err := malgo.InitContext(nil, cfg, nil)
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}
	return &Audio{ctx: ctx}, nil
}

// Close releases the backend. Devices must be closed first.
func (a *Audio) Close() error {
	if err := a.ctx.Uninit(); err != nil {
		return fmt.Errorf("uninit audio context: %w", err)
	}
	a.ctx.Free()
	return nil
}

// Microphone opens mono float32 capture devices.
type Microphone struct {
	audio      *Audio
	sampleRate int
	logger     *slog.Logger
}

var _ session.Microphone = (*Microphone)(nil)

// NewMicrophone creates a Microphone capturing at sampleRate.
func NewMicrophone(audio *Audio, sampleRate int, logger *slog.Logger) *Microphone {
	if logger == nil {
		logger = slog.Default()
	}
	return &Microphone{audio: audio, sampleRate: sampleRate, logger: logger}
}

// Open starts the default capture device.
func (m *Microphone) Open(ctx context.Context) (session.Capture, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c := &capture{
		frames: make(chan []float32, captureBuffer),
		logger: m.logger,
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatF32
	cfg.Capture.Channels = channels
	cfg.SampleRate = uint32(m.sampleRate)
	cfg.PeriodSizeInMilliseconds = periodMillis

	dev, err := malgo.InitDevice(m.audio.ctx.Context, cfg, malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			c.deliver(float32Samples(input))
		},
	})
	if err != nil {
		return nil, fmt.Errorf("init capture device: %w", err)
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		return nil, fmt.Errorf("start capture device: %w", err)
	}
	c.device = dev
	return c, nil
}

type capture struct {
	device  *malgo.Device
	frames  chan []float32
	logger  *slog.Logger
	dropped atomic.Int64

	mu     sync.Mutex
	closed bool
}

// deliver runs on the audio thread and must not block.
func (c *capture) deliver(samples []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || len(samples) == 0 {
		return
	}
	select {
	case c.frames <- samples:
	default:
		if n := c.dropped.Add(1); n == 1 || n%100 == 0 {
			c.logger.Warn("capture buffer full, dropping samples", "dropped", n)
		}
	}
}

func (c *capture) Frames() <-chan []float32 {
	return c.frames
}

// Close stops the device and closes Frames.
func (c *capture) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.frames)
	c.mu.Unlock()

	var err error
	if c.device != nil {
		err = c.device.Stop()
		c.device.Uninit()
	}
	if err != nil {
		return fmt.Errorf("stop capture device: %w", err)
	}
	return nil
}

// float32Samples decodes little-endian float32 samples into a new slice.
func float32Samples(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}
