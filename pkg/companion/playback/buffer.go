// Package playback schedules decoded speech for gapless sequential playback
// against a shared audio clock, and hard-stops it on barge-in.
package playback

import (
	"fmt"
	"time"

	"github.com/vango-go/vai-companion/pkg/companion/pcm"
)

// Buffer is a decoded, ready-to-play chunk of mono PCM16LE audio.
type Buffer struct {
	PCM        []byte
	SampleRate int
}

// NewBuffer builds a buffer from a received audio chunk and its MIME tag.
func NewBuffer(data []byte, mimeType string) (Buffer, error) {
	rate, err := pcm.ParseRate(mimeType)
	if err != nil {
		return Buffer{}, err
	}
	if len(data)%2 != 0 {
		return Buffer{}, fmt.Errorf("audio chunk has odd byte count %d", len(data))
	}
	return Buffer{PCM: data, SampleRate: rate}, nil
}

// Samples returns the sample count.
func (b Buffer) Samples() int {
	return len(b.PCM) / 2
}

// Duration returns the playback length of the buffer.
func (b Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(b.Samples()) * time.Second / time.Duration(b.SampleRate)
}
