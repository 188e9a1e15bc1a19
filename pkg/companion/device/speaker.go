package device

import (
	"fmt"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/vango-go/vai-companion/pkg/companion/playback"
)

// outputLatency is oto's buffer size. Smaller means faster barge-in and more
// risk of underruns.
const outputLatency = 100 * time.Millisecond

// Speaker plays a playback.Timeline through the default output device.
type Speaker struct {
	ctx    *oto.Context
	player *oto.Player
}

// NewSpeaker opens the output device at the timeline's rate and starts
// pulling from it. Only one Speaker may exist per process.
func NewSpeaker(tl *playback.Timeline) (*Speaker, error) {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   tl.SampleRate(),
		ChannelCount: channels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   outputLatency,
	})
	if err != nil {
		return nil, fmt.Errorf("init speaker: %w", err)
	}
	<-ready

	player := ctx.NewPlayer(tl)
	player.Play()
	return &Speaker{ctx: ctx, player: player}, nil
}

// Close stops playback.
func (s *Speaker) Close() error {
	if err := s.player.Close(); err != nil {
		return fmt.Errorf("close speaker: %w", err)
	}
	return nil
}
