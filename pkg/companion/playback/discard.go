package playback

import "time"

// Discard is an Output for when no playback device is available. Buffers are
// dropped, but each is still reported ended once its duration has passed on
// the wall clock, so speaking state settles as if it had played.
type Discard struct {
	epoch time.Time
}

// NewDiscard creates a Discard whose clock starts now.
func NewDiscard() *Discard {
	return &Discard{epoch: time.Now()}
}

// Now returns wall time since the Discard was created.
func (d *Discard) Now() time.Duration {
	return time.Since(d.epoch)
}

// Schedule drops buf and arranges for onEnded to run when it would have
// finished playing.
func (d *Discard) Schedule(buf Buffer, at time.Duration, onEnded func()) (Source, time.Duration, error) {
	now := d.Now()
	if now > at {
		at = now
	}
	if onEnded == nil {
		onEnded = func() {}
	}
	return discarded{time.AfterFunc(at-now+buf.Duration(), onEnded)}, at, nil
}

type discarded struct {
	timer *time.Timer
}

func (s discarded) Stop() {
	s.timer.Stop()
}
