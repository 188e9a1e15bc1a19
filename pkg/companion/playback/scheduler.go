package playback

import (
	"fmt"
	"sync"
	"time"
)

// Clock is the shared, monotonic audio clock.
type Clock interface {
	Now() time.Duration
}

// Source is one scheduled buffer on an output device.
type Source interface {
	// Stop silences the source immediately. onEnded is not invoked afterwards.
	Stop()
}

// Output is the audio output device the scheduler drives.
//
// Schedule returns the time the buffer will actually start, which is later
// than at when the clock has already moved past it. It must not call onEnded
// synchronously; that fires later, from the device's own goroutine, when the
// buffer has played out.
type Output interface {
	Clock
	Schedule(buf Buffer, at time.Duration, onEnded func()) (Source, time.Duration, error)
}

// Scheduler queues buffers back to back on an Output and tracks the sources
// still in flight so they can be cancelled together.
type Scheduler struct {
	out Output

	mu       sync.Mutex
	cursor   time.Duration
	inflight map[uint64]Source
	nextID   uint64
	speaking bool

	onSpeaking func(bool)
}

// NewScheduler creates a scheduler for out.
func NewScheduler(out Output) *Scheduler {
	return &Scheduler{
		out:      out,
		inflight: make(map[uint64]Source),
	}
}

// SetSpeakingListener registers fn to be told when the speaking indicator flips.
func (s *Scheduler) SetSpeakingListener(fn func(speaking bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onSpeaking = fn
}

// Enqueue schedules buf at max(cursor, now) and advances the cursor by its
// duration. It returns the start time on the audio clock.
func (s *Scheduler) Enqueue(buf Buffer) (time.Duration, error) {
	if buf.Samples() == 0 {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.cursor, nil
	}

	s.mu.Lock()
	start := s.cursor
	if now := s.out.Now(); now > start {
		start = now
	}
	id := s.nextID
	s.nextID++

	src, actual, err := s.out.Schedule(buf, start, func() { s.ended(id) })
	if err != nil {
		s.mu.Unlock()
		return 0, fmt.Errorf("schedule audio: %w", err)
	}
	if actual > start {
		start = actual
	}
	s.cursor = start + buf.Duration()
	s.inflight[id] = src
	notify := s.setSpeakingLocked(true)
	s.mu.Unlock()

	notify()
	return start, nil
}

// Interrupt stops every in-flight source, empties the set and rewinds the
// cursor so the next buffer starts at the clock's current time.
func (s *Scheduler) Interrupt() {
	s.mu.Lock()
	sources := make([]Source, 0, len(s.inflight))
	for id, src := range s.inflight {
		sources = append(sources, src)
		delete(s.inflight, id)
	}
	s.cursor = 0
	notify := s.setSpeakingLocked(false)
	s.mu.Unlock()

	for _, src := range sources {
		src.Stop()
	}
	notify()
}

// InFlight returns the number of buffers scheduled and not yet ended.
func (s *Scheduler) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inflight)
}

// Speaking reports whether any scheduled audio is still playing.
func (s *Scheduler) Speaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speaking
}

// Cursor returns the start time the next buffer would get if the clock were at zero.
func (s *Scheduler) Cursor() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

func (s *Scheduler) ended(id uint64) {
	s.mu.Lock()
	if _, ok := s.inflight[id]; !ok {
		// Already cleared by Interrupt.
		s.mu.Unlock()
		return
	}
	delete(s.inflight, id)
	notify := func() {}
	if len(s.inflight) == 0 {
		notify = s.setSpeakingLocked(false)
	}
	s.mu.Unlock()

	notify()
}

func (s *Scheduler) setSpeakingLocked(speaking bool) func() {
	if s.speaking == speaking {
		return func() {}
	}
	s.speaking = speaking
	fn := s.onSpeaking
	if fn == nil {
		return func() {}
	}
	return func() { fn(speaking) }
}
