package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/vango-go/vai-companion/pkg/companion/metrics"
	"github.com/vango-go/vai-companion/pkg/companion/pcm"
	"github.com/vango-go/vai-companion/pkg/companion/playback"
	"github.com/vango-go/vai-companion/pkg/companion/transcript"
)

const (
	defaultEventBuffer = 100
	// A warning is logged on the first dropped frame and then every this many.
	dropLogInterval = 50
)

// Config configures a Controller.
type Config struct {
	Live LiveConfig

	// FrameSamples is the number of samples per streamed frame.
	FrameSamples int
	// EventBuffer is the capacity of the Events channel.
	EventBuffer int

	Logger  *slog.Logger
	Metrics *metrics.Metrics
	// Now stamps transcript entries. Defaults to time.Now.
	Now func() time.Time
}

// Controller drives the live conversation lifecycle.
type Controller struct {
	cfg       Config
	transport Transport
	mic       Microphone
	scheduler *playback.Scheduler
	log       *transcript.Log
	logger    *slog.Logger
	metrics   *metrics.Metrics

	mu      sync.Mutex
	state   State
	current *liveSession
	acc     transcript.Accumulator
	closed  bool

	emitMu      sync.RWMutex
	events      chan Event
	eventsDone  bool
	droppedEvts atomic.Int64
}

// liveSession is everything belonging to one Start call. Handlers compare
// their session against Controller.current and drop work for stale ones.
type liveSession struct {
	id        string
	startedAt time.Time

	capture Capture
	conn    Conn

	dropped   atomic.Int64
	closeOnce sync.Once
}

func (s *liveSession) release() {
	s.closeOnce.Do(func() {
		if s.capture != nil {
			_ = s.capture.Close()
		}
		if s.conn != nil {
			_ = s.conn.Close()
		}
	})
}

// New creates a Controller. The scheduler and log are shared with the caller:
// the log also receives entries from the text query path.
func New(transport Transport, mic Microphone, scheduler *playback.Scheduler, log *transcript.Log, cfg Config) *Controller {
	if cfg.FrameSamples <= 0 {
		cfg.FrameSamples = pcm.FrameSamples
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = defaultEventBuffer
	}
	if cfg.Live.InputSampleRate <= 0 {
		cfg.Live.InputSampleRate = pcm.InputSampleRate
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if log == nil {
		log = transcript.NewLog()
	}

	c := &Controller{
		cfg:       cfg,
		transport: transport,
		mic:       mic,
		scheduler: scheduler,
		log:       log,
		logger:    logger,
		metrics:   cfg.Metrics,
		events:    make(chan Event, cfg.EventBuffer),
	}
	scheduler.SetSpeakingListener(func(speaking bool) {
		c.emit(&SpeakingEvent{Speaking: speaking})
	})
	log.OnAppend(func(entries []transcript.Entry) {
		c.emit(&TranscriptEvent{Entries: entries})
	})
	return c
}

// Events returns the channel of presentation events. It is closed by Close.
func (c *Controller) Events() <-chan Event {
	return c.events
}

// Transcript returns the shared transcript log.
func (c *Controller) Transcript() *transcript.Log {
	return c.log
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SessionID returns the current session's ID, or "" when idle.
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return ""
	}
	return c.current.id
}

// DroppedEvents reports how many presentation events were dropped because
// the Events buffer was full.
func (c *Controller) DroppedEvents() int64 {
	return c.droppedEvts.Load()
}

// Start requests the microphone, then opens the remote session. It returns
// once the connection is dialed; the state becomes ACTIVE when the remote
// side reports it is open. ctx bounds the microphone request and the dial.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	sess := &liveSession{
		id:        uuid.NewString(),
		startedAt: time.Now(),
	}
	c.current = sess
	c.acc.Reset()
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	c.metrics.RecordSessionStart()
	c.logger.Info("session starting", "session_id", sess.id, "model", c.cfg.Live.Model)

	capture, err := c.mic.Open(ctx)
	if err != nil {
		c.logger.Warn("microphone unavailable", "session_id", sess.id, "error", err)
		c.finish(sess, metrics.OutcomeMicrophoneDenied, &ErrorEvent{
			Code:    CodeMicrophoneUnavailable,
			Message: microphoneMessage,
		})
		return fmt.Errorf("%w: %w", ErrMicrophoneUnavailable, err)
	}
	if !c.attach(sess, func() { sess.capture = capture }) {
		_ = capture.Close()
		return ErrStopped
	}

	conn, err := c.transport.Connect(ctx, c.cfg.Live)
	if err != nil {
		c.logger.Error("live connect failed", "session_id", sess.id, "error", err)
		c.finish(sess, metrics.OutcomeConnectionError, &ErrorEvent{
			Code:    CodeConnectionError,
			Message: connectionMessage,
		})
		return fmt.Errorf("%w: %w", ErrConnection, err)
	}
	if !c.attach(sess, func() { sess.conn = conn }) {
		_ = conn.Close()
		return ErrStopped
	}

	go c.receive(sess, conn)
	return nil
}

// Stop tears down the current session. It is a no-op when idle.
func (c *Controller) Stop() {
	c.finish(nil, metrics.OutcomeStopped, nil)
}

// Close stops any session, rejects further Starts and closes Events.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.Stop()

	c.emitMu.Lock()
	if !c.eventsDone {
		c.eventsDone = true
		close(c.events)
	}
	c.emitMu.Unlock()
}

// attach runs fn under the lock if sess is still current.
func (c *Controller) attach(sess *liveSession, fn func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != sess {
		return false
	}
	fn()
	return true
}

// finish tears down sess, or whatever session is current when sess is nil.
// It does nothing if sess is no longer current.
func (c *Controller) finish(sess *liveSession, outcome string, errEvent *ErrorEvent) {
	c.mu.Lock()
	if c.current == nil || (sess != nil && c.current != sess) {
		c.mu.Unlock()
		return
	}
	sess = c.current
	c.current = nil
	if errEvent != nil {
		c.emit(errEvent)
	}
	c.scheduler.Interrupt()
	c.acc.Reset()
	c.setStateLocked(StateIdle)
	c.mu.Unlock()

	sess.release()

	elapsed := time.Since(sess.startedAt)
	c.metrics.RecordSessionEnd(outcome, elapsed)
	c.logger.Info("session ended",
		"session_id", sess.id,
		"outcome", outcome,
		"duration", elapsed,
		"frames_dropped", sess.dropped.Load(),
	)
}

func (c *Controller) setStateLocked(to State) {
	from := c.state
	if from == to {
		return
	}
	c.state = to
	id := ""
	if c.current != nil {
		id = c.current.id
	}
	c.emit(&StateChangedEvent{SessionID: id, From: from, To: to})
}

// emit sends without blocking. Events are dropped when the buffer is full.
func (c *Controller) emit(event Event) {
	c.emitMu.RLock()
	defer c.emitMu.RUnlock()
	if c.eventsDone {
		return
	}
	select {
	case c.events <- event:
	default:
		c.droppedEvts.Add(1)
	}
}

func (c *Controller) receive(sess *liveSession, conn Conn) {
	for ev := range conn.Events() {
		switch e := ev.(type) {
		case Opened:
			c.handleOpened(sess)
		case Message:
			c.handleMessage(sess, e)
		case Failed:
			c.logger.Error("live session error", "session_id", sess.id, "error", e.Err)
			c.finish(sess, metrics.OutcomeConnectionError, &ErrorEvent{
				Code:    CodeConnectionError,
				Message: connectionMessage,
			})
			return
		case Closed:
			c.logger.Info("live session closed by remote", "session_id", sess.id, "reason", e.Reason)
			c.finish(sess, metrics.OutcomeRemoteClosed, nil)
			return
		}
	}
	c.finish(sess, metrics.OutcomeRemoteClosed, nil)
}

func (c *Controller) handleOpened(sess *liveSession) {
	c.mu.Lock()
	if c.current != sess || c.state != StateConnecting {
		c.mu.Unlock()
		return
	}
	capture := sess.capture
	discardBuffered(capture)
	c.setStateLocked(StateActive)
	c.mu.Unlock()

	c.logger.Info("session active", "session_id", sess.id)
	go c.pump(sess, capture)
}

// pump streams microphone frames to the remote session while sess is active.
func (c *Controller) pump(sess *liveSession, capture Capture) {
	framer := pcm.NewFramer(c.cfg.FrameSamples)
	rate := c.cfg.Live.InputSampleRate
	for samples := range capture.Frames() {
		if !c.isActive(sess) {
			return
		}
		for _, frame := range framer.Write(samples) {
			c.emit(&InputLevelEvent{Level: pcm.Level(frame)})
			err := sess.conn.SendAudio(pcm.Encode(frame, rate))
			if err != nil && !c.isActive(sess) {
				// Stopped mid-send; the session the failure belongs to is gone.
				return
			}
			c.metrics.RecordFrame(err == nil)
			if err != nil {
				c.frameDropped(sess, err)
			}
		}
	}
}

// discardBuffered drops audio captured while the session was connecting.
func discardBuffered(capture Capture) {
	frames := capture.Frames()
	for {
		select {
		case _, ok := <-frames:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

func (c *Controller) frameDropped(sess *liveSession, err error) {
	n := sess.dropped.Add(1)
	if n == 1 {
		c.emit(&AudioDegradedEvent{Dropped: n, Message: degradedMessage})
	}
	if n == 1 || n%dropLogInterval == 0 {
		c.logger.Warn("audio frame dropped", "session_id", sess.id, "dropped", n, "error", err)
	}
}

func (c *Controller) isActive(sess *liveSession) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current == sess && c.state == StateActive
}

// handleMessage applies one server message: audio, then interruption, then
// transcription, then turn completion.
func (c *Controller) handleMessage(sess *liveSession, m Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != sess || c.state != StateActive {
		return
	}

	for _, chunk := range m.Audio {
		buf, err := playback.NewBuffer(chunk.Data, chunk.MIMEType)
		if err != nil {
			c.logger.Warn("skipping audio chunk", "session_id", sess.id, "error", err)
			continue
		}
		if _, err := c.scheduler.Enqueue(buf); err != nil {
			c.logger.Warn("skipping audio chunk", "session_id", sess.id, "error", err)
			continue
		}
		c.metrics.RecordPlayback(buf.Duration())
	}

	if m.Interrupted {
		c.scheduler.Interrupt()
		c.metrics.RecordInterruption()
		c.logger.Debug("playback interrupted", "session_id", sess.id)
	}

	if m.InputTranscription != "" {
		c.acc.AddInput(m.InputTranscription)
		c.emit(&TranscriptDeltaEvent{Role: transcript.RoleUser, Delta: m.InputTranscription})
	}
	if m.OutputTranscription != "" {
		c.acc.AddOutput(m.OutputTranscription)
		c.emit(&TranscriptDeltaEvent{Role: transcript.RoleModel, Delta: m.OutputTranscription})
	}

	if m.TurnComplete {
		c.metrics.RecordTurn()
		if entries := c.acc.Flush(c.cfg.Now()); len(entries) > 0 {
			c.log.Append(entries...)
		}
	}
}
