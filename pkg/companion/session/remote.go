package session

import (
	"context"

	"github.com/vango-go/vai-companion/pkg/companion/pcm"
)

// LiveConfig is what the remote live session is opened with.
type LiveConfig struct {
	Model       string
	Instruction string
	// Voice selects a prebuilt voice; empty uses the service default.
	Voice string

	InputTranscription  bool
	OutputTranscription bool

	InputSampleRate int
}

// Transport opens remote live sessions.
type Transport interface {
	// Connect dials the remote service. The returned Conn reports Opened on its
	// event channel once the session is ready for audio.
	Connect(ctx context.Context, cfg LiveConfig) (Conn, error)
}

// Conn is one open remote session.
type Conn interface {
	// Events delivers remote events in arrival order. The channel is closed
	// after the final Failed or Closed event.
	Events() <-chan RemoteEvent
	// SendAudio streams one encoded frame. It does not wait for acknowledgement.
	SendAudio(frame pcm.Frame) error
	// Close ends the session. It is safe to call more than once.
	Close() error
}

// RemoteEvent is a message from the transport to the controller.
type RemoteEvent interface {
	remoteEvent()
}

// Opened signals the remote session is ready.
type Opened struct{}

// Message is one server message. Any combination of fields may be set.
type Message struct {
	Audio               []AudioChunk
	Interrupted         bool
	InputTranscription  string
	OutputTranscription string
	TurnComplete        bool
}

// AudioChunk is raw synthesized audio tagged with its MIME type.
type AudioChunk struct {
	Data     []byte
	MIMEType string
}

// Failed signals a transport error. The session is over.
type Failed struct {
	Err error
}

// Closed signals the remote side closed the session.
type Closed struct {
	Reason string
}

func (Opened) remoteEvent()  {}
func (Message) remoteEvent() {}
func (Failed) remoteEvent()  {}
func (Closed) remoteEvent()  {}

// Microphone grants access to the capture device.
type Microphone interface {
	// Open requests access and starts capturing. Errors mean access was denied
	// or no device is available.
	Open(ctx context.Context) (Capture, error)
}

// Capture is a running capture stream.
type Capture interface {
	// Frames delivers captured samples in capture order. Slices may be any
	// length; the controller regroups them into fixed-size frames.
	Frames() <-chan []float32
	// Close stops the device. It is safe to call more than once.
	Close() error
}
