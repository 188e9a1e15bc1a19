package session

import "github.com/vango-go/vai-companion/pkg/companion/transcript"

// Event is the interface for everything the controller reports to the
// presentation layer.
type Event interface {
	// EventType returns the event type string for serialization.
	EventType() string
}

// StateChangedEvent is emitted on every lifecycle transition.
type StateChangedEvent struct {
	SessionID string `json:"session_id,omitempty"`
	From      State  `json:"from"`
	To        State  `json:"to"`
}

func (e *StateChangedEvent) EventType() string { return "state.changed" }

// ErrorEvent carries a short user-facing message.
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ErrorEvent) EventType() string { return "error" }

// SpeakingEvent is emitted when the model's audio starts or stops playing.
type SpeakingEvent struct {
	Speaking bool `json:"speaking"`
}

func (e *SpeakingEvent) EventType() string { return "speaking" }

// TranscriptEvent is emitted when entries are appended to the transcript log.
type TranscriptEvent struct {
	Entries []transcript.Entry `json:"entries"`
}

func (e *TranscriptEvent) EventType() string { return "transcript" }

// TranscriptDeltaEvent is emitted for each transcription fragment before the
// turn completes, so captions can update live.
type TranscriptDeltaEvent struct {
	Role  transcript.Role `json:"role"`
	Delta string          `json:"delta"`
}

func (e *TranscriptDeltaEvent) EventType() string { return "transcript.delta" }

// InputLevelEvent reports the RMS level of each streamed microphone frame.
type InputLevelEvent struct {
	Level float64 `json:"level"`
}

func (e *InputLevelEvent) EventType() string { return "input.level" }

// AudioDegradedEvent is emitted once per session when streamed frames start
// getting dropped.
type AudioDegradedEvent struct {
	Dropped int64  `json:"dropped"`
	Message string `json:"message"`
}

func (e *AudioDegradedEvent) EventType() string { return "audio.degraded" }
