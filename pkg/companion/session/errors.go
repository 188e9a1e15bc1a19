package session

import "errors"

var (
	// ErrAlreadyStarted is returned by Start when a session already exists.
	ErrAlreadyStarted = errors.New("session already started")
	// ErrMicrophoneUnavailable wraps capture device and permission failures.
	ErrMicrophoneUnavailable = errors.New("microphone unavailable")
	// ErrConnection wraps failures to open the remote session.
	ErrConnection = errors.New("remote connection failed")
	// ErrStopped is returned by Start when Stop ran before the session opened.
	ErrStopped = errors.New("session stopped while starting")
	// ErrClosed is returned by Start after Close.
	ErrClosed = errors.New("controller closed")
)

// Error codes carried by ErrorEvent.
const (
	CodeMicrophoneUnavailable = "microphone_unavailable"
	CodeConnectionError       = "connection_error"
)

const (
	microphoneMessage = "Microphone access is needed to talk. Allow access and try again."
	connectionMessage = "Connection error. Please try reconnecting."
	degradedMessage   = "Some of your audio could not be sent. The conversation may miss words."
)
