package session

import "fmt"

// State represents the coarse lifecycle state of the controller.
type State int

const (
	// StateIdle means no session exists; Start is allowed.
	StateIdle State = iota
	// StateConnecting covers the microphone request and the remote handshake.
	StateConnecting
	// StateActive means audio is streaming both ways.
	StateActive
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateConnecting:
		return "CONNECTING"
	case StateActive:
		return "ACTIVE"
	default:
		return "UNKNOWN"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *State) UnmarshalText(b []byte) error {
	switch string(b) {
	case "IDLE":
		*s = StateIdle
	case "CONNECTING":
		*s = StateConnecting
	case "ACTIVE":
		*s = StateActive
	default:
		return fmt.Errorf("unknown session state %q", string(b))
	}
	return nil
}
