// Package session owns the lifecycle of one streaming conversation with the
// hosted live-audio model.
//
// # Architecture
//
// The Controller sits between three ports:
//
//   - Microphone: yields captured float samples once access is granted
//   - Transport: opens the remote live session and delivers its events on a channel
//   - playback.Scheduler: plays synthesized audio gaplessly and hard-stops on barge-in
//
// # Data Flow
//
//	Mic → Framer (4096 samples) → PCM Encoder → Conn.SendAudio
//
//	Conn.Events() → Opened / Message / Failed / Closed
//	                      │
//	                      ├── audio chunks → Scheduler.Enqueue
//	                      ├── interrupted  → Scheduler.Interrupt
//	                      ├── transcription fragments → Accumulator
//	                      └── turn complete → transcript.Log
//
// # State Machine
//
//	IDLE → CONNECTING → ACTIVE
//	  ↑         │          │
//	  └─────────┴──────────┘  Stop, remote error, remote close
//
// Only the current session's events are acted on: once a session is torn
// down, anything still arriving from its connection is dropped.
package session
