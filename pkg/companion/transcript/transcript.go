// Package transcript keeps the append-only record of exchanged utterances and
// the partial transcription buffers that fill up between turn boundaries.
package transcript

import (
	"strings"
	"sync"
	"time"
)

// Role identifies who spoke an entry.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Entry is one immutable utterance in the log.
type Entry struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Log is an ordered, append-only list of entries. It is safe for concurrent use.
type Log struct {
	mu        sync.RWMutex
	entries   []Entry
	listeners []func([]Entry)
}

// NewLog returns an empty log.
func NewLog() *Log {
	return &Log{entries: make([]Entry, 0, 32)}
}

// OnAppend registers fn to receive each batch of appended entries, in append order.
func (l *Log) OnAppend(fn func([]Entry)) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listeners = append(l.listeners, fn)
}

// Append extends the log with entries, keeping their order.
func (l *Log) Append(entries ...Entry) {
	if len(entries) == 0 {
		return
	}
	batch := make([]Entry, len(entries))
	copy(batch, entries)

	l.mu.Lock()
	l.entries = append(l.entries, batch...)
	listeners := l.listeners
	l.mu.Unlock()

	for _, fn := range listeners {
		fn(batch)
	}
}

// Entries returns a copy of the log.
func (l *Log) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Accumulator collects input and output transcription fragments for the
// current turn. It is not safe for concurrent use; the session controller owns it.
type Accumulator struct {
	input  strings.Builder
	output strings.Builder
}

// AddInput appends a fragment of the user's transcribed speech.
func (a *Accumulator) AddInput(fragment string) {
	a.input.WriteString(fragment)
}

// AddOutput appends a fragment of the model's transcribed speech.
func (a *Accumulator) AddOutput(fragment string) {
	a.output.WriteString(fragment)
}

// Pending returns the text accumulated so far.
func (a *Accumulator) Pending() (input, output string) {
	return a.input.String(), a.output.String()
}

// Flush returns the turn's entries, user first, skipping empty sides, and
// clears both buffers.
func (a *Accumulator) Flush(now time.Time) []Entry {
	input := strings.TrimSpace(a.input.String())
	output := strings.TrimSpace(a.output.String())
	a.Reset()

	var entries []Entry
	if input != "" {
		entries = append(entries, Entry{Role: RoleUser, Text: input, Timestamp: now})
	}
	if output != "" {
		entries = append(entries, Entry{Role: RoleModel, Text: output, Timestamp: now})
	}
	return entries
}

// Reset discards any partial text.
func (a *Accumulator) Reset() {
	a.input.Reset()
	a.output.Reset()
}
