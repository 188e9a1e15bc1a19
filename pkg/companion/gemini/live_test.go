package gemini

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"google.golang.org/genai"

	"github.com/vango-go/vai-companion/pkg/companion/pcm"
	"github.com/vango-go/vai-companion/pkg/companion/session"
)

type recvResult struct {
	msg *genai.LiveServerMessage
	err error
}

type fakeStream struct {
	recv chan recvResult

	mu     sync.Mutex
	sent   []genai.LiveRealtimeInput
	closed bool
}

func newFakeStream() *fakeStream {
	return &fakeStream{recv: make(chan recvResult, 16)}
}

func (s *fakeStream) SendRealtimeInput(input genai.LiveRealtimeInput) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, input)
	return nil
}

func (s *fakeStream) Receive() (*genai.LiveServerMessage, error) {
	r, ok := <-s.recv
	if !ok {
		return nil, errors.New("use of closed network connection")
	}
	return r.msg, r.err
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.recv)
	}
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func nextEvent(t *testing.T, c *conn) session.RemoteEvent {
	t.Helper()
	select {
	case ev, ok := <-c.Events():
		if !ok {
			t.Fatal("events channel closed")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for remote event")
	}
	return nil
}

func TestConn_OpenedThenMessages(t *testing.T) {
	s := newFakeStream()
	c := newConn(s, discardLogger())

	s.recv <- recvResult{msg: &genai.LiveServerMessage{SetupComplete: &genai.LiveServerSetupComplete{}}}
	s.recv <- recvResult{msg: &genai.LiveServerMessage{ServerContent: &genai.LiveServerContent{TurnComplete: true}}}

	if _, ok := nextEvent(t, c).(session.Opened); !ok {
		t.Fatal("first event is not Opened")
	}
	m, ok := nextEvent(t, c).(session.Message)
	if !ok || !m.TurnComplete {
		t.Fatalf("second event = %#v, want turn-complete Message", m)
	}
}

func TestConn_LocalCloseIsClosed(t *testing.T) {
	s := newFakeStream()
	c := newConn(s, discardLogger())

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if _, ok := nextEvent(t, c).(session.Closed); !ok {
		t.Fatal("local close did not produce Closed")
	}
	if _, ok := <-c.Events(); ok {
		t.Fatal("events channel not closed after final event")
	}
	if err := c.SendAudio(pcm.Encode(make([]float32, 4), pcm.InputSampleRate)); !errors.Is(err, errConnClosed) {
		t.Fatalf("SendAudio after Close error = %v", err)
	}
}

func TestConn_ReceiveErrorIsFailed(t *testing.T) {
	s := newFakeStream()
	c := newConn(s, discardLogger())

	s.recv <- recvResult{err: errors.New("connection reset by peer")}
	ev, ok := nextEvent(t, c).(session.Failed)
	if !ok || ev.Err == nil {
		t.Fatalf("event = %#v, want Failed", ev)
	}
}

func TestConn_SendAudio(t *testing.T) {
	s := newFakeStream()
	c := newConn(s, discardLogger())
	t.Cleanup(func() { _ = c.Close() })

	frame := pcm.Encode([]float32{0.5, -0.5}, pcm.InputSampleRate)
	if err := c.SendAudio(frame); err != nil {
		t.Fatalf("SendAudio() error = %v", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sent) != 1 || s.sent[0].Audio == nil {
		t.Fatalf("sent = %#v", s.sent)
	}
	if s.sent[0].Audio.MIMEType != "audio/pcm;rate=16000" || len(s.sent[0].Audio.Data) != 4 {
		t.Fatalf("audio blob = %+v", s.sent[0].Audio)
	}
}

func TestReceiveError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		local  bool
		closed bool
	}{
		{"normal close", &websocket.CloseError{Code: websocket.CloseNormalClosure, Text: "bye"}, false, true},
		{"wrapped normal close", errors.Join(errors.New("receive"), &websocket.CloseError{Code: websocket.CloseNormalClosure}), false, true},
		{"abnormal close", &websocket.CloseError{Code: websocket.CloseAbnormalClosure}, false, false},
		{"policy violation", &websocket.CloseError{Code: websocket.ClosePolicyViolation, Text: "quota"}, false, false},
		{"network error", errors.New("broken pipe"), false, false},
		{"local close", errors.New("use of closed network connection"), true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := receiveError(tt.err, tt.local)
			_, isClosed := ev.(session.Closed)
			if isClosed != tt.closed {
				t.Fatalf("receiveError() = %#v, closed = %v, want %v", ev, isClosed, tt.closed)
			}
		})
	}
}

func TestMessageFromServer(t *testing.T) {
	msg := &genai.LiveServerMessage{
		ServerContent: &genai.LiveServerContent{
			ModelTurn: &genai.Content{Parts: []*genai.Part{
				{InlineData: &genai.Blob{MIMEType: "audio/pcm;rate=24000", Data: []byte{1, 0}}},
				{Text: "ignored"},
				nil,
				{InlineData: &genai.Blob{MIMEType: "audio/pcm;rate=24000", Data: []byte{2, 0, 3, 0}}},
			}},
			Interrupted:         true,
			InputTranscription:  &genai.Transcription{Text: "hi "},
			OutputTranscription: &genai.Transcription{Text: "hello"},
			TurnComplete:        true,
		},
	}
	m, ok := messageFromServer(msg)
	if !ok {
		t.Fatal("messageFromServer() reported empty")
	}
	if len(m.Audio) != 2 || len(m.Audio[1].Data) != 4 || m.Audio[0].MIMEType != "audio/pcm;rate=24000" {
		t.Fatalf("audio = %+v", m.Audio)
	}
	if !m.Interrupted || !m.TurnComplete {
		t.Fatalf("flags = interrupted %v turnComplete %v", m.Interrupted, m.TurnComplete)
	}
	if m.InputTranscription != "hi " || m.OutputTranscription != "hello" {
		t.Fatalf("transcription = %q / %q", m.InputTranscription, m.OutputTranscription)
	}
}

func TestMessageFromServer_Empty(t *testing.T) {
	for name, msg := range map[string]*genai.LiveServerMessage{
		"setup only":    {SetupComplete: &genai.LiveServerSetupComplete{}},
		"empty turn":    {ServerContent: &genai.LiveServerContent{ModelTurn: &genai.Content{}}},
		"empty content": {ServerContent: &genai.LiveServerContent{}},
	} {
		if _, ok := messageFromServer(msg); ok {
			t.Fatalf("%s: messageFromServer() reported content", name)
		}
	}
}

func TestLiveConnectConfig(t *testing.T) {
	lc := liveConnectConfig(session.LiveConfig{
		Model:               "m",
		Instruction:         "be kind",
		Voice:               "Puck",
		InputTranscription:  true,
		OutputTranscription: true,
	})
	if len(lc.ResponseModalities) != 1 || lc.ResponseModalities[0] != genai.ModalityAudio {
		t.Fatalf("modalities = %v", lc.ResponseModalities)
	}
	if lc.SystemInstruction == nil || len(lc.SystemInstruction.Parts) != 1 || lc.SystemInstruction.Parts[0].Text != "be kind" {
		t.Fatalf("system instruction = %+v", lc.SystemInstruction)
	}
	if lc.InputAudioTranscription == nil || lc.OutputAudioTranscription == nil {
		t.Fatal("transcription configs not set")
	}
	if lc.SpeechConfig == nil || lc.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName != "Puck" {
		t.Fatalf("speech config = %+v", lc.SpeechConfig)
	}

	bare := liveConnectConfig(session.LiveConfig{Model: "m"})
	if bare.SystemInstruction != nil || bare.SpeechConfig != nil || bare.InputAudioTranscription != nil {
		t.Fatalf("bare config = %+v", bare)
	}
}

func TestGenerateConfig(t *testing.T) {
	if generateConfig("") != nil {
		t.Fatal("generateConfig(\"\") should be nil")
	}
	cfg := generateConfig("short answers")
	if cfg == nil || cfg.SystemInstruction == nil || cfg.SystemInstruction.Parts[0].Text != "short answers" {
		t.Fatalf("generateConfig() = %+v", cfg)
	}
}
