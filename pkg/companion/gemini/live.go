// Package gemini adapts the Gemini API to the session and chat ports: a live
// audio transport over the Live API and a text generator over GenerateContent.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
	"google.golang.org/genai"

	"github.com/vango-go/vai-companion/pkg/companion/pcm"
	"github.com/vango-go/vai-companion/pkg/companion/session"
)

const eventBuffer = 64

var errConnClosed = errors.New("live connection closed")

// NewClient creates a Gemini API client.
func NewClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return client, nil
}

// stream is the part of *genai.Session the connection uses.
type stream interface {
	SendRealtimeInput(input genai.LiveRealtimeInput) error
	Receive() (*genai.LiveServerMessage, error)
	Close() error
}

// Transport opens Gemini Live sessions.
type Transport struct {
	client *genai.Client
	logger *slog.Logger
}

// NewTransport creates a Transport using client.
func NewTransport(client *genai.Client, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{client: client, logger: logger}
}

// Connect implements session.Transport.
func (t *Transport) Connect(ctx context.Context, cfg session.LiveConfig) (session.Conn, error) {
	s, err := t.client.Live.Connect(ctx, cfg.Model, liveConnectConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("gemini live connect: %w", err)
	}
	return newConn(s, t.logger), nil
}

func liveConnectConfig(cfg session.LiveConfig) *genai.LiveConnectConfig {
	lc := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
	}
	if cfg.Instruction != "" {
		lc.SystemInstruction = genai.NewContentFromText(cfg.Instruction, genai.RoleUser)
	}
	if cfg.InputTranscription {
		lc.InputAudioTranscription = &genai.AudioTranscriptionConfig{}
	}
	if cfg.OutputTranscription {
		lc.OutputAudioTranscription = &genai.AudioTranscriptionConfig{}
	}
	if cfg.Voice != "" {
		lc.SpeechConfig = &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: cfg.Voice},
			},
		}
	}
	return lc
}

// conn is one live session. A single goroutine reads server messages and
// forwards them to events.
type conn struct {
	stream stream
	logger *slog.Logger
	events chan session.RemoteEvent

	sendMu sync.Mutex
	closed bool
}

func newConn(s stream, logger *slog.Logger) *conn {
	c := &conn{
		stream: s,
		logger: logger,
		events: make(chan session.RemoteEvent, eventBuffer),
	}
	go c.readLoop()
	return c
}

func (c *conn) Events() <-chan session.RemoteEvent {
	return c.events
}

func (c *conn) SendAudio(frame pcm.Frame) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return errConnClosed
	}
	err := c.stream.SendRealtimeInput(genai.LiveRealtimeInput{
		Audio: &genai.Blob{MIMEType: frame.MIMEType, Data: frame.Data},
	})
	if err != nil {
		return fmt.Errorf("send audio: %w", err)
	}
	return nil
}

func (c *conn) Close() error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.stream.Close()
}

func (c *conn) closedLocally() bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return c.closed
}

func (c *conn) readLoop() {
	defer close(c.events)

	opened := false
	for {
		msg, err := c.stream.Receive()
		if err != nil {
			c.events <- receiveError(err, c.closedLocally())
			return
		}
		if msg == nil {
			continue
		}
		if !opened {
			// Setup completion normally arrives first; anything else also
			// proves the session is live.
			opened = true
			c.events <- session.Opened{}
		}
		if msg.GoAway != nil {
			c.logger.Info("live session go away", "time_left", msg.GoAway.TimeLeft)
		}
		if m, ok := messageFromServer(msg); ok {
			c.events <- m
		}
	}
}

// receiveError maps a Receive failure to Closed for a normal close and to
// Failed for everything else.
func receiveError(err error, local bool) session.RemoteEvent {
	if local {
		return session.Closed{Reason: "closed locally"}
	}
	var ce *websocket.CloseError
	if errors.As(err, &ce) && ce.Code == websocket.CloseNormalClosure {
		return session.Closed{Reason: ce.Text}
	}
	return session.Failed{Err: err}
}

// messageFromServer converts the server content of msg. It reports false
// when there is nothing for the controller.
func messageFromServer(msg *genai.LiveServerMessage) (session.Message, bool) {
	sc := msg.ServerContent
	if sc == nil {
		return session.Message{}, false
	}

	var m session.Message
	if sc.ModelTurn != nil {
		for _, part := range sc.ModelTurn.Parts {
			if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
				continue
			}
			m.Audio = append(m.Audio, session.AudioChunk{
				Data:     part.InlineData.Data,
				MIMEType: part.InlineData.MIMEType,
			})
		}
	}
	m.Interrupted = sc.Interrupted
	if sc.InputTranscription != nil {
		m.InputTranscription = sc.InputTranscription.Text
	}
	if sc.OutputTranscription != nil {
		m.OutputTranscription = sc.OutputTranscription.Text
	}
	m.TurnComplete = sc.TurnComplete

	empty := len(m.Audio) == 0 && !m.Interrupted && !m.TurnComplete &&
		m.InputTranscription == "" && m.OutputTranscription == ""
	return m, !empty
}
