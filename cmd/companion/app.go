package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/getsentry/sentry-go"

	"github.com/vango-go/vai-companion/pkg/companion/bridge"
	"github.com/vango-go/vai-companion/pkg/companion/chat"
	"github.com/vango-go/vai-companion/pkg/companion/config"
	"github.com/vango-go/vai-companion/pkg/companion/device"
	"github.com/vango-go/vai-companion/pkg/companion/gemini"
	"github.com/vango-go/vai-companion/pkg/companion/metrics"
	"github.com/vango-go/vai-companion/pkg/companion/playback"
	"github.com/vango-go/vai-companion/pkg/companion/session"
	"github.com/vango-go/vai-companion/pkg/companion/transcript"
)

// app holds the wired components of one process.
type app struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
	ctrl    *session.Controller
	asker   bridge.Asker
	hub     *bridge.Hub

	closers []func() error
	wg      sync.WaitGroup
}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	client, err := gemini.NewClient(ctx, cfg.GeminiAPIKey)
	if err != nil {
		return nil, err
	}

	a := &app{logger: logger, metrics: metrics.New("companion")}

	var mic session.Microphone
	audio, err := device.NewAudio()
	if err != nil {
		logger.Warn("audio backend unavailable, voice sessions disabled", "error", err)
		mic = unavailableMicrophone{err: err}
	} else {
		a.closers = append(a.closers, audio.Close)
		mic = device.NewMicrophone(audio, cfg.InputSampleRate, logger)
	}

	timeline := playback.NewTimeline(cfg.OutputSampleRate)
	speaker, err := device.NewSpeaker(timeline)
	if err == nil {
		a.closers = append(a.closers, speaker.Close)
	}
	output := playbackOutput(timeline, err, logger)

	log := transcript.NewLog()
	a.ctrl = session.New(
		gemini.NewTransport(client, logger),
		mic,
		playback.NewScheduler(output),
		log,
		session.Config{
			Live: session.LiveConfig{
				Model:               cfg.LiveModel,
				Instruction:         cfg.Instruction,
				Voice:               cfg.Voice,
				InputTranscription:  cfg.InputTranscription,
				OutputTranscription: cfg.OutputTranscription,
				InputSampleRate:     cfg.InputSampleRate,
			},
			FrameSamples: cfg.FrameSamples,
			EventBuffer:  cfg.EventBuffer,
			Logger:       logger,
			Metrics:      a.metrics,
		},
	)

	a.asker = reportingAsker{next: chat.NewService(
		gemini.NewGenerator(client, cfg.TextModel),
		log,
		chat.Options{Instruction: cfg.Instruction, Logger: logger, Metrics: a.metrics},
	)}

	a.hub = bridge.NewHub(a.ctrl, a.asker, bridge.Config{
		PingInterval: cfg.WSPingInterval,
		WriteTimeout: cfg.WSWriteTimeout,
	}, logger)

	return a, nil
}

// run starts the event consumers. console, when non-nil, gets a readable
// copy of the conversation.
func (a *app) run(ctx context.Context, console io.Writer) {
	hubEvents := make(chan session.Event, 64)
	watchEvents := make(chan session.Event, 64)

	a.wg.Add(3)
	go func() {
		defer a.wg.Done()
		fanOut(a.ctrl.Events(), hubEvents, watchEvents)
	}()
	go func() {
		defer a.wg.Done()
		a.hub.Run(ctx, hubEvents)
	}()
	go func() {
		defer a.wg.Done()
		watch(watchEvents, console)
	}()
}

func (a *app) routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/ws", a.hub)
	mux.Handle("/metrics", a.metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":  "ok",
			"state":   a.ctrl.State(),
			"clients": a.hub.Clients(),
		})
	})
	return mux
}

// Close stops the session and releases devices.
func (a *app) Close() {
	a.ctrl.Close()
	a.wg.Wait()
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
}

// playbackOutput returns the timeline when a speaker is pulling from it.
// Without one the timeline never advances, so audio is discarded instead.
func playbackOutput(timeline *playback.Timeline, speakerErr error, logger *slog.Logger) playback.Output {
	if speakerErr != nil {
		logger.Warn("speaker unavailable, model audio will not be heard", "error", speakerErr)
		return playback.NewDiscard()
	}
	return timeline
}

// fanOut copies every event to each output without blocking, and closes the
// outputs when in closes.
func fanOut(in <-chan session.Event, outs ...chan session.Event) {
	defer func() {
		for _, out := range outs {
			close(out)
		}
	}()
	for ev := range in {
		for _, out := range outs {
			select {
			case out <- ev:
			default:
			}
		}
	}
}

// watch reports session errors to Sentry and echoes the conversation to
// console.
func watch(events <-chan session.Event, console io.Writer) {
	for ev := range events {
		if e, ok := ev.(*session.ErrorEvent); ok && e.Code == session.CodeConnectionError {
			sentry.CaptureMessage("live session: " + e.Code)
		}
		if console != nil {
			printEvent(console, ev)
		}
	}
}

type unavailableMicrophone struct {
	err error
}

func (m unavailableMicrophone) Open(context.Context) (session.Capture, error) {
	return nil, fmt.Errorf("no audio backend: %w", m.err)
}

// reportingAsker sends text query failures to Sentry.
type reportingAsker struct {
	next bridge.Asker
}

func (r reportingAsker) Ask(ctx context.Context, prompt string) (transcript.Entry, error) {
	entry, err := r.next.Ask(ctx, prompt)
	if err != nil && !errors.Is(err, chat.ErrEmptyPrompt) {
		sentry.CaptureException(err)
	}
	return entry, err
}
