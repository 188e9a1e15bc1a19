// Package metrics exposes Prometheus counters for the companion's audio
// pipeline. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Session outcomes used as the "outcome" label.
const (
	OutcomeStopped          = "stopped"
	OutcomeRemoteClosed     = "remote_closed"
	OutcomeConnectionError  = "connection_error"
	OutcomeMicrophoneDenied = "microphone_denied"
)

// Metrics holds all Prometheus metrics for the companion.
type Metrics struct {
	registry *prometheus.Registry

	// Session metrics
	SessionsTotal   *prometheus.CounterVec
	SessionsActive  prometheus.Gauge
	SessionDuration prometheus.Histogram

	// Capture metrics
	FramesSent    prometheus.Counter
	FramesDropped prometheus.Counter

	// Playback metrics
	PlaybackChunks  prometheus.Counter
	PlaybackSeconds prometheus.Counter
	Interruptions   prometheus.Counter
	TurnsCompleted  prometheus.Counter

	// Text query metrics
	TextQueries *prometheus.CounterVec
}

// New creates a Metrics instance with its own registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "companion"
	}

	registry := prometheus.NewRegistry()

	sessionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of ended live sessions",
		},
		[]string{"outcome"},
	)

	sessionsActive := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of live sessions currently connecting or active",
		},
	)

	sessionDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Live session duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
	)

	framesSent := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_frames_sent_total",
			Help:      "Microphone frames streamed to the remote session",
		},
	)

	framesDropped := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_frames_dropped_total",
			Help:      "Microphone frames whose send failed and were dropped",
		},
	)

	playbackChunks := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_chunks_total",
			Help:      "Synthesized audio chunks scheduled for playback",
		},
	)

	playbackSeconds := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_seconds_total",
			Help:      "Seconds of synthesized audio scheduled for playback",
		},
	)

	interruptions := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interruptions_total",
			Help:      "Interruption signals that cancelled playback",
		},
	)

	turnsCompleted := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_completed_total",
			Help:      "Turn-complete signals received",
		},
	)

	textQueries := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "text_queries_total",
			Help:      "One-shot text queries by status",
		},
		[]string{"status"},
	)

	registry.MustRegister(
		sessionsTotal,
		sessionsActive,
		sessionDuration,
		framesSent,
		framesDropped,
		playbackChunks,
		playbackSeconds,
		interruptions,
		turnsCompleted,
		textQueries,
	)

	return &Metrics{
		registry:        registry,
		SessionsTotal:   sessionsTotal,
		SessionsActive:  sessionsActive,
		SessionDuration: sessionDuration,
		FramesSent:      framesSent,
		FramesDropped:   framesDropped,
		PlaybackChunks:  playbackChunks,
		PlaybackSeconds: playbackSeconds,
		Interruptions:   interruptions,
		TurnsCompleted:  turnsCompleted,
		TextQueries:     textQueries,
	}
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordSessionStart records a session entering CONNECTING.
func (m *Metrics) RecordSessionStart() {
	if m == nil {
		return
	}
	m.SessionsActive.Inc()
}

// RecordSessionEnd records a session returning to IDLE.
func (m *Metrics) RecordSessionEnd(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.SessionsActive.Dec()
	m.SessionsTotal.WithLabelValues(outcome).Inc()
	m.SessionDuration.Observe(duration.Seconds())
}

// RecordFrame records one streamed microphone frame.
func (m *Metrics) RecordFrame(sent bool) {
	if m == nil {
		return
	}
	if sent {
		m.FramesSent.Inc()
		return
	}
	m.FramesDropped.Inc()
}

// RecordPlayback records a chunk handed to the scheduler.
func (m *Metrics) RecordPlayback(d time.Duration) {
	if m == nil {
		return
	}
	m.PlaybackChunks.Inc()
	m.PlaybackSeconds.Add(d.Seconds())
}

// RecordInterruption records a barge-in.
func (m *Metrics) RecordInterruption() {
	if m == nil {
		return
	}
	m.Interruptions.Inc()
}

// RecordTurn records a turn-complete signal.
func (m *Metrics) RecordTurn() {
	if m == nil {
		return
	}
	m.TurnsCompleted.Inc()
}

// RecordTextQuery records a text query result ("ok" or "error").
func (m *Metrics) RecordTextQuery(status string) {
	if m == nil {
		return
	}
	m.TextQueries.WithLabelValues(status).Inc()
}
