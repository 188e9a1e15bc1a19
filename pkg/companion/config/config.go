package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultLiveModel   = "gemini-2.5-flash-native-audio-preview-09-2025"
	DefaultTextModel   = "gemini-2.5-flash"
	DefaultInstruction = "You are a warm, attentive companion. Keep replies short and conversational, and let the user lead."
)

type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

type Config struct {
	// GeminiAPIKey authenticates both the live and text endpoints.
	GeminiAPIKey string

	LiveModel   string
	TextModel   string
	Instruction string
	// Voice is a prebuilt voice name; empty uses the service default.
	Voice string

	InputTranscription  bool
	OutputTranscription bool

	InputSampleRate  int
	OutputSampleRate int
	FrameSamples     int
	EventBuffer      int

	// HTTP surface (/ws, /metrics, /healthz). Empty disables it.
	Addr                string
	WSPingInterval      time.Duration
	WSWriteTimeout      time.Duration
	ShutdownGracePeriod time.Duration

	LogLevel  slog.Level
	LogFormat LogFormat

	// SentryDSN enables error reporting when set.
	SentryDSN string
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		GeminiAPIKey:        envOr("GEMINI_API_KEY", ""),
		LiveModel:           envOr("COMPANION_LIVE_MODEL", DefaultLiveModel),
		TextModel:           envOr("COMPANION_TEXT_MODEL", DefaultTextModel),
		Instruction:         envOr("COMPANION_SYSTEM_INSTRUCTION", DefaultInstruction),
		Voice:               envOr("COMPANION_VOICE", ""),
		InputTranscription:  envBoolOr("COMPANION_INPUT_TRANSCRIPTION", true),
		OutputTranscription: envBoolOr("COMPANION_OUTPUT_TRANSCRIPTION", true),
		InputSampleRate:     envIntOr("COMPANION_INPUT_SAMPLE_RATE", 16000),
		OutputSampleRate:    envIntOr("COMPANION_OUTPUT_SAMPLE_RATE", 24000),
		FrameSamples:        envIntOr("COMPANION_FRAME_SAMPLES", 4096),
		EventBuffer:         envIntOr("COMPANION_EVENT_BUFFER", 100),
		Addr:                envOr("COMPANION_ADDR", "127.0.0.1:8090"),
		WSPingInterval:      envDurationOr("COMPANION_WS_PING_INTERVAL", 20*time.Second),
		WSWriteTimeout:      envDurationOr("COMPANION_WS_WRITE_TIMEOUT", 5*time.Second),
		ShutdownGracePeriod: envDurationOr("COMPANION_SHUTDOWN_GRACE_PERIOD", 5*time.Second),
		LogFormat:           LogFormat(strings.ToLower(envOr("COMPANION_LOG_FORMAT", string(LogFormatText)))),
		SentryDSN:           envOr("COMPANION_SENTRY_DSN", ""),
	}

	if cfg.GeminiAPIKey == "" {
		return Config{}, fmt.Errorf("GEMINI_API_KEY must be set")
	}
	if cfg.LiveModel == "" || strings.ContainsAny(cfg.LiveModel, " \t") {
		return Config{}, fmt.Errorf("COMPANION_LIVE_MODEL must be a model name")
	}
	if strings.ContainsAny(cfg.TextModel, " \t") {
		return Config{}, fmt.Errorf("COMPANION_TEXT_MODEL must be a model name")
	}

	var err error
	if cfg.InputSampleRate, err = positiveInt("COMPANION_INPUT_SAMPLE_RATE", cfg.InputSampleRate); err != nil {
		return Config{}, err
	}
	if cfg.OutputSampleRate, err = positiveInt("COMPANION_OUTPUT_SAMPLE_RATE", cfg.OutputSampleRate); err != nil {
		return Config{}, err
	}
	if cfg.FrameSamples, err = positiveInt("COMPANION_FRAME_SAMPLES", cfg.FrameSamples); err != nil {
		return Config{}, err
	}
	if cfg.EventBuffer, err = positiveInt("COMPANION_EVENT_BUFFER", cfg.EventBuffer); err != nil {
		return Config{}, err
	}

	if cfg.WSPingInterval <= 0 {
		return Config{}, fmt.Errorf("COMPANION_WS_PING_INTERVAL must be > 0")
	}
	if cfg.WSWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("COMPANION_WS_WRITE_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("COMPANION_SHUTDOWN_GRACE_PERIOD must be > 0")
	}

	switch cfg.LogFormat {
	case LogFormatText, LogFormatJSON:
	default:
		return Config{}, fmt.Errorf("COMPANION_LOG_FORMAT must be one of text|json")
	}
	if raw := envOr("COMPANION_LOG_LEVEL", "info"); raw != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(raw)); err != nil {
			return Config{}, fmt.Errorf("COMPANION_LOG_LEVEL must be one of debug|info|warn|error")
		}
	}

	return cfg, nil
}

// positiveInt re-reads key so that a malformed value is reported instead of
// silently replaced by the default.
func positiveInt(key string, v int) (int, error) {
	if raw := strings.TrimSpace(os.Getenv(key)); raw != "" {
		if _, err := strconv.Atoi(raw); err != nil {
			return 0, fmt.Errorf("%s must be an integer", key)
		}
	}
	if v <= 0 {
		return 0, fmt.Errorf("%s must be > 0", key)
	}
	return v, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envBoolOr(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	switch strings.ToLower(raw) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return def
	}
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}
