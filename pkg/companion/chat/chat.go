// Package chat is the one-shot text query path. A prompt and its reply are
// appended to the same transcript log the live session writes to.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/vango-go/vai-companion/pkg/companion/metrics"
	"github.com/vango-go/vai-companion/pkg/companion/transcript"
)

// ErrEmptyPrompt is returned by Ask for a blank prompt.
var ErrEmptyPrompt = errors.New("prompt is empty")

// Text query outcomes recorded in metrics.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Generator produces a single text reply.
type Generator interface {
	Generate(ctx context.Context, prompt, instruction string) (string, error)
}

// Options configures a Service.
type Options struct {
	Instruction string
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
	Now         func() time.Time
}

// Service answers text prompts.
type Service struct {
	gen         Generator
	log         *transcript.Log
	instruction string
	logger      *slog.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
}

// NewService creates a Service writing to log.
func NewService(gen Generator, log *transcript.Log, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		gen:         gen,
		log:         log,
		instruction: opts.Instruction,
		logger:      logger,
		metrics:     opts.Metrics,
		now:         now,
	}
}

// Ask appends the user's prompt to the log, asks the generator and appends
// the reply. On failure the user entry stays without a reply.
func (s *Service) Ask(ctx context.Context, prompt string) (transcript.Entry, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return transcript.Entry{}, ErrEmptyPrompt
	}

	s.log.Append(transcript.Entry{Role: transcript.RoleUser, Text: prompt, Timestamp: s.now()})

	start := time.Now()
	reply, err := s.gen.Generate(ctx, prompt, s.instruction)
	if err == nil && strings.TrimSpace(reply) == "" {
		err = errors.New("empty reply")
	}
	if err != nil {
		s.metrics.RecordTextQuery(StatusError)
		s.logger.Error("text query failed", "error", err, "duration", time.Since(start))
		return transcript.Entry{}, fmt.Errorf("text query: %w", err)
	}

	entry := transcript.Entry{Role: transcript.RoleModel, Text: strings.TrimSpace(reply), Timestamp: s.now()}
	s.log.Append(entry)
	s.metrics.RecordTextQuery(StatusOK)
	s.logger.Debug("text query answered", "duration", time.Since(start), "chars", len(entry.Text))
	return entry, nil
}
