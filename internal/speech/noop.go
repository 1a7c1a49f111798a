package speech

import (
	"context"

	"github.com/hammamikhairi/tabkha/internal/domain"
	"github.com/hammamikhairi/tabkha/internal/logger"
)

var (
	_ domain.Synthesizer = (*Silent)(nil)
	_ domain.AudioOutput = (*Silent)(nil)
)

// Silent stands in for both the synthesizer and the output device when
// speech is disabled or no audio device exists. Every reply "plays"
// instantly, so the session's speaking state still completes normally.
type Silent struct {
	log *logger.Logger
}

// NewSilent creates a silent speech backend.
func NewSilent(log *logger.Logger) *Silent {
	return &Silent{log: log}
}

// Synthesize returns no audio.
func (s *Silent) Synthesize(_ context.Context, text string) ([]byte, error) {
	s.log.Debug("speech disabled, would say %q", truncate(text, 60))
	return nil, nil
}

// Play returns immediately.
func (s *Silent) Play(ctx context.Context, _ []byte) error {
	return ctx.Err()
}

// Stop does nothing.
func (s *Silent) Stop() {}
