// Package voice turns a user-toggled microphone capture into text.
//
// A Pipeline owns at most one capture at a time and walks it through
// Idle → Capturing → Finalizing → Idle. Captured PCM is handed to a
// Transcriber; capturers that recognise speech themselves (Dictation)
// skip that step.
package voice

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hammamikhairi/tabkha/internal/domain"
	"github.com/hammamikhairi/tabkha/internal/logger"
)

// State is the pipeline's capture state.
type State int

const (
	StateIdle State = iota
	StateCapturing
	StateFinalizing
)

// String returns a human-readable state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCapturing:
		return "capturing"
	case StateFinalizing:
		return "finalizing"
	default:
		return "unknown"
	}
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithTranscribeHook registers a callback invoked after every
// transcription attempt with its latency and outcome.
func WithTranscribeHook(fn func(time.Duration, error)) Option {
	return func(p *Pipeline) {
		p.onTranscribe = fn
	}
}

// Pipeline coordinates one capture device and one transcriber.
type Pipeline struct {
	capturer    domain.Capturer
	transcriber domain.Transcriber
	log         *logger.Logger

	onTranscribe func(time.Duration, error)

	mu    sync.Mutex
	state State
}

// NewPipeline creates a pipeline. transcriber may be nil when the
// capturer always returns recognised text.
func NewPipeline(capturer domain.Capturer, transcriber domain.Transcriber, log *logger.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		capturer:    capturer,
		transcriber: transcriber,
		log:         log,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// State returns the current capture state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Start claims the device and begins capturing. Fails with
// ErrAlreadyCapturing unless idle; device errors leave the pipeline idle.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateIdle {
		return fmt.Errorf("%w (%s)", domain.ErrAlreadyCapturing, p.state)
	}
	if err := p.capturer.Start(ctx); err != nil {
		return fmt.Errorf("starting capture: %w", err)
	}
	p.state = StateCapturing
	p.log.Debug("capture started")
	return nil
}

// Finish stops the capture and transcribes it. Blocks for the duration of
// the transcription; callers run it off their event loop. An empty capture
// or a transcript that cleans to nothing returns "" with a nil error and
// never reaches the transcriber.
func (p *Pipeline) Finish(ctx context.Context) (string, error) {
	p.mu.Lock()
	if p.state != StateCapturing {
		p.mu.Unlock()
		return "", domain.ErrNotCapturing
	}
	p.state = StateFinalizing
	p.mu.Unlock()

	defer p.setState(StateIdle)

	clip, err := p.capturer.Stop(ctx)
	if err != nil {
		return "", fmt.Errorf("finalizing capture: %w", err)
	}
	if clip.Empty() {
		p.log.Debug("capture produced no audio, skipping transcription")
		return "", nil
	}

	text := clip.Text
	if text == "" {
		if p.transcriber == nil {
			return "", fmt.Errorf("transcribing: no transcriber configured for raw audio")
		}
		start := time.Now()
		text, err = p.transcriber.Transcribe(ctx, clip)
		if p.onTranscribe != nil {
			p.onTranscribe(time.Since(start), err)
		}
		if err != nil {
			return "", fmt.Errorf("transcribing: %w", err)
		}
	}

	text = Clean(text)
	if text == "" {
		p.log.Debug("transcript was empty after cleanup")
		return "", nil
	}
	p.log.Info("heard %q", text)
	return text, nil
}

// Abort drops an in-progress capture without transcribing it. A capture
// already finalizing is left to its context.
func (p *Pipeline) Abort() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateCapturing {
		return
	}
	p.capturer.Abort()
	p.state = StateIdle
	p.log.Debug("capture aborted")
}

func (p *Pipeline) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}
