package speech

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/hammamikhairi/tabkha/internal/domain"
	"github.com/hammamikhairi/tabkha/internal/logger"
)

// Option configures the Coordinator.
type Option func(*Coordinator)

// WithCache sets the audio cache consulted before synthesizing.
func WithCache(c *AudioCache) Option {
	return func(co *Coordinator) {
		co.cache = c
	}
}

// WithChunkSize splits replies longer than n characters at sentence
// boundaries. The next chunk is synthesized while the current one plays.
// Zero (the default) sends the whole reply in one request.
func WithChunkSize(n int) Option {
	return func(co *Coordinator) {
		co.chunkSize = n
	}
}

// WithSynthesisHook registers a callback invoked after every synthesis
// request with its latency and outcome. Cache hits are not reported.
func WithSynthesisHook(fn func(time.Duration, error)) Option {
	return func(co *Coordinator) {
		co.onSynth = fn
	}
}

// Coordinator owns the single playback handle. A Speak call while another
// is in flight is rejected with ErrSpeaking rather than queued: replies
// are spoken in the order the conversation produces them, and the session
// never asks for a second one before the first completes.
type Coordinator struct {
	synth domain.Synthesizer
	out   domain.AudioOutput
	log   *logger.Logger
	cache *AudioCache

	chunkSize int
	onSynth   func(time.Duration, error)

	mu       sync.Mutex
	speaking bool
	cancel   context.CancelFunc
}

// NewCoordinator creates a playback coordinator.
func NewCoordinator(synth domain.Synthesizer, out domain.AudioOutput, log *logger.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		synth: synth,
		out:   out,
		log:   log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Speaking reports whether a playback handle is active.
func (c *Coordinator) Speaking() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.speaking
}

// Speak synthesizes, decodes and plays text. Blocks until playback
// completes, fails, or is stopped. Returns ErrSpeaking if another Speak is
// in flight.
func (c *Coordinator) Speak(ctx context.Context, text string) error {
	text = Speakable(text)
	if text == "" {
		return nil
	}

	c.mu.Lock()
	if c.speaking {
		c.mu.Unlock()
		return domain.ErrSpeaking
	}
	ctx, cancel := context.WithCancel(ctx)
	c.speaking = true
	c.cancel = cancel
	c.mu.Unlock()

	defer func() {
		cancel()
		c.mu.Lock()
		c.speaking = false
		c.cancel = nil
		c.mu.Unlock()
	}()

	chunks := c.splitChunks(text)
	c.log.Debug("speaking %d chunk(s): %s", len(chunks), truncate(text, 60))

	// Synthesis runs one chunk ahead of playback.
	type result struct {
		audio []byte
		err   error
	}
	pending := make([]chan result, len(chunks))
	start := func(i int) {
		ch := make(chan result, 1)
		pending[i] = ch
		go func() {
			audio, err := c.synthesize(ctx, chunks[i])
			ch <- result{audio, err}
		}()
	}

	start(0)
	for i := range chunks {
		var r result
		select {
		case r = <-pending[i]:
		case <-ctx.Done():
			return ctx.Err()
		}
		if r.err != nil {
			return fmt.Errorf("synthesizing reply: %w", r.err)
		}
		if i+1 < len(chunks) {
			start(i + 1)
		}
		if err := c.out.Play(ctx, r.audio); err != nil {
			return fmt.Errorf("playing reply: %w", err)
		}
	}
	return nil
}

// Stop interrupts the active playback, if any. Speak returns the
// context's cancellation error.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		c.out.Stop()
		c.log.Debug("playback interrupted")
	}
}

func (c *Coordinator) synthesize(ctx context.Context, text string) ([]byte, error) {
	if c.cache != nil {
		if audio, ok := c.cache.Get(text); ok {
			return audio, nil
		}
	}

	start := time.Now()
	audio, err := c.synth.Synthesize(ctx, text)
	if c.onSynth != nil {
		c.onSynth(time.Since(start), err)
	}
	if err != nil {
		return nil, err
	}
	if c.cache != nil && len(audio) > 0 {
		c.cache.Put(text, audio)
	}
	return audio, nil
}

// splitChunks groups sentences into chunks of roughly chunkSize runes.
func (c *Coordinator) splitChunks(text string) []string {
	if c.chunkSize <= 0 || len([]rune(text)) <= c.chunkSize {
		return []string{text}
	}

	var chunks []string
	var current strings.Builder
	size := 0
	for _, s := range splitSentences(text) {
		n := len([]rune(s))
		if size > 0 && size+n > c.chunkSize {
			if chunk := strings.TrimSpace(current.String()); chunk != "" {
				chunks = append(chunks, chunk)
			}
			current.Reset()
			size = 0
		}
		current.WriteString(s)
		size += n
	}
	if chunk := strings.TrimSpace(current.String()); chunk != "" {
		chunks = append(chunks, chunk)
	}
	return chunks
}

// splitSentences splits at sentence-ending punctuation (Latin and Arabic)
// and line breaks, keeping the punctuation with its sentence.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		current.WriteRune(runes[i])
		if !isSentenceEnd(runes[i]) {
			continue
		}
		for i+1 < len(runes) && unicode.IsSpace(runes[i+1]) {
			i++
			current.WriteRune(runes[i])
		}
		sentences = append(sentences, current.String())
		current.Reset()
	}
	if current.Len() > 0 {
		sentences = append(sentences, current.String())
	}
	return sentences
}

func isSentenceEnd(r rune) bool {
	switch r {
	case '.', '!', '?', '؟', '؛', '\n':
		return true
	}
	return false
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
