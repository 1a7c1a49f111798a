package speech

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/hammamikhairi/tabkha/internal/domain"
	"github.com/hammamikhairi/tabkha/internal/logger"
)

// Player plays decoded audio through the default output device via oto.
// oto allows one context per process, so create a single Player.
type Player struct {
	ctx        *oto.Context
	sampleRate int
	channels   int
	log        *logger.Logger

	mu     sync.Mutex
	active *oto.Player
}

var _ domain.AudioOutput = (*Player)(nil)

// NewPlayer opens the output device. Returns an error if no audio device
// is available.
func NewPlayer(sampleRate, channels int, log *logger.Logger) (*Player, error) {
	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatSignedInt16LE,
	}

	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("opening audio output: %w", err)
	}
	<-ready

	log.Debug("audio player initialized (rate=%d, channels=%d)", sampleRate, channels)
	return &Player{ctx: ctx, sampleRate: sampleRate, channels: channels, log: log}, nil
}

// Play decodes and plays one clip. Blocks until playback finishes, Stop is
// called, or ctx is cancelled (in which case ctx.Err() is returned).
func (p *Player) Play(ctx context.Context, audio []byte) error {
	pcm, err := Decode(audio, p.sampleRate, p.channels)
	if err != nil {
		return fmt.Errorf("decoding audio: %w", err)
	}

	player := p.ctx.NewPlayer(bytes.NewReader(pcm))

	p.mu.Lock()
	p.active = player
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.active = nil
		p.mu.Unlock()
		player.Close()
	}()

	player.Play()
	p.log.Debug("playing %d bytes of PCM", len(pcm))

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for player.IsPlaying() {
		select {
		case <-ctx.Done():
			player.Pause()
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return player.Err()
}

// Stop interrupts the current clip. Safe when nothing is playing.
func (p *Player) Stop() {
	p.mu.Lock()
	active := p.active
	p.mu.Unlock()

	if active != nil {
		active.Pause()
		p.log.Debug("playback stopped")
	}
}
