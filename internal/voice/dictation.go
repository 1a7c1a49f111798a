package voice

import (
	"context"
	"fmt"
	"os/exec"
	"sync"
	"time"

	audiotranscriber "github.com/sklyt/whisper/pkg"

	"github.com/hammamikhairi/tabkha/internal/domain"
	"github.com/hammamikhairi/tabkha/internal/logger"
)

// DictationOption configures Dictation.
type DictationOption func(*Dictation)

// WithTempDir sets where recordings are written before recognition.
func WithTempDir(dir string) DictationOption {
	return func(d *Dictation) { d.tempDir = dir }
}

// WithResultTimeout bounds how long Stop waits for whisper to finish.
func WithResultTimeout(t time.Duration) DictationOption {
	return func(d *Dictation) { d.resultTimeout = t }
}

// Dictation records and recognises speech locally with whisper.cpp. Its
// clips carry recognised text instead of PCM, so the pipeline skips the
// remote transcriber.
type Dictation struct {
	whisperBin    string
	modelPath     string
	tempDir       string
	resultTimeout time.Duration
	log           *logger.Logger

	mu      sync.Mutex
	current *recording
}

type recording struct {
	stop   func()
	done   chan struct{}
	result string
}

var _ domain.Capturer = (*Dictation)(nil)

// NewDictation creates an on-device dictation capturer.
//
//   - whisperBin: path to the whisper-cli executable
//   - modelPath:  path to the GGML model file
func NewDictation(whisperBin, modelPath string, log *logger.Logger, opts ...DictationOption) *Dictation {
	d := &Dictation{
		whisperBin:    whisperBin,
		modelPath:     modelPath,
		tempDir:       ".tabkha-stt",
		resultTimeout: 30 * time.Second,
		log:           log,
	}
	for _, opt := range opts {
		opt(d)
	}

	if _, err := exec.LookPath(d.whisperBin); err != nil {
		log.Error("whisper binary %q not found in PATH: %v", d.whisperBin, err)
	}
	return d
}

// Start begins recording. Failures to set up whisper or the recorder are
// reported as ErrDeviceUnavailable.
func (d *Dictation) Start(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.current != nil {
		return domain.ErrAlreadyCapturing
	}

	rec := &recording{done: make(chan struct{})}
	var once sync.Once
	callback := func(text string) {
		once.Do(func() {
			rec.result = text
			close(rec.done)
		})
	}

	verbose := d.log.GetLevel() >= logger.LevelVerbose
	t, err := audiotranscriber.NewTranscriber(d.whisperBin, d.modelPath, d.tempDir, "wav", callback, verbose)
	if err != nil {
		return fmt.Errorf("%w: whisper init: %v", domain.ErrDeviceUnavailable, err)
	}
	if err := t.Start(); err != nil {
		return fmt.Errorf("%w: recorder start: %v", domain.ErrDeviceUnavailable, err)
	}

	rec.stop = func() { t.Stop() }
	d.current = rec
	d.log.Debug("dictation started")
	return nil
}

// Stop ends the recording and waits for whisper's transcript.
func (d *Dictation) Stop(ctx context.Context) (domain.Clip, error) {
	rec := d.take()
	if rec == nil {
		return domain.Clip{}, domain.ErrNotCapturing
	}

	rec.stop()

	select {
	case <-rec.done:
	case <-time.After(d.resultTimeout):
		return domain.Clip{}, fmt.Errorf("whisper did not return a transcript within %s", d.resultTimeout)
	case <-ctx.Done():
		return domain.Clip{}, ctx.Err()
	}
	return domain.Clip{Text: rec.result}, nil
}

// Abort stops the recorder and ignores whatever whisper produces.
func (d *Dictation) Abort() {
	if rec := d.take(); rec != nil {
		rec.stop()
	}
}

func (d *Dictation) take() *recording {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec := d.current
	d.current = nil
	return rec
}
