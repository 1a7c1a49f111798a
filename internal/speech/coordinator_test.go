package speech

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hammamikhairi/tabkha/internal/domain"
	"github.com/hammamikhairi/tabkha/internal/logger"
)

type fakeSynth struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (f *fakeSynth) Synthesize(_ context.Context, text string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	if f.err != nil {
		return nil, f.err
	}
	return []byte("audio:" + text), nil
}

func (f *fakeSynth) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

type fakeOutput struct {
	mu      sync.Mutex
	played  []string
	err     error
	block   chan struct{}
	started chan struct{}
	stops   int
}

func (f *fakeOutput) Play(ctx context.Context, audio []byte) error {
	f.mu.Lock()
	f.played = append(f.played, string(audio))
	block, started := f.block, f.started
	f.mu.Unlock()

	if started != nil {
		select {
		case started <- struct{}{}:
		default:
		}
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.err
}

func (f *fakeOutput) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
}

func quiet() *logger.Logger { return logger.New(logger.LevelOff, nil) }

func TestSpeakPlaysSynthesizedAudio(t *testing.T) {
	synth := &fakeSynth{}
	out := &fakeOutput{}
	var hooked int
	c := NewCoordinator(synth, out, quiet(), WithSynthesisHook(func(time.Duration, error) { hooked++ }))

	if err := c.Speak(context.Background(), "تفضل"); err != nil {
		t.Fatalf("speak: %v", err)
	}
	if len(out.played) != 1 || out.played[0] != "audio:تفضل" {
		t.Fatalf("played = %v", out.played)
	}
	if c.Speaking() {
		t.Fatal("still speaking after completion")
	}
	if hooked != 1 {
		t.Fatalf("hook = %d", hooked)
	}
}

func TestSpeakRejectsConcurrent(t *testing.T) {
	out := &fakeOutput{block: make(chan struct{}), started: make(chan struct{}, 1)}
	c := NewCoordinator(&fakeSynth{}, out, quiet())

	done := make(chan error, 1)
	go func() { done <- c.Speak(context.Background(), "first") }()

	select {
	case <-out.started:
	case <-time.After(time.Second):
		t.Fatal("first speak never started playing")
	}
	if !c.Speaking() {
		t.Fatal("Speaking() = false during playback")
	}
	if err := c.Speak(context.Background(), "second"); !errors.Is(err, domain.ErrSpeaking) {
		t.Fatalf("second speak = %v, want ErrSpeaking", err)
	}

	close(out.block)
	if err := <-done; err != nil {
		t.Fatalf("first speak: %v", err)
	}
}

func TestSpeakSynthesisFailure(t *testing.T) {
	boom := errors.New("tts down")
	out := &fakeOutput{}
	c := NewCoordinator(&fakeSynth{err: boom}, out, quiet())

	if err := c.Speak(context.Background(), "hello"); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if len(out.played) != 0 {
		t.Fatal("nothing should play when synthesis fails")
	}
	if c.Speaking() {
		t.Fatal("speaking flag leaked after failure")
	}
}

func TestSpeakPlaybackFailure(t *testing.T) {
	boom := ErrUnsupportedAudio
	c := NewCoordinator(&fakeSynth{}, &fakeOutput{err: boom}, quiet())
	if err := c.Speak(context.Background(), "hello"); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
}

func TestStopInterruptsPlayback(t *testing.T) {
	out := &fakeOutput{block: make(chan struct{}), started: make(chan struct{}, 1)}
	c := NewCoordinator(&fakeSynth{}, out, quiet())

	done := make(chan error, 1)
	go func() { done <- c.Speak(context.Background(), "long reply") }()
	<-out.started

	c.Stop()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if out.stops != 1 {
		t.Fatalf("output stops = %d", out.stops)
	}
}

func TestSpeakUsesCache(t *testing.T) {
	synth := &fakeSynth{}
	cache := NewAudioCache("test", "", false, quiet())
	c := NewCoordinator(synth, &fakeOutput{}, quiet(), WithCache(cache))

	for i := 0; i < 3; i++ {
		if err := c.Speak(context.Background(), "السلام عليكم"); err != nil {
			t.Fatal(err)
		}
	}
	if n := len(synth.calls()); n != 1 {
		t.Fatalf("synthesized %d times, want 1", n)
	}
	if hits, _ := cache.Stats(); hits != 2 {
		t.Fatalf("hits = %d", hits)
	}
}

func TestSpeakChunksLongReplies(t *testing.T) {
	synth := &fakeSynth{}
	out := &fakeOutput{}
	c := NewCoordinator(synth, out, quiet(), WithChunkSize(12))

	if err := c.Speak(context.Background(), "أهلا بيك. عندي وصفة حلوة! تحب تجربها؟"); err != nil {
		t.Fatal(err)
	}
	want := []string{"أهلا بيك.", "عندي وصفة حلوة!", "تحب تجربها؟"}
	got := synth.calls()
	if len(got) != len(want) {
		t.Fatalf("chunks = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] || out.played[i] != "audio:"+want[i] {
			t.Fatalf("chunk %d = %q / %q", i, got[i], out.played[i])
		}
	}
}

func TestSpeakEmptyIsNoop(t *testing.T) {
	synth := &fakeSynth{}
	c := NewCoordinator(synth, &fakeOutput{}, quiet())
	if err := c.Speak(context.Background(), " ** "); err != nil {
		t.Fatal(err)
	}
	if len(synth.calls()) != 0 {
		t.Fatal("empty text should not be synthesized")
	}
}

func TestSilentCompletes(t *testing.T) {
	s := NewSilent(quiet())
	c := NewCoordinator(s, s, quiet())
	if err := c.Speak(context.Background(), "hello"); err != nil {
		t.Fatalf("silent speak: %v", err)
	}
}
