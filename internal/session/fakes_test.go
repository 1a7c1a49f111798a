package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hammamikhairi/tabkha/internal/domain"
	"github.com/hammamikhairi/tabkha/internal/logger"
	"github.com/hammamikhairi/tabkha/internal/storage"
	"github.com/hammamikhairi/tabkha/internal/timer"
)

// ── Channel ──────────────────────────────────────────────────────

type fakeChannel struct {
	mu      sync.Mutex
	events  chan domain.ChannelEvent
	sent    []string
	closed  bool
	sendErr error
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{events: make(chan domain.ChannelEvent, 32)}
}

func (f *fakeChannel) Send(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return domain.ErrChannelClosed
	}
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeChannel) Events() <-chan domain.ChannelEvent { return f.events }

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.events)
	}
	return nil
}

func (f *fakeChannel) emit(ev domain.ChannelEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.events <- ev
	}
}

func (f *fakeChannel) frame(fr domain.Frame) {
	f.emit(domain.ChannelEvent{Kind: domain.ChannelMessage, Frame: &fr})
}

func (f *fakeChannel) Sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func (f *fakeChannel) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type fakeDialer struct {
	mu       sync.Mutex
	err      error
	channels []*fakeChannel
	dials    []domain.Handshake
	dialed   chan *fakeChannel
	gate     chan struct{} // when set, Dial waits for it to close
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{dialed: make(chan *fakeChannel, 4)}
}

func (d *fakeDialer) Dial(_ context.Context, identity string, mode domain.Mode) (domain.Channel, error) {
	if d.gate != nil {
		<-d.gate
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials = append(d.dials, domain.Handshake{Email: identity, Mode: mode})
	if d.err != nil {
		return nil, d.err
	}
	ch := newFakeChannel()
	d.channels = append(d.channels, ch)
	d.dialed <- ch
	return ch, nil
}

// ── Voice & speech ───────────────────────────────────────────────

type fakeVoice struct {
	mu        sync.Mutex
	startErr  error
	text      string
	finishErr error
	starts    int
	finishes  int
	aborts    int
}

func (v *fakeVoice) Start(context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.startErr != nil {
		return v.startErr
	}
	v.starts++
	return nil
}

func (v *fakeVoice) Finish(context.Context) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.finishes++
	return v.text, v.finishErr
}

func (v *fakeVoice) Abort() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.aborts++
}

// fakeSpeaker blocks each Speak until release is called.
type fakeSpeaker struct {
	mu      sync.Mutex
	spoken  []string
	err     error
	release chan struct{}
	stops   int
}

func newFakeSpeaker() *fakeSpeaker {
	return &fakeSpeaker{release: make(chan struct{}, 4)}
}

func (s *fakeSpeaker) Speak(ctx context.Context, text string) error {
	s.mu.Lock()
	s.spoken = append(s.spoken, text)
	err := s.err
	s.mu.Unlock()
	if err != nil {
		return err
	}
	select {
	case <-s.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *fakeSpeaker) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
}

func (s *fakeSpeaker) Spoken() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.spoken...)
}

// ── Services ─────────────────────────────────────────────────────

type fakeFavourites struct {
	mu     sync.Mutex
	saved  []domain.RecipeArtifact
	preset []domain.RecipeArtifact
	err    error
}

func (f *fakeFavourites) AddFavourite(_ context.Context, _ string, r domain.RecipeArtifact) (domain.FavouriteResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return domain.FavouriteFailed, f.err
	}
	for _, s := range f.saved {
		if s.Title == r.Title {
			return domain.FavouriteExists, nil
		}
	}
	f.saved = append(f.saved, r)
	return domain.FavouriteAdded, nil
}

func (f *fakeFavourites) Favourites(context.Context, string) ([]domain.RecipeArtifact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.RecipeArtifact(nil), f.preset...), nil
}

type note struct {
	urgent bool
	text   string
}

type fakeNotifier struct {
	mu    sync.Mutex
	notes []note
}

func (n *fakeNotifier) Notify(_ context.Context, msg string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes = append(n.notes, note{text: msg})
	return nil
}

func (n *fakeNotifier) NotifyUrgent(_ context.Context, msg string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes = append(n.notes, note{urgent: true, text: msg})
	return nil
}

func (n *fakeNotifier) Notes() []note {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]note(nil), n.notes...)
}

// ── Harness ──────────────────────────────────────────────────────

const (
	testUser     = "cook@example.com"
	testInterval = 30 * time.Millisecond
)

type harness struct {
	t      *testing.T
	c      *Controller
	dialer *fakeDialer
	store  *storage.MemoryStore
	clock  *timer.Fake
	notes  *fakeNotifier
	ch     *fakeChannel
	cancel context.CancelFunc
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		t:      t,
		dialer: newFakeDialer(),
		store:  storage.NewMemoryStore(testUser, logger.Nop()),
		clock:  timer.NewFake(time.Date(2025, 3, 1, 18, 0, 0, 0, time.UTC)),
		notes:  &fakeNotifier{},
	}
	base := []Option{
		WithClock(h.clock),
		WithNotifier(h.notes),
		WithTypingInterval(testInterval),
	}
	h.c = New(h.dialer, h.store, logger.Nop(), append(base, opts...)...)

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go h.c.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-h.c.Done()
	})
	return h
}

// open drives the session to Active in the given mode.
func (h *harness) open(mode domain.Mode) {
	h.t.Helper()
	ctx := context.Background()
	if err := h.c.ChooseMode(ctx, mode); err != nil {
		h.t.Fatalf("ChooseMode: %v", err)
	}
	if err := h.c.Open(ctx); err != nil {
		h.t.Fatalf("Open: %v", err)
	}
	select {
	case h.ch = <-h.dialer.dialed:
	case <-time.After(2 * time.Second):
		h.t.Fatal("dial never happened")
	}
	h.ch.emit(domain.ChannelEvent{Kind: domain.ChannelConnected})
	h.waitFor("active", func(s Snapshot) bool { return s.Phase == domain.PhaseActive })
}

// sync returns once every event queued so far has been handled.
func (h *harness) sync() {
	h.t.Helper()
	if err := h.c.call(context.Background(), func() error { return nil }); err != nil && !errors.Is(err, domain.ErrTerminated) {
		h.t.Fatalf("sync: %v", err)
	}
}

func (h *harness) waitFor(what string, cond func(Snapshot) bool) Snapshot {
	h.t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		s := h.c.Snapshot()
		if cond(s) {
			return s
		}
		select {
		case <-h.c.Updates():
		case <-time.After(5 * time.Millisecond):
		case <-deadline:
			h.t.Fatalf("timed out waiting for %s; snapshot: %+v", what, s)
		}
	}
}

// finishTyping advances the fake clock until no reveal is in flight.
func (h *harness) finishTyping() Snapshot {
	h.t.Helper()
	for i := 0; i < 10000; i++ {
		s := h.c.Snapshot()
		if !s.Revealing {
			return s
		}
		h.clock.Advance(testInterval)
		h.sync()
	}
	h.t.Fatal("reveal never finished")
	return Snapshot{}
}

func (h *harness) submit(text string) {
	h.t.Helper()
	if err := h.c.SubmitText(context.Background(), text); err != nil {
		h.t.Fatalf("SubmitText(%q): %v", text, err)
	}
}

func texts(msgs []domain.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = string(m.Sender) + ":" + m.Text
	}
	return out
}

func countSender(msgs []domain.Message, sender domain.Sender) int {
	n := 0
	for _, m := range msgs {
		if m.Sender == sender {
			n++
		}
	}
	return n
}
