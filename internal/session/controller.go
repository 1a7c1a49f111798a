// Package session implements the conversation controller: the single owner
// of a chat session's state.
//
// All state lives inside one event loop (Run). Public methods post a request
// into the loop's inbox and wait for its answer; channel events, voice
// results, playback completion and typing ticks arrive through the same
// inbox. Every handled event publishes a fresh Snapshot.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hammamikhairi/tabkha/internal/domain"
	"github.com/hammamikhairi/tabkha/internal/logger"
	"github.com/hammamikhairi/tabkha/internal/observe"
	"github.com/hammamikhairi/tabkha/internal/recipe"
	"github.com/hammamikhairi/tabkha/internal/timer"
	"github.com/hammamikhairi/tabkha/internal/typing"
)

const (
	inboxSize          = 64
	defaultSendTimeout = 10 * time.Second
)

// VoiceInput is the capture side of the voice pipeline.
type VoiceInput interface {
	Start(ctx context.Context) error
	Finish(ctx context.Context) (string, error)
	Abort()
}

// Speaker plays bot replies aloud. Speak blocks until playback ends.
type Speaker interface {
	Speak(ctx context.Context, text string) error
	Stop()
}

// Option configures the Controller.
type Option func(*Controller)

// WithVoice enables voice capture.
func WithVoice(v VoiceInput) Option {
	return func(c *Controller) { c.voice = v }
}

// WithSpeaker enables spoken replies in voice mode.
func WithSpeaker(s Speaker) Option {
	return func(c *Controller) { c.speaker = s }
}

// WithBook shares a recipe book with the caller.
func WithBook(b *recipe.Book) Option {
	return func(c *Controller) { c.book = b }
}

// WithFavourites enables saving and preloading favourite recipes.
func WithFavourites(f domain.FavouriteService) Option {
	return func(c *Controller) { c.favourites = f }
}

// WithNotifier sets where critical errors and device notices go.
func WithNotifier(n domain.Notifier) Option {
	return func(c *Controller) { c.notifier = n }
}

// WithClock replaces the wall clock. Used by tests.
func WithClock(clock timer.Clock) Option {
	return func(c *Controller) { c.clock = clock }
}

// WithTypingInterval sets the per-character reveal interval.
func WithTypingInterval(d time.Duration) Option {
	return func(c *Controller) { c.interval = d }
}

// WithIdleTimeout ends an active session after d without activity.
// Zero disables it.
func WithIdleTimeout(d time.Duration) Option {
	return func(c *Controller) { c.idleTimeout = d }
}

// WithSendTimeout bounds a single outbound write. Non-positive values keep
// the default.
func WithSendTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.sendTimeout = d
		}
	}
}

// WithMetrics sets the instruments the controller records to.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithFatalTranscription controls whether a failed transcription ends the
// session (the default) or only produces a notice.
func WithFatalTranscription(fatal bool) Option {
	return func(c *Controller) { c.fatalTranscription = fatal }
}

// WithFatalSynthesis controls whether a failed playback ends the session
// (the default) or only produces a notice.
func WithFatalSynthesis(fatal bool) Option {
	return func(c *Controller) { c.fatalSynthesis = fatal }
}

// Controller owns one conversation session from mode selection to
// termination. It is not reusable: after Done is closed a new Controller
// is needed.
type Controller struct {
	dialer     domain.Dialer
	identity   domain.IdentityStore
	voice      VoiceInput
	speaker    Speaker
	book       *recipe.Book
	favourites domain.FavouriteService
	notifier   domain.Notifier
	clock      timer.Clock
	metrics    *observe.Metrics
	log        *logger.Logger

	interval           time.Duration
	idleTimeout        time.Duration
	sendTimeout        time.Duration
	fatalTranscription bool
	fatalSynthesis     bool

	inbox   chan event
	done    chan struct{}
	updates chan struct{}
	snap    atomic.Pointer[Snapshot]
	running atomic.Bool

	postMu  sync.Mutex
	stopped bool

	// Owned by the event loop.
	ctx       context.Context
	st        state
	ch        domain.Channel
	idle      *timer.Supervisor
	epoch     int
	revealSeq int
}

// New creates a controller. dialer opens the conversation channel and
// identity supplies (and forgets) the signed-in user.
func New(dialer domain.Dialer, identity domain.IdentityStore, log *logger.Logger, opts ...Option) *Controller {
	c := &Controller{
		dialer:             dialer,
		identity:           identity,
		clock:              timer.Real{},
		log:                log,
		interval:           typing.DefaultInterval,
		sendTimeout:        defaultSendTimeout,
		fatalTranscription: true,
		fatalSynthesis:     true,
		inbox:              make(chan event, inboxSize),
		done:               make(chan struct{}),
		updates:            make(chan struct{}, 1),
		ctx:                context.Background(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.book == nil {
		c.book = recipe.NewBook(log)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	c.idle = timer.New(func() { c.post(idleEvent{}) }, log,
		timer.WithClock(c.clock),
		timer.WithIdleTimeout(c.idleTimeout),
	)
	c.snap.Store(&Snapshot{})
	return c
}

// Run processes events until the session terminates or ctx is cancelled.
// Cancelling ctx shuts the session down without clearing the identity.
func (c *Controller) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return errors.New("session: Run called twice")
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer c.stop()

	c.ctx = ctx
	c.publish()

	for {
		select {
		case <-ctx.Done():
			c.terminate(CauseShutdown, nil)
			c.publish()
			return nil
		case ev := <-c.inbox:
			c.handle(ev)
			c.publish()
			if c.st.phase == domain.PhaseTerminated {
				return nil
			}
		}
	}
}

// Done is closed once Run has returned.
func (c *Controller) Done() <-chan struct{} { return c.done }

// Updates signals that a new Snapshot is available. Signals coalesce.
func (c *Controller) Updates() <-chan struct{} { return c.updates }

// Snapshot returns the latest published state.
func (c *Controller) Snapshot() Snapshot { return *c.snap.Load() }

// Book returns the session's recipe cache.
func (c *Controller) Book() *recipe.Book { return c.book }

// ChooseMode selects text or voice. Only valid before the session opens.
func (c *Controller) ChooseMode(ctx context.Context, mode domain.Mode) error {
	return c.call(ctx, func() error {
		switch c.st.phase {
		case domain.PhaseTerminated:
			return domain.ErrTerminated
		case domain.PhaseIdle:
		default:
			return domain.ErrModeAlreadySet
		}
		if _, err := domain.ParseMode(string(mode)); err != nil {
			return err
		}
		c.st.mode = mode
		c.st.phase = domain.PhaseModeChosen
		c.log.Info("mode chosen: %s", mode)
		return nil
	})
}

// Open loads the identity and starts connecting. The session becomes
// active when the channel reports connected. Returns ErrNoIdentity when
// nobody is signed in.
func (c *Controller) Open(ctx context.Context) error {
	return c.call(ctx, func() error {
		switch c.st.phase {
		case domain.PhaseTerminated:
			return domain.ErrTerminated
		case domain.PhaseIdle:
			return fmt.Errorf("choose a mode first: %w", domain.ErrNotActive)
		case domain.PhaseConnecting, domain.PhaseActive:
			return nil
		}

		id, err := c.identity.Load(ctx)
		if err != nil {
			return fmt.Errorf("loading identity: %w", err)
		}
		c.st.identity = id
		c.st.phase = domain.PhaseConnecting
		c.st.conn = domain.ConnConnecting

		epoch, runCtx, mode := c.epoch, c.ctx, c.st.mode
		go func() {
			ch, err := c.dialer.Dial(runCtx, id, mode)
			if !c.post(dialedEvent{epoch: epoch, ch: ch, err: err}) && ch != nil {
				ch.Close()
			}
		}()
		c.log.Info("connecting as %s", id)
		return nil
	})
}

// SubmitText sends a free-text turn. It is rejected with an error wrapping
// ErrInputDisabled while the session is waiting on something else.
func (c *Controller) SubmitText(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.ErrEmptyInput
	}
	return c.call(ctx, func() error {
		return c.submit(ctx, text, "text")
	})
}

// Choose answers a pending suggestion set with a 1-based choice. The title
// is recorded as the user's message and the index is sent.
func (c *Controller) Choose(ctx context.Context, choice int) error {
	return c.call(ctx, func() error {
		return c.choose(ctx, choice)
	})
}

// StartCapture begins a voice capture. Voice mode only.
func (c *Controller) StartCapture(ctx context.Context) error {
	return c.call(ctx, func() error {
		return c.startCapture(ctx)
	})
}

// StopCapture ends the capture and transcribes it in the background. The
// recognised text is submitted like typed text.
func (c *Controller) StopCapture(ctx context.Context) error {
	return c.call(ctx, func() error {
		return c.stopCapture()
	})
}

// ToggleCapture starts a capture, or stops the running one.
func (c *Controller) ToggleCapture(ctx context.Context) error {
	return c.call(ctx, func() error {
		if c.st.recording {
			return c.stopCapture()
		}
		return c.startCapture(ctx)
	})
}

// SaveFavourite saves the current recipe. The outcome is reported as a bot
// message and the current recipe is cleared afterwards.
func (c *Controller) SaveFavourite(ctx context.Context) error {
	return c.call(ctx, func() error {
		return c.saveFavourite()
	})
}

// NewChat asks the backend to start over. History is cleared when the
// backend confirms.
func (c *Controller) NewChat(ctx context.Context) error {
	return c.call(ctx, func() error {
		if err := c.canSubmit(); err != nil {
			c.reject(ctx, err)
			return err
		}
		return c.send(ctx, "/new", "new_chat")
	})
}

// Logout ends the session and forgets the identity.
func (c *Controller) Logout(ctx context.Context) error {
	return c.call(ctx, func() error {
		c.terminate(CauseLogout, nil)
		return nil
	})
}

// call runs fn on the event loop and returns its result.
func (c *Controller) call(ctx context.Context, fn func() error) error {
	reply := make(chan error, 1)
	select {
	case c.inbox <- requestEvent{fn: fn, reply: reply}:
	case <-c.done:
		return domain.ErrTerminated
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-reply:
		return err
	case <-c.done:
		select {
		case err := <-reply:
			return err
		default:
			return domain.ErrTerminated
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post delivers an internal event. It reports false once the loop is gone,
// in which case the caller still owns whatever the event carried.
func (c *Controller) post(ev event) bool {
	c.postMu.Lock()
	defer c.postMu.Unlock()
	if c.stopped {
		return false
	}
	select {
	case c.inbox <- ev:
		return true
	case <-c.done:
		return false
	}
}

// stop closes done and releases what undelivered events still hold. Once
// stopped, post refuses new events.
func (c *Controller) stop() {
	close(c.done)

	c.postMu.Lock()
	c.stopped = true
	c.postMu.Unlock()

	for {
		select {
		case ev := <-c.inbox:
			c.discard(ev)
		default:
			return
		}
	}
}

func (c *Controller) discard(ev event) {
	switch ev := ev.(type) {
	case dialedEvent:
		if ev.ch != nil {
			c.log.Debug("closing channel dialed after termination")
			ev.ch.Close()
		}
	case requestEvent:
		ev.reply <- domain.ErrTerminated
	}
}

func (c *Controller) publish() {
	s := c.st.snapshot()
	c.snap.Store(&s)
	select {
	case c.updates <- struct{}{}:
	default:
	}
}
