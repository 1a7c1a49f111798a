package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/hammamikhairi/tabkha/internal/conversation"
	"github.com/hammamikhairi/tabkha/internal/domain"
	"github.com/hammamikhairi/tabkha/internal/typing"
)

// event is anything the loop handles.
type event interface{}

type requestEvent struct {
	fn    func() error
	reply chan error
}

type dialedEvent struct {
	epoch int
	ch    domain.Channel
	err   error
}

type channelEvent struct {
	epoch int
	ev    domain.ChannelEvent
}

type transcribedEvent struct {
	epoch int
	text  string
	err   error
}

type spokenEvent struct {
	epoch int
	err   error
}

type tickEvent struct {
	id int
}

type savedEvent struct {
	epoch  int
	title  string
	result domain.FavouriteResult
	err    error
}

type preloadedEvent struct {
	epoch int
	favs  []domain.RecipeArtifact
	err   error
}

type idleEvent struct{}

func (c *Controller) handle(ev event) {
	switch ev := ev.(type) {
	case requestEvent:
		ev.reply <- ev.fn()
	case dialedEvent:
		c.onDialed(ev)
	case channelEvent:
		if ev.epoch == c.epoch {
			c.onChannel(ev.ev)
		}
	case transcribedEvent:
		if ev.epoch == c.epoch {
			c.onTranscribed(ev.text, ev.err)
		}
	case spokenEvent:
		if ev.epoch == c.epoch {
			c.onSpoken(ev.err)
		}
	case tickEvent:
		c.onTick(ev.id)
	case savedEvent:
		if ev.epoch == c.epoch {
			c.onSaved(ev)
		}
	case preloadedEvent:
		if ev.epoch == c.epoch {
			c.onPreloaded(ev)
		}
	case idleEvent:
		if c.st.phase == domain.PhaseActive {
			c.terminate(CauseInactivity, fmt.Errorf("no activity for %s", c.idleTimeout))
		}
	default:
		c.log.Warn("unhandled event %T", ev)
	}
}

// ── Channel ──────────────────────────────────────────────────────

func (c *Controller) onDialed(ev dialedEvent) {
	if ev.epoch != c.epoch {
		if ev.ch != nil {
			ev.ch.Close()
		}
		return
	}
	if ev.err != nil {
		c.terminate(CauseTransport, ev.err)
		return
	}
	c.ch = ev.ch
	go c.pump(ev.ch, c.epoch)
}

// pump forwards channel events into the inbox until the channel is done.
func (c *Controller) pump(ch domain.Channel, epoch int) {
	for ev := range ch.Events() {
		if !c.post(channelEvent{epoch: epoch, ev: ev}) {
			return
		}
	}
}

func (c *Controller) onChannel(ev domain.ChannelEvent) {
	switch ev.Kind {
	case domain.ChannelConnected:
		if c.st.phase != domain.PhaseConnecting {
			return
		}
		c.st.phase = domain.PhaseActive
		c.st.conn = domain.ConnConnected
		c.metrics.ActiveSessions.Add(c.ctx, 1)
		c.idle.Start()
		c.preloadFavourites()
		c.log.Info("session active (mode=%s)", c.st.mode)

	case domain.ChannelMessage:
		if ev.Frame == nil {
			return
		}
		if c.st.phase != domain.PhaseActive {
			c.log.Warn("dropping %s frame received while %s", ev.Frame.Type, c.st.phase)
			return
		}
		c.onFrame(ev.Frame)

	case domain.ChannelClosed:
		err := ev.Err
		if err == nil {
			err = domain.ErrChannelClosed
		}
		c.terminate(CauseTransport, err)

	case domain.ChannelError:
		if errors.Is(ev.Err, domain.ErrMalformedFrame) {
			c.terminate(CauseProtocol, ev.Err)
			return
		}
		c.terminate(CauseTransport, ev.Err)
	}
}

func (c *Controller) onFrame(f *domain.Frame) {
	c.metrics.RecordFrame(c.ctx, string(f.Type))
	c.idle.Touch()

	switch f.Type {
	case domain.FrameSuggestions:
		prompt := f.Message
		if prompt == "" {
			prompt = conversation.SuggestionsPrompt
		}
		c.appendMessage(domain.SenderBot, prompt)
		c.st.answered = nil
		if len(f.Suggestions) == 0 {
			c.log.Warn("suggestions frame without titles")
			c.st.suggestions = nil
			c.st.awaiting = false
			return
		}
		c.st.suggestions = &domain.SuggestionSet{Prompt: prompt, Titles: slices.Clone(f.Suggestions)}
		c.log.Debug("offered %d suggestion(s)", len(f.Suggestions))

	case domain.FrameResponse:
		c.st.awaiting = false
		c.st.suggestions = nil
		c.st.answered = nil
		if a, ok := f.Artifact(); ok {
			c.book.Put(a)
			c.st.current = &a
		}
		c.startReveal(f.Message)
		if c.st.mode == domain.ModeVoice && c.speaker != nil && strings.TrimSpace(f.Message) != "" {
			c.speak(f.Message)
		}

	case domain.FrameError:
		if f.Message != "" {
			c.appendMessage(domain.SenderBot, f.Message)
		}
		c.st.awaiting = false
		// The backend still expects a choice after refusing one.
		if c.st.answered != nil {
			c.st.suggestions, c.st.answered = c.st.answered, nil
		}

	case domain.FrameReset:
		c.discardReveal()
		c.st.messages = nil
		c.st.suggestions = nil
		c.st.answered = nil
		c.st.current = nil
		c.st.awaiting = false
		if f.Message != "" {
			c.push(domain.SenderBot, f.Message)
		}
		c.log.Info("conversation reset")

	case domain.FrameAuthRequest:
		c.log.Debug("ignoring auth request, handshake already sent")

	default:
		c.log.Warn("ignoring unknown frame type %q", f.Type)
	}
}

// ── Turns ────────────────────────────────────────────────────────

// canSubmit must run on the loop.
func (c *Controller) canSubmit() error {
	if err := c.active(); err != nil {
		return err
	}
	switch {
	case c.st.suggestions != nil:
		return domain.ErrChoiceRequired
	case c.st.awaiting:
		return domain.ErrAwaitingReply
	case c.st.speaking:
		return domain.ErrBotSpeaking
	case c.st.recording, c.st.transcribing:
		return domain.ErrRecording
	}
	return nil
}

func (c *Controller) active() error {
	switch c.st.phase {
	case domain.PhaseActive:
		return nil
	case domain.PhaseTerminated:
		return domain.ErrTerminated
	}
	return domain.ErrNotActive
}

func (c *Controller) submit(ctx context.Context, text, kind string) error {
	if err := c.canSubmit(); err != nil {
		c.reject(ctx, err)
		return err
	}
	c.appendMessage(domain.SenderUser, text)
	return c.send(ctx, text, kind)
}

func (c *Controller) choose(ctx context.Context, choice int) error {
	if err := c.active(); err != nil {
		return err
	}
	if c.st.suggestions == nil {
		c.reject(ctx, domain.ErrNoSuggestions)
		return domain.ErrNoSuggestions
	}
	title, ok := c.st.suggestions.Title(choice)
	if !ok {
		err := fmt.Errorf("%w: %d not in 1..%d", domain.ErrInvalidChoice, choice, c.st.suggestions.Len())
		c.reject(ctx, err)
		return err
	}
	switch {
	case c.st.speaking:
		c.reject(ctx, domain.ErrBotSpeaking)
		return domain.ErrBotSpeaking
	case c.st.recording, c.st.transcribing:
		c.reject(ctx, domain.ErrRecording)
		return domain.ErrRecording
	}

	c.appendMessage(domain.SenderUser, title)
	c.st.suggestions, c.st.answered = nil, c.st.suggestions
	return c.send(ctx, strconv.Itoa(choice), "choice")
}

// send marks the turn in flight and writes it. A write failure is fatal.
func (c *Controller) send(ctx context.Context, text, kind string) error {
	c.st.awaiting = true
	c.st.started = true
	c.idle.Touch()
	c.metrics.RecordTurn(ctx, string(c.st.mode), kind)

	wctx, cancel := context.WithTimeout(c.ctx, c.sendTimeout)
	defer cancel()
	if err := c.ch.Send(wctx, text); err != nil {
		c.terminate(CauseTransport, fmt.Errorf("sending turn: %w", err))
		return fmt.Errorf("sending turn: %w", err)
	}
	return nil
}

func (c *Controller) reject(ctx context.Context, err error) {
	c.log.Debug("input rejected: %v", err)
	c.metrics.RecordRejected(ctx, rejectReason(err))
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrChoiceRequired):
		return "choice_required"
	case errors.Is(err, domain.ErrAwaitingReply):
		return "awaiting_reply"
	case errors.Is(err, domain.ErrBotSpeaking):
		return "bot_speaking"
	case errors.Is(err, domain.ErrRecording):
		return "recording"
	case errors.Is(err, domain.ErrNoSuggestions):
		return "no_suggestions"
	case errors.Is(err, domain.ErrInvalidChoice):
		return "invalid_choice"
	case errors.Is(err, domain.ErrAlreadyCapturing):
		return "already_capturing"
	case errors.Is(err, domain.ErrTerminated):
		return "terminated"
	case errors.Is(err, domain.ErrNotActive):
		return "not_active"
	}
	return "other"
}

// ── History & typing ─────────────────────────────────────────────

// appendMessage commits any in-flight reveal first so ordinals follow
// finalization order.
func (c *Controller) appendMessage(sender domain.Sender, text string) {
	c.commitReveal()
	c.push(sender, text)
}

func (c *Controller) push(sender domain.Sender, text string) {
	c.st.ordinal++
	c.st.messages = append(c.st.messages, domain.Message{
		Ordinal: c.st.ordinal,
		Sender:  sender,
		Text:    text,
		At:      c.clock.Now(),
	})
}

func (c *Controller) startReveal(text string) {
	c.commitReveal()
	if typing.Steps(text) == 0 {
		c.push(domain.SenderBot, text)
		return
	}
	c.revealSeq++
	c.st.reveal = newReveal(c.revealSeq, text, typing.Reveal(text))
	c.scheduleTick()
}

func (c *Controller) scheduleTick() {
	r := c.st.reveal
	id := r.id
	r.tick = c.clock.AfterFunc(c.interval, func() { c.post(tickEvent{id: id}) })
}

func (c *Controller) onTick(id int) {
	r := c.st.reveal
	if r == nil || r.id != id {
		return
	}
	v, ok := r.next()
	if !ok || v == r.text {
		c.commitReveal()
		return
	}
	r.partial = v
	c.scheduleTick()
}

func (c *Controller) commitReveal() {
	r := c.st.reveal
	if r == nil {
		return
	}
	c.st.reveal = nil
	r.halt()
	c.push(domain.SenderBot, r.text)
}

func (c *Controller) discardReveal() {
	if r := c.st.reveal; r != nil {
		c.st.reveal = nil
		r.halt()
	}
}

// ── Voice ────────────────────────────────────────────────────────

func (c *Controller) startCapture(ctx context.Context) error {
	if err := c.active(); err != nil {
		return err
	}
	if c.st.mode != domain.ModeVoice {
		return domain.ErrWrongMode
	}
	if c.voice == nil {
		c.notify(conversation.LineNoMicrophone)
		return domain.ErrDeviceUnavailable
	}

	var err error
	switch {
	case c.st.recording, c.st.transcribing:
		err = domain.ErrAlreadyCapturing
	case c.st.speaking:
		err = domain.ErrBotSpeaking
	case c.st.awaiting:
		err = domain.ErrAwaitingReply
	case c.st.suggestions != nil:
		err = domain.ErrChoiceRequired
	}
	if err != nil {
		c.reject(ctx, err)
		return err
	}

	if err := c.voice.Start(c.ctx); err != nil {
		if errors.Is(err, domain.ErrDeviceUnavailable) {
			c.notify(conversation.LineNoMicrophone)
		}
		return err
	}
	c.st.recording = true
	c.idle.Touch()
	return nil
}

func (c *Controller) stopCapture() error {
	if err := c.active(); err != nil {
		return err
	}
	if !c.st.recording {
		return domain.ErrNotCapturing
	}
	c.st.recording = false
	c.st.transcribing = true

	epoch, ctx := c.epoch, c.ctx
	go func() {
		text, err := c.voice.Finish(ctx)
		c.post(transcribedEvent{epoch: epoch, text: text, err: err})
	}()
	return nil
}

func (c *Controller) onTranscribed(text string, err error) {
	c.st.transcribing = false
	c.idle.Touch()

	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		if c.fatalTranscription {
			c.terminate(CauseTranscription, err)
			return
		}
		c.log.Warn("transcription failed: %v", err)
		c.appendMessage(domain.SenderBot, conversation.LineTranscriptionRetry)
		return
	}
	if text == "" {
		c.log.Debug("nothing recognised")
		return
	}
	if err := c.submit(c.ctx, text, "voice"); err != nil && !errors.Is(err, domain.ErrTerminated) {
		c.log.Warn("dropping transcript %q: %v", text, err)
	}
}

// ── Playback ─────────────────────────────────────────────────────

func (c *Controller) speak(text string) {
	if c.st.speaking {
		c.log.Warn("reply arrived while speaking, not voicing it")
		return
	}
	c.st.speaking = true

	epoch, ctx := c.epoch, c.ctx
	go func() {
		err := c.speaker.Speak(ctx, text)
		c.post(spokenEvent{epoch: epoch, err: err})
	}()
}

func (c *Controller) onSpoken(err error) {
	c.st.speaking = false
	c.st.awaiting = false
	c.idle.Touch()

	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	if c.fatalSynthesis {
		c.terminate(CauseSynthesis, err)
		return
	}
	c.log.Warn("playback failed: %v", err)
	c.appendMessage(domain.SenderBot, conversation.LineSpeechSkipped)
}

// ── Favourites ───────────────────────────────────────────────────

func (c *Controller) saveFavourite() error {
	if err := c.active(); err != nil {
		return err
	}
	if c.st.current == nil {
		return domain.ErrNoCurrentRecipe
	}
	if c.favourites == nil {
		return errors.New("favourites are not available")
	}

	recipe, id := *c.st.current, c.st.identity
	epoch, ctx := c.epoch, c.ctx
	go func() {
		res, err := c.favourites.AddFavourite(ctx, id, recipe)
		c.post(savedEvent{epoch: epoch, title: recipe.Title, result: res, err: err})
	}()
	return nil
}

func (c *Controller) onSaved(ev savedEvent) {
	if ev.err != nil {
		c.log.Warn("saving favourite %q: %v", ev.title, ev.err)
	}
	c.appendMessage(domain.SenderBot, conversation.LineFavourite(ev.title, ev.result, ev.err))
	if ev.err == nil && ev.result == domain.FavouriteAdded && !slices.Contains(c.st.favourites, ev.title) {
		c.st.favourites = append(c.st.favourites, ev.title)
	}
	if c.st.current != nil && c.st.current.Title == ev.title {
		c.st.current = nil
	}
}

func (c *Controller) preloadFavourites() {
	if c.favourites == nil {
		return
	}
	id, epoch, ctx := c.st.identity, c.epoch, c.ctx
	go func() {
		favs, err := c.favourites.Favourites(ctx, id)
		c.post(preloadedEvent{epoch: epoch, favs: favs, err: err})
	}()
}

func (c *Controller) onPreloaded(ev preloadedEvent) {
	if ev.err != nil {
		c.log.Warn("loading favourites: %v", ev.err)
		return
	}
	n := c.book.Seed(ev.favs)
	for _, f := range ev.favs {
		if f.Title != "" && !slices.Contains(c.st.favourites, f.Title) {
			c.st.favourites = append(c.st.favourites, f.Title)
		}
	}
	c.log.Info("loaded %d favourite(s), %d new to the book", len(ev.favs), n)
}

// ── Termination ──────────────────────────────────────────────────

// terminate is the single exit path. Stale async results are dropped by
// bumping the epoch.
func (c *Controller) terminate(cause Cause, err error) {
	if c.st.phase == domain.PhaseTerminated {
		return
	}
	wasActive := c.st.phase == domain.PhaseActive

	c.epoch++
	c.st.phase = domain.PhaseTerminated
	c.st.conn = domain.ConnDisconnected
	c.st.cause = cause

	if err != nil {
		c.log.Error("session terminated (%s): %v", cause, err)
	} else {
		c.log.Info("session ended (%s)", cause)
	}

	c.teardown()

	if wasActive {
		c.metrics.ActiveSessions.Add(context.WithoutCancel(c.ctx), -1)
	}
	c.metrics.RecordTermination(context.WithoutCancel(c.ctx), cause.String())

	if cause == CauseShutdown {
		return
	}
	if err := c.identity.Clear(context.WithoutCancel(c.ctx)); err != nil {
		c.log.Warn("clearing identity: %v", err)
	}
	if line := cause.line(); line != "" && c.notifier != nil {
		if err := c.notifier.NotifyUrgent(c.ctx, line); err != nil {
			c.log.Warn("notifying: %v", err)
		}
	}
}

// teardown unwinds capture, playback, typing and the channel.
func (c *Controller) teardown() {
	c.idle.Stop()
	c.discardReveal()

	if c.st.recording && c.voice != nil {
		c.voice.Abort()
	}
	if c.st.speaking && c.speaker != nil {
		c.speaker.Stop()
	}
	c.st.recording = false
	c.st.transcribing = false
	c.st.speaking = false
	c.st.awaiting = false

	if c.ch != nil {
		if err := c.ch.Close(); err != nil {
			c.log.Debug("closing channel: %v", err)
		}
		c.ch = nil
	}
}

func (c *Controller) notify(msg string) {
	if c.notifier == nil {
		return
	}
	if err := c.notifier.Notify(c.ctx, msg); err != nil {
		c.log.Warn("notifying: %v", err)
	}
}
