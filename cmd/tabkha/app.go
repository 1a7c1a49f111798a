package main

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/hammamikhairi/tabkha/internal/account"
	"github.com/hammamikhairi/tabkha/internal/config"
	"github.com/hammamikhairi/tabkha/internal/conversation"
	"github.com/hammamikhairi/tabkha/internal/display"
	"github.com/hammamikhairi/tabkha/internal/domain"
	"github.com/hammamikhairi/tabkha/internal/logger"
	"github.com/hammamikhairi/tabkha/internal/observe"
	"github.com/hammamikhairi/tabkha/internal/recipe"
	"github.com/hammamikhairi/tabkha/internal/session"
	"github.com/hammamikhairi/tabkha/internal/speech"
	"github.com/hammamikhairi/tabkha/internal/storage"
	"github.com/hammamikhairi/tabkha/internal/voice"
)

// errQuit ends the app loop at the user's request.
var errQuit = errors.New("quit")

type cliApp struct {
	cfg      *config.Config
	dialer   domain.Dialer
	store    *storage.FileStore
	account  *account.Client
	voice    *voice.Pipeline
	speaker  *speech.Coordinator
	book     *recipe.Book // shared across sessions
	notifier domain.Notifier
	metrics  *observe.Metrics
	parser   *conversation.CommandParser
	ui       *display.UI
	log      *logger.Logger

	mode domain.Mode
}

// run signs the user in, converses until the session ends, and starts
// over after every critical error or logout. It returns when ctx ends or
// the user quits.
func (a *cliApp) run(ctx context.Context) error {
	a.mode = a.cfg.Session.Mode
	for {
		sctx, stop := context.WithCancel(ctx)
		ctl, err := a.signIn(sctx)
		if err == nil {
			err = a.converse(sctx, ctl)
			a.ui.Detach()
		}
		// Cancelling sctx shuts a live session down with its identity
		// kept. Wait for the teardown before starting over or exiting.
		stop()
		if ctl != nil {
			<-ctl.Done()
		}
		if err != nil {
			return quietErr(ctx, err)
		}
		if a.cfg.Session.Mode == "" {
			a.mode = ""
		}
	}
}

// signIn picks a mode and an identity, then opens a new session. The
// returned controller is running even when err is set.
func (a *cliApp) signIn(ctx context.Context) (*session.Controller, error) {
	for a.mode == "" {
		a.ui.Prompt(conversation.PromptMode)
		line, err := a.readLine(ctx)
		if err != nil {
			return nil, err
		}
		if a.parser.Parse(line).Type == domain.CommandQuit {
			return nil, errQuit
		}
		mode, err := domain.ParseMode(strings.ToLower(strings.TrimSpace(line)))
		if err != nil {
			a.ui.PrintHint("Please type text or voice.")
			continue
		}
		a.mode = mode
	}

	ctl := session.New(a.dialer, a.store, a.log.Named("session"),
		session.WithVoice(a.voice),
		session.WithSpeaker(a.speaker),
		session.WithBook(a.book),
		session.WithFavourites(a.account),
		session.WithNotifier(a.notifier),
		session.WithMetrics(a.metrics),
		session.WithTypingInterval(a.cfg.Session.TypingInterval),
		session.WithIdleTimeout(a.cfg.Session.InactivityTimeout),
		session.WithSendTimeout(a.cfg.Backend.Timeout),
		session.WithFatalTranscription(a.cfg.Session.FatalTranscriptionErrors),
		session.WithFatalSynthesis(a.cfg.Session.FatalSynthesisErrors),
	)
	go func() {
		if err := ctl.Run(ctx); err != nil {
			a.log.Error("session: %v", err)
		}
	}()

	if err := ctl.ChooseMode(ctx, a.mode); err != nil {
		return ctl, err
	}
	for {
		err := ctl.Open(ctx)
		if err == nil {
			return ctl, nil
		}
		if !errors.Is(err, domain.ErrNoIdentity) {
			return ctl, err
		}
		if err := a.askIdentity(ctx); err != nil {
			return ctl, err
		}
	}
}

// askIdentity reads an email and remembers it.
func (a *cliApp) askIdentity(ctx context.Context) error {
	for {
		a.ui.Prompt(conversation.PromptEmail)
		line, err := a.readLine(ctx)
		if err != nil {
			return err
		}
		if a.parser.Parse(line).Type == domain.CommandQuit {
			return errQuit
		}
		email := strings.TrimSpace(line)
		if !strings.Contains(email, "@") {
			a.ui.PrintHint("That does not look like an email address.")
			continue
		}
		return a.store.Save(ctx, email)
	}
}

// converse feeds user input to ctl until the session ends. A nil return
// means the session terminated on its own and the user may sign in again.
func (a *cliApp) converse(ctx context.Context, ctl *session.Controller) error {
	a.ui.Attach(ctl)
	input := a.ui.InputChan()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ctl.Done():
			cause := ctl.Snapshot().Cause
			a.log.Info("session ended: %s", cause)
			if cause == session.CauseShutdown {
				return context.Canceled
			}
			return nil
		case line, ok := <-input:
			if !ok {
				return errQuit
			}
			if err := a.dispatch(ctx, ctl, a.parser.Parse(line)); err != nil {
				return err
			}
		}
	}
}

// dispatch runs one parsed command. Only errQuit is returned; everything
// else is reported on screen.
func (a *cliApp) dispatch(ctx context.Context, ctl *session.Controller, cmd domain.Command) error {
	snap := ctl.Snapshot()
	a.log.Debug("command: %s (text=%q)", cmd.Type, cmd.Text)

	var err error
	switch cmd.Type {
	case domain.CommandSay:
		err = ctl.SubmitText(ctx, cmd.Text)
	case domain.CommandChoose:
		if snap.ExpectingChoice() {
			err = ctl.Choose(ctx, cmd.Choice)
		} else {
			err = ctl.SubmitText(ctx, cmd.Raw)
		}
	case domain.CommandTalk:
		err = ctl.ToggleCapture(ctx)
	case domain.CommandSave:
		err = ctl.SaveFavourite(ctx)
	case domain.CommandRecipe:
		a.showRecipe(snap, cmd.Text)
	case domain.CommandFavourites:
		a.showFavourites(ctx, snap.Identity)
	case domain.CommandProfile:
		a.showProfile(ctx, snap.Identity)
	case domain.CommandPrefer, domain.CommandUnprefer:
		a.editPreference(ctx, snap.Identity, cmd)
	case domain.CommandHistory:
		a.showHistory(ctx, snap.Identity)
	case domain.CommandNewChat:
		err = ctl.NewChat(ctx)
	case domain.CommandLogout:
		err = ctl.Logout(ctx)
	case domain.CommandHelp:
		for _, l := range strings.Split(conversation.HelpText, "\n") {
			a.ui.PrintInstruction(l)
		}
	case domain.CommandQuit:
		return errQuit
	default:
		a.ui.PrintHint("Unknown command. Type /help for the list.")
	}
	a.report(err)
	return nil
}

// report prints a command error. Refused input is a hint, not a failure.
func (a *cliApp) report(err error) {
	switch {
	case err == nil, errors.Is(err, domain.ErrTerminated), errors.Is(err, domain.ErrEmptyInput):
	case errors.Is(err, domain.ErrInputDisabled):
		a.ui.PrintHint("❗ " + err.Error())
	case errors.Is(err, domain.ErrWrongMode):
		a.ui.PrintHint("❗ Voice input needs voice mode.")
	default:
		a.log.Warn("command failed: %v", err)
		a.ui.PrintUrgent(err.Error())
	}
}

func (a *cliApp) showRecipe(snap session.Snapshot, query string) {
	var r domain.RecipeArtifact
	switch {
	case query != "":
		found, err := a.book.Find(query)
		if err != nil {
			a.ui.PrintHint(fmt.Sprintf("No recipe matching %q. Known: %s", query, strings.Join(a.book.Titles(), "، ")))
			return
		}
		r = found
	case snap.Current != nil:
		r = *snap.Current
	default:
		a.ui.PrintHint("No recipe yet. Pick one of the suggestions first.")
		return
	}
	a.ui.PrintStep(r.Title)
	for _, l := range strings.Split(r.Content, "\n") {
		a.ui.PrintInstruction(l)
	}
}

func (a *cliApp) showFavourites(ctx context.Context, identity string) {
	favs, err := a.account.Favourites(ctx, identity)
	if err != nil {
		a.log.Warn("favourites: %v", err)
		a.ui.PrintUrgent("Could not load your favourites.")
		return
	}
	if len(favs) == 0 {
		a.ui.PrintHint("No favourites yet. Use /save on a recipe.")
		return
	}
	a.book.Seed(favs)
	a.ui.PrintStep("Favourites:")
	for i, f := range favs {
		a.ui.PrintInstruction(fmt.Sprintf("[%d] %s", i+1, f.Title))
	}
	a.ui.PrintHint("Use /recipe <title> to read one.")
}

func (a *cliApp) showProfile(ctx context.Context, identity string) {
	p, err := a.account.Profile(ctx, identity)
	if err != nil {
		a.log.Warn("profile: %v", err)
		a.ui.PrintUrgent("Could not load your profile.")
		return
	}
	name := p.Name
	if name == "" {
		name = identity
	}
	a.ui.PrintStep("Profile: " + name)
	for _, f := range []domain.PreferenceField{domain.PreferenceLikes, domain.PreferenceDislikes, domain.PreferenceAllergies} {
		a.ui.PrintInstruction(fmt.Sprintf("%-10s %s", f+":", listOrNone(p.List(f))))
	}
}

// editPreference adds or removes one entry. The backend replaces whole
// lists, so the current profile is read first.
func (a *cliApp) editPreference(ctx context.Context, identity string, cmd domain.Command) {
	p, err := a.account.Profile(ctx, identity)
	if err != nil {
		a.log.Warn("profile: %v", err)
		a.ui.PrintUrgent("Could not load your profile.")
		return
	}
	list := slices.Clone(p.List(cmd.Field))
	idx := slices.Index(list, cmd.Text)

	switch cmd.Type {
	case domain.CommandPrefer:
		if idx >= 0 {
			a.ui.PrintHint(fmt.Sprintf("%q is already in your %s.", cmd.Text, cmd.Field))
			return
		}
		list = append(list, cmd.Text)
	case domain.CommandUnprefer:
		if idx < 0 {
			a.ui.PrintHint(fmt.Sprintf("%q is not in your %s.", cmd.Text, cmd.Field))
			return
		}
		list = slices.Delete(list, idx, idx+1)
	}

	if err := a.account.UpdatePreference(ctx, identity, cmd.Field, list); err != nil {
		a.log.Warn("update %s: %v", cmd.Field, err)
		a.ui.PrintUrgent("Could not update your profile.")
		return
	}
	a.ui.PrintChat(fmt.Sprintf("✅ %s: %s", cmd.Field, listOrNone(list)))
}

func (a *cliApp) showHistory(ctx context.Context, identity string) {
	logs, err := a.account.ChatLogs(ctx, identity)
	if err != nil {
		a.log.Warn("chat logs: %v", err)
		a.ui.PrintUrgent("Could not load your past conversations.")
		return
	}
	if len(logs) == 0 {
		a.ui.PrintHint("No past conversations.")
		return
	}
	a.ui.PrintStep("Past conversations:")
	for _, l := range logs {
		first := ""
		for _, line := range l.Chat {
			if line.Sender == "user" {
				first = line.Text
				break
			}
		}
		a.ui.PrintInstruction(fmt.Sprintf("%s  %s (%d messages)", l.Timestamp, truncateStr(first, 40), len(l.Chat)))
	}
}

// readLine waits for one line of input outside a session.
func (a *cliApp) readLine(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-a.ui.InputChan():
		if !ok {
			return "", errQuit
		}
		return line, nil
	}
}

// quietErr hides the errors that mean a normal exit.
func quietErr(ctx context.Context, err error) error {
	if errors.Is(err, errQuit) || ctx.Err() != nil {
		return nil
	}
	return err
}

func listOrNone(l []string) string {
	if len(l) == 0 {
		return "none"
	}
	return strings.Join(l, ", ")
}

func truncateStr(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
