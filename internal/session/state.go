package session

import (
	"iter"

	"github.com/hammamikhairi/tabkha/internal/domain"
	"github.com/hammamikhairi/tabkha/internal/timer"
)

// state is the loop-owned session state.
type state struct {
	phase    domain.Phase
	mode     domain.Mode
	conn     domain.ConnStatus
	identity string

	messages    []domain.Message
	ordinal     int
	suggestions *domain.SuggestionSet
	answered    *domain.SuggestionSet // last set answered; restored on an error frame
	current     *domain.RecipeArtifact
	favourites  []string
	reveal      *reveal

	awaiting     bool
	speaking     bool
	recording    bool
	transcribing bool
	started      bool
	cause        Cause
}

func (s *state) snapshot() Snapshot {
	snap := Snapshot{
		Phase:        s.phase,
		Mode:         s.mode,
		Conn:         s.conn,
		Identity:     s.identity,
		Messages:     s.messages[:len(s.messages):len(s.messages)],
		Suggestions:  s.suggestions,
		Current:      s.current,
		Favourites:   s.favourites[:len(s.favourites):len(s.favourites)],
		Awaiting:     s.awaiting,
		Speaking:     s.speaking,
		Recording:    s.recording,
		Transcribing: s.transcribing,
		Started:      s.started,
		Cause:        s.cause,
	}
	if s.reveal != nil {
		snap.Typing = s.reveal.partial
		snap.Revealing = true
	}
	return snap
}

// reveal is one in-flight typing animation. next and stop come from
// iter.Pull and are only touched by the event loop.
type reveal struct {
	id      int
	text    string
	partial string
	next    func() (string, bool)
	stop    func()
	tick    timer.Stopper
}

func newReveal(id int, text string, seq iter.Seq[string]) *reveal {
	next, stop := iter.Pull(seq)
	return &reveal{id: id, text: text, next: next, stop: stop}
}

func (r *reveal) halt() {
	if r.tick != nil {
		r.tick.Stop()
	}
	r.stop()
}
