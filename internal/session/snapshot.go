package session

import (
	"github.com/hammamikhairi/tabkha/internal/conversation"
	"github.com/hammamikhairi/tabkha/internal/domain"
)

// Cause explains why a session ended.
type Cause int

const (
	CauseNone Cause = iota
	// CauseTransport is an unsolicited close or a network failure.
	CauseTransport
	// CauseProtocol is an inbound payload that could not be decoded.
	CauseProtocol
	CauseTranscription
	CauseSynthesis
	CauseInactivity
	CauseLogout
	// CauseShutdown is the application exiting. The identity is kept.
	CauseShutdown
)

// String returns a human-readable cause.
func (c Cause) String() string {
	switch c {
	case CauseNone:
		return "none"
	case CauseTransport:
		return "transport"
	case CauseProtocol:
		return "protocol"
	case CauseTranscription:
		return "transcription"
	case CauseSynthesis:
		return "synthesis"
	case CauseInactivity:
		return "inactivity"
	case CauseLogout:
		return "logout"
	case CauseShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Critical reports whether the cause goes through the critical-error path:
// the user is told and sent back to sign in.
func (c Cause) Critical() bool {
	return c.line() != ""
}

func (c Cause) line() string {
	switch c {
	case CauseTransport:
		return conversation.LineConnectionLost
	case CauseProtocol:
		return conversation.LineUnexpectedError
	case CauseTranscription:
		return conversation.LineTranscriptionError
	case CauseSynthesis:
		return conversation.LineSpeechError
	case CauseInactivity:
		return conversation.LineIdleTimeout
	}
	return ""
}

// Snapshot is an immutable view of the session for the presentation layer.
// Slices and pointers inside it are never mutated after publication.
type Snapshot struct {
	Phase    domain.Phase
	Mode     domain.Mode
	Conn     domain.ConnStatus
	Identity string

	Messages    []domain.Message
	Suggestions *domain.SuggestionSet
	Current     *domain.RecipeArtifact
	Favourites  []string

	// Typing is the visible prefix of the reply being revealed.
	Typing    string
	Revealing bool

	Awaiting     bool
	Speaking     bool
	Recording    bool
	Transcribing bool

	// Started is set by the first accepted turn.
	Started bool
	Cause   Cause
}

// CanSubmit reports whether free text would be accepted now.
func (s Snapshot) CanSubmit() bool {
	return s.Phase == domain.PhaseActive &&
		s.Suggestions == nil &&
		!s.Awaiting && !s.Speaking && !s.Recording && !s.Transcribing
}

// CanCapture reports whether a voice capture could start now.
func (s Snapshot) CanCapture() bool {
	return s.Mode == domain.ModeVoice && s.CanSubmit()
}

// ExpectingChoice reports whether the backend is waiting for a suggestion
// to be picked.
func (s Snapshot) ExpectingChoice() bool {
	return s.Phase == domain.PhaseActive && s.Suggestions.Len() > 0
}
