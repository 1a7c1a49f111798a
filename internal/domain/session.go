package domain

import (
	"fmt"
	"strings"
	"time"
)

// Mode selects how the user talks to the bot.
type Mode string

const (
	ModeText  Mode = "text"
	ModeVoice Mode = "voice"
)

// ParseMode validates a user supplied mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeText:
		return ModeText, nil
	case ModeVoice:
		return ModeVoice, nil
	}
	return "", fmt.Errorf("unknown mode %q", s)
}

// Phase is the lifecycle state of a conversation session.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseModeChosen
	PhaseConnecting
	PhaseActive
	PhaseTerminated
)

// String returns a human-readable phase.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseModeChosen:
		return "mode_chosen"
	case PhaseConnecting:
		return "connecting"
	case PhaseActive:
		return "active"
	case PhaseTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// ConnStatus tracks the transport connection as seen by the session.
type ConnStatus int

const (
	ConnDisconnected ConnStatus = iota
	ConnConnecting
	ConnConnected
)

// String returns a human-readable connection status.
func (c ConnStatus) String() string {
	switch c {
	case ConnDisconnected:
		return "disconnected"
	case ConnConnecting:
		return "connecting"
	case ConnConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Sender identifies who produced a message.
type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// Message is one committed entry in the conversation history. Messages are
// immutable once appended; Ordinal reflects commit order.
type Message struct {
	Ordinal int
	Sender  Sender
	Text    string
	At      time.Time
}
