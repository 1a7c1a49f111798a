package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors used across layers.
var (
	ErrNotFound        = errors.New("not found")
	ErrNoIdentity      = errors.New("no stored identity")
	ErrNotActive       = errors.New("session is not active")
	ErrTerminated      = errors.New("session terminated")
	ErrModeAlreadySet  = errors.New("mode already chosen")
	ErrWrongMode       = errors.New("operation not available in this mode")
	ErrEmptyInput      = errors.New("empty input")
	ErrInvalidChoice   = errors.New("invalid suggestion choice")
	ErrNoCurrentRecipe = errors.New("no current recipe")

	ErrDeviceUnavailable = errors.New("capture device unavailable")
	ErrAlreadyCapturing  = errors.New("capture already in progress")
	ErrNotCapturing      = errors.New("not capturing")
	ErrSpeaking          = errors.New("playback already in progress")

	ErrMalformedFrame = errors.New("malformed frame")
	ErrChannelClosed  = errors.New("channel closed")
)

// ErrInputDisabled is wrapped by every reason a submit can be refused.
var ErrInputDisabled = errors.New("input disabled")

var (
	ErrAwaitingReply  = fmt.Errorf("awaiting bot reply: %w", ErrInputDisabled)
	ErrChoiceRequired = fmt.Errorf("a suggestion must be chosen: %w", ErrInputDisabled)
	ErrBotSpeaking    = fmt.Errorf("bot is speaking: %w", ErrInputDisabled)
	ErrRecording      = fmt.Errorf("recording in progress: %w", ErrInputDisabled)
	ErrNoSuggestions  = fmt.Errorf("no suggestions pending: %w", ErrInputDisabled)
)
