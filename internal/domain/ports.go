package domain

import "context"

// Channel is one open conversation connection. Events delivers, in order,
// ChannelConnected once the handshake is sent, then ChannelMessage for each
// decoded frame, and finally ChannelClosed or ChannelError. The events
// channel is closed after the last event.
type Channel interface {
	Send(ctx context.Context, text string) error
	Events() <-chan ChannelEvent
	Close() error
}

// Dialer opens conversation channels. Implementations send the handshake
// before reporting ChannelConnected.
type Dialer interface {
	Dial(ctx context.Context, identity string, mode Mode) (Channel, error)
}

// Clip is a finalized voice capture. Capturers that recognise speech on the
// device fill Text and leave PCM empty.
type Clip struct {
	PCM        []byte // signed 16-bit little endian
	SampleRate int
	Channels   int
	Text       string
}

// Empty reports whether the capture produced nothing worth transcribing.
func (c Clip) Empty() bool {
	return len(c.PCM) == 0 && c.Text == ""
}

// Capturer owns the microphone for one capture at a time. Start fails with
// ErrDeviceUnavailable when no input device exists.
type Capturer interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) (Clip, error)
	Abort()
}

// Transcriber turns a finalized clip into text.
type Transcriber interface {
	Transcribe(ctx context.Context, clip Clip) (string, error)
}

// Synthesizer turns text into an encoded audio stream (WAV or MP3).
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// AudioOutput plays one encoded clip. Play blocks until playback finishes,
// ctx is cancelled or Stop is called.
type AudioOutput interface {
	Play(ctx context.Context, audio []byte) error
	Stop()
}

// IdentityStore persists the opaque user identity between runs. Load
// returns ErrNoIdentity when nothing is stored.
type IdentityStore interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, identity string) error
	Clear(ctx context.Context) error
}

// FavouriteService saves and lists the user's favourite recipes.
type FavouriteService interface {
	AddFavourite(ctx context.Context, identity string, recipe RecipeArtifact) (FavouriteResult, error)
	Favourites(ctx context.Context, identity string) ([]RecipeArtifact, error)
}

// ProfileService reads and edits stored preferences and past chats.
type ProfileService interface {
	Profile(ctx context.Context, identity string) (*Profile, error)
	UpdatePreference(ctx context.Context, identity string, field PreferenceField, values []string) error
	ChatLogs(ctx context.Context, identity string) ([]ChatLog, error)
}

// Notifier delivers messages to the user outside the conversation history.
type Notifier interface {
	Notify(ctx context.Context, message string) error
	NotifyUrgent(ctx context.Context, message string) error
}
