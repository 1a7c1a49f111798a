package domain

// FrameType tags an inbound payload from the conversation backend.
type FrameType string

const (
	FrameSuggestions FrameType = "suggestions"
	FrameResponse    FrameType = "response"
	FrameError       FrameType = "error"
	FrameReset       FrameType = "reset"
	FrameAuthRequest FrameType = "auth_request"
)

// Frame is a decoded inbound payload. Only the fields relevant to Type are
// populated.
type Frame struct {
	Type          FrameType `json:"type"`
	Message       string    `json:"message,omitempty"`
	Suggestions   []string  `json:"suggestions,omitempty"`
	SelectedTitle string    `json:"selected_title,omitempty"`
	FullRecipe    string    `json:"full_recipe,omitempty"`
}

// Artifact returns the recipe carried by a response frame, if any.
func (f *Frame) Artifact() (RecipeArtifact, bool) {
	a := RecipeArtifact{Title: f.SelectedTitle, Content: f.FullRecipe}
	return a, a.Valid()
}

// Handshake is the first frame the client sends after connecting.
type Handshake struct {
	Email string `json:"email"`
	Mode  Mode   `json:"mode"`
}

// ChannelEventKind classifies events emitted by a Channel.
type ChannelEventKind int

const (
	ChannelConnected ChannelEventKind = iota
	ChannelMessage
	ChannelClosed
	ChannelError
)

// String returns a human-readable event kind.
func (k ChannelEventKind) String() string {
	switch k {
	case ChannelConnected:
		return "connected"
	case ChannelMessage:
		return "message"
	case ChannelClosed:
		return "closed"
	case ChannelError:
		return "error"
	default:
		return "unknown"
	}
}

// ChannelEvent is a single event from the transport. Frame is set for
// ChannelMessage, Err for ChannelError (and optionally ChannelClosed).
type ChannelEvent struct {
	Kind  ChannelEventKind
	Frame *Frame
	Err   error
}
