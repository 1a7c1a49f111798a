package domain

// CommandType classifies a line typed into the client.
type CommandType int

const (
	CommandUnknown CommandType = iota
	// CommandSay is free text forwarded to the bot.
	CommandSay
	// CommandChoose picks a suggestion by its 1-based index.
	CommandChoose
	// CommandTalk toggles voice capture.
	CommandTalk
	CommandSave
	CommandRecipe
	CommandFavourites
	CommandProfile
	CommandPrefer
	CommandUnprefer
	CommandHistory
	CommandNewChat
	CommandLogout
	CommandHelp
	CommandQuit
)

// String returns a human-readable command type.
func (c CommandType) String() string {
	switch c {
	case CommandSay:
		return "say"
	case CommandChoose:
		return "choose"
	case CommandTalk:
		return "talk"
	case CommandSave:
		return "save"
	case CommandRecipe:
		return "recipe"
	case CommandFavourites:
		return "favourites"
	case CommandProfile:
		return "profile"
	case CommandPrefer:
		return "prefer"
	case CommandUnprefer:
		return "unprefer"
	case CommandHistory:
		return "history"
	case CommandNewChat:
		return "new_chat"
	case CommandLogout:
		return "logout"
	case CommandHelp:
		return "help"
	case CommandQuit:
		return "quit"
	default:
		return "unknown"
	}
}

// Command is a parsed input line.
type Command struct {
	Type   CommandType
	Raw    string
	Text   string
	Choice int
	Field  PreferenceField
}
