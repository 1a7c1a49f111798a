package conversation

import (
	"fmt"
	"math/rand/v2"

	"github.com/hammamikhairi/tabkha/internal/domain"
)

// Critical error texts. Each ends the session and returns the user to the
// sign-in screen.
const (
	LineConnectionLost     = "The connection was lost. You will be redirected to the homepage."
	LineUnexpectedError    = "An unexpected error occurred. You will be redirected to the homepage."
	LineTranscriptionError = "Failed to convert your voice to text. You will be redirected to the homepage."
	LineSpeechError        = "Failed to play the bot's voice. You will be redirected to the homepage."
	LineIdleTimeout        = "The session was idle for too long. You will be redirected to the homepage."
)

// Non-fatal notices appended to the conversation as bot messages.
const (
	LineTranscriptionRetry = "❗ Could not understand the recording, please try again."
	LineSpeechSkipped      = "❗ Could not play the reply aloud."
	LineNoMicrophone       = "🎙️ غير مدعوم"
	LineNotLoggedIn        = "❗ You must be logged in to add to favourites."
)

// SuggestionsPrompt is shown when a suggestions frame carries no message.
const SuggestionsPrompt = "اختر وصفة من الخيارات التالية:"

// Input hints, keyed to what the conversation is waiting for.
const (
	HintConnecting = "Connecting..."
	HintWait       = "Please wait..."
	HintChoose     = "Waiting for your choice..."
	HintType       = "Type here..."
	HintChoiceList = "Choose from the following suggestions ⬇"

	HintListening = "Listening..."
	HintSpeaking  = "Speaking..."
	HintThinking  = "Thinking..."
	HintTalk      = "Press ctrl+t to speak"
)

// LineFavourite returns the notice for a favourite save attempt. err is a
// transport or server failure.
func LineFavourite(title string, result domain.FavouriteResult, err error) string {
	if err != nil {
		return "❗ Server error while adding to favourites."
	}
	switch result {
	case domain.FavouriteAdded:
		return fmt.Sprintf("✅ %q has been added to your favourites.", title)
	case domain.FavouriteExists:
		return fmt.Sprintf("🔔 %q is already in your favourites.", title)
	default:
		return "❗ Failed to add to favourites."
	}
}

var starters = []string{
	"السلام عليكم",
	"أزيك؟ عامل إيه؟",
	"مساء الفل",
	"صباح الخير",
	"أنا زهقان شوية",
	"احكيلي حاجة حلوة",
	"إيه الأخبار؟",
}

// Starters returns the conversation openers offered before the first turn.
func Starters() []string {
	return append([]string(nil), starters...)
}

// RandomStarter picks one opener.
func RandomStarter() string {
	return starters[rand.IntN(len(starters))]
}

// Sign-in prompts, shown in the input placeholder.
const (
	PromptMode  = "Choose a mode: text or voice"
	PromptEmail = "Enter your email to sign in"
)

// LineGoodbye is printed after the terminal UI exits.
const LineGoodbye = "مع السلامة 👋"
