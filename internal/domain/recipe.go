// Package domain defines the core types and interfaces for the recipe chat
// client. All other packages depend on domain; domain depends on nothing.
package domain

// RecipeArtifact is a full recipe delivered by the backend after the user
// picked one of the suggested titles.
type RecipeArtifact struct {
	Title   string `json:"title"`
	Content string `json:"recipe"`
}

// Valid reports whether both the title and the content are present.
func (r RecipeArtifact) Valid() bool {
	return r.Title != "" && r.Content != ""
}

// SuggestionSet is the list of recipe titles the backend offered, with the
// prompt that accompanied them. Choices are 1-based.
type SuggestionSet struct {
	Prompt string
	Titles []string
}

// Len returns the number of selectable titles.
func (s *SuggestionSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Titles)
}

// Title returns the title for a 1-based choice.
func (s *SuggestionSet) Title(choice int) (string, bool) {
	if s == nil || choice < 1 || choice > len(s.Titles) {
		return "", false
	}
	return s.Titles[choice-1], true
}

// FavouriteResult is the outcome reported by the favourites service.
type FavouriteResult int

const (
	FavouriteAdded FavouriteResult = iota
	FavouriteExists
	FavouriteFailed
)

// String returns a human-readable favourite result.
func (f FavouriteResult) String() string {
	switch f {
	case FavouriteAdded:
		return "added"
	case FavouriteExists:
		return "exists"
	case FavouriteFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// PreferenceField names one of the editable profile lists.
type PreferenceField string

const (
	PreferenceLikes     PreferenceField = "likes"
	PreferenceDislikes  PreferenceField = "dislikes"
	PreferenceAllergies PreferenceField = "allergies"
)

// Valid reports whether the field is one the profile service accepts.
func (f PreferenceField) Valid() bool {
	switch f {
	case PreferenceLikes, PreferenceDislikes, PreferenceAllergies:
		return true
	}
	return false
}

// Profile holds the user's stored food preferences.
type Profile struct {
	Name      string   `json:"name"`
	Likes     []string `json:"likes"`
	Dislikes  []string `json:"dislikes"`
	Allergies []string `json:"allergies"`
}

// List returns the preference list for the given field.
func (p *Profile) List(field PreferenceField) []string {
	switch field {
	case PreferenceLikes:
		return p.Likes
	case PreferenceDislikes:
		return p.Dislikes
	case PreferenceAllergies:
		return p.Allergies
	}
	return nil
}

// ChatLog is one archived conversation as stored by the backend.
type ChatLog struct {
	ID        string        `json:"_id"`
	Timestamp string        `json:"timestamp"`
	Chat      []ChatLogLine `json:"chat"`
}

// ChatLogLine is a single utterance in an archived conversation.
type ChatLogLine struct {
	Sender string `json:"sender"`
	Text   string `json:"text"`
}
