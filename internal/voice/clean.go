package voice

import (
	"regexp"
	"strings"
)

var (
	// whisper emits environmental annotations like "(keyboard clicking)",
	// "[BLANK_AUDIO]" or "[موسيقى]".
	annotation = regexp.MustCompile(`[\(\[][^\)\]]{1,40}[\)\]]`)
	// "[00:00:00.000 --> 00:00:05.000]" timestamp prefixes.
	timestamp = regexp.MustCompile(`^\[\d{2}:\d{2}:\d{2}\.\d{3} --> \d{2}:\d{2}:\d{2}\.\d{3}\]`)
	spaces    = regexp.MustCompile(`\s+`)
)

// Phrases whisper produces on silence. A transcript consisting only of
// one of these is discarded.
var hallucinations = []string{
	"...",
	"you",
	"thank you.",
	"thanks for watching!",
	"thank you for watching.",
	"شكرا",
	"شكرا.",
	"شكراً لكم",
	"ترجمة نانسي قنقر",
	"اشتركوا في القناة",
	"موسيقى",
}

// Clean normalizes a raw transcript: collapses whitespace, strips
// timestamps and bracketed annotations, and drops known silence
// hallucinations. Returns "" when nothing meaningful is left.
func Clean(s string) string {
	s = strings.TrimSpace(s)
	s = timestamp.ReplaceAllString(s, "")
	s = annotation.ReplaceAllString(s, " ")
	s = spaces.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)

	lower := strings.ToLower(s)
	for _, h := range hallucinations {
		if lower == h {
			return ""
		}
	}
	if strings.Trim(s, " .,!?،؟") == "" {
		return ""
	}
	return s
}
