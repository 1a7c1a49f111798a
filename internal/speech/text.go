package speech

import (
	"regexp"
	"strings"
)

var (
	ansiCodes  = regexp.MustCompile(`\x1b\[[0-9;]*m`)
	markdown   = regexp.MustCompile("[*_#`~>|]+")
	listMarker = regexp.MustCompile(`(?m)^\s*(?:[-•]|\d+[.)])\s+`)
	blanks     = regexp.MustCompile(`[ \t]+`)
)

// Speakable strips formatting that should not be read aloud: terminal
// colour codes, markdown emphasis and list markers. Line breaks are kept
// since they end sentences.
func Speakable(text string) string {
	s := ansiCodes.ReplaceAllString(text, "")
	s = listMarker.ReplaceAllString(s, "")
	s = markdown.ReplaceAllString(s, "")
	s = blanks.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
