// Package conversation turns typed lines into commands and holds the
// user-facing texts and notification sinks.
package conversation

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/hammamikhairi/tabkha/internal/domain"
	"github.com/hammamikhairi/tabkha/internal/logger"
)

// maxChoiceDigits bounds how long a bare number may be and still count as
// a suggestion choice.
const maxChoiceDigits = 2

// CommandParser matches typed input to commands using slash keywords.
// Anything that is not a command or a bare number is sent to the bot.
type CommandParser struct {
	log      *logger.Logger
	patterns []patternRule
}

type patternRule struct {
	regex   *regexp.Regexp
	command domain.CommandType
	field   domain.PreferenceField
}

// NewCommandParser creates the slash-command parser.
func NewCommandParser(log *logger.Logger) *CommandParser {
	p := &CommandParser{log: log}
	p.patterns = []patternRule{
		{regex: regexp.MustCompile(`(?i)^/(talk|mic|t)$`), command: domain.CommandTalk},
		{regex: regexp.MustCompile(`(?i)^/(save|fav)$`), command: domain.CommandSave},
		{regex: regexp.MustCompile(`(?i)^/(recipe|r)(\s+(?P<arg>.+))?$`), command: domain.CommandRecipe},
		{regex: regexp.MustCompile(`(?i)^/(favs|favourites|favorites)$`), command: domain.CommandFavourites},
		{regex: regexp.MustCompile(`(?i)^/(profile|me)$`), command: domain.CommandProfile},
		{regex: regexp.MustCompile(`(?i)^/like\s+(?P<arg>.+)$`), command: domain.CommandPrefer, field: domain.PreferenceLikes},
		{regex: regexp.MustCompile(`(?i)^/dislike\s+(?P<arg>.+)$`), command: domain.CommandPrefer, field: domain.PreferenceDislikes},
		{regex: regexp.MustCompile(`(?i)^/allergy\s+(?P<arg>.+)$`), command: domain.CommandPrefer, field: domain.PreferenceAllergies},
		{regex: regexp.MustCompile(`(?i)^/unlike\s+(?P<arg>.+)$`), command: domain.CommandUnprefer, field: domain.PreferenceLikes},
		{regex: regexp.MustCompile(`(?i)^/undislike\s+(?P<arg>.+)$`), command: domain.CommandUnprefer, field: domain.PreferenceDislikes},
		{regex: regexp.MustCompile(`(?i)^/unallergy\s+(?P<arg>.+)$`), command: domain.CommandUnprefer, field: domain.PreferenceAllergies},
		{regex: regexp.MustCompile(`(?i)^/(history|logs)$`), command: domain.CommandHistory},
		{regex: regexp.MustCompile(`(?i)^/(new|reset)$`), command: domain.CommandNewChat},
		{regex: regexp.MustCompile(`(?i)^/logout$`), command: domain.CommandLogout},
		{regex: regexp.MustCompile(`(?i)^(/help|/h|\?)$`), command: domain.CommandHelp},
		{regex: regexp.MustCompile(`(?i)^/(quit|exit|q)$`), command: domain.CommandQuit},
	}
	return p
}

// Parse converts one input line into a command. Empty input yields
// CommandUnknown; an unrecognised slash word is also CommandUnknown so it
// never reaches the bot by accident.
func (p *CommandParser) Parse(input string) domain.Command {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return domain.Command{Type: domain.CommandUnknown}
	}

	if n, ok := parseChoice(trimmed); ok {
		return domain.Command{Type: domain.CommandChoose, Raw: trimmed, Choice: n}
	}

	for _, rule := range p.patterns {
		m := rule.regex.FindStringSubmatch(trimmed)
		if m == nil {
			continue
		}
		cmd := domain.Command{Type: rule.command, Raw: trimmed, Field: rule.field}
		if i := rule.regex.SubexpIndex("arg"); i >= 0 {
			cmd.Text = strings.TrimSpace(m[i])
		}
		p.log.Debug("matched command: %s", cmd.Type)
		return cmd
	}

	if strings.HasPrefix(trimmed, "/") {
		p.log.Debug("unknown command %q", trimmed)
		return domain.Command{Type: domain.CommandUnknown, Raw: trimmed}
	}
	return domain.Command{Type: domain.CommandSay, Raw: trimmed, Text: trimmed}
}

// digits maps Arabic-Indic and Persian digits to ASCII so "٢" picks the
// second suggestion.
var digits = strings.NewReplacer(
	"٠", "0", "١", "1", "٢", "2", "٣", "3", "٤", "4",
	"٥", "5", "٦", "6", "٧", "7", "٨", "8", "٩", "9",
	"۰", "0", "۱", "1", "۲", "2", "۳", "3", "۴", "4",
	"۵", "5", "۶", "6", "۷", "7", "۸", "8", "۹", "9",
)

func parseChoice(s string) (int, bool) {
	s = digits.Replace(s)
	if len(s) > maxChoiceDigits || !isDigits(s) {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return len(s) > 0
}

// HelpText lists the commands the client understands.
const HelpText = `Commands:
  1, 2, ...          pick a suggestion
  /talk              start or stop a voice recording (voice mode)
  /save              save the current recipe to your favourites
  /recipe [title]    show the current recipe, or one from your book
  /favs              list your favourites
  /profile           show your likes, dislikes and allergies
  /like <food>       add to likes (also /dislike, /allergy)
  /unlike <food>     remove from likes (also /undislike, /unallergy)
  /history           list past conversations
  /new               start a new conversation
  /logout            sign out and forget this device
  /quit              exit`
