package conversation

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/hammamikhairi/tabkha/internal/domain"
	"github.com/hammamikhairi/tabkha/internal/logger"
)

func TestCommandParser(t *testing.T) {
	log := logger.New(logger.LevelOff, nil)
	parser := NewCommandParser(log)

	tests := []struct {
		input      string
		wantType   domain.CommandType
		wantText   string
		wantChoice int
		wantField  domain.PreferenceField
	}{
		// Choices
		{"1", domain.CommandChoose, "", 1, ""},
		{" 2 ", domain.CommandChoose, "", 2, ""},
		{"12", domain.CommandChoose, "", 12, ""},
		{"٣", domain.CommandChoose, "", 3, ""},
		{"۴", domain.CommandChoose, "", 4, ""},
		{"123", domain.CommandSay, "123", 0, ""},

		// Voice
		{"/talk", domain.CommandTalk, "", 0, ""},
		{"/T", domain.CommandTalk, "", 0, ""},

		// Recipes
		{"/save", domain.CommandSave, "", 0, ""},
		{"/recipe", domain.CommandRecipe, "", 0, ""},
		{"/recipe كشري", domain.CommandRecipe, "كشري", 0, ""},
		{"/favs", domain.CommandFavourites, "", 0, ""},
		{"/favorites", domain.CommandFavourites, "", 0, ""},

		// Profile
		{"/profile", domain.CommandProfile, "", 0, ""},
		{"/like ملوخية", domain.CommandPrefer, "ملوخية", 0, domain.PreferenceLikes},
		{"/dislike  بامية ", domain.CommandPrefer, "بامية", 0, domain.PreferenceDislikes},
		{"/allergy peanuts", domain.CommandPrefer, "peanuts", 0, domain.PreferenceAllergies},
		{"/unlike ملوخية", domain.CommandUnprefer, "ملوخية", 0, domain.PreferenceLikes},
		{"/unallergy peanuts", domain.CommandUnprefer, "peanuts", 0, domain.PreferenceAllergies},
		{"/history", domain.CommandHistory, "", 0, ""},

		// Session
		{"/new", domain.CommandNewChat, "", 0, ""},
		{"/logout", domain.CommandLogout, "", 0, ""},
		{"/help", domain.CommandHelp, "", 0, ""},
		{"?", domain.CommandHelp, "", 0, ""},
		{"/quit", domain.CommandQuit, "", 0, ""},
		{"/EXIT", domain.CommandQuit, "", 0, ""},

		// Free text
		{"عايز أكل حاجة خفيفة", domain.CommandSay, "عايز أكل حاجة خفيفة", 0, ""},
		{"what's for dinner?", domain.CommandSay, "what's for dinner?", 0, ""},

		// Unknown
		{"/like", domain.CommandUnknown, "", 0, ""},
		{"/dance", domain.CommandUnknown, "", 0, ""},
		{"", domain.CommandUnknown, "", 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			cmd := parser.Parse(tt.input)
			if cmd.Type != tt.wantType {
				t.Errorf("input=%q: got type %s, want %s", tt.input, cmd.Type, tt.wantType)
			}
			if cmd.Text != tt.wantText {
				t.Errorf("input=%q: got text %q, want %q", tt.input, cmd.Text, tt.wantText)
			}
			if cmd.Choice != tt.wantChoice {
				t.Errorf("input=%q: got choice %d, want %d", tt.input, cmd.Choice, tt.wantChoice)
			}
			if cmd.Field != tt.wantField {
				t.Errorf("input=%q: got field %q, want %q", tt.input, cmd.Field, tt.wantField)
			}
		})
	}
}

func TestCLINotifier(t *testing.T) {
	var out []string
	n := NewCLINotifier(logger.Nop(), func(format string, a ...interface{}) {
		out = append(out, fmt.Sprintf(format, a...))
	})
	ctx := context.Background()
	n.Notify(ctx, "hello")
	n.NotifyUrgent(ctx, LineConnectionLost)

	if len(out) != 2 {
		t.Fatalf("printed %d lines", len(out))
	}
	if !strings.Contains(out[0], "hello") || !strings.Contains(out[0], cyan) {
		t.Errorf("plain notice = %q", out[0])
	}
	if !strings.Contains(out[1], LineConnectionLost) || !strings.Contains(out[1], red) {
		t.Errorf("urgent notice = %q", out[1])
	}
}

func TestQueueNotifierNeverBlocks(t *testing.T) {
	n := NewQueueNotifier(2, logger.Nop())
	ctx := context.Background()

	n.Notify(ctx, "one")
	n.Notify(ctx, "two")
	n.Notify(ctx, "three")
	n.NotifyUrgent(ctx, "boom")

	var got []Notice
	for len(n.Notices()) > 0 {
		got = append(got, <-n.Notices())
	}
	if len(got) != 2 {
		t.Fatalf("queued %d notices, want 2", len(got))
	}
	if got[0].Text != "three" || got[1].Text != "boom" || !got[1].Urgent {
		t.Fatalf("notices = %+v", got)
	}
}

func TestLineFavourite(t *testing.T) {
	tests := []struct {
		result domain.FavouriteResult
		err    error
		want   string
	}{
		{domain.FavouriteAdded, nil, "has been added"},
		{domain.FavouriteExists, nil, "already in your favourites"},
		{domain.FavouriteFailed, nil, "Failed to add"},
		{domain.FavouriteAdded, fmt.Errorf("503"), "Server error"},
	}
	for _, tt := range tests {
		if got := LineFavourite("فتة", tt.result, tt.err); !strings.Contains(got, tt.want) {
			t.Errorf("LineFavourite(%s, %v) = %q, want it to contain %q", tt.result, tt.err, got, tt.want)
		}
	}
}

func TestRandomStarter(t *testing.T) {
	all := Starters()
	got := RandomStarter()
	for _, s := range all {
		if s == got {
			return
		}
	}
	t.Fatalf("RandomStarter returned %q, not one of %q", got, all)
}
