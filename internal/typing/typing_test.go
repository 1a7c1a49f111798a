package typing

import (
	"slices"
	"testing"
	"time"
)

func TestFrame(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		ticks int
		want  string
	}{
		{"zero ticks", "hello", 0, ""},
		{"negative", "hello", -3, ""},
		{"partial", "hello", 2, "he"},
		{"exact", "hello", 5, "hello"},
		{"past end", "hello", 99, "hello"},
		{"arabic", "تفضل", 2, "تف"},
		{"empty", "", 4, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Frame(tt.text, tt.ticks); got != tt.want {
				t.Fatalf("Frame(%q, %d) = %q, want %q", tt.text, tt.ticks, got, tt.want)
			}
		})
	}
}

func TestRevealEndsWithFullText(t *testing.T) {
	text := "كشري بالعدس"
	frames := slices.Collect(Reveal(text))

	if len(frames) != Steps(text) {
		t.Fatalf("got %d frames, want %d", len(frames), Steps(text))
	}
	if frames[len(frames)-1] != text {
		t.Fatalf("last frame = %q, want %q", frames[len(frames)-1], text)
	}
	for i := 1; i < len(frames); i++ {
		if len(frames[i]) <= len(frames[i-1]) {
			t.Fatalf("frame %d does not grow: %q -> %q", i, frames[i-1], frames[i])
		}
	}
}

func TestRevealKeepsMarksWithLetter(t *testing.T) {
	// "مَرْحَبًا" carries a mark after most letters.
	text := "مَرْحَبًا"
	if Steps(text) != 5 {
		t.Fatalf("Steps = %d, want 5 visible letters", Steps(text))
	}
	if got := Frame(text, 1); got != "مَ" {
		t.Fatalf("first frame = %q, want letter with its mark", got)
	}
}

func TestRevealIsRestartable(t *testing.T) {
	seq := Reveal("abc")
	first := slices.Collect(seq)
	second := slices.Collect(seq)
	if !slices.Equal(first, second) {
		t.Fatalf("sequences differ: %v vs %v", first, second)
	}
}

func TestRevealEarlyStop(t *testing.T) {
	n := 0
	for range Reveal("abcdef") {
		n++
		if n == 2 {
			break
		}
	}
	if n != 2 {
		t.Fatalf("n = %d", n)
	}
}

func TestRevealEmpty(t *testing.T) {
	if frames := slices.Collect(Reveal("")); len(frames) != 0 {
		t.Fatalf("expected no frames, got %v", frames)
	}
}

func TestDuration(t *testing.T) {
	if got := Duration("abcd", DefaultInterval); got != 120*time.Millisecond {
		t.Fatalf("Duration = %v", got)
	}
}
