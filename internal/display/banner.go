package display

import (
	_ "embed"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/term"
)

//go:embed banner.txt
var bannerRaw string

// RenderBanner returns the banner art followed by the given taglines, each
// block centred for the current terminal width.
func RenderBanner(taglines ...string) string {
	width := termWidth()

	art := strings.Split(strings.TrimRight(bannerRaw, "\n"), "\n")

	var b strings.Builder
	writeCentred(&b, art, width, BannerStyle)
	if len(taglines) > 0 {
		b.WriteByte('\n')
		writeCentred(&b, taglines, width, secondaryStyle)
	}
	return b.String()
}

// writeCentred pads every line of block by the same amount so the block
// keeps its own alignment.
func writeCentred(b *strings.Builder, block []string, width int, style lipgloss.Style) {
	maxW := 0
	for _, l := range block {
		if w := lipgloss.Width(l); w > maxW {
			maxW = w
		}
	}
	pad := 0
	if width > maxW {
		pad = (width - maxW) / 2
	}
	for _, l := range block {
		b.WriteString(strings.Repeat(" ", pad))
		b.WriteString(style.Render(l))
		b.WriteByte('\n')
	}
}

// termWidth returns the current terminal column count, or 80 as fallback.
func termWidth() int {
	if w, _, err := term.GetSize(os.Stdout.Fd()); err == nil && w > 0 {
		return w
	}
	return 80
}
