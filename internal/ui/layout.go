package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/ideaboard/internal/theme"
)

// Layout splits the terminal into a header, an optional banner, the content
// area and a status bar.
type Layout struct {
	Width  int
	Height int

	// Banner is a one-line notice shown under the header. Empty hides it.
	Banner string
}

// NewLayout creates a Layout with the given terminal dimensions.
func NewLayout(width, height int) Layout {
	return Layout{Width: width, Height: height}
}

// WithBanner returns a copy of l that shows text under the header.
func (l Layout) WithBanner(text string) Layout {
	l.Banner = text
	return l
}

// ContentWidth returns the full available width.
func (l Layout) ContentWidth() int {
	return l.Width
}

// ContentHeight returns the rows left for the content area.
func (l Layout) ContentHeight() int {
	h := l.Height - 2
	if l.Banner != "" {
		h--
	}
	return max(h, 0)
}

// RenderHeader renders the title on the left and status on the right.
func (l Layout) RenderHeader(title, status string) string {
	return l.row(theme.HeaderStyle, theme.HeaderStyle.Render(title),
		theme.HeaderStyle.Align(lipgloss.Right).Render(status))
}

// RenderBanner renders the banner row, or "" when there is none.
func (l Layout) RenderBanner() string {
	if l.Banner == "" {
		return ""
	}
	return l.row(theme.BannerStyle, theme.BannerStyle.Render(l.Banner), "")
}

// RenderStatusBar renders the bottom status bar with keyboard hints.
func (l Layout) RenderStatusBar(hints string) string {
	return l.row(theme.StatusBarStyle, theme.StatusBarStyle.Render(hints), "")
}

// Render stacks the header, the banner when set, content and status bar.
func (l Layout) Render(header, content, statusBar string) string {
	rows := []string{header}
	if banner := l.RenderBanner(); banner != "" {
		rows = append(rows, banner)
	}
	rows = append(rows, content, statusBar)
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

// row pads the space between left and right with the style's background.
func (l Layout) row(style lipgloss.Style, left, right string) string {
	gap := max(l.Width-lipgloss.Width(left)-lipgloss.Width(right), 0)
	filler := lipgloss.NewStyle().
		Width(gap).
		Background(style.GetBackground()).
		Render("")
	return lipgloss.JoinHorizontal(lipgloss.Top, left, filler, right)
}
