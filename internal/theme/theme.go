package theme

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/ideaboard/internal/model"
)

// Adaptive color pairs (dark terminal value, light terminal value).
var (
	ColorBlue    = lipgloss.AdaptiveColor{Dark: "#5B9BD5", Light: "#2B6CB0"}
	ColorGreen   = lipgloss.AdaptiveColor{Dark: "#6BCB77", Light: "#2F855A"}
	ColorYellow  = lipgloss.AdaptiveColor{Dark: "#FFD93D", Light: "#B7791F"}
	ColorRed     = lipgloss.AdaptiveColor{Dark: "#FF6B6B", Light: "#C53030"}
	ColorOrange  = lipgloss.AdaptiveColor{Dark: "#FFA94D", Light: "#C05621"}
	ColorMagenta = lipgloss.AdaptiveColor{Dark: "#CC5DE8", Light: "#805AD5"}
	ColorGray    = lipgloss.AdaptiveColor{Dark: "#868E96", Light: "#718096"}
	ColorWhite   = lipgloss.AdaptiveColor{Dark: "#F8F9FA", Light: "#1A202C"}
	ColorSubtle  = lipgloss.AdaptiveColor{Dark: "#495057", Light: "#CBD5E0"}
	ColorBorder  = lipgloss.AdaptiveColor{Dark: "#495057", Light: "#E2E8F0"}
)

// HeaderStyle is used for top-level section headers and the application title.
var HeaderStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorWhite).
	Background(ColorBlue).
	Padding(0, 1)

// StatusBarStyle is used for the bottom status bar.
var StatusBarStyle = lipgloss.NewStyle().
	Foreground(ColorWhite).
	Background(ColorSubtle).
	Padding(0, 1)

// BannerStyle marks the offline/stale notice under the header.
var BannerStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("#1A202C")).
	Background(ColorYellow).
	Padding(0, 1)

// DetailPanelStyle wraps the detail view content area.
var DetailPanelStyle = lipgloss.NewStyle().
	Padding(1, 2).
	Border(lipgloss.RoundedBorder()).
	BorderForeground(ColorBorder)

// HelpStyle is used for keyboard shortcut hints and help text.
var HelpStyle = lipgloss.NewStyle().
	Foreground(ColorGray).
	Italic(true)

// ListItemStyle is the default style for list items.
var ListItemStyle = lipgloss.NewStyle().
	PaddingLeft(2)

// SelectedItemStyle highlights the currently selected list item.
var SelectedItemStyle = lipgloss.NewStyle().
	PaddingLeft(1).
	Bold(true).
	Foreground(ColorBlue).
	BorderLeft(true).
	BorderStyle(lipgloss.ThickBorder()).
	BorderForeground(ColorBlue)

// DimmedStyle is used for read notifications.
var DimmedStyle = lipgloss.NewStyle().
	Foreground(ColorGray)

// BadgeStyle renders the unread counter in the header.
var BadgeStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("#FFFFFF")).
	Background(ColorRed).
	Padding(0, 1)

// ErrorStyle renders transient error messages in the status bar.
var ErrorStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorRed)

// TabStyle returns the style of a list tab.
func TabStyle(active bool) lipgloss.Style {
	base := lipgloss.NewStyle().Padding(0, 1)
	if active {
		return base.Bold(true).Foreground(ColorBlue).Underline(true)
	}
	return base.Foreground(ColorGray)
}

// TypeStyle returns a color-coded style for the given notification type.
func TypeStyle(t model.NotificationType) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true).Padding(0, 1)

	switch t {
	case model.TypeInfo:
		return base.Foreground(ColorBlue)
	case model.TypeSuccess:
		return base.Foreground(ColorGreen)
	case model.TypeWarning:
		return base.Foreground(ColorYellow)
	case model.TypeError:
		return base.Foreground(ColorRed)
	case model.TypeSystem:
		return base.Foreground(ColorMagenta)
	default:
		return base.Foreground(ColorGray)
	}
}

// PriorityStyle returns a color-coded style for the given priority.
func PriorityStyle(p model.Priority) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true)

	switch p {
	case model.PriorityUrgent:
		return base.Foreground(ColorRed)
	case model.PriorityHigh:
		return base.Foreground(ColorOrange)
	case model.PriorityMedium:
		return base.Foreground(ColorYellow)
	case model.PriorityLow:
		return base.Foreground(ColorGray)
	default:
		return base.Foreground(ColorGray)
	}
}

// ConnectionStyle returns a color-coded style for the push channel status.
func ConnectionStyle(status model.ConnectionStatus) lipgloss.Style {
	base := HeaderStyle.Bold(false)

	switch status {
	case model.StatusConnected:
		return base.Foreground(ColorGreen)
	case model.StatusConnecting, model.StatusReconnecting:
		return base.Foreground(ColorYellow)
	default:
		return base.Foreground(ColorRed)
	}
}
