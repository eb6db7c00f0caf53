package notiflist

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/ideaboard/internal/model"
	"github.com/nhle/ideaboard/internal/theme"
)

// Item wraps a model.Notification so it can be used in a bubbles/list.
type Item struct {
	Notification model.Notification
}

// FilterValue returns the string used for fuzzy filtering.
func (i Item) FilterValue() string { return i.Notification.Title }

// Title returns the notification title for the list.
func (i Item) Title() string { return i.Notification.Title }

// Description returns a short summary line for the list.
func (i Item) Description() string {
	parts := []string{
		string(i.Notification.Type),
		string(i.Notification.Priority),
		relativeTime(i.Notification.CreatedAt),
	}
	return strings.Join(parts, " | ")
}

// ItemDelegate implements list.ItemDelegate for rendering notifications.
type ItemDelegate struct {
	now func() time.Time
}

// Height returns the number of lines each item takes.
func (d ItemDelegate) Height() int { return 1 }

// Spacing returns the number of blank lines between items.
func (d ItemDelegate) Spacing() int { return 0 }

// Update handles per-item messages (unused).
func (d ItemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd {
	return nil
}

// Render draws a single notification line.
func (d ItemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	it, ok := item.(Item)
	if !ok {
		return
	}
	fmt.Fprint(w, d.render(it.Notification, index == m.Index()))
}

func (d ItemDelegate) render(n model.Notification, isSelected bool) string {
	// Unread marker
	marker := " "
	if !n.Read {
		marker = lipgloss.NewStyle().Foreground(theme.ColorBlue).Render("●")
	}

	typeBadge := theme.TypeStyle(n.Type).Render(typeLabel(n.Type))
	priBadge := theme.PriorityStyle(n.Priority).Render(priorityLabel(n.Priority))

	category := ""
	if n.Category != "" {
		category = lipgloss.NewStyle().
			Foreground(theme.ColorMagenta).
			Render(" #" + n.Category)
	}

	now := time.Now
	if d.now != nil {
		now = d.now
	}
	timeStr := lipgloss.NewStyle().
		Foreground(theme.ColorGray).
		Render(relativeTimeFrom(n.CreatedAt, now()))

	line := fmt.Sprintf(
		"%s %s %s %s%s  %s",
		marker, typeBadge, priBadge, n.Title, category, timeStr,
	)

	if n.Read {
		line = theme.DimmedStyle.Render(line)
	}

	if isSelected {
		return theme.SelectedItemStyle.Render(line)
	}
	return theme.ListItemStyle.Render(line)
}

// relativeTime returns a human-friendly relative time string.
func relativeTime(t time.Time) string {
	return relativeTimeFrom(t, time.Now())
}

func relativeTimeFrom(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}

	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return fmt.Sprintf("%dw ago", int(d.Hours()/24/7))
	}
}

// typeLabel returns a fixed-width label for the notification type.
func typeLabel(t model.NotificationType) string {
	switch t {
	case model.TypeInfo:
		return "INF"
	case model.TypeSuccess:
		return "OK "
	case model.TypeWarning:
		return "WRN"
	case model.TypeError:
		return "ERR"
	case model.TypeSystem:
		return "SYS"
	default:
		return "???"
	}
}

// priorityLabel returns a short label for the given priority.
func priorityLabel(p model.Priority) string {
	switch p {
	case model.PriorityUrgent:
		return "!!!"
	case model.PriorityHigh:
		return "!! "
	case model.PriorityMedium:
		return "!  "
	default:
		return "   "
	}
}
