package detail

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/ideaboard/internal/keys"
	"github.com/nhle/ideaboard/internal/model"
	"github.com/nhle/ideaboard/internal/notify"
	"github.com/nhle/ideaboard/internal/theme"
	"github.com/nhle/ideaboard/internal/views"
)

// BackMsg signals the parent to navigate back to the list view.
type BackMsg struct{}

// LoadedMsg carries the outcome of opening a notification.
type LoadedMsg struct {
	ID     string
	Record *model.Notification
	Err    error
}

// Model is the notification detail view component.
type Model struct {
	view     *views.Detail
	record   *model.Notification
	removed  bool
	err      error
	viewport viewport.Model
	keys     *keys.KeyMap
	width    int
	height   int
	loading  bool
}

// New creates a new detail view model.
func New(keys *keys.KeyMap, width, height int) Model {
	vp := viewport.New(width, height-2)
	vp.Style = lipgloss.NewStyle()

	return Model{
		viewport: vp,
		keys:     keys,
		width:    width,
		height:   height,
	}
}

// Init returns the initial command for the detail view.
func (m Model) Init() tea.Cmd {
	return nil
}

// Open shows v and returns a command that loads it and marks it read.
func (m *Model) Open(v *views.Detail) tea.Cmd {
	m.view = v
	m.record = nil
	m.removed = false
	m.err = nil
	m.loading = true
	if rec, ok := v.Record(); ok {
		m.record = &rec
		m.loading = false
		m.render()
	}

	return func() tea.Msg {
		rec, err := v.Open(context.Background())
		msg := LoadedMsg{ID: v.ID(), Err: err}
		if rec.ID != "" {
			msg.Record = &rec
		}
		return msg
	}
}

// ID returns the id of the open notification.
func (m Model) ID() string {
	if m.view == nil {
		return ""
	}
	return m.view.ID()
}

// Update handles messages for the detail view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case LoadedMsg:
		if m.view == nil || msg.ID != m.view.ID() {
			return m, nil
		}
		m.loading = false
		m.err = msg.Err
		if msg.Record != nil {
			m.record = msg.Record
		} else if errors.Is(msg.Err, notify.ErrNotFound) {
			m.removed = true
		}
		m.render()
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Back) {
			return m, func() tea.Msg {
				return BackMsg{}
			}
		}
	}

	// Delegate to viewport for scrolling (j/k, up/down, pgup/pgdn)
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// Refresh re-reads the open notification from the store after a change.
func (m *Model) Refresh() {
	if m.view == nil || m.loading {
		return
	}
	rec, ok := m.view.Record()
	if !ok {
		m.removed = m.record != nil
		m.render()
		return
	}
	m.removed = false
	m.record = &rec
	m.render()
}

// View renders the detail view.
func (m Model) View() string {
	placeholder := lipgloss.NewStyle().
		Width(m.width).
		Height(m.height).
		Align(lipgloss.Center, lipgloss.Center).
		Foreground(theme.ColorGray)

	switch {
	case m.loading:
		return placeholder.Render("Loading notification...")
	case m.record == nil && m.removed:
		return placeholder.Render("This notification no longer exists.\nPress esc to go back.")
	case m.record == nil && m.err != nil:
		return placeholder.Render(theme.ErrorStyle.Render(m.err.Error()))
	case m.record == nil:
		return placeholder.Render("No notification selected")
	}

	return m.viewport.View()
}

func (m *Model) render() {
	m.viewport.SetContent(m.renderContent())
}

// renderContent builds the full detail content string for the viewport.
func (m Model) renderContent() string {
	if m.record == nil {
		return ""
	}

	n := m.record
	var sections []string

	if m.removed {
		sections = append(sections, theme.ErrorStyle.Render("Removed"), "")
	}

	// Title
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite)
	sections = append(sections, titleStyle.Render(n.Title))

	// Badges line: type + priority + read state
	typeBadge := theme.TypeStyle(n.Type).Render(strings.ToUpper(string(n.Type)))
	priBadge := theme.PriorityStyle(n.Priority).Render(string(n.Priority))
	readBadge := lipgloss.NewStyle().Foreground(theme.ColorBlue).Render("unread")
	if n.Read {
		readBadge = theme.DimmedStyle.Render("read")
	}

	badgeLine := lipgloss.JoinHorizontal(
		lipgloss.Top, typeBadge, "  ", priBadge, "  ", readBadge,
	)
	sections = append(sections, badgeLine, "")

	// Metadata table
	metaStyle := lipgloss.NewStyle().Foreground(theme.ColorGray)
	valStyle := lipgloss.NewStyle().Foreground(theme.ColorWhite)
	row := func(label, value string) string {
		return fmt.Sprintf("%s %s", metaStyle.Render(fmt.Sprintf("%-10s", label+":")), valStyle.Render(value))
	}

	if n.Category != "" {
		sections = append(sections, row("Category", n.Category))
	}
	if !n.CreatedAt.IsZero() {
		sections = append(sections, row("Created", n.CreatedAt.Local().Format("2006-01-02 15:04")))
	}
	if n.ReadAt != nil {
		sections = append(sections, row("Read", n.ReadAt.Local().Format("2006-01-02 15:04")))
	}
	if n.Link != "" {
		sections = append(sections, row("Link", n.Link))
	}

	// Separator
	sepStyle := lipgloss.NewStyle().Foreground(theme.ColorSubtle)
	separator := sepStyle.Render(strings.Repeat("─", max(min(m.width-4, 80), 0)))
	sections = append(sections, "", separator, "")

	body := n.Message
	if body == "" {
		body = lipgloss.NewStyle().
			Foreground(theme.ColorGray).
			Italic(true).
			Render("No message")
	}
	sections = append(sections, lipgloss.NewStyle().Width(max(m.width-4, 20)).Render(body))

	if m.err != nil {
		sections = append(sections, "", theme.ErrorStyle.Render(m.err.Error()))
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// SetSize updates the detail view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.viewport.Width = width
	m.viewport.Height = height - 2
	m.render()
}
