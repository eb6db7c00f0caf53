package help

import (
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/ideaboard/internal/keys"
	"github.com/nhle/ideaboard/internal/model"
	"github.com/nhle/ideaboard/internal/theme"
)

// sectionTitles name the groups returned by KeyMap.FullHelp, in order.
var sectionTitles = []string{"Navigation", "Search & filters", "Notifications", "Sync"}

// statusNotes explain each connection state shown in the header.
var statusNotes = []struct {
	status model.ConnectionStatus
	note   string
}{
	{model.StatusConnected, "live updates are arriving"},
	{model.StatusConnecting, "opening the push channel"},
	{model.StatusReconnecting, "channel dropped, retrying with backoff"},
	{model.StatusDisconnected, "no push channel, polling only"},
}

// Model is the help overlay view.
type Model struct {
	keys     *keys.KeyMap
	help     help.Model
	viewport viewport.Model
	width    int
	height   int
}

// New creates a new help view model.
func New(keys *keys.KeyMap, width, height int) Model {
	m := Model{
		keys:     keys,
		help:     help.New(),
		viewport: viewport.New(width, height),
	}
	m.SetSize(width, height)
	return m
}

// Init returns the initial command.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update scrolls the overlay when it is taller than the screen.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View renders the help overlay.
func (m Model) View() string {
	return theme.DetailPanelStyle.
		Width(m.width - 4).
		Render(m.viewport.View())
}

// SetSize updates the help view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.help.Width = width - 8
	m.viewport.Width = max(width-8, 0)
	m.viewport.Height = max(height-4, 0)
	m.viewport.SetContent(m.render())
}

func (m Model) render() string {
	heading := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite)

	var b strings.Builder
	b.WriteString(heading.MarginBottom(1).Render("Keyboard Shortcuts"))
	b.WriteString("\n")

	for i, group := range m.keys.FullHelp() {
		title := "More"
		if i < len(sectionTitles) {
			title = sectionTitles[i]
		}
		b.WriteString("\n")
		b.WriteString(heading.Render(title))
		b.WriteString("\n")
		b.WriteString(m.help.FullHelpView([][]key.Binding{group}))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(heading.Render("Connection"))
	b.WriteString("\n")
	for _, s := range statusNotes {
		dot := lipgloss.NewStyle().Foreground(statusColor(s.status)).Render("●")
		b.WriteString(dot + " " + string(s.status) + theme.HelpStyle.Render("  "+s.note) + "\n")
	}
	b.WriteString(theme.HelpStyle.Render("⚠ stale means the list may lag the server until the next full sync (s)."))

	return b.String()
}

func statusColor(s model.ConnectionStatus) lipgloss.TerminalColor {
	return theme.ConnectionStyle(s).GetForeground()
}
