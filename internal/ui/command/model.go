package command

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/ideaboard/internal/theme"
)

// CommandMsg carries the normalized name of an executed command.
type CommandMsg string

// CancelMsg is emitted when the palette closes without a command.
type CancelMsg struct{}

// Command is a palette entry.
type Command struct {
	Name        string
	Description string
}

// Commands lists every command the palette offers.
var Commands = []Command{
	{"sync", "full sync with the server"},
	{"refresh", "fetch changes since the last sync"},
	{"read all", "mark every notification read"},
	{"clear all", "remove every notification"},
	{"tab all", "show all notifications"},
	{"tab unread", "show unread notifications"},
	{"tab read", "show read notifications"},
	{"clear filters", "drop search, type and priority filters"},
	{"help", "show keyboard shortcuts"},
	{"quit", "exit ideaboard"},
}

// Model is the command palette view.
type Model struct {
	input  textinput.Model
	width  int
	height int
}

// New creates a command palette model.
func New(width, height int) Model {
	names := make([]string, len(Commands))
	for i, c := range Commands {
		names[i] = c.Name
	}

	ti := textinput.New()
	ti.Placeholder = "type a command, tab completes"
	ti.Prompt = ": "
	ti.CharLimit = 32
	ti.ShowSuggestions = true
	ti.SetSuggestions(names)

	m := Model{input: ti}
	m.SetSize(width, height)
	return m
}

// Init returns the initial command.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles messages for the command palette.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "enter":
			name := Resolve(m.input.Value())
			m.input.Reset()
			m.input.Blur()
			if name == "" {
				return m, func() tea.Msg { return CancelMsg{} }
			}
			return m, func() tea.Msg { return CommandMsg(name) }

		case "esc":
			m.input.Reset()
			m.input.Blur()
			return m, func() tea.Msg { return CancelMsg{} }
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the input and the commands matching it.
func (m Model) View() string {
	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1).
		Render("Command Palette")

	matches := Match(m.input.Value())
	rows := make([]string, 0, len(matches)+1)
	for i, c := range matches {
		line := fmt.Sprintf("%-14s %s", c.Name, theme.HelpStyle.Render(c.Description))
		if i == 0 && m.input.Value() != "" {
			rows = append(rows, theme.SelectedItemStyle.Render(line))
			continue
		}
		rows = append(rows, theme.ListItemStyle.Render(line))
	}
	if len(rows) == 0 {
		rows = append(rows, theme.ErrorStyle.Render("no matching command"))
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		title, m.input.View(), "", strings.Join(rows, "\n"))

	return theme.DetailPanelStyle.
		Width(m.width - 4).
		Render(content)
}

// SetSize updates the command palette dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.input.Width = max(width-10, 10)
}

// Focus clears the input and gives it keyboard focus.
func (m *Model) Focus() tea.Cmd {
	m.input.Reset()
	return m.input.Focus()
}

// Normalize lowercases s and collapses its whitespace.
func Normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Match returns the commands whose name starts with the normalized input.
func Match(input string) []Command {
	prefix := Normalize(input)
	var out []Command
	for _, c := range Commands {
		if strings.HasPrefix(c.Name, prefix) {
			out = append(out, c)
		}
	}
	return out
}

// Resolve expands input to a command name. An exact name or a prefix with a
// single match resolves to that command; anything else is returned
// normalized so the caller can report it.
func Resolve(input string) string {
	name := Normalize(input)
	if name == "" {
		return ""
	}
	matches := Match(name)
	for _, c := range matches {
		if c.Name == name {
			return name
		}
	}
	if len(matches) == 1 {
		return matches[0].Name
	}
	return name
}
