package notiflist

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/ideaboard/internal/keys"
	"github.com/nhle/ideaboard/internal/model"
	"github.com/nhle/ideaboard/internal/theme"
	"github.com/nhle/ideaboard/internal/views"
)

// SelectedMsg is sent when the user opens a notification.
type SelectedMsg struct {
	ID string
}

// Model is the notification list view component.
type Model struct {
	list        list.Model
	view        *views.List
	keys        *keys.KeyMap
	query       views.Query
	counts      map[views.Tab]int
	searchMode  bool
	searchInput textinput.Model
	width       int
	height      int
}

// New creates a new notification list model over view.
func New(view *views.List, k *keys.KeyMap, width, height int) Model {
	l := list.New([]list.Item{}, ItemDelegate{}, width, height-2)
	l.Title = "Notifications"
	l.SetShowTitle(false)
	l.SetShowStatusBar(true)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.SetStatusBarItemName("notification", "notifications")

	si := textinput.New()
	si.Placeholder = "search notifications..."
	si.Prompt = "/ "
	si.Width = width - 4

	m := Model{
		list:        l,
		view:        view,
		keys:        k,
		query:       views.Query{Tab: views.TabAll},
		searchInput: si,
		width:       width,
		height:      height,
	}
	m.Refresh()
	return m
}

// Init returns the initial command.
func (m Model) Init() tea.Cmd {
	return nil
}

// Refresh re-reads the list from the store with the current query. The
// selection stays on the same notification when it is still listed.
func (m *Model) Refresh() tea.Cmd {
	selected, _ := m.SelectedID()

	records := m.view.Items(m.query)
	items := make([]list.Item, len(records))
	index := -1
	for i, n := range records {
		items[i] = Item{Notification: n}
		if n.ID == selected {
			index = i
		}
	}
	cmd := m.list.SetItems(items)
	if index >= 0 {
		m.list.Select(index)
	}
	m.counts = m.view.TabCounts(m.query)
	return cmd
}

// Update handles messages for the list view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		if m.searchMode {
			return m.handleSearchKeys(msg)
		}
		return m.handleNormalKeys(msg)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// handleSearchKeys processes key input while in search mode.
func (m Model) handleSearchKeys(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		m.searchMode = false
		m.searchInput.Blur()
		m.query.Search = strings.TrimSpace(m.searchInput.Value())
		cmd := m.Refresh()
		return m, cmd

	case "esc":
		m.searchMode = false
		m.searchInput.Blur()
		m.searchInput.Reset()
		m.query.Search = ""
		cmd := m.Refresh()
		return m, cmd
	}

	var cmd tea.Cmd
	m.searchInput, cmd = m.searchInput.Update(msg)
	return m, cmd
}

// handleNormalKeys processes key input in normal (non-search) mode.
func (m Model) handleNormalKeys(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Select):
		id, ok := m.SelectedID()
		if !ok {
			return m, nil
		}
		return m, func() tea.Msg {
			return SelectedMsg{ID: id}
		}

	case key.Matches(msg, m.keys.Search):
		m.searchMode = true
		m.searchInput.SetValue(m.query.Search)
		cmd := m.searchInput.Focus()
		return m, cmd

	case key.Matches(msg, m.keys.NextTab):
		cmd := m.SetTab(m.query.Tab.Next())
		return m, cmd

	case key.Matches(msg, m.keys.ClearFilters):
		cmd := m.ClearFilters()
		return m, cmd
	}

	// Delegate to the list for navigation keys (up/down/pgup/pgdn)
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// Searching reports whether the search input has focus.
func (m Model) Searching() bool {
	return m.searchMode
}

// Query returns the active query.
func (m Model) Query() views.Query {
	return m.query
}

// SetTab switches to tab t.
func (m *Model) SetTab(t views.Tab) tea.Cmd {
	m.query.Tab = t
	return m.Refresh()
}

// ClearFilters drops the search, type and priority filters.
func (m *Model) ClearFilters() tea.Cmd {
	m.query = views.Query{Tab: m.query.Tab}
	m.searchInput.Reset()
	return m.Refresh()
}

// SetFilters replaces the type and priority filters.
func (m *Model) SetFilters(types []model.NotificationType, priorities []model.Priority) tea.Cmd {
	m.query.Types = types
	m.query.Priorities = priorities
	return m.Refresh()
}

// SelectedID returns the id of the highlighted notification.
func (m Model) SelectedID() (string, bool) {
	it, ok := m.list.SelectedItem().(Item)
	if !ok {
		return "", false
	}
	return it.Notification.ID, true
}

// View renders the list view.
func (m Model) View() string {
	tabs := m.renderTabs()

	if m.searchMode {
		searchBar := lipgloss.NewStyle().
			Foreground(theme.ColorWhite).
			Padding(0, 1).
			Render(m.searchInput.View())
		return lipgloss.JoinVertical(lipgloss.Left, tabs, searchBar, m.list.View())
	}

	if len(m.list.Items()) == 0 {
		return lipgloss.JoinVertical(lipgloss.Left, tabs, m.renderEmptyState())
	}

	return lipgloss.JoinVertical(lipgloss.Left, tabs, m.list.View())
}

// renderTabs renders the tab strip with per-tab counts and active filters.
func (m Model) renderTabs() string {
	parts := make([]string, 0, len(views.Tabs)+1)
	for _, t := range views.Tabs {
		label := fmt.Sprintf("%s (%d)", strings.ToUpper(string(t)[:1])+string(t)[1:], m.counts[t])
		parts = append(parts, theme.TabStyle(t == m.query.Tab).Render(label))
	}
	if summary := filterSummary(m.query); summary != "" {
		parts = append(parts, theme.HelpStyle.Render("  "+summary))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

// renderEmptyState shows guidance text when nothing is listed.
func (m Model) renderEmptyState() string {
	style := lipgloss.NewStyle().
		Width(m.width).
		Height(m.height-1).
		Align(lipgloss.Center, lipgloss.Center).
		Foreground(theme.ColorGray)

	if m.query.Active() {
		return style.Render("No matching notifications.\nPress F to clear filters.")
	}

	switch m.query.Tab {
	case views.TabUnread:
		return style.Render("You're all caught up.")
	case views.TabRead:
		return style.Render("Nothing read yet.")
	}
	return style.Render("No notifications.")
}

// SetSize updates the list dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, height-2)
	m.searchInput.Width = width - 4
}

func filterSummary(q views.Query) string {
	var parts []string
	if q.Search != "" {
		parts = append(parts, fmt.Sprintf("search:%q", q.Search))
	}
	if len(q.Types) > 0 {
		names := make([]string, len(q.Types))
		for i, t := range q.Types {
			names[i] = string(t)
		}
		parts = append(parts, "type:"+strings.Join(names, ","))
	}
	if len(q.Priorities) > 0 {
		names := make([]string, len(q.Priorities))
		for i, p := range q.Priorities {
			names[i] = string(p)
		}
		parts = append(parts, "priority:"+strings.Join(names, ","))
	}
	return strings.Join(parts, " ")
}
