package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/sirupsen/logrus"

	"github.com/nhle/ideaboard/internal/keys"
	"github.com/nhle/ideaboard/internal/logging"
	"github.com/nhle/ideaboard/internal/model"
	"github.com/nhle/ideaboard/internal/notify"
	appsync "github.com/nhle/ideaboard/internal/sync"
	"github.com/nhle/ideaboard/internal/theme"
	"github.com/nhle/ideaboard/internal/ui"
	"github.com/nhle/ideaboard/internal/ui/command"
	"github.com/nhle/ideaboard/internal/ui/detail"
	"github.com/nhle/ideaboard/internal/ui/filterform"
	helpview "github.com/nhle/ideaboard/internal/ui/help"
	"github.com/nhle/ideaboard/internal/ui/notiflist"
	"github.com/nhle/ideaboard/internal/views"
)

const appTitle = "Ideaboard"

// authHint is shown when the service rejects the API token.
const authHint = "authentication failed: run `ideaboard login` or set IDEABOARD_API_TOKEN"

// ViewState represents the current active view in the application.
type ViewState int

const (
	ViewList ViewState = iota
	ViewDetail
	ViewFilter
	ViewHelp
	ViewCommand
)

// Deps are the long-lived services the UI drives.
type Deps struct {
	Store     *notify.Store
	Mutations *notify.Mutations
	Poller    *appsync.Poller

	// Loader fetches records opened before they reach the store. Optional.
	Loader views.Loader

	Logger logrus.FieldLogger
}

// Model is the root Bubble Tea model that manages view routing, layout, and
// the bridge between the notification store and the views.
type Model struct {
	currentView  ViewState
	previousView ViewState
	layout       ui.Layout
	keys         *keys.KeyMap

	store     *notify.Store
	mutations *notify.Mutations
	poller    *appsync.Poller
	loader    views.Loader
	log       logrus.FieldLogger

	listView *views.List
	badge    *views.Badge
	watcher  *watcher

	list       notiflist.Model
	detail     detail.Model
	filterView  filterform.Model
	helpView    helpview.Model
	commandView command.Model

	meta             notify.Meta
	unreadCount      int
	lastSync         time.Time
	syncing          bool
	statusMessage    string
	statusIsError    bool
	authErrorMessage string
	ready            bool
}

// New creates the root application model.
func New(deps Deps) Model {
	k := keys.DefaultKeyMap()
	logger := deps.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	listView := views.NewList(deps.Store)
	badge := views.NewBadge(deps.Store)

	return Model{
		currentView: ViewList,
		keys:        k,
		store:       deps.Store,
		mutations:   deps.Mutations,
		poller:      deps.Poller,
		loader:      deps.Loader,
		log:         logger.WithField("component", "ui"),
		listView:    listView,
		badge:       badge,
		watcher:     watch(deps.Store, badge),
		list:        notiflist.New(listView, k, 80, 24),
		detail:      detail.New(k, 80, 24),
		filterView:  filterform.New(80, 24),
		helpView:    helpview.New(k, 80, 24),
		commandView: command.New(80, 24),
		meta:        deps.Store.Meta(),
		unreadCount: badge.Count(),
		syncing:     deps.Poller != nil,
	}
}

// Init starts the fetch loop and the store watchers.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		m.watcher.waitForChange(),
		m.watcher.waitForMeta(),
		m.watcher.waitForBadge(),
		tea.SetWindowTitle(windowTitle(m.badge.Label())),
	}
	if m.poller != nil {
		cmds = append(cmds, m.poller.Start())
	}
	return tea.Batch(cmds...)
}

// Update handles messages and dispatches to the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		m.resize()
		// Forward to active view so huh forms can calculate their layout.
		return m.updateActiveView(msg)

	case storeChangedMsg:
		cmd := m.list.Refresh()
		m.detail.Refresh()
		return m, tea.Batch(cmd, m.watcher.waitForChange())

	case metaChangedMsg:
		m.meta = msg.meta
		if m.ready {
			m.resize()
		}
		return m, m.watcher.waitForMeta()

	case badgeMsg:
		m.unreadCount = msg.count
		return m, tea.Batch(
			tea.SetWindowTitle(windowTitle(m.badge.Label())),
			m.watcher.waitForBadge(),
		)

	case appsync.SyncResultMsg:
		m.syncing = false
		switch {
		case msg.AuthError:
			m.authErrorMessage = authHint
		case msg.Error == nil:
			m.authErrorMessage = ""
			m.lastSync = time.Now()
		}
		if m.poller == nil {
			return m, nil
		}
		return m, m.poller.WaitForNextResult()

	case mutationDoneMsg:
		m.statusMessage, m.statusIsError = msg.describe()
		if msg.err != nil {
			m.log.WithError(msg.err).WithField("op", msg.op).Debug("mutation reported to user")
		}
		return m, nil

	case notiflist.SelectedMsg:
		m.previousView = m.currentView
		m.currentView = ViewDetail
		cmd := m.detail.Open(views.NewDetail(msg.ID, m.store, m.loader, m.mutations))
		return m, cmd

	case detail.LoadedMsg:
		if msg.Err != nil && !errors.Is(msg.Err, notify.ErrNotFound) {
			m.statusMessage = msg.Err.Error()
			m.statusIsError = true
		}
		var cmd tea.Cmd
		m.detail, cmd = m.detail.Update(msg)
		return m, cmd

	case detail.BackMsg:
		m.currentView = ViewList
		return m, nil

	case filterform.AppliedMsg:
		m.currentView = ViewList
		cmd := m.list.SetFilters(msg.Types, msg.Priorities)
		return m, cmd

	case filterform.CancelMsg:
		m.currentView = ViewList
		return m, nil

	case command.CommandMsg:
		m.currentView = m.previousView
		return m.executeCommand(string(msg))

	case command.CancelMsg:
		m.currentView = m.previousView
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m.quit()
		}
		if m.capturesInput() {
			break
		}
		m.statusMessage = ""

		switch {
		case key.Matches(msg, m.keys.Quit) && m.currentView == ViewList:
			return m.quit()

		case key.Matches(msg, m.keys.Help):
			if m.currentView == ViewHelp {
				m.currentView = m.previousView
				return m, nil
			}
			m.previousView = m.currentView
			m.currentView = ViewHelp
			return m, nil

		case key.Matches(msg, m.keys.Back) && m.currentView == ViewHelp:
			m.currentView = m.previousView
			return m, nil

		case key.Matches(msg, m.keys.Command) && m.currentView != ViewHelp:
			m.previousView = m.currentView
			m.currentView = ViewCommand
			cmd := m.commandView.Focus()
			return m, cmd

		case key.Matches(msg, m.keys.Sync):
			if m.poller != nil {
				m.syncing = true
				m.poller.RequestFullSync()
			}
			return m, nil

		case key.Matches(msg, m.keys.Filter) && m.currentView == ViewList:
			m.previousView = m.currentView
			m.currentView = ViewFilter
			cmd := m.filterView.Start(m.list.Query())
			return m, cmd

		case key.Matches(msg, m.keys.MarkRead):
			if id, ok := m.selectedID(); ok {
				return m, m.markRead(id)
			}
			return m, nil

		case key.Matches(msg, m.keys.MarkAllRead):
			return m, m.markAllRead()

		case key.Matches(msg, m.keys.Remove):
			if id, ok := m.selectedID(); ok {
				return m, m.remove(id)
			}
			return m, nil

		case key.Matches(msg, m.keys.ClearAll) && m.currentView == ViewList:
			return m, m.clearAll()
		}
	}

	// Delegate to active sub-view
	return m.updateActiveView(msg)
}

// capturesInput reports whether the active view consumes raw keystrokes.
func (m Model) capturesInput() bool {
	switch m.currentView {
	case ViewFilter, ViewCommand:
		return true
	case ViewList:
		return m.list.Searching()
	}
	return false
}

// selectedID returns the notification the user acts on in the current view.
func (m Model) selectedID() (string, bool) {
	switch m.currentView {
	case ViewList:
		return m.list.SelectedID()
	case ViewDetail:
		id := m.detail.ID()
		return id, id != ""
	}
	return "", false
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	if m.poller != nil {
		m.poller.Stop()
	}
	m.watcher.close()
	return m, tea.Quit
}

// updateActiveView dispatches the message to the currently active view.
func (m Model) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.currentView {
	case ViewList:
		m.list, cmd = m.list.Update(msg)
	case ViewDetail:
		m.detail, cmd = m.detail.Update(msg)
	case ViewFilter:
		m.filterView, cmd = m.filterView.Update(msg)
	case ViewHelp:
		m.helpView, cmd = m.helpView.Update(msg)
	case ViewCommand:
		m.commandView, cmd = m.commandView.Update(msg)
	}

	return m, cmd
}

// View renders the full terminal UI using the layout manager.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	headerTitle := appTitle
	if label := m.badge.Label(); label != "" {
		headerTitle = lipgloss.JoinHorizontal(lipgloss.Top,
			appTitle, " ", theme.BadgeStyle.Render(label))
	}
	header := m.layout.RenderHeader(headerTitle, m.syncStatus())
	content := m.renderContent()
	statusBar := m.layout.RenderStatusBar(m.keyHints())

	return m.layout.Render(header, content, statusBar)
}

// resize lays out the sub-views, reserving a banner row while the inbox is
// stale.
func (m *Model) resize() {
	m.layout = m.layout.WithBanner(m.banner())
	w, h := m.layout.ContentWidth(), m.layout.ContentHeight()
	m.list.SetSize(w, h)
	m.detail.SetSize(w, h)
	m.filterView.SetSize(w, h)
	m.helpView.SetSize(w, h)
	m.commandView.SetSize(w, h)
}

// banner explains a stale inbox.
func (m Model) banner() string {
	if !m.meta.Stale {
		return ""
	}
	if m.meta.Status == model.StatusConnected {
		return "Catching up after reconnect; the list may be out of date."
	}
	return "Offline: showing cached notifications until the connection returns."
}

// renderContent returns the rendered string for the current active view.
func (m Model) renderContent() string {
	switch m.currentView {
	case ViewList:
		return m.list.View()
	case ViewDetail:
		return m.detail.View()
	case ViewFilter:
		return m.filterView.View()
	case ViewHelp:
		return m.helpView.View()
	case ViewCommand:
		return m.commandView.View()
	default:
		return ""
	}
}

// syncStatus returns a short string describing the connection and fetch state.
func (m Model) syncStatus() string {
	status := m.meta.Status
	if status == "" {
		status = model.StatusDisconnected
	}
	conn := theme.ConnectionStyle(status).Render("● " + string(status))

	switch {
	case m.meta.Stale:
		return conn + theme.HeaderStyle.Foreground(theme.ColorYellow).Render("⚠ stale")
	case m.syncing:
		return conn + theme.HeaderStyle.Render("syncing")
	case !m.lastSync.IsZero():
		return conn + theme.HeaderStyle.Render("synced "+m.lastSync.Format("15:04"))
	}
	return conn
}

// keyHints returns keyboard shortcut hints for the status bar.
func (m Model) keyHints() string {
	if m.statusMessage != "" {
		if m.statusIsError {
			return theme.ErrorStyle.Render(m.statusMessage)
		}
		return m.statusMessage
	}
	// Show auth error prominently when present.
	if m.authErrorMessage != "" && m.currentView == ViewList {
		return theme.ErrorStyle.Render(m.authErrorMessage)
	}

	switch m.currentView {
	case ViewHelp:
		return "? close help | esc back"
	case ViewDetail:
		return "esc back | d remove | j/k scroll"
	case ViewFilter:
		return "space toggle | enter apply | esc cancel"
	case ViewCommand:
		return "tab complete | enter execute | esc back"
	default:
		if m.list.Searching() {
			return "enter apply | esc cancel"
		}
		return "q quit | ? help | tab tabs | / search | f filter | r read | R read all | d remove | s sync | : command"
	}
}

// executeCommand handles a command string from the command palette.
func (m Model) executeCommand(cmd string) (tea.Model, tea.Cmd) {
	switch cmd {
	case "sync":
		if m.poller != nil {
			m.syncing = true
			m.poller.RequestFullSync()
		}
		return m, nil
	case "refresh":
		if m.poller != nil {
			m.syncing = true
			m.poller.RequestRefresh()
		}
		return m, nil
	case "read all":
		return m, m.markAllRead()
	case "clear all":
		return m, m.clearAll()
	case "tab all", "tab unread", "tab read":
		m.currentView = ViewList
		c := m.list.SetTab(views.Tab(cmd[len("tab "):]))
		return m, c
	case "clear filters":
		m.currentView = ViewList
		c := m.list.ClearFilters()
		return m, c
	case "help":
		m.previousView = m.currentView
		m.currentView = ViewHelp
		return m, nil
	case "quit":
		return m.quit()
	default:
		m.statusMessage = fmt.Sprintf("unknown command %q", cmd)
		m.statusIsError = true
		return m, nil
	}
}

func windowTitle(label string) string {
	if label == "" {
		return appTitle
	}
	return fmt.Sprintf("(%s) %s", label, appTitle)
}
