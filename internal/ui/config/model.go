package config

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/ideaboard/internal/model"
	"github.com/nhle/ideaboard/internal/theme"
)

// Mode represents the current state of the setup view.
type Mode int

const (
	ModeForm           Mode = iota // Editing connection settings
	ModeValidating                 // Testing the API connection
	ModeValidateResult             // Showing the test outcome
)

// DoneMsg signals the setup view has finished. Saved is false when the user
// cancelled.
type DoneMsg struct {
	Saved bool
}

// ValidateResultMsg carries the result of a connection test.
type ValidateResultMsg struct {
	Err error
}

// savedMsg is sent after the configuration was persisted.
type savedMsg struct {
	err error
}

// Validator tests that cfg and token can reach the notification API.
type Validator func(ctx context.Context, cfg model.AppConfig, token string) error

// Saver persists cfg and, when non-empty, token.
type Saver func(cfg model.AppConfig, token string) error

type formFields struct {
	baseURL   string
	transport string
	url       string
	redisAddr string
	token     string
}

// Model is the Bubble Tea model for the connection setup screen.
type Model struct {
	mode     Mode
	cfg      model.AppConfig
	validate Validator
	save     Saver

	form *huh.Form

	// huh binds to these; the pointer survives model copies.
	fields *formFields

	validError error
	spinner    spinner.Model
	statusMsg  string
	saved      bool

	width, height int
}

// New creates a setup model seeded from cfg.
func New(cfg model.AppConfig, validate Validator, save Saver, width, height int) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot

	m := Model{
		mode:     ModeForm,
		cfg:      cfg,
		validate: validate,
		save:     save,
		fields: &formFields{
			baseURL:   cfg.API.BaseURL,
			transport: cfg.Realtime.Transport,
			url:       cfg.Realtime.URL,
			redisAddr: cfg.Realtime.RedisAddr,
		},
		spinner: sp,
		width:   width,
		height:  height,
	}
	m.form = m.buildForm()
	return m
}

// Init starts the form.
func (m Model) Init() tea.Cmd {
	return m.form.Init()
}

// Update handles messages and dispatches based on current mode.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.SetSize(msg.Width, msg.Height)
		return m, nil

	case ValidateResultMsg:
		m.validError = msg.Err
		m.mode = ModeValidateResult
		return m, nil

	case savedMsg:
		if msg.err != nil {
			m.statusMsg = fmt.Sprintf("Error saving settings: %v", msg.err)
			m.mode = ModeValidateResult
			return m, nil
		}
		m.saved = true
		return m, tea.Sequence(
			func() tea.Msg { return DoneMsg{Saved: true} },
			tea.Quit,
		)

	case spinner.TickMsg:
		if m.mode == ModeValidating {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, cancel()
		}
		switch m.mode {
		case ModeValidating:
			if msg.String() == "esc" {
				m.mode = ModeForm
				m.form = m.buildForm()
				return m, m.form.Init()
			}
			return m, nil
		case ModeValidateResult:
			return m.handleResultKeys(msg)
		}
	}

	return m.updateForm(msg)
}

func (m Model) updateForm(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.mode != ModeForm || m.form == nil {
		return m, nil
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateCompleted:
		m.applyForm()
		m.mode = ModeValidating
		m.validError = nil
		return m, tea.Batch(m.spinner.Tick, m.testConnection())
	case huh.StateAborted:
		return m, cancel()
	}
	return m, cmd
}

// handleResultKeys processes key events on the validation result screen.
func (m Model) handleResultKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter", "s":
		// Saving is allowed after a failed test so offline setups still work.
		return m, m.persist()
	case "e":
		m.mode = ModeForm
		m.statusMsg = ""
		m.form = m.buildForm()
		return m, m.form.Init()
	case "r":
		m.mode = ModeValidating
		return m, tea.Batch(m.spinner.Tick, m.testConnection())
	case "esc", "q":
		return m, cancel()
	}
	return m, nil
}

// Saved reports whether the settings were written.
func (m Model) Saved() bool {
	return m.saved
}

// Config returns the settings as edited so far.
func (m Model) Config() model.AppConfig {
	return m.cfg
}

func (m *Model) applyForm() {
	m.cfg.API.BaseURL = strings.TrimRight(strings.TrimSpace(m.fields.baseURL), "/")
	m.cfg.Realtime.Transport = m.fields.transport
	m.cfg.Realtime.URL = strings.TrimSpace(m.fields.url)
	m.cfg.Realtime.RedisAddr = strings.TrimSpace(m.fields.redisAddr)
}

func (m *Model) buildForm() *huh.Form {
	f := m.fields
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("API URL").
				Description("Root URL of the ideaboard service").
				Placeholder("http://localhost:8090").
				Value(&f.baseURL).
				Validate(validateURL("http", "https")),
			huh.NewSelect[string]().
				Title("Realtime transport").
				Options(
					huh.NewOption("WebSocket - push from the service", "websocket"),
					huh.NewOption("Redis - pub/sub channel", "redis"),
				).
				Value(&f.transport),
			huh.NewInput().
				Title("API token").
				Description("Stored in the system keyring. Leave empty to keep the current one.").
				EchoMode(huh.EchoModePassword).
				Value(&f.token),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("WebSocket URL").
				Placeholder("ws://localhost:8090/ws").
				Value(&f.url).
				Validate(validateURL("ws", "wss")),
		).WithHideFunc(func() bool { return f.transport != "websocket" }),
		huh.NewGroup(
			huh.NewInput().
				Title("Redis address").
				Placeholder("localhost:6379").
				Value(&f.redisAddr).
				Validate(validateRequired("Redis address")),
		).WithHideFunc(func() bool { return f.transport != "redis" }),
	).WithWidth(m.formWidth())
}

// testConnection returns a command that runs the validator.
func (m Model) testConnection() tea.Cmd {
	validate, cfg, token := m.validate, m.cfg, m.fields.token
	return func() tea.Msg {
		if validate == nil {
			return ValidateResultMsg{}
		}
		ctx, done := context.WithTimeout(context.Background(), 15*time.Second)
		defer done()
		return ValidateResultMsg{Err: validate(ctx, cfg, token)}
	}
}

// persist returns a command that writes the settings.
func (m Model) persist() tea.Cmd {
	save, cfg, token := m.save, m.cfg, strings.TrimSpace(m.fields.token)
	return func() tea.Msg {
		if save == nil {
			return savedMsg{}
		}
		return savedMsg{err: save(cfg, token)}
	}
}

func cancel() tea.Cmd {
	return tea.Sequence(
		func() tea.Msg { return DoneMsg{} },
		tea.Quit,
	)
}

// --- View ---

// View renders the setup UI based on the current mode.
func (m Model) View() string {
	style := lipgloss.NewStyle().
		Padding(1, 2).
		Width(m.width).
		Height(m.height)

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)
	title := titleStyle.Render("Ideaboard Setup")

	var content string
	switch m.mode {
	case ModeForm:
		if m.form != nil {
			content = m.form.View()
		}
	case ModeValidating:
		content = fmt.Sprintf(
			"%s Testing connection to %s...\n\nPress esc to edit.",
			m.spinner.View(), m.cfg.API.BaseURL,
		)
	case ModeValidateResult:
		content = m.viewResult()
	}

	return style.Render(lipgloss.JoinVertical(lipgloss.Left, title, content))
}

func (m Model) viewResult() string {
	hint := lipgloss.NewStyle().Foreground(theme.ColorGray)

	var b strings.Builder
	if m.validError != nil {
		b.WriteString(lipgloss.NewStyle().Bold(true).Foreground(theme.ColorRed).Render("Connection failed"))
		b.WriteString("\n\n")
		b.WriteString(m.validError.Error())
	} else {
		b.WriteString(lipgloss.NewStyle().Bold(true).Foreground(theme.ColorGreen).Render("Connection successful"))
		b.WriteString("\n\n")
		b.WriteString(fmt.Sprintf("API: %s\nRealtime: %s", m.cfg.API.BaseURL, m.realtimeTarget()))
	}

	if m.statusMsg != "" {
		b.WriteString("\n\n")
		b.WriteString(theme.ErrorStyle.Render(m.statusMsg))
	}

	b.WriteString("\n\n")
	b.WriteString(hint.Render("enter save | e edit | r retry | esc cancel"))
	return b.String()
}

func (m Model) realtimeTarget() string {
	if m.cfg.Realtime.Transport == "redis" {
		return "redis " + m.cfg.Realtime.RedisAddr
	}
	return m.cfg.Realtime.URL
}

// --- Helpers ---

// SetSize updates the view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	if m.form != nil {
		m.form = m.form.WithWidth(m.formWidth())
	}
}

func (m Model) formWidth() int {
	w := m.width - 4
	if w < 40 {
		w = 40
	}
	if w > 100 {
		w = 100
	}
	return w
}

// --- Validators ---

func validateRequired(fieldName string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", fieldName)
		}
		return nil
	}
}

func validateURL(schemes ...string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("URL is required")
		}
		parsed, err := url.Parse(strings.TrimSpace(s))
		if err != nil {
			return fmt.Errorf("invalid URL: %w", err)
		}
		if parsed.Host == "" {
			return fmt.Errorf("URL must include scheme and host (e.g., %s://example.com)", schemes[0])
		}
		for _, scheme := range schemes {
			if parsed.Scheme == scheme {
				return nil
			}
		}
		return fmt.Errorf("URL scheme must be one of %s", strings.Join(schemes, ", "))
	}
}
