package filterform

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/ideaboard/internal/model"
	"github.com/nhle/ideaboard/internal/theme"
	"github.com/nhle/ideaboard/internal/views"
)

// AppliedMsg is dispatched when the user submits the filter form.
type AppliedMsg struct {
	Types      []model.NotificationType
	Priorities []model.Priority
}

// CancelMsg is dispatched when the user cancels the form.
type CancelMsg struct{}

// formBindings holds form field values on the heap so that huh's Value()
// pointers remain valid across Bubble Tea model copies.
type formBindings struct {
	types      []model.NotificationType
	priorities []model.Priority
}

// Model is the Bubble Tea model for the type/priority filter form.
type Model struct {
	form   *huh.Form
	fb     *formBindings
	width  int
	height int
}

// New creates a new filter form model.
func New(width, height int) Model {
	return Model{
		fb:     &formBindings{},
		width:  width,
		height: height,
	}
}

// Start initializes the form from the filters in q.
func (m *Model) Start(q views.Query) tea.Cmd {
	m.fb.types = append([]model.NotificationType(nil), q.Types...)
	m.fb.priorities = append([]model.Priority(nil), q.Priorities...)
	m.form = m.buildForm()
	return m.form.Init()
}

// Active reports whether the form is showing.
func (m Model) Active() bool {
	return m.form != nil
}

// Update handles messages for the filter form.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if m.form == nil {
		return m, nil
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateCompleted:
		m.form = nil
		return m, m.submit()
	case huh.StateAborted:
		m.form = nil
		return m, func() tea.Msg { return CancelMsg{} }
	}

	return m, cmd
}

// View renders the filter form.
func (m Model) View() string {
	if m.form == nil {
		return ""
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	content := titleStyle.Render("Filter Notifications") + "\n" + m.form.View()

	return lipgloss.NewStyle().
		Padding(1, 2).
		Render(content)
}

// SetSize updates the form dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

func (m *Model) buildForm() *huh.Form {
	typeOpts := make([]huh.Option[model.NotificationType], len(model.NotificationTypes))
	for i, t := range model.NotificationTypes {
		typeOpts[i] = huh.NewOption(title(string(t)), t)
	}
	priOpts := make([]huh.Option[model.Priority], len(model.Priorities))
	for i, p := range model.Priorities {
		priOpts[i] = huh.NewOption(title(string(p)), p)
	}

	return huh.NewForm(
		huh.NewGroup(
			huh.NewMultiSelect[model.NotificationType]().
				Title("Types").
				Description("Leave empty to show every type").
				Options(typeOpts...).
				Value(&m.fb.types),
			huh.NewMultiSelect[model.Priority]().
				Title("Priorities").
				Description("Leave empty to show every priority").
				Options(priOpts...).
				Value(&m.fb.priorities),
		),
	).WithWidth(m.formWidth()).WithHeight(m.formHeight())
}

func (m Model) submit() tea.Cmd {
	msg := AppliedMsg{
		Types:      append([]model.NotificationType(nil), m.fb.types...),
		Priorities: append([]model.Priority(nil), m.fb.priorities...),
	}
	return func() tea.Msg { return msg }
}

func (m Model) formWidth() int {
	return min(max(m.width-4, 40), 100)
}

func (m Model) formHeight() int {
	return max(m.height-4, 10)
}

func title(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
