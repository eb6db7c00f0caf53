package notiflist

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/ideaboard/internal/keys"
	"github.com/nhle/ideaboard/internal/model"
	"github.com/nhle/ideaboard/internal/notify"
	"github.com/nhle/ideaboard/internal/views"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func seed(t *testing.T) *notify.Store {
	t.Helper()
	st := notify.New(notify.Options{})
	t.Cleanup(st.Close)

	records := []model.Notification{
		{ID: "a", Title: "Deploy finished", Type: model.TypeSuccess, CreatedAt: t0, SourceVersion: 1},
		{ID: "b", Title: "Disk almost full", Type: model.TypeWarning, Priority: model.PriorityHigh,
			CreatedAt: t0.Add(time.Minute), SourceVersion: 2},
		{ID: "c", Title: "Weekly digest", Type: model.TypeInfo, Read: true, ReadAt: &t0,
			CreatedAt: t0.Add(2 * time.Minute), SourceVersion: 3},
	}
	for i := range records {
		r := records[i]
		require.True(t, st.ApplyEvent(model.Event{Kind: model.EventCreated, Record: &r, ID: r.ID, SourceVersion: r.SourceVersion}))
	}
	return st
}

func listed(m Model) []string {
	var out []string
	for _, it := range m.list.Items() {
		out = append(out, it.(Item).Notification.ID)
	}
	return out
}

func keyMsg(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestModel_ListsNewestFirst(t *testing.T) {
	m := New(views.NewList(seed(t)), keys.DefaultKeyMap(), 80, 20)

	assert.Equal(t, []string{"c", "b", "a"}, listed(m))
	assert.Equal(t, 3, m.counts[views.TabAll])
	assert.Equal(t, 2, m.counts[views.TabUnread])
	assert.Equal(t, 1, m.counts[views.TabRead])
}

func TestModel_TabCycles(t *testing.T) {
	m := New(views.NewList(seed(t)), keys.DefaultKeyMap(), 80, 20)

	m, _ = m.Update(keyMsg("tab"))
	assert.Equal(t, views.TabUnread, m.Query().Tab)
	assert.Equal(t, []string{"b", "a"}, listed(m))

	m, _ = m.Update(keyMsg("tab"))
	assert.Equal(t, []string{"c"}, listed(m))

	m, _ = m.Update(keyMsg("tab"))
	assert.Equal(t, views.TabAll, m.Query().Tab)
}

func TestModel_Search(t *testing.T) {
	m := New(views.NewList(seed(t)), keys.DefaultKeyMap(), 80, 20)

	m, _ = m.Update(keyMsg("/"))
	require.True(t, m.Searching())
	m, _ = m.Update(keyMsg("disk"))
	m, _ = m.Update(keyMsg("enter"))

	assert.False(t, m.Searching())
	assert.Equal(t, "disk", m.Query().Search)
	assert.Equal(t, []string{"b"}, listed(m))

	m, _ = m.Update(keyMsg("F"))
	assert.False(t, m.Query().Active())
	assert.Len(t, listed(m), 3)
}

func TestModel_SetFilters(t *testing.T) {
	m := New(views.NewList(seed(t)), keys.DefaultKeyMap(), 80, 20)

	m.SetFilters([]model.NotificationType{model.TypeWarning, model.TypeInfo}, nil)
	assert.Equal(t, []string{"c", "b"}, listed(m))

	m.SetFilters(nil, []model.Priority{model.PriorityHigh})
	assert.Equal(t, []string{"b"}, listed(m))
	assert.Contains(t, m.View(), "priority:high")
}

func TestModel_RefreshKeepsSelection(t *testing.T) {
	st := seed(t)
	m := New(views.NewList(st), keys.DefaultKeyMap(), 80, 20)

	m, _ = m.Update(keyMsg("j"))
	id, ok := m.SelectedID()
	require.True(t, ok)
	require.Equal(t, "b", id)

	d := model.Notification{ID: "d", Title: "New", Type: model.TypeInfo, CreatedAt: t0.Add(time.Hour), SourceVersion: 4}
	require.True(t, st.ApplyEvent(model.Event{Kind: model.EventCreated, Record: &d, ID: "d", SourceVersion: 4}))
	m.Refresh()

	id, _ = m.SelectedID()
	assert.Equal(t, "b", id)
	assert.Equal(t, []string{"d", "c", "b", "a"}, listed(m))
}

func TestModel_SelectEmitsID(t *testing.T) {
	m := New(views.NewList(seed(t)), keys.DefaultKeyMap(), 80, 20)

	_, cmd := m.Update(keyMsg("enter"))
	require.NotNil(t, cmd)
	assert.Equal(t, SelectedMsg{ID: "c"}, cmd())
}

func TestModel_EmptyState(t *testing.T) {
	st := notify.New(notify.Options{})
	t.Cleanup(st.Close)
	m := New(views.NewList(st), keys.DefaultKeyMap(), 80, 20)

	assert.Contains(t, m.View(), "No notifications.")

	_, cmd := m.Update(keyMsg("enter"))
	assert.Nil(t, cmd)
}

func TestRelativeTime(t *testing.T) {
	now := t0.Add(10 * 24 * time.Hour)
	tests := []struct {
		at   time.Time
		want string
	}{
		{time.Time{}, ""},
		{now.Add(-10 * time.Second), "just now"},
		{now.Add(-5 * time.Minute), "5m ago"},
		{now.Add(-3 * time.Hour), "3h ago"},
		{now.Add(-2 * 24 * time.Hour), "2d ago"},
		{now.Add(-15 * 24 * time.Hour), "2w ago"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, relativeTimeFrom(tt.at, now))
	}
}
