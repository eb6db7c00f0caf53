package app

import (
	"context"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/ideaboard/internal/model"
	"github.com/nhle/ideaboard/internal/notify"
	appsync "github.com/nhle/ideaboard/internal/sync"
	"github.com/nhle/ideaboard/internal/ui/command"
	"github.com/nhle/ideaboard/internal/ui/detail"
	"github.com/nhle/ideaboard/internal/ui/notiflist"
	"github.com/nhle/ideaboard/internal/views"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type okRemote struct {
	deleteErr error
}

func (okRemote) MarkRead(context.Context, string) (*model.Notification, error) { return nil, nil }

func (okRemote) MarkAllRead(_ context.Context, ids []string) ([]model.BatchResult, error) {
	out := make([]model.BatchResult, len(ids))
	for i, id := range ids {
		out[i] = model.BatchResult{ID: id, OK: true}
	}
	return out, nil
}

func (r okRemote) Delete(context.Context, string) error { return r.deleteErr }
func (okRemote) Clear(context.Context) error            { return nil }

func newApp(t *testing.T, remote notify.Remote) (Model, *notify.Store) {
	t.Helper()
	st := notify.New(notify.Options{})
	t.Cleanup(st.Close)

	for i, id := range []string{"a", "b", "c"} {
		n := model.Notification{
			ID:            id,
			Title:         "title " + id,
			Type:          model.TypeInfo,
			CreatedAt:     t0.Add(time.Duration(i) * time.Minute),
			SourceVersion: int64(i + 1),
		}
		require.True(t, st.ApplyEvent(model.Event{Kind: model.EventCreated, Record: &n, ID: id, SourceVersion: n.SourceVersion}))
	}

	mu := notify.NewMutations(st, remote, notify.MutationOptions{Timeout: time.Second, InitialInterval: time.Millisecond})
	m := New(Deps{Store: st, Mutations: mu})
	t.Cleanup(m.watcher.close)

	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 30})
	return next.(Model), st
}

func press(t *testing.T, m Model, k string) (Model, tea.Cmd) {
	t.Helper()
	var msg tea.KeyMsg
	switch k {
	case "enter":
		msg = tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		msg = tea.KeyMsg{Type: tea.KeyEsc}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
	}
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func TestApp_HeaderShowsBadge(t *testing.T) {
	m, _ := newApp(t, okRemote{})
	view := m.View()
	assert.Contains(t, view, "Ideaboard")
	assert.Contains(t, view, "3")
	assert.Contains(t, view, "disconnected")
}

func TestApp_MarkReadSelected(t *testing.T) {
	m, st := newApp(t, okRemote{})

	m, cmd := press(t, m, "r")
	require.NotNil(t, cmd)
	done := cmd().(mutationDoneMsg)
	require.NoError(t, done.err)

	assert.Equal(t, 2, st.GetUnreadCount())
	got, _ := st.Get("c")
	assert.True(t, got.Read, "newest record is selected first")

	// The watcher delivers the coalesced change and the list re-renders.
	msg := m.watcher.waitForChange()()
	next, _ := m.Update(msg)
	m = next.(Model)
	assert.Contains(t, m.View(), "Unread (2)")
}

func TestApp_MarkAllReadReportsCount(t *testing.T) {
	m, st := newApp(t, okRemote{})

	m, cmd := press(t, m, "R")
	next, _ := m.Update(cmd())
	m = next.(Model)

	assert.Equal(t, 0, st.GetUnreadCount())
	assert.Contains(t, m.View(), "marked 3 read")
}

func TestApp_RemoveFailureIsShown(t *testing.T) {
	m, st := newApp(t, okRemote{deleteErr: errors.New("boom")})

	m, cmd := press(t, m, "d")
	next, _ := m.Update(cmd())
	m = next.(Model)

	_, ok := st.Get("c")
	assert.True(t, ok, "rejected removal is restored")
	assert.Contains(t, m.View(), "remove failed")
}

func TestApp_OpenDetailAndBack(t *testing.T) {
	m, st := newApp(t, okRemote{})

	m, cmd := press(t, m, "enter")
	require.NotNil(t, cmd)
	sel, ok := cmd().(notiflist.SelectedMsg)
	require.True(t, ok)

	next, cmd := m.Update(sel)
	m = next.(Model)
	assert.Equal(t, ViewDetail, m.currentView)

	loaded, ok := cmd().(detail.LoadedMsg)
	require.True(t, ok)
	require.NoError(t, loaded.Err)
	got, _ := st.Get(sel.ID)
	assert.True(t, got.Read, "opening marks read")

	m, cmd = press(t, m, "esc")
	next, _ = m.Update(cmd())
	assert.Equal(t, ViewList, next.(Model).currentView)
}

func TestApp_SyncResults(t *testing.T) {
	m, _ := newApp(t, okRemote{})

	next, _ := m.Update(appsync.SyncResultMsg{Mode: appsync.FetchFull, Error: errors.New("401"), AuthError: true})
	m = next.(Model)
	assert.Contains(t, m.View(), "ideaboard login")

	next, _ = m.Update(appsync.SyncResultMsg{Mode: appsync.FetchIncremental})
	m = next.(Model)
	assert.NotContains(t, m.View(), "ideaboard login")
	assert.False(t, m.lastSync.IsZero())
}

func TestApp_MetaChanges(t *testing.T) {
	m, st := newApp(t, okRemote{})

	st.SetConnectionStatus(model.StatusConnected)
	st.SetStale(true)

	// Only the latest meta is delivered.
	next, _ := m.Update(m.watcher.waitForMeta()())
	m = next.(Model)
	assert.Equal(t, notify.Meta{Status: model.StatusConnected, Stale: true}, m.meta)
	assert.Contains(t, m.View(), "stale")
	assert.Contains(t, m.View(), "Catching up after reconnect")
	assert.Equal(t, 27, m.layout.ContentHeight(), "banner takes a row")

	st.SetStale(false)
	next, _ = m.Update(m.watcher.waitForMeta()())
	m = next.(Model)
	assert.NotContains(t, m.View(), "Catching up")
	assert.Equal(t, 28, m.layout.ContentHeight())
}

func TestApp_HelpToggle(t *testing.T) {
	m, _ := newApp(t, okRemote{})

	m, _ = press(t, m, "?")
	assert.Equal(t, ViewHelp, m.currentView)
	m, _ = press(t, m, "?")
	assert.Equal(t, ViewList, m.currentView)
}

func TestApp_CommandPalette(t *testing.T) {
	m, _ := newApp(t, okRemote{})

	m, _ = press(t, m, ":")
	assert.Equal(t, ViewCommand, m.currentView)
	m, _ = press(t, m, "q")
	assert.Equal(t, ViewCommand, m.currentView, "palette captures keys")

	next, _ := m.Update(command.CommandMsg("tab read"))
	m = next.(Model)
	assert.Equal(t, ViewList, m.currentView)
	assert.Equal(t, views.TabRead, m.list.Query().Tab)

	next, _ = m.Update(command.CommandMsg("bogus"))
	m = next.(Model)
	assert.True(t, m.statusIsError)
	assert.Contains(t, m.View(), `unknown command "bogus"`)

	m, _ = press(t, m, ":")
	next, _ = m.Update(command.CancelMsg{})
	assert.Equal(t, ViewList, next.(Model).currentView)
}

func TestMutationDoneMsg_Describe(t *testing.T) {
	tests := []struct {
		name    string
		msg     mutationDoneMsg
		want    string
		isError bool
	}{
		{
			name: "partial",
			msg: mutationDoneMsg{op: "mark all read", err: notify.ErrPartialFailure, report: &notify.BatchReport{
				Requested: []string{"a", "b"}, Succeeded: []string{"a"}, Failed: map[string]error{"b": errors.New("x")},
			}},
			want:    "marked 1 of 2 read, 1 rolled back",
			isError: true,
		},
		{name: "not found", msg: mutationDoneMsg{op: "remove", err: notify.ErrNotFound}, want: "notification no longer exists", isError: true},
		{name: "nothing", msg: mutationDoneMsg{op: "mark all read", report: &notify.BatchReport{}}, want: "nothing to mark read"},
		{name: "single ok", msg: mutationDoneMsg{op: "mark read"}, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, isErr := tt.msg.describe()
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.isError, isErr)
		})
	}
}

func TestOffer_KeepsLatest(t *testing.T) {
	ch := make(chan int, 1)
	offer(ch, 1)
	offer(ch, 2)
	assert.Equal(t, 2, <-ch)
}
