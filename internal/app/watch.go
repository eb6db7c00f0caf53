package app

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/ideaboard/internal/notify"
	"github.com/nhle/ideaboard/internal/views"
)

// storeChangedMsg is sent after the visible records changed.
type storeChangedMsg struct{}

// metaChangedMsg carries the latest connection status and stale flag.
type metaChangedMsg struct {
	meta notify.Meta
}

// badgeMsg carries a new unread count.
type badgeMsg struct {
	count int
}

// watcher turns store callbacks into tea messages. Each channel holds at
// most one pending value and a newer value replaces an unread one, so a
// burst of writes costs a single re-render.
type watcher struct {
	changes chan struct{}
	meta    chan notify.Meta
	badge   chan int
	stop    []func()
}

func watch(st *notify.Store, badge *views.Badge) *watcher {
	w := &watcher{
		changes: make(chan struct{}, 1),
		meta:    make(chan notify.Meta, 1),
		badge:   make(chan int, 1),
	}
	w.stop = append(w.stop,
		st.Subscribe(func() { offer(w.changes, struct{}{}) }),
		st.SubscribeMeta(func(m notify.Meta) { offer(w.meta, m) }),
		badge.Subscribe(func(n int) { offer(w.badge, n) }),
	)
	return w
}

// offer puts v on ch, replacing a value nobody has taken yet.
func offer[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

func (w *watcher) waitForChange() tea.Cmd {
	return func() tea.Msg {
		<-w.changes
		return storeChangedMsg{}
	}
}

func (w *watcher) waitForMeta() tea.Cmd {
	return func() tea.Msg {
		return metaChangedMsg{meta: <-w.meta}
	}
}

func (w *watcher) waitForBadge() tea.Cmd {
	return func() tea.Msg {
		return badgeMsg{count: <-w.badge}
	}
}

// close unsubscribes from the store. Pending waits stay blocked.
func (w *watcher) close() {
	for _, stop := range w.stop {
		stop()
	}
	w.stop = nil
}
