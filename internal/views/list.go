package views

import (
	"slices"
	"strings"

	"github.com/nhle/ideaboard/internal/model"
	"github.com/nhle/ideaboard/internal/notify"
)

// Tab selects which read state the list shows.
type Tab string

const (
	TabAll    Tab = "all"
	TabUnread Tab = "unread"
	TabRead   Tab = "read"
)

// Tabs lists the tabs in display order.
var Tabs = []Tab{TabAll, TabUnread, TabRead}

// Next returns the tab after t, wrapping around.
func (t Tab) Next() Tab {
	i := slices.Index(Tabs, t)
	return Tabs[(i+1)%len(Tabs)]
}

// Query describes a filtered view of the list.
type Query struct {
	Tab Tab

	// Search matches title, message and category, case-insensitively.
	Search string

	// Types and Priorities restrict the list when non-empty.
	Types      []model.NotificationType
	Priorities []model.Priority
}

// Active reports whether any filter besides the tab is set.
func (q Query) Active() bool {
	return strings.TrimSpace(q.Search) != "" || len(q.Types) > 0 || len(q.Priorities) > 0
}

// List filters the store's records. It holds no records of its own, so every
// store write is visible on the next call.
type List struct {
	store *notify.Store
}

// NewList creates a List over store.
func NewList(store *notify.Store) *List {
	return &List{store: store}
}

// Items returns the records matching q in store order (newest first).
func (l *List) Items(q Query) []model.Notification {
	m := newMatcher(q)
	var out []model.Notification
	for _, n := range l.store.GetAll() {
		if m.filters(n) && m.tab(q.Tab, n) {
			out = append(out, n.Clone())
		}
	}
	return out
}

// TabCounts returns how many records each tab would show with q's filters.
// q.Tab is ignored.
func (l *List) TabCounts(q Query) map[Tab]int {
	m := newMatcher(q)
	counts := make(map[Tab]int, len(Tabs))
	for _, t := range Tabs {
		counts[t] = 0
	}
	for _, n := range l.store.GetAll() {
		if !m.filters(n) {
			continue
		}
		counts[TabAll]++
		if n.Read {
			counts[TabRead]++
		} else {
			counts[TabUnread]++
		}
	}
	return counts
}

type matcher struct {
	search     string
	types      []model.NotificationType
	priorities []model.Priority
}

func newMatcher(q Query) matcher {
	return matcher{
		search:     strings.ToLower(strings.TrimSpace(q.Search)),
		types:      q.Types,
		priorities: q.Priorities,
	}
}

func (m matcher) filters(n model.Notification) bool {
	if len(m.types) > 0 && !slices.Contains(m.types, n.Type) {
		return false
	}
	if len(m.priorities) > 0 && !slices.Contains(m.priorities, n.Priority) {
		return false
	}
	if m.search == "" {
		return true
	}
	return strings.Contains(strings.ToLower(n.Title), m.search) ||
		strings.Contains(strings.ToLower(n.Message), m.search) ||
		strings.Contains(strings.ToLower(n.Category), m.search)
}

func (m matcher) tab(t Tab, n model.Notification) bool {
	switch t {
	case TabUnread:
		return !n.Read
	case TabRead:
		return n.Read
	default:
		return true
	}
}
