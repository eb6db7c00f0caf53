// Package views derives read-only projections of the notification store for
// the UI surfaces: the unread badge, the filtered list and the detail pane.
// None of them keep a copy of the records; every call reads the live store.
package views

import (
	"strconv"

	"github.com/nhle/ideaboard/internal/notify"
)

// badgeCap is the largest count the badge label shows verbatim.
const badgeCap = 99

// Badge exposes the unread count.
type Badge struct {
	store *notify.Store
}

// NewBadge creates a Badge over store.
func NewBadge(store *notify.Store) *Badge {
	return &Badge{store: store}
}

// Count returns the current unread count.
func (b *Badge) Count() int {
	return b.store.GetUnreadCount()
}

// Label renders the count for display: empty when zero, "99+" above the cap.
func (b *Badge) Label() string {
	return label(b.Count())
}

// Subscribe calls fn with the new count whenever the unread count changes.
// Writes that leave the count untouched do not reach fn.
func (b *Badge) Subscribe(fn func(count int)) func() {
	return notify.Select(b.store, (*notify.Store).GetUnreadCount, fn)
}

func label(n int) string {
	switch {
	case n <= 0:
		return ""
	case n > badgeCap:
		return strconv.Itoa(badgeCap) + "+"
	default:
		return strconv.Itoa(n)
	}
}
