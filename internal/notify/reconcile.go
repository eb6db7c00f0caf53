package notify

import (
	"time"

	"github.com/nhle/ideaboard/internal/model"
)

// mergeRecord resolves an incoming created/updated record against the
// authoritative local one. It reports false when incoming carries nothing
// newer and must be discarded.
//
// A newer record replaces the local one wholesale, with three exceptions:
// CreatedAt never changes, a confirmed read is never cleared (the service
// has no mark-unread operation), and ReadAt is fixed by the first read.
func mergeRecord(local *model.Notification, incoming model.Notification) (model.Notification, bool) {
	if local == nil {
		return incoming.Normalize().Clone(), true
	}
	if incoming.SourceVersion <= local.SourceVersion {
		return model.Notification{}, false
	}

	merged := incoming.Clone()
	merged.ID = local.ID
	merged.CreatedAt = local.CreatedAt
	if local.Read {
		merged.Read = true
		merged.ReadAt = cloneTime(local.ReadAt)
	}
	return merged.Normalize(), true
}

// applyRead marks local as read at the given version. at is the server-side
// read time when known, otherwise now is used. An already-read record keeps
// its ReadAt and only advances its version.
func applyRead(local model.Notification, version int64, at *time.Time, now time.Time) (model.Notification, bool) {
	if version <= local.SourceVersion {
		return model.Notification{}, false
	}
	out := local.Clone()
	out.SourceVersion = version
	if !out.Read {
		readAt := now
		if at != nil {
			readAt = *at
		}
		out.Read = true
		out.ReadAt = &readAt
	}
	return out.Normalize(), true
}

// withLocalRead overlays an optimistic read at at onto n. A record that is
// already read keeps the later of the two times, so ReadAt never moves
// backwards when a server read lands under the overlay.
func withLocalRead(n model.Notification, at *time.Time) model.Notification {
	if at == nil {
		return n
	}
	if n.Read && n.ReadAt != nil && !at.After(*n.ReadAt) {
		return n
	}
	n.Read = true
	n.ReadAt = cloneTime(at)
	return n.Normalize()
}

// acceptDelete reports whether a deletion at version removes a local record
// at localVersion. Ties go to the deletion.
func acceptDelete(localVersion, version int64) bool {
	return version >= localVersion
}

// blocks reports whether ts still suppresses a record at version.
func blocks(ts model.Tombstone, version int64, now time.Time) bool {
	return !ts.Expired(now) && version <= ts.SourceVersion
}

// sameRecord compares two visible records field by field.
func sameRecord(a, b model.Notification) bool {
	if a.ID != b.ID || a.Title != b.Title || a.Message != b.Message ||
		a.Type != b.Type || a.Category != b.Category || a.Priority != b.Priority ||
		a.Read != b.Read || a.Link != b.Link || a.SourceVersion != b.SourceVersion {
		return false
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return false
	}
	switch {
	case a.ReadAt == nil && b.ReadAt == nil:
		return true
	case a.ReadAt == nil || b.ReadAt == nil:
		return false
	default:
		return a.ReadAt.Equal(*b.ReadAt)
	}
}

// newerFirst orders records by CreatedAt descending, then ID ascending.
func newerFirst(a, b model.Notification) int {
	if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
		return c
	}
	switch {
	case a.ID < b.ID:
		return -1
	case a.ID > b.ID:
		return 1
	}
	return 0
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
