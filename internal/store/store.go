package store

import (
	"context"
	"time"

	"github.com/nhle/ideaboard/internal/model"
)

// cursorKey is the sync_state key of the incremental fetch cursor.
const cursorKey = "cursor"

// Store defines the local cache of notification state. It holds the last
// authoritative records and tombstones so a restart can render at once and
// resume incremental fetching.
type Store interface {
	// === Notification state ===

	SaveState(ctx context.Context, records []model.Notification, tombstones []model.Tombstone) error
	LoadState(ctx context.Context) ([]model.Notification, []model.Tombstone, error)
	PurgeExpiredTombstones(ctx context.Context, now time.Time) (int64, error)

	// === Sync cursor ===

	GetCursor(ctx context.Context) (string, error)
	SetCursor(ctx context.Context, cursor string) error

	Close() error
}
