// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nhle/ideaboard/internal/model"
	"github.com/nhle/ideaboard/internal/notify"
	"github.com/nhle/ideaboard/internal/store"
)

// NewTestStore creates an in-memory SQLiteStore with all migrations applied.
// It automatically closes the store when the test completes.
func NewTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err, "creating test store")

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})

	return s
}

// NewNotifyStore creates a notification store holding records, each applied
// as a created event. It is closed when the test completes.
func NewNotifyStore(t *testing.T, records ...model.Notification) *notify.Store {
	t.Helper()

	st := notify.New(notify.Options{})
	t.Cleanup(st.Close)
	for _, r := range records {
		require.True(t, st.ApplyEvent(Created(r)), "seeding %s", r.ID)
	}
	return st
}
