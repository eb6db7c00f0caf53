package sync

import (
	"context"
	"errors"
	gosync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/ideaboard/internal/model"
	"github.com/nhle/ideaboard/internal/notify"
	"github.com/nhle/ideaboard/tests/testutil"
)

type countingSaver struct {
	mu    gosync.Mutex
	saves int
	last  []model.Notification
	err   error
}

func (c *countingSaver) SaveState(_ context.Context, records []model.Notification, _ []model.Tombstone) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.saves++
	c.last = records
	return c.err
}

func (c *countingSaver) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saves
}

var created = testutil.Created

// waitSubscribed creates a "ready" record until Run's subscription reports
// the change.
func waitSubscribed(t *testing.T, st *notify.Store, p *Persister) {
	t.Helper()
	require.Eventually(t, func() bool {
		st.ApplyEvent(created(record("ready", 0, 1)))
		select {
		case <-p.dirty:
			p.dirty <- struct{}{}
			return true
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func TestPersister_CoalescesBursts(t *testing.T) {
	st := notify.New(notify.Options{})
	defer st.Close()
	saver := &countingSaver{}
	p := NewPersister(st, saver, 50*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()
	waitSubscribed(t, st, p)

	for i := range 20 {
		st.ApplyEvent(created(record(string(rune('a'+i)), i, int64(i+2))))
	}

	require.Eventually(t, func() bool { return saver.count() >= 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Less(t, saver.count(), 5)

	cancel()
	require.NoError(t, <-done)
}

func TestPersister_FlushesPendingOnCancel(t *testing.T) {
	st := notify.New(notify.Options{})
	defer st.Close()
	saver := &countingSaver{}
	p := NewPersister(st, saver, time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()
	waitSubscribed(t, st, p)

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, 1, saver.count())
	require.Len(t, saver.last, 1)
	assert.Equal(t, "ready", saver.last[0].ID)
}

func TestPersister_FlushWritesToCache(t *testing.T) {
	st := notify.New(notify.Options{})
	defer st.Close()
	st.ApplyEvent(created(record("a", 1, 1)))
	st.ApplyEvent(created(record("b", 2, 2)))
	st.ApplyEvent(model.Event{Kind: model.EventDeleted, ID: "a", SourceVersion: 3})

	cache := testutil.NewTestStore(t)
	p := NewPersister(st, cache, time.Second, nil)
	require.NoError(t, p.Flush(context.Background()))

	records, tombstones, err := cache.LoadState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids(records))
	require.Len(t, tombstones, 1)
	assert.Equal(t, "a", tombstones[0].ID)
	assert.Equal(t, int64(3), tombstones[0].SourceVersion)
}

type acceptingRemote struct{}

func (acceptingRemote) MarkRead(context.Context, string) (*model.Notification, error) {
	return nil, nil
}

func (acceptingRemote) MarkAllRead(context.Context, []string) ([]model.BatchResult, error) {
	return nil, nil
}

func (acceptingRemote) Delete(context.Context, string) error { return nil }

func (acceptingRemote) Clear(context.Context) error { return nil }

func TestPersister_ConfirmedRemoveSurvivesRestart(t *testing.T) {
	st := testutil.NewNotifyStore(t, record("a", 1, 1))
	cache := testutil.NewTestStore(t)
	p := NewPersister(st, cache, 10*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()
	waitSubscribed(t, st, p)

	m := notify.NewMutations(st, acceptingRemote{}, notify.MutationOptions{})
	require.NoError(t, m.Remove(ctx, "a"))

	require.Eventually(t, func() bool {
		records, tombstones, err := cache.LoadState(context.Background())
		return err == nil && len(tombstones) == 1 && len(records) == 1 && records[0].ID == "ready"
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	records, tombstones, err := cache.LoadState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a", tombstones[0].ID)

	restarted := notify.New(notify.Options{})
	defer restarted.Close()
	restarted.Hydrate(records, tombstones)
	_, ok := restarted.Get("a")
	assert.False(t, ok, "confirmed removal must not come back after a restart")
	assert.False(t, restarted.ApplyEvent(created(record("a", 1, 1))), "tombstone blocks the stale record")
	assert.Equal(t, []string{"ready"}, ids(restarted.GetAll()))
}

func TestPersister_SavesTombstoneOnlyChanges(t *testing.T) {
	st := notify.New(notify.Options{})
	defer st.Close()
	saver := &countingSaver{}
	p := NewPersister(st, saver, 10*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()
	waitSubscribed(t, st, p)
	require.Eventually(t, func() bool { return saver.count() >= 1 }, 2*time.Second, 5*time.Millisecond)
	before := saver.count()

	assert.False(t, st.ApplyEvent(model.Event{Kind: model.EventDeleted, ID: "unseen", SourceVersion: 4}),
		"nothing visible changes")
	require.Eventually(t, func() bool { return saver.count() > before }, 2*time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestPersister_FlushReportsError(t *testing.T) {
	st := notify.New(notify.Options{})
	defer st.Close()
	p := NewPersister(st, &countingSaver{err: errors.New("disk full")}, time.Second, nil)

	err := p.Flush(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}
