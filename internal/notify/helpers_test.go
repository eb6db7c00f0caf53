package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nhle/ideaboard/internal/model"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func record(id string, minute int, version int64) model.Notification {
	return model.Notification{
		ID:            id,
		Title:         "title " + id,
		Message:       "message " + id,
		Type:          model.TypeInfo,
		Priority:      model.PriorityMedium,
		CreatedAt:     t0.Add(time.Duration(minute) * time.Minute),
		SourceVersion: version,
	}
}

func created(n model.Notification) model.Event {
	return model.Event{Kind: model.EventCreated, Record: &n, ID: n.ID, SourceVersion: n.SourceVersion}
}

func updated(n model.Notification) model.Event {
	return model.Event{Kind: model.EventUpdated, Record: &n, ID: n.ID, SourceVersion: n.SourceVersion}
}

func ids(records []model.Notification) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func countUnread(records []model.Notification) int {
	n := 0
	for _, r := range records {
		if !r.Read {
			n++
		}
	}
	return n
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *fakeClock { return &fakeClock{now: t0.Add(time.Hour)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStore(t *testing.T, clock *fakeClock) *Store {
	t.Helper()
	s := New(Options{TombstoneTTL: time.Minute, Clock: clock.Now})
	t.Cleanup(s.Close)
	return s
}

// seed applies created events and fails the test if any is rejected.
func seed(t *testing.T, s *Store, records ...model.Notification) {
	t.Helper()
	for _, r := range records {
		require.True(t, s.ApplyEvent(created(r)), "seeding %s", r.ID)
	}
}

// fakeRemote answers mutations with per-test hooks. Unset hooks succeed.
type fakeRemote struct {
	mu    sync.Mutex
	calls map[string]int

	markRead    func(ctx context.Context, id string) (*model.Notification, error)
	markAllRead func(ctx context.Context, ids []string) ([]model.BatchResult, error)
	delete      func(ctx context.Context, id string) error
	clear       func(ctx context.Context) error
}

func (f *fakeRemote) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeRemote) record(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[op]++
}

func (f *fakeRemote) MarkRead(ctx context.Context, id string) (*model.Notification, error) {
	f.record("read")
	if f.markRead != nil {
		return f.markRead(ctx, id)
	}
	return nil, nil
}

func (f *fakeRemote) MarkAllRead(ctx context.Context, ids []string) ([]model.BatchResult, error) {
	f.record("read_all")
	if f.markAllRead != nil {
		return f.markAllRead(ctx, ids)
	}
	results := make([]model.BatchResult, len(ids))
	for i, id := range ids {
		results[i] = model.BatchResult{ID: id, OK: true}
	}
	return results, nil
}

func (f *fakeRemote) Delete(ctx context.Context, id string) error {
	f.record("delete")
	if f.delete != nil {
		return f.delete(ctx, id)
	}
	return nil
}

func (f *fakeRemote) Clear(ctx context.Context) error {
	f.record("clear")
	if f.clear != nil {
		return f.clear(ctx)
	}
	return nil
}

func newTestMutations(s *Store, remote Remote) *Mutations {
	return NewMutations(s, remote, MutationOptions{
		Retries:         2,
		Timeout:         time.Second,
		InitialInterval: time.Millisecond,
	})
}

// statusError mimics the API client's error contract.
type statusError struct {
	temporary bool
	notFound  bool
}

func (e *statusError) Error() string   { return "status error" }
func (e *statusError) Temporary() bool { return e.temporary }
func (e *statusError) NotFound() bool  { return e.notFound }
