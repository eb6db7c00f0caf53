package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/ideaboard/internal/model"
)

var errOffline = errors.New("network unreachable")

func TestMarkRead_NoOpWhenAlreadyRead(t *testing.T) {
	s := newTestStore(t, newClock())
	n := record("A", 1, 1)
	n.Read = true
	seed(t, s, n)
	remote := &fakeRemote{}

	require.NoError(t, newTestMutations(s, remote).MarkRead(context.Background(), "A"))
	assert.Equal(t, 0, remote.count("read"))
}

func TestMarkRead_UnknownID(t *testing.T) {
	s := newTestStore(t, newClock())
	err := newTestMutations(s, &fakeRemote{}).MarkRead(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMarkRead_OfflineRollsBack(t *testing.T) {
	s := newTestStore(t, newClock())
	seed(t, s, record("X", 1, 1))
	remote := &fakeRemote{markRead: func(ctx context.Context, id string) (*model.Notification, error) {
		return nil, errOffline
	}}

	err := newTestMutations(s, remote).MarkRead(context.Background(), "X")
	require.ErrorIs(t, err, errOffline)
	assert.Equal(t, 3, remote.count("read"), "first attempt plus two retries")

	x, _ := s.Get("X")
	assert.False(t, x.Read)
	assert.Nil(t, x.ReadAt)
	assert.Equal(t, 1, s.GetUnreadCount())
}

func TestMarkRead_FailureKeepsNewerRealtimeRead(t *testing.T) {
	s := newTestStore(t, newClock())
	seed(t, s, record("X", 1, 1))

	inFlight := make(chan struct{})
	release := make(chan struct{})
	remote := &fakeRemote{markRead: func(ctx context.Context, id string) (*model.Notification, error) {
		close(inFlight)
		<-release
		return nil, &statusError{temporary: false}
	}}

	done := make(chan error, 1)
	go func() { done <- newTestMutations(s, remote).MarkRead(context.Background(), "X") }()
	<-inFlight

	elsewhere := t0.Add(5 * time.Minute)
	s.ApplyEvent(model.Event{Kind: model.EventRead, ID: "X", SourceVersion: 2, At: &elsewhere})

	close(release)
	require.Error(t, <-done)

	x, _ := s.Get("X")
	assert.True(t, x.Read, "read from another device must survive the rollback")
	require.NotNil(t, x.ReadAt)
	assert.True(t, x.ReadAt.Equal(t0.Add(time.Hour)), "shown read time must not move back to %s", elsewhere)
	assert.Equal(t, 0, s.GetUnreadCount())
}

func TestMarkRead_EarlierServerReadTimeDoesNotRewind(t *testing.T) {
	s := newTestStore(t, newClock())
	seed(t, s, record("X", 1, 1))
	optimistic := t0.Add(time.Hour)
	elsewhere := t0.Add(5 * time.Minute)

	inFlight := make(chan struct{})
	release := make(chan struct{})
	remote := &fakeRemote{markRead: func(ctx context.Context, id string) (*model.Notification, error) {
		close(inFlight)
		<-release
		n := record("X", 1, 3)
		n.Read = true
		n.ReadAt = &elsewhere
		return &n, nil
	}}

	done := make(chan error, 1)
	go func() { done <- newTestMutations(s, remote).MarkRead(context.Background(), "X") }()
	<-inFlight

	x, _ := s.Get("X")
	require.NotNil(t, x.ReadAt)
	assert.True(t, x.ReadAt.Equal(optimistic))

	s.ApplyEvent(model.Event{Kind: model.EventRead, ID: "X", SourceVersion: 2, At: &elsewhere})
	x, _ = s.Get("X")
	require.NotNil(t, x.ReadAt)
	assert.True(t, x.ReadAt.Equal(optimistic), "got %s", x.ReadAt)

	close(release)
	require.NoError(t, <-done)

	x, _ = s.Get("X")
	require.NotNil(t, x.ReadAt)
	assert.True(t, x.ReadAt.Equal(optimistic), "got %s", x.ReadAt)
	assert.Equal(t, int64(3), x.SourceVersion)

	records, _ := s.Export()
	require.Len(t, records, 1)
	require.NotNil(t, records[0].ReadAt)
	assert.True(t, records[0].ReadAt.Equal(optimistic), "persisted read time")
}

func TestMarkRead_ConcurrentCallsCollapse(t *testing.T) {
	s := newTestStore(t, newClock())
	seed(t, s, record("A", 1, 1))

	release := make(chan struct{})
	remote := &fakeRemote{markRead: func(ctx context.Context, id string) (*model.Notification, error) {
		<-release
		return nil, nil
	}}
	m := newTestMutations(s, remote)

	var transitions []int
	var mu sync.Mutex
	Select(s, (*Store).GetUnreadCount, func(n int) {
		mu.Lock()
		defer mu.Unlock()
		transitions = append(transitions, n)
	})

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- m.MarkRead(context.Background(), "A")
		}()
	}
	require.Eventually(t, func() bool { return s.GetUnreadCount() == 0 }, time.Second, time.Millisecond)
	first, _ := s.Get("A")

	close(release)
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.Equal(t, 1, remote.count("read"))
	mu.Lock()
	assert.Equal(t, []int{0}, transitions)
	mu.Unlock()

	require.NoError(t, m.MarkRead(context.Background(), "A"))
	after, _ := s.Get("A")
	require.NotNil(t, after.ReadAt)
	assert.True(t, first.ReadAt.Equal(*after.ReadAt), "readAt is set once")
}

func TestMarkRead_MergesConfirmedRecord(t *testing.T) {
	s := newTestStore(t, newClock())
	seed(t, s, record("A", 1, 1))
	remote := &fakeRemote{markRead: func(ctx context.Context, id string) (*model.Notification, error) {
		n := record("A", 1, 4)
		n.Read = true
		at := t0.Add(90 * time.Minute)
		n.ReadAt = &at
		return &n, nil
	}}

	require.NoError(t, newTestMutations(s, remote).MarkRead(context.Background(), "A"))
	a, _ := s.Get("A")
	assert.Equal(t, int64(4), a.SourceVersion)
	assert.True(t, a.Read)
}

func TestMarkRead_NonTemporaryErrorIsNotRetried(t *testing.T) {
	s := newTestStore(t, newClock())
	seed(t, s, record("A", 1, 1))
	remote := &fakeRemote{markRead: func(ctx context.Context, id string) (*model.Notification, error) {
		return nil, &statusError{temporary: false}
	}}

	require.Error(t, newTestMutations(s, remote).MarkRead(context.Background(), "A"))
	assert.Equal(t, 1, remote.count("read"))
}

func TestMarkRead_TemporaryErrorRetriedThenSucceeds(t *testing.T) {
	s := newTestStore(t, newClock())
	seed(t, s, record("A", 1, 1))
	attempts := 0
	remote := &fakeRemote{markRead: func(ctx context.Context, id string) (*model.Notification, error) {
		attempts++
		if attempts < 3 {
			return nil, &statusError{temporary: true}
		}
		return nil, nil
	}}

	require.NoError(t, newTestMutations(s, remote).MarkRead(context.Background(), "A"))
	a, _ := s.Get("A")
	assert.True(t, a.Read)
	assert.Equal(t, 3, attempts)
}

func TestMarkAllRead_DrivesUnreadToZero(t *testing.T) {
	s := newTestStore(t, newClock())
	seed(t, s, record("A", 1, 1), record("B", 2, 2), record("C", 3, 3))
	remote := &fakeRemote{}

	report, err := newTestMutations(s, remote).MarkAllRead(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, s.GetUnreadCount())
	assert.ElementsMatch(t, []string{"A", "B", "C"}, report.Requested)
	assert.ElementsMatch(t, []string{"A", "B", "C"}, report.Succeeded)
	assert.Empty(t, report.Failed)
	assert.Equal(t, 1, remote.count("read_all"))
}

func TestMarkAllRead_NothingUnread(t *testing.T) {
	s := newTestStore(t, newClock())
	remote := &fakeRemote{}
	report, err := newTestMutations(s, remote).MarkAllRead(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Requested)
	assert.Equal(t, 0, remote.count("read_all"))
}

func TestMarkAllRead_PartialFailureRollsBackRejectedOnly(t *testing.T) {
	s := newTestStore(t, newClock())
	seed(t, s, record("A", 1, 1), record("B", 2, 2), record("C", 3, 3))
	remote := &fakeRemote{markAllRead: func(ctx context.Context, ids []string) ([]model.BatchResult, error) {
		var out []model.BatchResult
		for _, id := range ids {
			switch id {
			case "B":
				out = append(out, model.BatchResult{ID: id, OK: false, Error: "forbidden"})
			case "C":
				// no answer for C
			default:
				out = append(out, model.BatchResult{ID: id, OK: true})
			}
		}
		return out, nil
	}}

	report, err := newTestMutations(s, remote).MarkAllRead(context.Background())
	require.ErrorIs(t, err, ErrPartialFailure)
	assert.Equal(t, []string{"A"}, report.Succeeded)
	require.Contains(t, report.Failed, "B")
	assert.EqualError(t, report.Failed["B"], "forbidden")
	assert.ErrorIs(t, report.Failed["C"], errNoResult)

	a, _ := s.Get("A")
	b, _ := s.Get("B")
	assert.True(t, a.Read)
	assert.False(t, b.Read)
	assert.Equal(t, 2, s.GetUnreadCount())
}

func TestMarkAllRead_TransportFailureRollsBackAll(t *testing.T) {
	s := newTestStore(t, newClock())
	seed(t, s, record("A", 1, 1), record("B", 2, 2))
	remote := &fakeRemote{markAllRead: func(ctx context.Context, ids []string) ([]model.BatchResult, error) {
		return nil, errOffline
	}}

	report, err := newTestMutations(s, remote).MarkAllRead(context.Background())
	require.ErrorIs(t, err, errOffline)
	assert.Len(t, report.Failed, 2)
	assert.Equal(t, 2, s.GetUnreadCount())
}

func TestRemove_RejectionRestoresNewerState(t *testing.T) {
	s := newTestStore(t, newClock())
	seed(t, s, record("A", 1, 1))

	inFlight := make(chan struct{})
	release := make(chan struct{})
	remote := &fakeRemote{delete: func(ctx context.Context, id string) error {
		close(inFlight)
		<-release
		return &statusError{temporary: false}
	}}

	done := make(chan error, 1)
	go func() { done <- newTestMutations(s, remote).Remove(context.Background(), "A") }()
	<-inFlight
	assert.Empty(t, s.GetAll())
	assert.Equal(t, 0, s.GetUnreadCount())

	newer := record("A", 1, 2)
	newer.Title = "edited while hidden"
	s.ApplyEvent(updated(newer))
	assert.Empty(t, s.GetAll(), "still hidden while the delete is pending")

	close(release)
	require.Error(t, <-done)

	a, ok := s.Get("A")
	require.True(t, ok)
	assert.Equal(t, "edited while hidden", a.Title)
	assert.Equal(t, 1, s.GetUnreadCount())
}

func TestRemove_RejectionAfterIndependentDelete(t *testing.T) {
	s := newTestStore(t, newClock())
	seed(t, s, record("A", 1, 1))

	inFlight := make(chan struct{})
	release := make(chan struct{})
	remote := &fakeRemote{delete: func(ctx context.Context, id string) error {
		close(inFlight)
		<-release
		return &statusError{temporary: false}
	}}

	done := make(chan error, 1)
	go func() { done <- newTestMutations(s, remote).Remove(context.Background(), "A") }()
	<-inFlight
	s.ApplyEvent(model.Event{Kind: model.EventDeleted, ID: "A", SourceVersion: 2})

	close(release)
	require.Error(t, <-done)
	_, ok := s.Get("A")
	assert.False(t, ok)
}

func TestRemove_NotFoundCountsAsSuccess(t *testing.T) {
	s := newTestStore(t, newClock())
	seed(t, s, record("A", 1, 1))
	remote := &fakeRemote{delete: func(ctx context.Context, id string) error {
		return &statusError{notFound: true}
	}}

	require.NoError(t, newTestMutations(s, remote).Remove(context.Background(), "A"))
	assert.Empty(t, s.GetAll())
	assert.False(t, s.ApplyEvent(created(record("A", 1, 1))))
}

func TestRemove_WinsOverInflightMarkRead(t *testing.T) {
	s := newTestStore(t, newClock())
	seed(t, s, record("A", 1, 1))

	inFlight := make(chan struct{})
	release := make(chan struct{})
	remote := &fakeRemote{markRead: func(ctx context.Context, id string) (*model.Notification, error) {
		close(inFlight)
		<-release
		n := record("A", 1, 2)
		n.Read = true
		return &n, nil
	}}
	m := newTestMutations(s, remote)

	done := make(chan error, 1)
	go func() { done <- m.MarkRead(context.Background(), "A") }()
	<-inFlight

	require.NoError(t, m.Remove(context.Background(), "A"))
	close(release)
	require.NoError(t, <-done)

	assert.Empty(t, s.GetAll(), "late mark-read response must not resurrect")
	assert.Equal(t, 0, s.GetUnreadCount())
}

func TestRemove_RejectedAfterConfirmedReadKeepsRead(t *testing.T) {
	s := newTestStore(t, newClock())
	seed(t, s, record("A", 1, 1))

	readInFlight := make(chan struct{})
	releaseRead := make(chan struct{})
	deleteInFlight := make(chan struct{})
	releaseDelete := make(chan struct{})
	remote := &fakeRemote{
		markRead: func(ctx context.Context, id string) (*model.Notification, error) {
			close(readInFlight)
			<-releaseRead
			n := record("A", 1, 2)
			n.Read = true
			return &n, nil
		},
		delete: func(ctx context.Context, id string) error {
			close(deleteInFlight)
			<-releaseDelete
			return &statusError{temporary: false}
		},
	}
	m := newTestMutations(s, remote)

	readDone := make(chan error, 1)
	go func() { readDone <- m.MarkRead(context.Background(), "A") }()
	<-readInFlight

	removeDone := make(chan error, 1)
	go func() { removeDone <- m.Remove(context.Background(), "A") }()
	<-deleteInFlight

	close(releaseRead)
	require.NoError(t, <-readDone)
	close(releaseDelete)
	require.Error(t, <-removeDone)

	a, ok := s.Get("A")
	require.True(t, ok, "rejected delete restores the record")
	assert.True(t, a.Read, "confirmed read must survive the rejected delete")
	assert.Equal(t, int64(2), a.SourceVersion)
	assert.Equal(t, 0, s.GetUnreadCount())
}

func TestClearAll_RejectionRestoresEverything(t *testing.T) {
	s := newTestStore(t, newClock())
	seed(t, s, record("A", 1, 1), record("B", 2, 2))
	remote := &fakeRemote{clear: func(ctx context.Context) error { return errOffline }}

	err := newTestMutations(s, remote).ClearAll(context.Background())
	require.ErrorIs(t, err, errOffline)
	assert.Equal(t, []string{"B", "A"}, ids(s.GetAll()))
	assert.Equal(t, 2, s.GetUnreadCount())
}

func TestMutations_CancelledContextStopsRetries(t *testing.T) {
	s := newTestStore(t, newClock())
	seed(t, s, record("A", 1, 1))
	ctx, cancel := context.WithCancel(context.Background())
	remote := &fakeRemote{markRead: func(context.Context, string) (*model.Notification, error) {
		cancel()
		return nil, context.Canceled
	}}

	err := newTestMutations(s, remote).MarkRead(ctx, "A")
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, remote.count("read"))
	a, _ := s.Get("A")
	assert.False(t, a.Read)
}
