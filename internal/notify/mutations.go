package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/nhle/ideaboard/internal/logging"
	"github.com/nhle/ideaboard/internal/model"
)

// ErrPartialFailure is returned by MarkAllRead when the server rejected
// some of the batch. The BatchReport lists which.
var ErrPartialFailure = errors.New("some notifications were not updated")

// errNoResult marks batch items the server did not answer for.
var errNoResult = errors.New("no result from server")

// Remote confirms mutations with the notification service.
type Remote interface {
	MarkRead(ctx context.Context, id string) (*model.Notification, error)
	MarkAllRead(ctx context.Context, ids []string) ([]model.BatchResult, error)
	Delete(ctx context.Context, id string) error
	Clear(ctx context.Context) error
}

// MutationOptions configures retries for remote confirmations.
type MutationOptions struct {
	// Retries is the number of retries after the first attempt.
	Retries int

	// Timeout bounds each attempt.
	Timeout time.Duration

	// InitialInterval is the first backoff delay between attempts.
	InitialInterval time.Duration

	Logger logrus.FieldLogger
}

// BatchReport is the per-item outcome of MarkAllRead.
type BatchReport struct {
	Requested []string
	Succeeded []string
	Failed    map[string]error
}

// Mutations applies user actions optimistically to a Store and confirms them
// remotely, rolling back what the server rejects.
type Mutations struct {
	store  *Store
	remote Remote
	group  singleflight.Group
	opts   MutationOptions
	log    logrus.FieldLogger
}

// NewMutations creates a Mutations bound to store and remote.
func NewMutations(store *Store, remote Remote, opts MutationOptions) *Mutations {
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = 250 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	return &Mutations{
		store:  store,
		remote: remote,
		opts:   opts,
		log:    opts.Logger.WithField("component", "mutations"),
	}
}

// MarkRead marks id as read. It is a no-op for records already read.
// Concurrent calls for the same id share one transition and one result.
func (m *Mutations) MarkRead(ctx context.Context, id string) error {
	_, err, _ := m.group.Do("read:"+id, func() (any, error) {
		return nil, m.markRead(ctx, id)
	})
	return err
}

func (m *Mutations) markRead(ctx context.Context, id string) error {
	tok, err := m.store.beginRead(id)
	if err != nil {
		return fmt.Errorf("marking %s read: %w", id, err)
	}
	if tok == nil {
		return nil
	}

	var confirmed *model.Notification
	err = m.retry(ctx, func(ctx context.Context) error {
		rec, err := m.remote.MarkRead(ctx, id)
		confirmed = rec
		return err
	})
	m.store.endReads([]readOutcome{{tok: tok, record: confirmed, ok: err == nil}})
	if err != nil {
		m.log.WithError(err).WithField("id", id).Warn("mark read failed, rolled back")
		return fmt.Errorf("marking %s read: %w", id, err)
	}
	return nil
}

// MarkAllRead marks every currently unread record as read with one batched
// request. Items the server rejects are rolled back individually.
func (m *Mutations) MarkAllRead(ctx context.Context) (BatchReport, error) {
	report := BatchReport{Failed: make(map[string]error)}

	toks, err := m.store.beginReadAll()
	if err != nil {
		return report, fmt.Errorf("marking all read: %w", err)
	}
	if len(toks) == 0 {
		return report, nil
	}
	for _, tok := range toks {
		report.Requested = append(report.Requested, tok.base.ID)
	}

	var results []model.BatchResult
	err = m.retry(ctx, func(ctx context.Context) error {
		res, err := m.remote.MarkAllRead(ctx, report.Requested)
		results = res
		return err
	})

	outcomes := make([]readOutcome, len(toks))
	if err != nil {
		for i, tok := range toks {
			outcomes[i] = readOutcome{tok: tok}
			report.Failed[tok.base.ID] = err
		}
		m.store.endReads(outcomes)
		m.log.WithError(err).WithField("count", len(toks)).Warn("mark all read failed, rolled back")
		return report, fmt.Errorf("marking all read: %w", err)
	}

	byID := make(map[string]model.BatchResult, len(results))
	for _, r := range results {
		byID[r.ID] = r
	}
	for i, tok := range toks {
		id := tok.base.ID
		r, ok := byID[id]
		switch {
		case !ok:
			report.Failed[id] = errNoResult
		case !r.OK:
			report.Failed[id] = rejection(r.Error)
		default:
			report.Succeeded = append(report.Succeeded, id)
		}
		outcomes[i] = readOutcome{tok: tok, record: r.Record, ok: ok && r.OK}
	}
	m.store.endReads(outcomes)

	if len(report.Failed) > 0 {
		m.log.WithFields(logrus.Fields{
			"failed":    len(report.Failed),
			"requested": len(report.Requested),
		}).Warn("mark all read partially rejected")
		return report, fmt.Errorf("marking all read: %d of %d: %w",
			len(report.Failed), len(report.Requested), ErrPartialFailure)
	}
	return report, nil
}

// Remove deletes id. The record disappears at once and comes back only if
// the server rejects the deletion.
func (m *Mutations) Remove(ctx context.Context, id string) error {
	_, err, _ := m.group.Do("remove:"+id, func() (any, error) {
		return nil, m.remove(ctx, id)
	})
	return err
}

func (m *Mutations) remove(ctx context.Context, id string) error {
	tok, err := m.store.beginRemove(id)
	if err != nil {
		return fmt.Errorf("removing %s: %w", id, err)
	}
	if tok == nil {
		return nil
	}

	err = m.retry(ctx, func(ctx context.Context) error {
		err := m.remote.Delete(ctx, id)
		if isNotFound(err) {
			return nil
		}
		return err
	})
	m.store.endRemoves([]*entry{tok}, err == nil)
	if err != nil {
		m.log.WithError(err).WithField("id", id).Warn("remove failed, restored")
		return fmt.Errorf("removing %s: %w", id, err)
	}
	return nil
}

// ClearAll deletes every visible record.
func (m *Mutations) ClearAll(ctx context.Context) error {
	_, err, _ := m.group.Do("clear", func() (any, error) {
		return nil, m.clearAll(ctx)
	})
	return err
}

func (m *Mutations) clearAll(ctx context.Context) error {
	toks, err := m.store.beginRemoveAll()
	if err != nil {
		return fmt.Errorf("clearing notifications: %w", err)
	}
	if len(toks) == 0 {
		return nil
	}

	err = m.retry(ctx, m.remote.Clear)
	m.store.endRemoves(toks, err == nil)
	if err != nil {
		m.log.WithError(err).WithField("count", len(toks)).Warn("clear failed, restored")
		return fmt.Errorf("clearing notifications: %w", err)
	}
	return nil
}

// retry runs op with a per-attempt timeout and a bounded number of retries
// on exponential backoff. Errors that say they are not temporary stop it.
func (m *Mutations) retry(ctx context.Context, op func(ctx context.Context) error) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = m.opts.InitialInterval
	eb.MaxInterval = 5 * time.Second
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(m.opts.Retries)), ctx)

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		actx, cancel := context.WithTimeout(ctx, m.opts.Timeout)
		defer cancel()

		err := op(actx)
		if err == nil {
			return nil
		}
		if !Retryable(err) {
			return backoff.Permanent(err)
		}
		m.log.WithError(err).WithField("attempt", attempt).Debug("remote call failed")
		return err
	}, b)
}

// Retryable reports whether a failed remote call may succeed if repeated.
// Cancellation is final; errors exposing Temporary decide for themselves;
// anything else, such as a transport failure, is retried.
func Retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var t interface{ Temporary() bool }
	if errors.As(err, &t) {
		return t.Temporary()
	}
	return true
}

func rejection(msg string) error {
	if msg == "" {
		return errors.New("rejected by server")
	}
	return errors.New(msg)
}

func isNotFound(err error) bool {
	var nf interface{ NotFound() bool }
	return errors.As(err, &nf) && nf.NotFound()
}
