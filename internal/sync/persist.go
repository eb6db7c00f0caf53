package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nhle/ideaboard/internal/logging"
	"github.com/nhle/ideaboard/internal/model"
)

// Snapshotter is the store side of the persister. SubscribeState must fire
// on every change to what Export returns.
type Snapshotter interface {
	SubscribeState(fn func()) func()
	Export() ([]model.Notification, []model.Tombstone)
}

// StateSaver writes exported state to the local cache.
type StateSaver interface {
	SaveState(ctx context.Context, records []model.Notification, tombstones []model.Tombstone) error
}

// Persister mirrors the store into the local cache, coalescing bursts of
// changes into one write per debounce window.
type Persister struct {
	src      Snapshotter
	dst      StateSaver
	debounce time.Duration
	log      logrus.FieldLogger
	dirty    chan struct{}
}

// NewPersister creates a Persister writing src to dst.
func NewPersister(src Snapshotter, dst StateSaver, debounce time.Duration, logger logrus.FieldLogger) *Persister {
	if debounce <= 0 {
		debounce = time.Second
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Persister{
		src:      src,
		dst:      dst,
		debounce: debounce,
		log:      logger.WithField("component", "persister"),
		dirty:    make(chan struct{}, 1),
	}
}

// Run saves the store after changes until ctx is cancelled, then writes any
// pending change one last time.
func (p *Persister) Run(ctx context.Context) error {
	unsubscribe := p.src.SubscribeState(func() {
		select {
		case p.dirty <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			select {
			case <-p.dirty:
				return p.Flush(context.WithoutCancel(ctx))
			default:
				return nil
			}
		case <-p.dirty:
		}

		timer := time.NewTimer(p.debounce)
		select {
		case <-ctx.Done():
			timer.Stop()
			return p.Flush(context.WithoutCancel(ctx))
		case <-timer.C:
		}

		if err := p.Flush(ctx); err != nil {
			p.log.WithError(err).Warn("saving notification cache")
		}
	}
}

// Flush writes the current store state immediately.
func (p *Persister) Flush(ctx context.Context) error {
	records, tombstones := p.src.Export()
	if err := p.dst.SaveState(ctx, records, tombstones); err != nil {
		return fmt.Errorf("persisting %d notifications: %w", len(records), err)
	}
	p.log.WithField("records", len(records)).Debug("notification cache saved")
	return nil
}
