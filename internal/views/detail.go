package views

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nhle/ideaboard/internal/model"
	"github.com/nhle/ideaboard/internal/notify"
)

// Loader fetches a single record the store does not hold yet.
type Loader interface {
	GetNotification(ctx context.Context, id string) (*model.Notification, error)
}

// Marker marks a record read. *notify.Mutations implements it.
type Marker interface {
	MarkRead(ctx context.Context, id string) error
}

// Detail is the single-record view. It marks its record read on the first
// successful Open only; later opens and re-renders never call the Marker.
type Detail struct {
	id     string
	store  *notify.Store
	loader Loader
	marker Marker

	once sync.Once
}

// NewDetail creates a Detail for id. loader may be nil, in which case
// records missing from the store are reported as not found.
func NewDetail(id string, store *notify.Store, loader Loader, marker Marker) *Detail {
	return &Detail{id: id, store: store, loader: loader, marker: marker}
}

// ID returns the id the detail shows.
func (d *Detail) ID() string {
	return d.id
}

// Record returns the live record from the store.
func (d *Detail) Record() (model.Notification, bool) {
	return d.store.Get(d.id)
}

// Open resolves the record, loading it when the store does not hold it,
// and marks it read the first time it resolves. A failed mark is returned
// alongside the record by the call that attempted it.
func (d *Detail) Open(ctx context.Context) (model.Notification, error) {
	if _, ok := d.store.Get(d.id); !ok {
		if err := d.load(ctx); err != nil {
			return model.Notification{}, err
		}
	}

	var markErr error
	d.once.Do(func() {
		if d.marker != nil {
			markErr = d.marker.MarkRead(ctx, d.id)
		}
	})

	n, ok := d.store.Get(d.id)
	if !ok {
		return model.Notification{}, fmt.Errorf("opening %s: %w", d.id, notify.ErrNotFound)
	}
	if markErr != nil {
		return n, fmt.Errorf("marking %s read: %w", d.id, markErr)
	}
	return n, nil
}

func (d *Detail) load(ctx context.Context) error {
	if d.loader == nil {
		return fmt.Errorf("opening %s: %w", d.id, notify.ErrNotFound)
	}
	rec, err := d.loader.GetNotification(ctx, d.id)
	if err != nil {
		var nf interface{ NotFound() bool }
		if errors.As(err, &nf) && nf.NotFound() {
			return fmt.Errorf("opening %s: %w", d.id, notify.ErrNotFound)
		}
		return fmt.Errorf("loading %s: %w", d.id, err)
	}
	if rec == nil {
		return fmt.Errorf("opening %s: %w", d.id, notify.ErrNotFound)
	}
	d.store.ApplyEvent(model.Event{
		Kind:          model.EventUpdated,
		Record:        rec,
		ID:            rec.ID,
		SourceVersion: rec.SourceVersion,
	})
	if _, ok := d.store.Get(d.id); !ok {
		return fmt.Errorf("opening %s: %w", d.id, notify.ErrNotFound)
	}
	return nil
}
