// Package notify holds the client-side notification state: a Store that
// reconciles pushed events, fetched snapshots and optimistic mutations into
// one consistent, ordered view.
package notify

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nhle/ideaboard/internal/logging"
	"github.com/nhle/ideaboard/internal/metrics"
	"github.com/nhle/ideaboard/internal/model"
)

// DefaultTombstoneTTL is used when Options.TombstoneTTL is zero.
const DefaultTombstoneTTL = 10 * time.Minute

var (
	// ErrNotFound is returned for IDs the store does not currently show.
	ErrNotFound = errors.New("notification not found")

	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("notification store closed")
)

// Meta is the non-record state surfaced to the UI alongside the records.
type Meta struct {
	Status model.ConnectionStatus
	Stale  bool
}

// Options configures a Store.
type Options struct {
	TombstoneTTL time.Duration
	Clock        func() time.Time
	Logger       logrus.FieldLogger
	Metrics      *metrics.Metrics
}

// entry is the store's per-ID slot: the last authoritative record plus
// optimistic overlays that have not been confirmed yet. The pointer itself
// identifies one lifetime of the ID; a deleted and re-created ID gets a new
// entry, so late mutation responses can tell they are stale.
type entry struct {
	base      model.Notification
	localRead *time.Time
	removing  bool
}

func (e *entry) visible() model.Notification {
	return withLocalRead(e.base.Clone(), e.localRead)
}

func (e *entry) pending() bool {
	return e.localRead != nil || e.removing
}

// Store is the single source of truth for notification state.
//
// Every write runs under writeMu, so writes are applied one at a time and
// listeners observe transitions in order. Listeners are called after the
// data lock is released but before the next write starts; they may read the
// store but must not write to it or call Select synchronously.
type Store struct {
	writeMu sync.Mutex

	mu         sync.RWMutex
	entries    map[string]*entry
	tombstones map[string]model.Tombstone
	sorted     []model.Notification
	unread     int
	dirty      bool
	modified   bool
	revision   uint64
	meta       Meta
	closed     bool
	nextSweep  time.Time

	listeners      map[int]func()
	stateListeners map[int]func()
	metaListeners  map[int]func(Meta)
	nextListener   int

	ttl     time.Duration
	now     func() time.Time
	log     logrus.FieldLogger
	metrics *metrics.Metrics
}

// New creates an empty store.
func New(opts Options) *Store {
	if opts.TombstoneTTL <= 0 {
		opts.TombstoneTTL = DefaultTombstoneTTL
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	return &Store{
		entries:        make(map[string]*entry),
		tombstones:     make(map[string]model.Tombstone),
		sorted:         []model.Notification{},
		meta:           Meta{Status: model.StatusDisconnected},
		listeners:      make(map[int]func()),
		stateListeners: make(map[int]func()),
		metaListeners:  make(map[int]func(Meta)),
		ttl:            opts.TombstoneTTL,
		now:            opts.Clock,
		log:            opts.Logger.WithField("component", "store"),
		metrics:        opts.Metrics,
	}
}

// GetAll returns the visible records, newest first. The returned slice is
// shared and must not be modified.
func (s *Store) GetAll() []model.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sorted
}

// GetUnreadCount returns the number of visible unread records.
func (s *Store) GetUnreadCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unread
}

// Get returns the visible record for id.
func (s *Store) Get(id string) (model.Notification, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok || e.removing {
		return model.Notification{}, false
	}
	return e.visible(), true
}

// Len returns the number of visible records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sorted)
}

// Meta returns the current connection status and stale flag.
func (s *Store) Meta() Meta {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.meta
}

// ConnectionStatus returns the realtime channel status.
func (s *Store) ConnectionStatus() model.ConnectionStatus {
	return s.Meta().Status
}

// Stale reports whether the last fetch exhausted its retries.
func (s *Store) Stale() bool {
	return s.Meta().Stale
}

// Subscribe registers fn to be called after every write that changes the
// visible records or the unread count. The returned func unsubscribes.
func (s *Store) Subscribe(fn func()) func() {
	return s.register(s.listeners, fn)
}

// SubscribeState registers fn to be called after every write that changes
// what Export returns: authoritative records or tombstones. It also fires
// for changes that are not visible, such as a confirmed removal of a record
// that was already hidden.
func (s *Store) SubscribeState(fn func()) func() {
	return s.register(s.stateListeners, fn)
}

func (s *Store) register(set map[int]func(), fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return func() {}
	}
	id := s.nextListener
	s.nextListener++
	set[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(set, id)
	}
}

// Revision counts the writes that changed authoritative state.
func (s *Store) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision
}

// SubscribeMeta registers fn to be called whenever Meta changes.
func (s *Store) SubscribeMeta(fn func(Meta)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return func() {}
	}
	id := s.nextListener
	s.nextListener++
	s.metaListeners[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.metaListeners, id)
	}
}

// Select subscribes fn to a derived value of the store. fn is only called
// when selector's result differs from the previous one. The initial value
// is taken with writes held off, so no change between it and the
// subscription is lost.
func Select[T comparable](s *Store, selector func(*Store) T, fn func(T)) func() {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	last := selector(s)
	return s.Subscribe(func() {
		v := selector(s)
		if v == last {
			return
		}
		last = v
		fn(v)
	})
}

// Close disposes the store. Listeners are dropped and later writes are
// ignored; reads keep returning the last state.
func (s *Store) Close() {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	clear(s.listeners)
	clear(s.stateListeners)
	clear(s.metaListeners)
}

// SetConnectionStatus records the realtime channel status.
func (s *Store) SetConnectionStatus(status model.ConnectionStatus) {
	s.updateMeta(func(m *Meta) { m.Status = status })
}

// SetStale raises or clears the stale-data signal.
func (s *Store) SetStale(stale bool) {
	s.updateMeta(func(m *Meta) { m.Stale = stale })
}

func (s *Store) updateMeta(fn func(*Meta)) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	before := s.meta
	fn(&s.meta)
	after := s.meta
	var listeners []func(Meta)
	if after != before {
		for _, l := range s.metaListeners {
			listeners = append(listeners, l)
		}
	}
	s.mu.Unlock()

	for _, l := range listeners {
		l(after)
	}
}

// ApplyEvent offers one event to the store and reports whether the visible
// state changed. Stale, duplicate and tombstoned events are ignored.
func (s *Store) ApplyEvent(ev model.Event) bool {
	changed, _ := s.write(func() error {
		s.applyLocked(ev)
		return nil
	})
	return changed
}

// ApplyEvents applies a batch of events as one transition.
func (s *Store) ApplyEvents(events []model.Event) bool {
	changed, _ := s.write(func() error {
		for _, ev := range events {
			s.applyLocked(ev)
		}
		return nil
	})
	return changed
}

// ApplySnapshot merges a complete server listing cut at watermark. Local
// records missing from it are removed and tombstoned, except those with a
// pending optimistic mutation and those newer than the watermark.
func (s *Store) ApplySnapshot(records []model.Notification, watermark int64) bool {
	changed, _ := s.write(func() error {
		seen := make(map[string]struct{}, len(records))
		for i := range records {
			rec := records[i]
			seen[rec.ID] = struct{}{}
			s.applyLocked(model.Event{Kind: model.EventUpdated, Record: &rec, ID: rec.ID, SourceVersion: rec.SourceVersion})
		}
		for id, e := range s.entries {
			if _, ok := seen[id]; ok {
				continue
			}
			if e.pending() || e.base.SourceVersion > watermark {
				continue
			}
			s.log.WithField("id", id).Debug("pruning record absent from snapshot")
			s.bury(id, max(watermark, e.base.SourceVersion))
			s.drop(id)
		}
		return nil
	})
	return changed
}

// Hydrate replaces the store contents with previously exported state.
func (s *Store) Hydrate(records []model.Notification, tombstones []model.Tombstone) {
	s.write(func() error {
		for id := range s.entries {
			s.drop(id)
		}
		if len(s.tombstones) > 0 {
			clear(s.tombstones)
			s.modified = true
		}
		now := s.now()
		for _, ts := range tombstones {
			if !ts.Expired(now) {
				s.tombstones[ts.ID] = ts
			}
		}
		for _, rec := range records {
			if err := rec.Validate(); err != nil {
				s.log.WithError(err).Warn("skipping invalid cached record")
				continue
			}
			if ts, ok := s.tombstones[rec.ID]; ok && blocks(ts, rec.SourceVersion, now) {
				continue
			}
			s.insert(rec.Normalize())
		}
		return nil
	})
}

// Export returns the authoritative records and live tombstones. Optimistic
// overlays are not included.
func (s *Store) Export() ([]model.Notification, []model.Tombstone) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := s.now()
	records := make([]model.Notification, 0, len(s.entries))
	for _, e := range s.entries {
		records = append(records, e.base.Clone())
	}
	slices.SortFunc(records, newerFirst)
	tombstones := make([]model.Tombstone, 0, len(s.tombstones))
	for _, ts := range s.tombstones {
		if !ts.Expired(now) {
			tombstones = append(tombstones, ts)
		}
	}
	slices.SortFunc(tombstones, func(a, b model.Tombstone) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return records, tombstones
}

// write is the single apply path. fn runs with the data lock held and
// reports its effect through insert, edit, drop and bury. Listeners are
// notified after the lock is released: visible listeners when the visible
// state changed, state listeners when records or tombstones did.
func (s *Store) write(fn func() error) (bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false, ErrClosed
	}
	s.sweep()
	err := fn()
	changed := s.dirty
	var listeners []func()
	if changed {
		s.rebuild()
		for _, l := range s.listeners {
			listeners = append(listeners, l)
		}
	}
	if s.modified {
		s.modified = false
		s.revision++
		for _, l := range s.stateListeners {
			listeners = append(listeners, l)
		}
	}
	s.mu.Unlock()

	for _, l := range listeners {
		l()
	}
	return changed, err
}

// applyLocked applies one event. The caller holds mu.
func (s *Store) applyLocked(ev model.Event) {
	result := s.reconcile(ev)
	s.metrics.EventApplied(string(ev.Kind), result)
}

func (s *Store) reconcile(ev model.Event) string {
	now := s.now()
	log := s.log.WithFields(logrus.Fields{"kind": ev.Kind, "id": ev.TargetID(), "version": ev.SourceVersion})

	switch ev.Kind {
	case model.EventCreated, model.EventUpdated:
		if ev.Record == nil {
			log.Warn("dropping event without record")
			return metrics.ResultInvalid
		}
		rec := *ev.Record
		if err := rec.Validate(); err != nil {
			log.WithError(err).Warn("dropping invalid record")
			return metrics.ResultInvalid
		}
		if ts, ok := s.tombstones[rec.ID]; ok {
			if blocks(ts, rec.SourceVersion, now) {
				log.Debug("ignoring event for tombstoned id")
				return metrics.ResultBlocked
			}
			delete(s.tombstones, rec.ID)
			s.modified = true
		}
		e, ok := s.entries[rec.ID]
		if !ok {
			s.insert(rec.Normalize())
			return metrics.ResultApplied
		}
		merged, ok := mergeRecord(&e.base, rec)
		if !ok {
			return metrics.ResultIgnored
		}
		s.edit(e, func(e *entry) { e.base = merged })
		return metrics.ResultApplied

	case model.EventRead:
		e, ok := s.entries[ev.ID]
		if !ok {
			return metrics.ResultIgnored
		}
		updated, ok := applyRead(e.base, ev.SourceVersion, ev.At, now)
		if !ok {
			return metrics.ResultIgnored
		}
		s.edit(e, func(e *entry) { e.base = updated })
		return metrics.ResultApplied

	case model.EventReadAll:
		result := metrics.ResultIgnored
		for _, e := range s.entries {
			updated, ok := applyRead(e.base, ev.SourceVersion, ev.At, now)
			if !ok {
				continue
			}
			s.edit(e, func(e *entry) { e.base = updated })
			result = metrics.ResultApplied
		}
		return result

	case model.EventDeleted:
		if ev.ID == "" {
			log.Warn("dropping deletion without id")
			return metrics.ResultInvalid
		}
		if e, ok := s.entries[ev.ID]; ok && !acceptDelete(e.base.SourceVersion, ev.SourceVersion) {
			return metrics.ResultIgnored
		}
		s.bury(ev.ID, ev.SourceVersion)
		s.drop(ev.ID)
		return metrics.ResultApplied
	}

	log.Warn("dropping event of unknown kind")
	return metrics.ResultInvalid
}

// insert adds a new entry for rec. The caller holds mu.
func (s *Store) insert(rec model.Notification) *entry {
	e := &entry{base: rec}
	s.entries[rec.ID] = e
	s.modified = true
	s.account(model.Notification{}, false, e.visible(), true)
	return e
}

// edit applies fn to e and accounts for the visible difference.
func (s *Store) edit(e *entry, fn func(*entry)) {
	before, wasVisible := e.visible(), !e.removing
	base := e.base
	fn(e)
	if !sameRecord(base, e.base) {
		s.modified = true
	}
	s.account(before, wasVisible, e.visible(), !e.removing)
}

// drop removes the entry for id, if any.
func (s *Store) drop(id string) {
	e, ok := s.entries[id]
	if !ok {
		return
	}
	delete(s.entries, id)
	s.modified = true
	s.account(e.visible(), !e.removing, model.Notification{}, false)
}

// bury records a tombstone for id, keeping the highest version seen.
func (s *Store) bury(id string, version int64) {
	ts, ok := s.tombstones[id]
	if ok && ts.SourceVersion > version {
		version = ts.SourceVersion
	}
	s.tombstones[id] = model.Tombstone{ID: id, SourceVersion: version, ExpiresAt: s.now().Add(s.ttl)}
	s.modified = true
}

func (s *Store) account(before model.Notification, wasVisible bool, after model.Notification, isVisible bool) {
	if wasVisible && !before.Read {
		s.unread--
	}
	if isVisible && !after.Read {
		s.unread++
	}
	if wasVisible != isVisible || (isVisible && !sameRecord(before, after)) {
		s.dirty = true
	}
}

// rebuild recomputes the ordered visible slice. A new slice is allocated so
// earlier GetAll results stay valid.
func (s *Store) rebuild() {
	sorted := make([]model.Notification, 0, len(s.entries))
	for _, e := range s.entries {
		if !e.removing {
			sorted = append(sorted, e.visible())
		}
	}
	slices.SortFunc(sorted, newerFirst)
	s.sorted = sorted
	s.dirty = false
	s.metrics.SetStoreSize(s.unread, len(sorted))
}

// sweep drops expired tombstones, at most once per half TTL.
func (s *Store) sweep() {
	now := s.now()
	if now.Before(s.nextSweep) {
		return
	}
	s.nextSweep = now.Add(s.ttl / 2)
	for id, ts := range s.tombstones {
		if ts.Expired(now) {
			delete(s.tombstones, id)
			s.modified = true
		}
	}
}

// readOutcome is the remote result of one optimistic read.
type readOutcome struct {
	tok    *entry
	record *model.Notification
	ok     bool
}

// beginRead sets the optimistic read overlay for id. It returns a nil token
// when the record already shows as read.
func (s *Store) beginRead(id string) (*entry, error) {
	var tok *entry
	_, err := s.write(func() error {
		e, ok := s.entries[id]
		if !ok || e.removing {
			return ErrNotFound
		}
		if e.visible().Read {
			return nil
		}
		at := s.now()
		s.edit(e, func(e *entry) { e.localRead = &at })
		tok = e
		return nil
	})
	return tok, err
}

// beginReadAll sets the read overlay on every visible unread record.
func (s *Store) beginReadAll() ([]*entry, error) {
	var toks []*entry
	_, err := s.write(func() error {
		at := s.now()
		for _, e := range s.entries {
			if e.removing || e.visible().Read {
				continue
			}
			s.edit(e, func(e *entry) { e.localRead = &at })
			toks = append(toks, e)
		}
		return nil
	})
	slices.SortFunc(toks, func(a, b *entry) int { return newerFirst(a.base, b.base) })
	return toks, err
}

// endReads settles optimistic reads. A confirmed read is promoted into the
// base record, also while a removal of the same entry is pending; a failed
// one drops the overlay, which leaves any newer read that arrived meanwhile
// in place. Outcomes for entries that were removed or replaced since
// beginRead are ignored.
func (s *Store) endReads(outcomes []readOutcome) {
	s.write(func() error {
		for _, o := range outcomes {
			e, ok := s.entries[o.tok.base.ID]
			if !ok || e != o.tok || e.localRead == nil {
				continue
			}
			if !o.ok {
				if !e.base.Read {
					s.metrics.Rollback("mark_read")
				}
				s.edit(e, func(e *entry) {
					if e.base.Read {
						e.base = withLocalRead(e.base, e.localRead)
					}
					e.localRead = nil
				})
				continue
			}
			s.edit(e, func(e *entry) {
				e.base = withLocalRead(e.base, e.localRead)
				e.localRead = nil
				if o.record != nil && o.record.ID == e.base.ID {
					if merged, ok := mergeRecord(&e.base, *o.record); ok {
						e.base = merged
					}
				}
			})
		}
		return nil
	})
}

// beginRemove hides id pending remote deletion. A nil token means a removal
// is already in flight.
func (s *Store) beginRemove(id string) (*entry, error) {
	var tok *entry
	_, err := s.write(func() error {
		e, ok := s.entries[id]
		if !ok {
			return ErrNotFound
		}
		if e.removing {
			return nil
		}
		s.edit(e, func(e *entry) { e.removing = true })
		tok = e
		return nil
	})
	return tok, err
}

// beginRemoveAll hides every visible record pending remote deletion.
func (s *Store) beginRemoveAll() ([]*entry, error) {
	var toks []*entry
	_, err := s.write(func() error {
		for _, e := range s.entries {
			if e.removing {
				continue
			}
			s.edit(e, func(e *entry) { e.removing = true })
			toks = append(toks, e)
		}
		return nil
	})
	return toks, err
}

// endRemoves settles pending removals. Confirmed entries are tombstoned at
// their latest known version; rejected ones become visible again with
// whatever newer state they received while hidden.
func (s *Store) endRemoves(toks []*entry, ok bool) {
	s.write(func() error {
		for _, tok := range toks {
			id := tok.base.ID
			e, found := s.entries[id]
			if !found || e != tok || !e.removing {
				continue
			}
			if ok {
				s.bury(id, e.base.SourceVersion)
				s.drop(id)
				continue
			}
			s.metrics.Rollback("remove")
			s.edit(e, func(e *entry) { e.removing = false })
		}
		return nil
	})
}
