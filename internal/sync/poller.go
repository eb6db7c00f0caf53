package sync

import (
	"context"
	"fmt"
	"strconv"
	gosync "sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"

	"github.com/nhle/ideaboard/internal/api"
	"github.com/nhle/ideaboard/internal/logging"
	"github.com/nhle/ideaboard/internal/metrics"
	"github.com/nhle/ideaboard/internal/model"
	"github.com/nhle/ideaboard/internal/notify"
)

// SyncState represents the current state of the fetch loop.
type SyncState int

const (
	SyncIdle SyncState = iota
	SyncRunning
	SyncError
)

// FetchMode selects how much of the server state a fetch retrieves.
type FetchMode string

const (
	// FetchFull lists everything and reconciles it as a snapshot.
	FetchFull FetchMode = "full"

	// FetchIncremental lists changes after the last cursor.
	FetchIncremental FetchMode = "incremental"
)

// SyncStatus holds the state of the fetch loop.
type SyncStatus struct {
	State    SyncState
	Mode     FetchMode
	LastSync time.Time
	Error    error
}

// SyncResultMsg is a tea.Msg sent when a fetch completes.
type SyncResultMsg struct {
	Mode      FetchMode
	Changed   bool
	Error     error
	AuthError bool
}

// Fetcher lists notification pages from the service.
type Fetcher interface {
	ListNotifications(ctx context.Context, cursor string, limit int) (*model.Page, error)
}

// Target receives fetched state.
type Target interface {
	ApplySnapshot(records []model.Notification, watermark int64) bool
	ApplyEvents(events []model.Event) bool
	SetStale(stale bool)
}

// CursorStore persists the incremental cursor across restarts.
type CursorStore interface {
	GetCursor(ctx context.Context) (string, error)
	SetCursor(ctx context.Context, cursor string) error
}

// Options configures a Poller.
type Options struct {
	PollInterval time.Duration
	PageSize     int

	// Retries is the number of retries per page after the first attempt.
	Retries int

	// Timeout bounds each page request.
	Timeout time.Duration

	// InitialBackoff is the first delay between retries.
	InitialBackoff time.Duration

	Cursors CursorStore
	Logger  logrus.FieldLogger
	Metrics *metrics.Metrics
}

// Poller runs full and incremental fetches against the service and hands
// the results to the store.
type Poller struct {
	fetcher Fetcher
	target  Target
	opts    Options
	log     logrus.FieldLogger

	status    SyncStatus
	cursor    string
	resultCh  chan SyncResultMsg
	triggerCh chan FetchMode
	cancel    context.CancelFunc
	wg        gosync.WaitGroup
	mu        gosync.Mutex
	running   bool
}

// New creates a Poller feeding target from fetcher.
func New(fetcher Fetcher, target Target, opts Options) *Poller {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 60 * time.Second
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 100
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	return &Poller{
		fetcher:   fetcher,
		target:    target,
		opts:      opts,
		log:       opts.Logger.WithField("component", "poller"),
		resultCh:  make(chan SyncResultMsg, 16),
		triggerCh: make(chan FetchMode, 16),
	}
}

// Start launches the fetch loop and returns a tea.Cmd that delivers the
// first SyncResultMsg. The loop does an initial full fetch, then polls
// incrementally on the configured interval.
func (p *Poller) Start() tea.Cmd {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = true
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.mu.Unlock()

	p.loadCursor(ctx)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.run(ctx)
	}()

	return p.waitForResult()
}

// Stop halts the fetch loop and waits for an in-flight fetch to give up.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.cancel()
	p.mu.Unlock()

	p.wg.Wait()
}

// RequestFullSync schedules a full fetch. It never blocks.
func (p *Poller) RequestFullSync() {
	p.trigger(FetchFull)
}

// RequestRefresh schedules an incremental fetch. It never blocks.
func (p *Poller) RequestRefresh() {
	p.trigger(FetchIncremental)
}

func (p *Poller) trigger(mode FetchMode) {
	select {
	case p.triggerCh <- mode:
	default:
		// Channel full; a fetch is already queued
	}
}

// Status returns the current fetch state.
func (p *Poller) Status() SyncStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Cursor returns the incremental cursor.
func (p *Poller) Cursor() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cursor
}

func (p *Poller) run(ctx context.Context) {
	ticker := time.NewTicker(p.opts.PollInterval)
	defer ticker.Stop()

	// Do an initial fetch immediately
	p.Sync(ctx, FetchFull)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Sync(ctx, FetchIncremental)
		case mode := <-p.triggerCh:
			p.Sync(ctx, mode)
		}
	}
}

// Sync performs one fetch in the given mode and reports the outcome on the
// result channel. When the retry budget runs out the store is marked stale;
// its state is left as it was.
func (p *Poller) Sync(ctx context.Context, mode FetchMode) error {
	p.setStatus(SyncRunning, mode, nil)

	var changed bool
	var err error
	switch mode {
	case FetchFull:
		changed, err = p.fullFetch(ctx)
	default:
		changed, err = p.incrementalFetch(ctx)
	}

	p.opts.Metrics.Fetch(string(mode), err == nil)

	if err != nil {
		if ctx.Err() != nil {
			p.setStatus(SyncIdle, mode, ctx.Err())
			return err
		}
		p.setStatus(SyncError, mode, err)
		p.target.SetStale(true)
		p.log.WithError(err).WithField("mode", mode).Warn("fetch failed, data may be stale")
		p.sendResult(SyncResultMsg{Mode: mode, Error: err, AuthError: api.IsAuthError(err)})
		return err
	}

	p.target.SetStale(false)
	p.setStatus(SyncIdle, mode, nil)
	p.sendResult(SyncResultMsg{Mode: mode, Changed: changed})
	return nil
}

// fullFetch pages through the complete listing and applies it as one
// snapshot cut at the first page's watermark.
func (p *Poller) fullFetch(ctx context.Context) (bool, error) {
	var records []model.Notification
	var watermark int64
	cursor := "0"

	for first := true; ; first = false {
		page, err := p.fetchPage(ctx, cursor)
		if err != nil {
			return false, fmt.Errorf("full fetch: %w", err)
		}
		if first {
			watermark = page.Watermark
		}
		records = append(records, page.Items...)
		if !page.HasMore || page.NextCursor == cursor {
			break
		}
		cursor = page.NextCursor
	}

	changed := p.target.ApplySnapshot(records, watermark)
	p.saveCursor(ctx, strconv.FormatInt(watermark, 10))
	p.log.WithFields(logrus.Fields{"records": len(records), "watermark": watermark}).Debug("full fetch applied")
	return changed, nil
}

// incrementalFetch applies changes after the stored cursor page by page.
func (p *Poller) incrementalFetch(ctx context.Context) (bool, error) {
	cursor := p.Cursor()
	if cursor == "" {
		return p.fullFetch(ctx)
	}

	changed := false
	for {
		page, err := p.fetchPage(ctx, cursor)
		if err != nil {
			return changed, fmt.Errorf("incremental fetch: %w", err)
		}

		events := make([]model.Event, 0, len(page.Items)+len(page.Deleted))
		for i := range page.Items {
			rec := page.Items[i]
			events = append(events, model.Event{
				Kind:          model.EventUpdated,
				Record:        &rec,
				ID:            rec.ID,
				SourceVersion: rec.SourceVersion,
			})
		}
		for _, d := range page.Deleted {
			events = append(events, model.Event{Kind: model.EventDeleted, ID: d.ID, SourceVersion: d.SourceVersion})
		}
		if len(events) > 0 && p.target.ApplyEvents(events) {
			changed = true
		}

		next := page.NextCursor
		if next == "" {
			next = cursor
		}
		p.saveCursor(ctx, next)
		if !page.HasMore || next == cursor {
			return changed, nil
		}
		cursor = next
	}
}

// fetchPage requests one page, retrying temporary failures with
// exponential backoff and a per-attempt timeout.
func (p *Poller) fetchPage(ctx context.Context, cursor string) (*model.Page, error) {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.opts.InitialBackoff
	eb.MaxInterval = 30 * time.Second
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(p.opts.Retries)), ctx)

	var page *model.Page
	err := backoff.RetryNotify(func() error {
		actx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
		defer cancel()

		res, err := p.fetcher.ListNotifications(actx, cursor, p.opts.PageSize)
		if err != nil {
			if !notify.Retryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		page = res
		return nil
	}, b, func(err error, wait time.Duration) {
		p.log.WithError(err).WithFields(logrus.Fields{"cursor": cursor, "retry_in": wait}).Debug("page fetch failed")
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

func (p *Poller) loadCursor(ctx context.Context) {
	if p.opts.Cursors == nil {
		return
	}
	cursor, err := p.opts.Cursors.GetCursor(ctx)
	if err != nil {
		p.log.WithError(err).Warn("loading sync cursor")
		return
	}
	p.mu.Lock()
	p.cursor = cursor
	p.mu.Unlock()
}

func (p *Poller) saveCursor(ctx context.Context, cursor string) {
	p.mu.Lock()
	p.cursor = cursor
	p.mu.Unlock()

	if p.opts.Cursors == nil {
		return
	}
	if err := p.opts.Cursors.SetCursor(ctx, cursor); err != nil {
		p.log.WithError(err).Warn("saving sync cursor")
	}
}

// setStatus updates the fetch status.
func (p *Poller) setStatus(state SyncState, mode FetchMode, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status.State = state
	p.status.Mode = mode
	p.status.Error = err
	if state == SyncIdle && err == nil {
		p.status.LastSync = time.Now()
	}
}

// sendResult sends a SyncResultMsg on the result channel without blocking.
func (p *Poller) sendResult(msg SyncResultMsg) {
	select {
	case p.resultCh <- msg:
	default:
		// Drop if channel is full to avoid blocking the poller
	}
}

// waitForResult returns a tea.Cmd that waits for the next result from
// the result channel.
func (p *Poller) waitForResult() tea.Cmd {
	return func() tea.Msg {
		result, ok := <-p.resultCh
		if !ok {
			return nil
		}
		return result
	}
}

// WaitForNextResult returns a tea.Cmd that waits for the next sync result.
// This should be called after processing a SyncResultMsg to continue
// listening for future results.
func (p *Poller) WaitForNextResult() tea.Cmd {
	return p.waitForResult()
}
