// Package realtime keeps a push subscription open and feeds decoded events
// into the notification store.
package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/nhle/ideaboard/internal/logging"
	"github.com/nhle/ideaboard/internal/metrics"
	"github.com/nhle/ideaboard/internal/model"
)

// Conn is one open push subscription.
type Conn interface {
	// Read blocks until the next payload arrives, the connection fails or
	// ctx is done.
	Read(ctx context.Context) ([]byte, error)
	Close() error
}

// Dialer opens push subscriptions.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// Sink receives decoded events and status changes.
type Sink interface {
	ApplyEvent(ev model.Event) bool
	SetConnectionStatus(status model.ConnectionStatus)
}

// Options configures a Channel.
type Options struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// OnReconnect runs on every transition into connected from reconnecting
	// or disconnected. The push transport does not replay missed events, so
	// this is where a full fetch gets requested.
	OnReconnect func()

	Logger  logrus.FieldLogger
	Metrics *metrics.Metrics
}

// Channel maintains the push connection and its status state machine.
type Channel struct {
	dialer Dialer
	sink   Sink
	opts   Options
	log    logrus.FieldLogger

	mu     sync.Mutex
	status model.ConnectionStatus
}

// NewChannel creates a Channel that dials with dialer and delivers to sink.
func NewChannel(dialer Dialer, sink Sink, opts Options) *Channel {
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = 500 * time.Millisecond
	}
	if opts.MaxBackoff < opts.InitialBackoff {
		opts.MaxBackoff = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	return &Channel{
		dialer: dialer,
		sink:   sink,
		opts:   opts,
		log:    opts.Logger.WithField("component", "realtime"),
		status: model.StatusDisconnected,
	}
}

// Status returns the current connection status.
func (c *Channel) Status() model.ConnectionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// setStatus records a transition and returns the previous status.
func (c *Channel) setStatus(status model.ConnectionStatus) model.ConnectionStatus {
	c.mu.Lock()
	prev := c.status
	c.status = status
	c.mu.Unlock()

	if prev != status {
		c.log.WithFields(logrus.Fields{"from": prev, "to": status}).Debug("connection status changed")
		c.sink.SetConnectionStatus(status)
	}
	return prev
}

// Run connects and reconnects until ctx is cancelled, then reports
// disconnected. It always returns nil.
func (c *Channel) Run(ctx context.Context) error {
	defer c.setStatus(model.StatusDisconnected)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.InitialBackoff
	b.MaxInterval = c.opts.MaxBackoff
	b.MaxElapsedTime = 0
	b.Reset()

	c.setStatus(model.StatusConnecting)
	for {
		conn, err := c.dialer.Dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.setStatus(model.StatusReconnecting)
			wait := b.NextBackOff()
			c.log.WithError(err).WithField("retry_in", wait).Warn("push connection failed")
			if !sleep(ctx, wait) {
				return nil
			}
			continue
		}

		b.Reset()
		prev := c.setStatus(model.StatusConnected)
		if prev == model.StatusReconnecting || prev == model.StatusDisconnected {
			c.opts.Metrics.Reconnected()
			c.log.Info("push connection restored, requesting full sync")
			if c.opts.OnReconnect != nil {
				c.opts.OnReconnect()
			}
		}

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return nil
		}

		c.setStatus(model.StatusReconnecting)
		wait := b.NextBackOff()
		c.log.WithError(err).WithField("retry_in", wait).Warn("push connection lost")
		if !sleep(ctx, wait) {
			return nil
		}
	}
}

// consume reads payloads until the connection fails.
func (c *Channel) consume(ctx context.Context, conn Conn) error {
	for {
		data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		ev, err := Decode(data)
		if err != nil {
			c.opts.Metrics.MalformedPayload()
			c.log.WithError(err).WithField("bytes", len(data)).Warn("dropping push payload")
			continue
		}
		c.sink.ApplyEvent(ev)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
