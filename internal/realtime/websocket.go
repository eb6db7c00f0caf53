package realtime

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Heartbeat settings for the websocket transport. Pings go out before the
// pong wait expires so a silent peer is detected within PongWait.
const (
	WriteWait      = 10 * time.Second
	PongWait       = 60 * time.Second
	PingPeriod     = (PongWait * 9) / 10
	MaxMessageSize = 64 << 10
)

// WebSocketDialer dials the service's push endpoint.
type WebSocketDialer struct {
	URL string

	// Token returns the bearer token sent with the handshake. It is called
	// on every dial so a rotated token is picked up on reconnect.
	Token func() string

	Dialer *websocket.Dialer
}

// Dial opens the websocket and starts its heartbeat.
func (d *WebSocketDialer) Dial(ctx context.Context) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	header := http.Header{}
	if d.Token != nil {
		if token := d.Token(); token != "" {
			header.Set("Authorization", "Bearer "+token)
		}
	}

	ws, resp, err := dialer.DialContext(ctx, d.URL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dialing %s: %s: %w", d.URL, resp.Status, err)
		}
		return nil, fmt.Errorf("dialing %s: %w", d.URL, err)
	}

	ws.SetReadLimit(MaxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(PongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(PongWait))
	})

	c := &wsConn{ws: ws, done: make(chan struct{})}
	go c.pingLoop()
	return c, nil
}

type wsConn struct {
	ws        *websocket.Conn
	done      chan struct{}
	closeOnce sync.Once
}

func (c *wsConn) Read(ctx context.Context) ([]byte, error) {
	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer stop()

	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("reading push message: %w", err)
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(PongWait))
		if kind == websocket.TextMessage || kind == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(WriteWait))
		err = c.ws.Close()
	})
	return err
}

func (c *wsConn) pingLoop() {
	ticker := time.NewTicker(PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(WriteWait)); err != nil {
				return
			}
		}
	}
}
