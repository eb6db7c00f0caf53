package devserver

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait  = 10 * time.Second
	clientSend = 64
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// hub fans push payloads out to every connected websocket client.
type hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	log     logrus.FieldLogger
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func newHub(log logrus.FieldLogger) *hub {
	return &hub{clients: make(map[*client]struct{}), log: log}
}

// serve upgrades the request and blocks until the client goes away.
func (h *hub) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	c := &client{conn: conn, send: make(chan []byte, clientSend)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.log.WithField("remote", r.RemoteAddr).Debug("push client connected")

	go h.writeLoop(c)

	// Reading keeps control frames flowing; the client never sends data.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.remove(c)
}

func (h *hub) writeLoop(c *client) {
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.remove(c)
			return
		}
	}
}

func (h *hub) remove(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if !ok {
		return
	}
	c.once.Do(func() {
		close(c.send)
		_ = c.conn.Close()
	})
}

func (h *hub) broadcast(payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			h.log.Warn("push client too slow, dropping message")
		}
	}
}

// closeAll disconnects every client.
func (h *hub) closeAll() {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	for _, c := range clients {
		h.remove(c)
	}
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
