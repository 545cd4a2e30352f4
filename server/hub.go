package server

import (
	"encoding/json"
	"sync"

	"github.com/decred/slog"
	"github.com/gorilla/websocket"

	"github.com/mnm89/solana-games/clickgame"
)

const sendBufSize = 64

// conn is one connected peer. Writes go through the buffered send
// channel so a slow client never blocks the room state machine.
type conn struct {
	id   string
	ws   *websocket.Conn
	send chan []byte

	closeOnce sync.Once
}

func (c *conn) close() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

// Hub tracks live connections and implements clickgame.Notifier.
type Hub struct {
	log slog.Logger

	mu    sync.RWMutex
	conns map[string]*conn
}

func NewHub(log slog.Logger) *Hub {
	return &Hub{
		log:   log,
		conns: make(map[string]*conn),
	}
}

func (h *Hub) add(c *conn) {
	h.mu.Lock()
	h.conns[c.id] = c
	h.mu.Unlock()
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	c := h.conns[id]
	delete(h.conns, id)
	h.mu.Unlock()
	if c != nil {
		c.close()
	}
}

// Notify pushes one event to a single connection. Sends are
// best-effort and non-blocking; a full buffer drops the frame.
func (h *Hub) Notify(connID string, ntfn clickgame.Ntfn) {
	h.mu.RLock()
	c := h.conns[connID]
	h.mu.RUnlock()
	if c == nil {
		return
	}
	h.send(c, ntfn)
}

// Broadcast pushes one event to every live connection.
func (h *Hub) Broadcast(ntfn clickgame.Ntfn) {
	h.mu.RLock()
	conns := make([]*conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		h.send(c, ntfn)
	}
}

func (h *Hub) send(c *conn, ntfn clickgame.Ntfn) {
	b, err := json.Marshal(ntfn)
	if err != nil {
		h.log.Errorf("marshal %s notification: %v", ntfn.Event, err)
		return
	}
	select {
	case c.send <- b:
	default:
		h.log.Warnf("dropping %s frame for slow connection %s", ntfn.Event, c.id)
	}
}

// CloseAll tears down every connection, used on shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	conns := h.conns
	h.conns = make(map[string]*conn)
	h.mu.Unlock()

	for _, c := range conns {
		c.close()
		_ = c.ws.Close()
	}
}
