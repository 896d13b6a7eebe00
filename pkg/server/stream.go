package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	pingInterval = 30 * time.Second
	writeWait    = 10 * time.Second
	sendBuffer   = 100
)

// hub tracks live /debug/stream connections
type hub struct {
	server   *Server
	upgrader websocket.Upgrader
	clients  map[*websocket.Conn]*client
	mu       sync.RWMutex
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
}

func newHub(s *Server) *hub {
	return &hub{
		server: s,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || s.allowOrigin(origin) != ""
			},
		},
		clients: make(map[*websocket.Conn]*client),
	}
}

// handleStream handles WS /debug/stream
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}

	s.hub.mu.Lock()
	s.hub.clients[conn] = c
	s.hub.mu.Unlock()

	s.safeGo("stream writer", func() { s.hub.writePump(c) })
	s.safeGo("stream reader", func() { s.hub.readPump(c) })
}

// readPump reads tail requests from the WebSocket
func (h *hub) readPump(c *client) {
	defer func() {
		h.mu.Lock()
		delete(h.clients, c.conn)
		h.mu.Unlock()
		close(c.done)
		c.conn.Close()
	}()

	for {
		var msg struct {
			Action string `json:"action"`
			Lines  int    `json:"lines"`
		}

		if err := c.conn.ReadJSON(&msg); err != nil {
			break
		}

		if msg.Action == "tail" {
			h.sendTail(c, msg.Lines)
		}
	}
}

// writePump sends messages to the WebSocket
func (h *hub) writePump(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			// Send ping to keep connection alive
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}

// sendTail queues the last n stored records for a client
func (h *hub) sendTail(c *client, n int) {
	if n <= 0 {
		n = DefaultLines
	}

	records, total, err := h.server.store.Tail(n)
	if err != nil {
		h.server.logger.Warn("stream tail failed", "error", err)
		return
	}

	msg, err := json.Marshal(map[string]any{
		"type":  "results",
		"logs":  records,
		"total": total,
	})
	if err != nil {
		return
	}
	h.deliver(c, msg)
}

// broadcast sends a newly appended record to all connected clients
func (h *hub) broadcast(record []byte) {
	msg, err := json.Marshal(map[string]any{
		"type":  "log",
		"entry": json.RawMessage(record),
	})
	if err != nil {
		return
	}
	h.fanOut(msg)
}

// broadcastCleared tells clients the store was truncated
func (h *hub) broadcastCleared() {
	h.fanOut([]byte(`{"type":"cleared"}`))
}

func (h *hub) fanOut(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, c := range h.clients {
		h.deliver(c, msg)
	}
}

func (h *hub) deliver(c *client, msg []byte) {
	select {
	case c.send <- msg:
	default:
		// Channel full, skip
	}
}

// closeAll disconnects every client
func (h *hub) closeAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()

	deadline := time.Now().Add(time.Second)
	for conn := range h.clients {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"), deadline)
		conn.Close()
	}
}

// clientCount returns the number of connected clients
func (h *hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
