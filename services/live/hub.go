// Package live pushes per-user events over WebSocket connections.
package live

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/trezcool/soma/core"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 32
	closeGrace     = time.Second
)

// Hub fans events out to every connection of a user. Connections that fall behind are dropped.
type Hub struct {
	logger     core.Logger
	upgrader   websocket.Upgrader
	pingPeriod time.Duration

	mu      sync.RWMutex
	clients map[string]map[*client]struct{}
	closed  bool
	wg      sync.WaitGroup
}

var _ core.Publisher = (*Hub)(nil)

func NewHub(logger core.Logger) *Hub {
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// the token query param authenticates the connection, not cookies
			CheckOrigin: func(*http.Request) bool { return true },
		},
		pingPeriod: pingPeriod,
		clients:    make(map[string]map[*client]struct{}),
	}
}

type client struct {
	userID    string
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	readDone  chan struct{}
	closeOnce sync.Once
}

func newClient(userID string, conn *websocket.Conn) *client {
	return &client{
		userID:   userID,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		done:     make(chan struct{}),
		readDone: make(chan struct{}),
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Serve upgrades the request and streams userID's events until the connection ends.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, userID string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader has already replied
		return errors.Wrap(err, "upgrading connection")
	}
	c := newClient(userID, conn)
	if !h.add(c) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(writeWait))
		return conn.Close()
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.writePump(c)
	}()
	h.readPump(c)
	return nil
}

func (h *Hub) add(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	conns, ok := h.clients[c.userID]
	if !ok {
		conns = make(map[*client]struct{})
		h.clients[c.userID] = conns
	}
	conns[c] = struct{}{}
	return true
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if conns, ok := h.clients[c.userID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.clients, c.userID)
		}
	}
	h.mu.Unlock()
	c.close()
}

// readPump only consumes control frames; clients have nothing to say.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.remove(c)
		close(c.readDone)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Warn(fmt.Sprintf("live connection of %s: %v", c.userID, err))
			}
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(h.pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.remove(c)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(c)
				return
			}
		case <-c.done:
			err := c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			if err == nil {
				// let the peer answer the close frame before the socket goes away
				select {
				case <-c.readDone:
				case <-time.After(closeGrace):
				}
			}
			return
		}
	}
}

// Publish queues ev on every connection of userID without blocking.
func (h *Hub) Publish(userID string, ev core.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error(fmt.Sprintf("encoding %s event: %v", ev.Type, err), err)
		return
	}

	var slow []*client
	h.mu.RLock()
	for c := range h.clients[userID] {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn(fmt.Sprintf("dropping slow live connection of %s", userID))
		h.remove(c)
	}
}

// ClientCount returns the number of open connections of userID.
func (h *Hub) ClientCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// Close disconnects everyone and waits for the writers to stop. Later connections are refused.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	var all []*client
	for _, conns := range h.clients {
		for c := range conns {
			all = append(all, c)
		}
	}
	h.clients = make(map[string]map[*client]struct{})
	h.mu.Unlock()

	for _, c := range all {
		c.close()
	}
	h.wg.Wait()
}
