package signal

import (
	"encoding/json"
	"sync"
	"time"

	"streamcast/internal/core/domain"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// client is one connected socket. Everything written to the connection goes
// through send and is drained by writePump.
type client struct {
	id   domain.SocketID
	conn *websocket.Conn
	send chan []byte
}

// Hub delivers outbound events to connected sockets. Send and Broadcast never
// block: a socket whose buffer is full misses the message.
type Hub struct {
	clients    map[domain.SocketID]*client
	mu         sync.RWMutex
	bufferSize int
	logger     *zap.SugaredLogger
}

func NewHub(bufferSize int, logger *zap.SugaredLogger) *Hub {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &Hub{
		clients:    make(map[domain.SocketID]*client),
		bufferSize: bufferSize,
		logger:     logger,
	}
}

func (h *Hub) register(id domain.SocketID, conn *websocket.Conn) *client {
	c := &client{
		id:   id,
		conn: conn,
		send: make(chan []byte, h.bufferSize),
	}

	h.mu.Lock()
	h.clients[id] = c
	h.mu.Unlock()
	return c
}

// unregister stops delivery to the socket and closes its send channel, which
// ends the write pump.
func (h *Hub) unregister(id domain.SocketID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.clients[id]
	if !ok {
		return
	}
	delete(h.clients, id)
	close(c.send)
}

func (h *Hub) Send(to domain.SocketID, event string, payload interface{}) bool {
	data, err := encode(event, payload)
	if err != nil {
		h.logger.Errorw("failed to encode outbound message", "type", event, "error", err)
		return false
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	c, ok := h.clients[to]
	if !ok {
		return false
	}
	return h.enqueue(c, event, data)
}

func (h *Hub) Broadcast(event string, payload interface{}) int {
	data, err := encode(event, payload)
	if err != nil {
		h.logger.Errorw("failed to encode outbound message", "type", event, "error", err)
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for _, c := range h.clients {
		if h.enqueue(c, event, data) {
			delivered++
		}
	}
	return delivered
}

func (h *Hub) enqueue(c *client, event string, data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		h.logger.Warnw("send buffer full, message dropped", "socket_id", c.id, "type", event)
		return false
	}
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients)
}

// CloseAll closes every connection. Each read loop then runs its own teardown.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, c := range h.clients {
		_ = c.conn.Close()
	}
}

func (h *Hub) writePump(c *client, pingInterval, writeTimeout time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Debugw("write failed", "socket_id", c.id, "error", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.logger.Debugw("error sending ping", "socket_id", c.id, "error", err)
				return
			}
		}
	}
}

func encode(event string, payload interface{}) ([]byte, error) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		raw = data
	}
	return json.Marshal(SignalMessage{Type: event, Payload: raw})
}
