// Package ws relays attempt events to connected browsers, one room per attempt.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/gorilla/websocket"

	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/events"
)

const writeWait = 5 * time.Second

type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type Hub struct {
	mu       sync.Mutex
	attempts map[uint]map[*websocket.Conn]bool
	logger   *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		attempts: make(map[uint]map[*websocket.Conn]bool),
		logger:   logger,
	}
}

func (h *Hub) AddConnection(attemptID uint, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.attempts[attemptID] == nil {
		h.attempts[attemptID] = make(map[*websocket.Conn]bool)
	}
	h.attempts[attemptID][conn] = true
	h.logger.Debug("ws client connected", "attempt_id", attemptID, "total", len(h.attempts[attemptID]))
}

func (h *Hub) RemoveConnection(attemptID uint, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(attemptID, conn)
}

func (h *Hub) removeLocked(attemptID uint, conn *websocket.Conn) {
	conns, ok := h.attempts[attemptID]
	if !ok {
		return
	}
	if _, ok := conns[conn]; !ok {
		return
	}
	delete(conns, conn)
	conn.Close()
	if len(conns) == 0 {
		delete(h.attempts, attemptID)
	}
	h.logger.Debug("ws client disconnected", "attempt_id", attemptID)
}

// Connections returns how many clients watch the attempt.
func (h *Hub) Connections(attemptID uint) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.attempts[attemptID])
}

// Broadcast writes the message to every client of the attempt. Writes happen
// under the hub lock, so each connection has a single writer.
func (h *Hub) Broadcast(attemptID uint, msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("ws marshal error", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.attempts[attemptID] {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.logger.Warn("ws write error", "error", err, "attempt_id", attemptID)
			h.removeLocked(attemptID, conn)
		}
	}
}

// Run relays events from the bus until ctx is done or the stream closes.
func (h *Hub) Run(ctx context.Context, messages <-chan *message.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			evt, err := events.Decode(msg)
			msg.Ack()
			if err != nil {
				h.logger.Warn("dropping undecodable event", "error", err, "message_id", msg.UUID)
				continue
			}
			h.Broadcast(evt.AttemptID, WSMessage{Type: evt.Type, Data: evt})
		}
	}
}

// CloseAll disconnects every client.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for attemptID, conns := range h.attempts {
		for conn := range conns {
			conn.Close()
		}
		delete(h.attempts, attemptID)
	}
}
