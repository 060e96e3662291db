// Package feed streams live conversation events to websocket subscribers.
package feed

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/bosley/parley/conversation"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	sendBuffer = 256
)

// Event types.
const (
	EventStarted   = "started"
	EventUtterance = "utterance"
	EventState     = "state"
	EventListen    = "listen"
	EventEnded     = "ended"
)

// Event is one message sent over the websocket.
type Event struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}

// Hub fans conversation events out to websocket connections. Subscribers
// to the empty session id receive every session's events.
type Hub struct {
	upgrader websocket.Upgrader

	mu          sync.RWMutex
	subscribers map[string]map[*wsConnection]struct{}
}

type wsConnection struct {
	conn      *websocket.Conn
	sessionID string
	send      chan []byte
	done      chan struct{}
	hub       *Hub
	closeOnce sync.Once
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		subscribers: make(map[string]map[*wsConnection]struct{}),
	}
}

// ServeHTTP upgrades the request and subscribes it to the session named by
// the {sessionID} route variable, or to all sessions when absent.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["sessionID"]

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}

	c := &wsConnection{
		conn:      conn,
		sessionID: sessionID,
		send:      make(chan []byte, sendBuffer),
		done:      make(chan struct{}),
		hub:       h,
	}
	h.register(c)

	slog.Debug("Feed subscriber connected", "sessionID", sessionID)

	go c.writePump()
	go c.readPump()
}

// Subscribers returns the number of connections for sessionID.
func (h *Hub) Subscribers(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[sessionID])
}

// Publish sends ev to the session's subscribers and to catch-all
// subscribers. A subscriber whose buffer is full misses the event.
func (h *Hub) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Error("Failed to encode feed event", "error", err, "type", ev.Type)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, key := range []string{ev.SessionID, ""} {
		for c := range h.subscribers[key] {
			select {
			case c.send <- data:
			default:
				slog.Warn("Feed subscriber too slow, dropping event", "sessionID", ev.SessionID)
			}
		}
		if ev.SessionID == "" {
			break
		}
	}
}

func (h *Hub) ConversationStarted(s conversation.SessionContext) {
	h.Publish(Event{Type: EventStarted, SessionID: s.ID, Payload: s})
}

func (h *Hub) UtteranceRecorded(s conversation.SessionContext, u conversation.Utterance) {
	h.Publish(Event{
		Type:      EventUtterance,
		SessionID: s.ID,
		Timestamp: u.Timestamp,
		Payload: map[string]string{
			"speaker": u.Speaker.String(),
			"text":    u.Text,
		},
	})
}

func (h *Hub) TurnStateChanged(s conversation.SessionContext, state conversation.TurnState) {
	h.Publish(Event{Type: EventState, SessionID: s.ID, Payload: state.String()})
}

func (h *Hub) ListenCompleted(s conversation.SessionContext, d conversation.Decision) {
	h.Publish(Event{
		Type:      EventListen,
		SessionID: s.ID,
		Payload: map[string]interface{}{
			"timeout": d.IsTimeout(),
			"text":    d.Text,
		},
	})
}

func (h *Hub) ConversationEnded(s conversation.SessionContext, reason conversation.EndReason) {
	h.Publish(Event{Type: EventEnded, SessionID: s.ID, Payload: reason})
}

func (h *Hub) register(c *wsConnection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns, ok := h.subscribers[c.sessionID]
	if !ok {
		conns = make(map[*wsConnection]struct{})
		h.subscribers[c.sessionID] = conns
	}
	conns[c] = struct{}{}
}

func (h *Hub) unregister(c *wsConnection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns, ok := h.subscribers[c.sessionID]
	if !ok {
		return
	}
	delete(conns, c)
	if len(conns) == 0 {
		delete(h.subscribers, c.sessionID)
	}
}

func (c *wsConnection) close() {
	c.closeOnce.Do(func() {
		c.hub.unregister(c)
		close(c.done)
		c.conn.Close()
	})
}

func (c *wsConnection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			return
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsConnection) readPump() {
	defer c.close()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Error("WebSocket read error", "error", err)
			}
			break
		}
	}
}
