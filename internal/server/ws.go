package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/kitchenwatch/internal/alert"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

const writeWait = 2 * time.Second

// Event types sent on the websocket feed.
const (
	EventStatus       = "status"
	EventAlert        = "alert"
	EventAcknowledged = "acknowledged"
	EventRearmed      = "rearmed"
)

// Event is one message on the alert feed.
type Event struct {
	Type        string        `json:"type"`
	ID          string        `json:"id,omitempty"`
	Alert       *alert.Alert  `json:"alert,omitempty"`
	Status      *alert.Status `json:"status,omitempty"`
	NotifyError string        `json:"notify_error,omitempty"`
	Time        time.Time     `json:"time"`
}

// EventsHandler broadcasts alert transitions via WebSocket. It implements
// alert.Listener.
//
// Each client has its own queue and writer goroutine. Broadcast never
// waits on a socket; a client whose queue is full misses the message.
type EventsHandler struct {
	status  func() alert.Status
	clients map[*websocket.Conn]chan []byte
	mu      sync.RWMutex
}

// clientQueue is the number of messages buffered per client.
const clientQueue = 16

// NewEventsHandler creates a new EventsHandler. status, when non-nil, is
// sent to each client right after it connects.
func NewEventsHandler(status func() alert.Status) *EventsHandler {
	return &EventsHandler{
		status:  status,
		clients: make(map[*websocket.Conn]chan []byte),
	}
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	queue := make(chan []byte, clientQueue)
	if h.status != nil {
		st := h.status()
		if msg, err := json.Marshal(Event{Type: EventStatus, Status: &st, Time: time.Now()}); err == nil {
			queue <- msg
		}
	}

	h.mu.Lock()
	h.clients[conn] = queue
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		writeLoop(conn, queue)
	}()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		close(queue)
		h.mu.Unlock()
		<-done
	}()

	// Keep connection alive by reading messages
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

// writeLoop drains queue into conn until queue is closed. After a failed
// write the connection is closed so the read loop exits, and the rest of
// the queue is discarded.
func writeLoop(conn *websocket.Conn, queue <-chan []byte) {
	failed := false
	for msg := range queue {
		if failed {
			continue
		}
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			slog.Debug("websocket write failed", "remote", conn.RemoteAddr(), "err", err)
			failed = true
			conn.Close()
		}
	}
}

// Clients returns the number of connected clients.
func (h *EventsHandler) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues ev for every connected client without blocking.
func (h *EventsHandler) Broadcast(ev Event) {
	msg, err := json.Marshal(ev)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for conn, queue := range h.clients {
		select {
		case queue <- msg:
		default:
			slog.Debug("websocket client lagging, event dropped", "remote", conn.RemoteAddr(), "type", ev.Type)
		}
	}
}

func (h *EventsHandler) OnAlert(a alert.Alert, notifyErr error) {
	ev := Event{Type: EventAlert, ID: a.ID, Alert: &a, Time: a.Time}
	if notifyErr != nil {
		ev.NotifyError = notifyErr.Error()
	}
	h.Broadcast(ev)
}

func (h *EventsHandler) OnAcknowledge(id string, at time.Time) {
	h.Broadcast(Event{Type: EventAcknowledged, ID: id, Time: at})
}

func (h *EventsHandler) OnRearm(id string, at time.Time) {
	h.Broadcast(Event{Type: EventRearmed, ID: id, Time: at})
}
