package activity

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jrfdy6/aiclone-sub001/internal/domain"
	"github.com/jrfdy6/aiclone-sub001/internal/pkg/logger"
)

const (
	// sendBuffer is the per-connection outbound queue; a client that falls
	// this far behind is closed rather than backpressuring the hub.
	sendBuffer = 64

	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin enforcement happens in the CORS layer; the hub accepts any
	// upgrade that reached it.
	CheckOrigin: func(*http.Request) bool { return true },
}

// wireMessage is the frame shape pushed to WebSocket clients: activity
// events wrapped by kind, plus a connection ack on attach.
type wireMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// wireType maps the activity taxonomy onto the client frame kinds.
func wireType(t domain.ActivityType) string {
	switch t {
	case domain.ActivityAutomation:
		return "task_update"
	case domain.ActivityError:
		return "notification"
	default:
		return "activity"
	}
}

type client struct {
	userID string
	conn   *websocket.Conn
	send   chan wireMessage
}

// Hub fans activity events out to the WebSocket connections of each user.
// It implements Sink, so it plugs straight into the bus.
type Hub struct {
	heartbeat time.Duration

	mu      sync.Mutex
	clients map[string]map[*client]bool
}

// NewHub builds a hub with the given heartbeat interval (default 30s).
func NewHub(heartbeat time.Duration) *Hub {
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	return &Hub{heartbeat: heartbeat, clients: map[string]map[*client]bool{}}
}

// Deliver fans one event to every connection of its user. A connection
// with a full send buffer is closed; delivery is best-effort.
func (h *Hub) Deliver(e *domain.ActivityEvent) {
	// Sends happen under the lock so a concurrent remove cannot close a
	// channel mid-send; the select never blocks.
	h.mu.Lock()
	var slow []*client
	msg := wireMessage{Type: wireType(e.Type), Payload: e}
	for c := range h.clients[e.UserID] {
		select {
		case c.send <- msg:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.Unlock()

	for _, c := range slow {
		logger.Warn("closing slow websocket client", "user_id", c.userID)
		h.remove(c)
	}
}

// ServeWS upgrades the request and binds the connection to userID.
// Reconnects need no server-side state: the durable feed covers catch-up.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID string) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return domain.E(domain.KindValidation, "ws_upgrade_failed", "upgrading connection", err)
	}
	c := &client{userID: userID, conn: conn, send: make(chan wireMessage, sendBuffer)}
	c.send <- wireMessage{Type: "connection", Payload: map[string]string{"user_id": userID}}

	h.mu.Lock()
	if h.clients[userID] == nil {
		h.clients[userID] = map[*client]bool{}
	}
	h.clients[userID][c] = true
	h.mu.Unlock()

	go h.writeLoop(c)
	go h.readLoop(c)
	return nil
}

// writeLoop pushes events and heartbeat pings; any write error tears the
// connection down.
func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(h.heartbeat)
	defer func() {
		ticker.Stop()
		h.remove(c)
	}()
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
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

// readLoop consumes pongs and client frames; a missed pong deadline or a
// close frame ends the connection.
func (h *Hub) readLoop(c *client) {
	defer h.remove(c)
	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	set := h.clients[c.userID]
	if set != nil && set[c] {
		delete(set, c)
		if len(set) == 0 {
			delete(h.clients, c.userID)
		}
		close(c.send)
	}
	h.mu.Unlock()
	c.conn.Close()
}

// Connections reports how many live connections a user has.
func (h *Hub) Connections(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients[userID])
}
