package web

import (
	log "log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"voxpro/internal/models"
	"voxpro/pkg/protocol"
)

const writeWait = 10 * time.Second

type subscriber interface {
	Subscribe() (<-chan models.Interaction, func())
}

type client struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) send(e protocol.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(e)
}

// Hub pushes every finished interaction to the connected browsers.
type Hub struct {
	source   subscriber
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*client
}

func NewHub(source subscriber) *Hub {
	return &Hub{
		source: source,
		upgrader: websocket.Upgrader{
			// origin checks are left to CORS
			CheckOrigin: func(_ *http.Request) bool {
				return true
			},
		},
		clients: make(map[string]*client),
	}
}

func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error("WebSocket upgrade failed", "err", err)
		return
	}

	c := &client{id: uuid.NewString(), conn: conn}
	h.add(c)
	defer h.remove(c)

	feed, unsubscribe := h.source.Subscribe()
	defer unsubscribe()

	log.Info("WebSocket client connected", "client", c.id)

	if err := c.send(protocol.Event{Kind: protocol.KindHello, Client: c.id}); err != nil {
		return
	}

	done := make(chan struct{})
	go h.readLoop(c, done)

	for {
		select {
		case it, ok := <-feed:
			if !ok {
				return
			}
			if err := c.send(protocol.Event{Kind: protocol.KindInteraction, Interaction: &it}); err != nil {
				log.Warn("Failed to push interaction", "client", c.id, "err", err)
				return
			}
		case <-done:
			log.Info("WebSocket client disconnected", "client", c.id)
			return
		}
	}
}

// readLoop answers pings and notices when the client goes away.
func (h *Hub) readLoop(c *client, done chan<- struct{}) {
	defer close(done)

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("WebSocket error", "client", c.id, "err", err)
			}
			return
		}

		e, err := protocol.Parse(frame)
		if err != nil {
			log.Debug("Ignoring client frame", "client", c.id, "err", err)
			continue
		}
		if e.Kind == protocol.KindPing {
			if err := c.send(protocol.Event{Kind: protocol.KindPong}); err != nil {
				return
			}
		}
	}
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.id] = c
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c.id)
	c.conn.Close()
}

func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, c := range h.clients {
		c.mu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		c.mu.Unlock()
		c.conn.Close()
		delete(h.clients, id)
	}
}
