// Package realtime is the control channel: websocket clients request fan
// speed changes and every connected client sees the committed result.
package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"fanctl-backend/config"
	"fanctl-backend/internal/fanctl"
	"fanctl-backend/internal/model"
)

// Event names carried in the "event" field of every frame.
const (
	EventUpdateFanSpeed      = "updateFanSpeed"
	EventUpdateMultipleFans  = "updateMultipleFans"
	EventPing                = "ping"
	EventFanUpdated          = "fanUpdated"
	EventMultipleFansUpdated = "multipleFansUpdated"
	EventError               = "errorMessage"
	EventPong                = "pong"
)

const controlTimeout = 10 * time.Second

// FanController is the write path the channel drives.
type FanController interface {
	SetSpeed(ctx context.Context, floorID, fanID string, rpm *int) (*model.Fan, error)
	SetMultiple(ctx context.Context, floorID string, changes []fanctl.Change) (*fanctl.Summary, error)
}

// Identity is the authenticated caller behind a connection.
type Identity struct {
	Subject  string
	CanWrite bool
}

// Hub owns the set of connected clients.
type Hub struct {
	cfg        config.WebSocketConfig
	controller FanController
	upgrader   websocket.Upgrader
	clients    map[*Client]struct{}
	mu         sync.RWMutex
}

// Client is one websocket connection.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	identity Identity
}

// NewHub creates a hub that applies control requests through controller.
func NewHub(cfg config.WebSocketConfig, controller FanController) *Hub {
	if cfg.PingIntervalSeconds <= 0 {
		cfg.PingIntervalSeconds = 30
	}
	if cfg.PongTimeoutSeconds <= 0 {
		cfg.PongTimeoutSeconds = 10
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 64 * 1024
	}
	if cfg.SendBufferSize <= 0 {
		cfg.SendBufferSize = 256
	}
	return &Hub{
		cfg:        cfg,
		controller: controller,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Callers are authenticated by token before the upgrade.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*Client]struct{}),
	}
}

// Run blocks until ctx is done, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// ServeWS upgrades the request and starts the client's pumps.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, identity Identity) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	client := &Client{
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, h.cfg.SendBufferSize),
		identity: identity,
	}
	h.Register(client)

	go client.writePump()
	go client.readPump()
	return nil
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()
	log.WithFields(log.Fields{"subject": client.identity.Subject, "clients": count}).Debug("Websocket client connected")
}

// Unregister removes a client. Only the caller that removes it closes its
// send channel.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	_, existed := h.clients[client]
	delete(h.clients, client)
	count := len(h.clients)
	h.mu.Unlock()

	if existed {
		close(client.send)
	}
	log.WithField("clients", count).Debug("Websocket client disconnected")
}

// Broadcast sends an event to every connected client. Clients whose buffer
// is full miss the event.
func (h *Hub) Broadcast(event string, data any) {
	frame, err := encode(event, data)
	if err != nil {
		log.WithError(err).WithField("event", event).Error("Failed to encode broadcast")
		return
	}

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.trySend(frame)
	}
	log.WithFields(log.Fields{"event": event, "recipients": len(clients)}).Debug("Broadcast sent")
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		close(c.send)
		c.conn.Close()
		delete(h.clients, c)
	}
}

type outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

func encode(event string, data any) ([]byte, error) {
	return json.Marshal(outbound{Event: event, Data: data})
}
