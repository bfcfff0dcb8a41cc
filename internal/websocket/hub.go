package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/scrim-lobby/internal/config"
	"github.com/scrim-lobby/internal/domain"
	"github.com/scrim-lobby/internal/eventbus"
)

// Message types
const (
	MessageTypeWelcome      = "welcome"
	MessageTypeScrimEvent   = "scrim_event"
	MessageTypeSubscribe    = "subscribe"
	MessageTypeSubscribed   = "subscribed"
	MessageTypeUnsubscribe  = "unsubscribe"
	MessageTypeUnsubscribed = "unsubscribed"
	MessageTypePing         = "ping"
	MessageTypePong         = "pong"
	MessageTypeError        = "error"
)

// ScrimLookup resolves the scrims clients ask to follow
type ScrimLookup interface {
	GetScrim(ctx context.Context, scrimID string) (*domain.Scrim, error)
}

// Message represents a WebSocket message
type Message struct {
	Type      string      `json:"type"`
	ScrimID   string      `json:"scrim_id,omitempty"`
	Event     string      `json:"event,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Hub maintains the set of active clients and fans scrim events out to them
type Hub struct {
	// Registered clients by scrim ID
	clients map[string]map[*Client]bool

	// All connected clients
	allClients map[*Client]bool

	register    chan *Client
	unregister  chan *Client
	broadcast   chan *Message
	subscribe   chan *subscriptionRequest
	unsubscribe chan *subscriptionRequest

	mu sync.RWMutex

	scrims     ScrimLookup
	sendBuffer int
	logger     *slog.Logger

	// Context for shutdown
	ctx    context.Context
	cancel context.CancelFunc
}

type subscriptionRequest struct {
	client  *Client
	scrimID string
}

// NewHub creates a new Hub
func NewHub(cfg *config.WebSocketConfig, scrims ScrimLookup, logger *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	sendBuffer := cfg.SendBuffer
	if sendBuffer <= 0 {
		sendBuffer = 256
	}
	return &Hub{
		clients:     make(map[string]map[*Client]bool),
		allClients:  make(map[*Client]bool),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		broadcast:   make(chan *Message, 256),
		subscribe:   make(chan *subscriptionRequest, 64),
		unsubscribe: make(chan *subscriptionRequest, 64),
		scrims:      scrims,
		sendBuffer:  sendBuffer,
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	h.logger.Info("WebSocket hub started")
	for {
		select {
		case <-h.ctx.Done():
			h.logger.Info("WebSocket hub stopping")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.allClients[client] = true
			h.mu.Unlock()
			h.logger.Debug("client registered", "client_id", client.id, "user_id", client.userID)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.allClients[client]; ok {
				delete(h.allClients, client)
				for scrimID, clients := range h.clients {
					if _, ok := clients[client]; ok {
						delete(clients, client)
						if len(clients) == 0 {
							delete(h.clients, scrimID)
						}
					}
				}
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Debug("client unregistered", "client_id", client.id)

		case req := <-h.subscribe:
			h.mu.Lock()
			if _, ok := h.allClients[req.client]; ok {
				if _, ok := h.clients[req.scrimID]; !ok {
					h.clients[req.scrimID] = make(map[*Client]bool)
				}
				h.clients[req.scrimID][req.client] = true
			}
			h.mu.Unlock()
			h.logger.Debug("client subscribed", "client_id", req.client.id, "scrim_id", req.scrimID)

		case req := <-h.unsubscribe:
			h.mu.Lock()
			if clients, ok := h.clients[req.scrimID]; ok {
				delete(clients, req.client)
				if len(clients) == 0 {
					delete(h.clients, req.scrimID)
				}
			}
			h.mu.Unlock()
			h.logger.Debug("client unsubscribed", "client_id", req.client.id, "scrim_id", req.scrimID)

		case message := <-h.broadcast:
			h.broadcastMessage(message)
		}
	}
}

// Stop stops the hub
func (h *Hub) Stop() {
	h.cancel()
}

// Follow streams every bus event to the subscribed clients
func (h *Hub) Follow(bus *eventbus.Bus) {
	bus.SubscribeAll("realtime.websocket", func(ctx context.Context, evt domain.Event) error {
		h.BroadcastEvent(evt)
		return nil
	})
}

// broadcastMessage sends a message to the clients subscribed to its scrim.
// Messages without a scrim ID go to every client.
func (h *Hub) broadcastMessage(message *Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("failed to marshal message", "error", err)
		return
	}

	targets := h.allClients
	if message.ScrimID != "" {
		targets = h.clients[message.ScrimID]
	}
	for client := range targets {
		select {
		case client.send <- data:
		default:
			h.logger.Warn("client buffer full, skipping", "client_id", client.id)
		}
	}
}

// BroadcastEvent queues a domain event for the scrim's subscribers. New
// scrims are announced to every client.
func (h *Hub) BroadcastEvent(evt domain.Event) {
	scrimID := evt.Header().ScrimID
	if evt.Type() == domain.EventScrimCreated {
		scrimID = ""
	}
	message := &Message{
		Type:      MessageTypeScrimEvent,
		ScrimID:   scrimID,
		Event:     evt.Type(),
		Data:      evt,
		Timestamp: time.Now(),
	}

	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("broadcast channel full, dropping message", "event_type", evt.Type())
	}
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Subscribe adds a client to a scrim's feed
func (h *Hub) Subscribe(client *Client, scrimID string) {
	h.subscribe <- &subscriptionRequest{
		client:  client,
		scrimID: scrimID,
	}
}

// Unsubscribe removes a client from a scrim's feed
func (h *Hub) Unsubscribe(client *Client, scrimID string) {
	h.unsubscribe <- &subscriptionRequest{
		client:  client,
		scrimID: scrimID,
	}
}

// GetSubscriberCount returns the number of subscribers for a scrim
func (h *Hub) GetSubscriberCount(scrimID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[scrimID])
}

// GetTotalConnections returns the total number of connected clients
func (h *Hub) GetTotalConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.allClients)
}
