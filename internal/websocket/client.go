package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/scrim-lobby/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	lookupTimeout  = 5 * time.Second
	maxMessageSize = 1024

	// maxFeeds caps how many scrims one connection follows
	maxFeeds = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Scrim feeds are public
		return true
	},
}

// ClientMessage is a request sent by a connected user
type ClientMessage struct {
	Type    string `json:"type"`
	ScrimID string `json:"scrim_id,omitempty"`
}

// Client is one authenticated connection following scrim feeds
type Client struct {
	id     string
	userID string
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte

	// feeds is owned by the read loop
	feeds map[string]struct{}
}

// ServeWs upgrades the request and runs a session for userID
func ServeWs(hub *Hub, userID string, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Warn("websocket upgrade failed", "error", err, "user_id", userID)
		return
	}

	c := &Client{
		id:     uuid.NewString(),
		userID: userID,
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, hub.sendBuffer),
		feeds:  make(map[string]struct{}),
	}
	hub.Register(c)
	c.enqueue(Message{
		Type: MessageTypeWelcome,
		Data: map[string]string{"client_id": c.id, "user_id": userID},
	})

	go c.writeLoop()
	go c.readLoop()

	hub.logger.Debug("websocket session opened", "client_id", c.id, "user_id", userID)
}

// readLoop handles client requests until the connection drops
func (c *Client) readLoop() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
		c.hub.logger.Debug("websocket session closed", "client_id", c.id, "user_id", c.userID, "feeds", len(c.feeds))
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read failed", "client_id", c.id, "error", err)
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.enqueue(errorMessage("", "malformed message"))
			continue
		}
		c.enqueue(c.handle(msg))
	}
}

// handle answers one client request
func (c *Client) handle(msg ClientMessage) Message {
	switch msg.Type {
	case MessageTypeSubscribe:
		return c.follow(msg.ScrimID)
	case MessageTypeUnsubscribe:
		return c.unfollow(msg.ScrimID)
	case MessageTypePing:
		return Message{Type: MessageTypePong}
	default:
		return errorMessage(msg.ScrimID, fmt.Sprintf("unknown message type %q", msg.Type))
	}
}

// follow subscribes to a scrim's feed and answers with its current snapshot
func (c *Client) follow(scrimID string) Message {
	if scrimID == "" {
		return errorMessage("", "scrim_id required for subscribe")
	}
	if _, ok := c.feeds[scrimID]; !ok && len(c.feeds) >= maxFeeds {
		return errorMessage(scrimID, fmt.Sprintf("at most %d scrims can be followed", maxFeeds))
	}

	ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
	defer cancel()
	scrim, err := c.hub.scrims.GetScrim(ctx, scrimID)
	if err != nil {
		if domain.IsNotFound(err) {
			return errorMessage(scrimID, "scrim not found")
		}
		c.hub.logger.Error("scrim lookup failed", "scrim_id", scrimID, "client_id", c.id, "error", err)
		return errorMessage(scrimID, "scrim lookup failed")
	}

	c.feeds[scrimID] = struct{}{}
	c.hub.Subscribe(c, scrimID)
	return Message{Type: MessageTypeSubscribed, ScrimID: scrimID, Data: scrim}
}

func (c *Client) unfollow(scrimID string) Message {
	if _, ok := c.feeds[scrimID]; !ok {
		return errorMessage(scrimID, "not subscribed to this scrim")
	}
	delete(c.feeds, scrimID)
	c.hub.Unsubscribe(c, scrimID)
	return Message{Type: MessageTypeUnsubscribed, ScrimID: scrimID}
}

// enqueue queues a reply for the write loop, dropping it if the client lags
func (c *Client) enqueue(msg Message) {
	msg.Timestamp = time.Now()
	data, err := json.Marshal(msg)
	if err != nil {
		c.hub.logger.Error("failed to marshal reply", "type", msg.Type, "error", err)
		return
	}
	select {
	case c.send <- data:
	default:
		c.hub.logger.Warn("client buffer full, dropping reply", "client_id", c.id, "type", msg.Type)
	}
}

// writeLoop writes one frame per queued message and keeps the connection alive
func (c *Client) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
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

func errorMessage(scrimID, reason string) Message {
	return Message{
		Type:    MessageTypeError,
		ScrimID: scrimID,
		Data:    map[string]string{"error": reason},
	}
}
