package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/tirumala-karthikeya/chat-pro/internal/models"
	"github.com/tirumala-karthikeya/chat-pro/internal/service"
	"github.com/tirumala-karthikeya/chat-pro/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024
	inboxSize      = 16
)

// ErrClientClosed is returned when emitting to a client that has gone away.
var ErrClientClosed = errors.New("websocket client closed")

var upgrader = websocket.Upgrader{
	CheckOrigin:      func(r *http.Request) bool { return true },
	HandshakeTimeout: 10 * time.Second,
	ReadBufferSize:   1024,
	WriteBufferSize:  1024,
}

// MessageHandler processes one inbound frame for a session.
type MessageHandler interface {
	HandleSocketMessage(ctx context.Context, sess *service.SocketSession, raw []byte, emit service.Emitter) error
}

// Client is one websocket connection. Outbound events go through the
// bounded send queue; a full queue blocks the producer, which in turn
// stops reading from the upstream until the peer catches up.
type Client struct {
	ID   string
	conn *websocket.Conn
	hub  *Hub
	send chan []byte

	inbox     chan []byte
	done      chan struct{}
	closeOnce sync.Once
	log       *logger.Logger
}

func newClient(id string, conn *websocket.Conn, hub *Hub, sendBuffer int) *Client {
	if sendBuffer < 1 {
		sendBuffer = 256
	}
	return &Client{
		ID:    id,
		conn:  conn,
		hub:   hub,
		send:  make(chan []byte, sendBuffer),
		inbox: make(chan []byte, inboxSize),
		done:  make(chan struct{}),
		log:   hub.log.WithClientID(id),
	}
}

// Close stops the pumps. Safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Done is closed once the client is shutting down.
func (c *Client) Done() <-chan struct{} { return c.done }

// Emit returns an emitter that queues events for this client.
func (c *Client) Emit(ctx context.Context) service.Emitter {
	return func(ev models.RelayEvent) error {
		payload, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		select {
		case c.send <- payload:
			return nil
		case <-c.done:
			return ErrClientClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.Close()
		close(c.inbox)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.log.LogError(err, "websocket read failed")
			}
			return
		}
		select {
		case c.inbox <- data:
		case <-c.done:
			return
		}
	}
}

// processLoop handles frames one at a time so replies to one message are
// never interleaved with replies to the next.
func (c *Client) processLoop(ctx context.Context, h MessageHandler) {
	sess := &service.SocketSession{ClientID: c.ID}
	emit := c.Emit(ctx)
	for raw := range c.inbox {
		if err := h.HandleSocketMessage(ctx, sess, raw, emit); err != nil {
			if !errors.Is(err, ErrClientClosed) {
				c.log.LogError(err, "websocket message handling stopped")
			}
			c.Close()
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

// Handler serves GET /ws/:client_id.
type Handler struct {
	hub        *Hub
	relay      MessageHandler
	baseCtx    context.Context
	sendBuffer int
}

// NewHandler builds the websocket endpoint. baseCtx bounds the upstream
// calls made on behalf of clients; it outlives individual connections.
func NewHandler(baseCtx context.Context, hub *Hub, relay MessageHandler, sendBuffer int) *Handler {
	return &Handler{hub: hub, relay: relay, baseCtx: baseCtx, sendBuffer: sendBuffer}
}

func (h *Handler) Serve(c *gin.Context) {
	clientID := c.Param("client_id")
	if clientID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "client_id is required"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.FromContext(c, h.hub.log).LogError(err, "websocket upgrade failed", "client_id", clientID)
		return
	}

	client := newClient(clientID, conn, h.hub, h.sendBuffer)
	if !h.hub.Register(client) {
		conn.Close()
		return
	}

	go client.writePump()
	go client.processLoop(h.baseCtx, h.relay)
	go client.readPump()
}
