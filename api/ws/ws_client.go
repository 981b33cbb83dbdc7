package ws

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/zlnvch/easel/logutils"
	"github.com/zlnvch/easel/models"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Session payloads can be up to 1 MiB plus the envelope.
	maxMessageSize = 1024*1024 + 4096

	// Rate limiting: 10 messages per second with a burst of 20
	messagesPerSecond = 10
	burstLimit        = 20
)

type MessageHandler func(client *Client, messageBytes []byte)

func NewClient(shutdownCtx context.Context, hub *Hub, conn *websocket.Conn, user models.User, handler MessageHandler) *Client {
	ctx, cancel := context.WithCancel(shutdownCtx)
	return &Client{
		hub:         hub,
		conn:        conn,
		user:        user,
		handler:     handler,
		watching:    make(map[string]struct{}),
		Send:        make(chan []byte, 128),
		shutdownCtx: shutdownCtx,
		ctx:         ctx,
		cancel:      cancel,
		limiter:     rate.NewLimiter(rate.Limit(messagesPerSecond), burstLimit),
	}
}

// Client is a middleman between the websocket connection and the hub.
// Send is never closed; cancelling ctx ends the write pump.
type Client struct {
	hub         *Hub
	conn        *websocket.Conn
	user        models.User
	handler     MessageHandler
	Send        chan []byte // Buffered channel of outbound messages.
	shutdownCtx context.Context
	ctx         context.Context
	cancel      context.CancelFunc
	limiter     *rate.Limiter

	// Owned by the hub goroutine.
	watching   map[string]struct{}
	registered bool
}

func (c *Client) User() models.User {
	return c.user
}

// trySend never blocks; false means the client's buffer is full.
func (c *Client) trySend(message []byte) bool {
	select {
	case c.Send <- message:
		return true
	default:
		return false
	}
}

// reply queues a response unless the connection is already going away.
func (c *Client) reply(message []byte) {
	select {
	case c.Send <- message:
	case <-c.ctx.Done():
	}
}

func (c *Client) ReadPump() {
	defer func() {
		select {
		case c.hub.CloseCh <- c:
		case <-c.shutdownCtx.Done():
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		messageType, messageBytes, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logutils.Log.WithError(err).WithField("userId", c.user.Id).Info("websocket closed unexpectedly")
			}
			break
		}
		if messageType != websocket.TextMessage {
			continue
		}

		if !c.limiter.Allow() {
			logutils.Log.WithField("userId", c.user.Id).Warn("closing websocket: message rate limit exceeded")
			break
		}

		c.handler(c, messageBytes)
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.cancel()
	}()
	for {
		select {
		case message := <-c.Send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logutils.Log.WithError(err).WithField("userId", c.user.Id).Debug("websocket write failed")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			reason := "connection closed"
			code := websocket.ClosePolicyViolation
			if c.shutdownCtx.Err() != nil {
				reason = "websocket service shutting down"
				code = websocket.CloseGoingAway
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
			return
		}
	}
}
