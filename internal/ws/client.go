package ws

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	pongWait     = 60 * time.Second
	pingInterval = (pongWait * 9) / 10
	sendBuffer   = 64
)

// Client is one authenticated websocket connection. closed and rooms are
// guarded by the hub's lock.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	info    ConnInfo
	ctx     context.Context
	send    chan []byte
	limiter *rate.Limiter

	rooms  map[string]struct{}
	closed bool
}

func newClient(ctx context.Context, hub *Hub, conn *websocket.Conn, info ConnInfo, limiter *rate.Limiter) *Client {
	return &Client{
		hub:     hub,
		conn:    conn,
		info:    info,
		ctx:     ctx,
		send:    make(chan []byte, sendBuffer),
		limiter: limiter,
	}
}

// UserID is the authenticated user behind the connection.
func (c *Client) UserID() string {
	return c.info.UserID
}

// readPump reads frames until the connection fails and hands each one to
// dispatch. It owns unregistration.
func (c *Client) readPump(maxFrame int64, dispatch func(ctx context.Context, c *Client, raw []byte)) (reason string, abnormal bool) {
	c.conn.SetReadLimit(maxFrame)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			abnormal = !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
			return err.Error(), abnormal
		}
		if c.limiter != nil && !c.limiter.Allow() {
			c.hub.SendToClient(c, errorEvent("rate limit exceeded"))
			continue
		}
		dispatch(c.ctx, c, raw)
	}
}

// writePump drains the send queue onto the socket and keeps the connection
// alive with pings. It returns when the queue is closed or a write fails.
func (c *Client) writePump(writeTimeout time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.info.publish(c.ctx, "ws_error", err.Error(), 0)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
