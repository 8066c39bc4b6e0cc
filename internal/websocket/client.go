package websocket

import (
	"context"
	"time"

	ws "github.com/coder/websocket"
)

const (
	sendBufferSize = 16
	pingInterval   = 30 * time.Second
	writeTimeout   = 10 * time.Second
)

// Client is one browser connection subscribed to a single organization.
type Client struct {
	hub            *Hub
	conn           *ws.Conn
	organizationID string
	send           chan []byte
}

func NewClient(hub *Hub, conn *ws.Conn, organizationID string) *Client {
	return &Client{
		hub:            hub,
		conn:           conn,
		organizationID: organizationID,
		send:           make(chan []byte, sendBufferSize),
	}
}

// Run serves the connection until the peer leaves, a write fails or ctx ends.
func (c *Client) Run(ctx context.Context) {
	c.hub.Register(c)
	defer c.hub.Unregister(c)

	// CloseRead answers control frames and cancels ctx once the peer goes away.
	ctx = c.conn.CloseRead(ctx)

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.Close(ws.StatusGoingAway, "server closing")
				return
			}
			if err := c.write(ctx, msg); err != nil {
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) write(ctx context.Context, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return c.conn.Write(ctx, ws.MessageText, msg)
}
