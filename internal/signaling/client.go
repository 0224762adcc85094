package signaling

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log"
	"time"

	"github.com/christopherjohns/parley/internal/registry"
	"nhooyr.io/websocket"
)

const (
	// sendBufferSize is the number of events that can be queued per client.
	sendBufferSize = 16

	// writeTimeout is the max time to wait for a single write to complete.
	writeTimeout = 5 * time.Second
)

// Client is the server side of one live signaling connection.
type Client struct {
	conn   *websocket.Conn
	send   chan []byte
	connID string

	// The fields below are owned by the hub's run loop and must not be
	// touched from any other goroutine.
	user   *registry.User
	roomID string
	closed bool
}

func newClient(conn *websocket.Conn) *Client {
	return &Client{
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		connID: generateConnID(),
	}
}

// writePump drains the client's send channel, writing each event to the
// WebSocket connection. It exits when ctx is cancelled or the send channel
// is closed.
func (c *Client) writePump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Write(writeCtx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				log.Printf("signaling: write to connection %s failed: %v", c.connID, err)
				return
			}
		}
	}
}

func generateConnID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}
