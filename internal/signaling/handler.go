package signaling

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"nhooyr.io/websocket"
)

// Handler upgrades HTTP requests into signaling sessions.
type Handler struct {
	hub *Hub
}

// NewHandler creates a WebSocket Handler feeding the given hub.
func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub}
}

// ServeHTTP upgrades the connection to a WebSocket and runs the read loop
// for the session. The session's user exists for exactly the lifetime of
// this call.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // Allow all origins in dev; tighten in production.
	})
	if err != nil {
		log.Printf("signaling: accept error: %v", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	client := newClient(conn)
	h.hub.Connect(client)
	defer h.hub.Disconnect(client)

	h.readLoop(r.Context(), client)
}

// readLoop reads events from the client until the connection closes. A
// malformed frame from one client must never affect other sessions, so
// anything that fails to decode is skipped rather than treated as fatal.
func (h *Handler) readLoop(ctx context.Context, client *Client) {
	for {
		_, data, err := client.conn.Read(ctx)
		if err != nil {
			// Normal close or context cancelled.
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}

		switch env.Type {
		case EventJoin:
			var payload RoomPayload
			if err := json.Unmarshal(env.Payload, &payload); err != nil {
				continue
			}
			h.hub.Join(client, payload.Room)
		case EventLeave:
			var payload RoomPayload
			if err := json.Unmarshal(env.Payload, &payload); err != nil {
				continue
			}
			h.hub.Leave(client, payload.Room)
		}
	}
}
