package signaling

import (
	"context"
	"log"

	"github.com/christopherjohns/parley/internal/metrics"
	"github.com/christopherjohns/parley/internal/registry"
	"nhooyr.io/websocket"
)

// eventKind enumerates the session events the hub processes.
type eventKind int

const (
	eventConnect eventKind = iota
	eventJoin
	eventLeave
	eventDisconnect
)

type event struct {
	kind   eventKind
	client *Client
	roomID string
}

// Hub owns the presence registry and serializes every mutation through a
// single run loop. All session events for one connection travel the same
// channel, so a connection observes its own events in order, and no two
// handlers ever run interleaved against the registry.
type Hub struct {
	reg     *registry.Registry
	metrics *metrics.Metrics

	events    chan event
	createReq chan chan *registry.Room
	listReq   chan chan []*registry.Room
	countReq  chan chan int
	done      chan struct{}

	// Loop-owned state. rooms is the reverse index from room id to the
	// live sessions joined there, kept in step with registry membership
	// so broadcast is a lookup rather than a scan.
	clients map[*Client]context.CancelFunc
	rooms   map[string]map[*Client]struct{}
}

// NewHub creates a Hub around the given registry. Run must be started
// before any client connects.
func NewHub(reg *registry.Registry, m *metrics.Metrics) *Hub {
	return &Hub{
		reg:       reg,
		metrics:   m,
		events:    make(chan event),
		createReq: make(chan chan *registry.Room),
		listReq:   make(chan chan []*registry.Room),
		countReq:  make(chan chan int),
		done:      make(chan struct{}),
		clients:   make(map[*Client]context.CancelFunc),
		rooms:     make(map[string]map[*Client]struct{}),
	}
}

// Connect hands a freshly accepted connection to the run loop.
func (h *Hub) Connect(c *Client) {
	h.post(event{kind: eventConnect, client: c})
}

// Disconnect tells the run loop the connection is gone. Safe to call more
// than once; cleanup happens exactly once.
func (h *Hub) Disconnect(c *Client) {
	h.post(event{kind: eventDisconnect, client: c})
}

// Join asks the run loop to join the client to the given room.
func (h *Hub) Join(c *Client, roomID string) {
	h.post(event{kind: eventJoin, client: c, roomID: roomID})
}

// Leave asks the run loop to remove the client from the given room.
func (h *Hub) Leave(c *Client, roomID string) {
	h.post(event{kind: eventLeave, client: c, roomID: roomID})
}

// post queues an event for the run loop. Events arriving after shutdown
// are discarded so callers never block on a stopped loop.
func (h *Hub) post(ev event) {
	select {
	case h.events <- ev:
	case <-h.done:
	}
}

// CreateRoom creates an empty room through the run loop and broadcasts
// new-room to every connected session. Returns nil only after shutdown.
func (h *Hub) CreateRoom() *registry.Room {
	reply := make(chan *registry.Room, 1)
	select {
	case h.createReq <- reply:
		return <-reply
	case <-h.done:
		return nil
	}
}

// Rooms returns a snapshot of all active rooms.
func (h *Hub) Rooms() []*registry.Room {
	reply := make(chan []*registry.Room, 1)
	select {
	case h.listReq <- reply:
		return <-reply
	case <-h.done:
		return nil
	}
}

// ConnectionCount returns the number of live sessions.
func (h *Hub) ConnectionCount() int {
	reply := make(chan int, 1)
	select {
	case h.countReq <- reply:
		return <-reply
	case <-h.done:
		return 0
	}
}

// Run processes events until ctx is cancelled. It is the only goroutine
// that touches the registry or the room index.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			close(h.done)
			return
		case ev := <-h.events:
			h.dispatch(ev)
		case reply := <-h.createReq:
			reply <- h.createRoom()
		case reply := <-h.listReq:
			reply <- h.reg.Rooms()
		case reply := <-h.countReq:
			reply <- len(h.clients)
		}
	}
}

func (h *Hub) dispatch(ev event) {
	switch ev.kind {
	case eventConnect:
		h.handleConnect(ev.client)
	case eventJoin:
		h.handleJoin(ev.client, ev.roomID)
	case eventLeave:
		h.handleLeave(ev.client, ev.roomID)
	case eventDisconnect:
		h.handleDisconnect(ev.client)
	}
}

func (h *Hub) handleConnect(c *Client) {
	if _, ok := h.clients[c]; ok {
		// Duplicate connect for a session we already track.
		return
	}
	c.user = h.reg.RegisterUser(c.connID)

	pumpCtx, cancel := context.WithCancel(context.Background())
	h.clients[c] = cancel
	go c.writePump(pumpCtx)

	h.metrics.ActiveConnections.Inc()
	log.Printf("signaling: user connected (%s)", c.user.ID)
}

func (h *Hub) handleJoin(c *Client, roomID string) {
	h.metrics.EventsTotal.WithLabelValues(EventJoin).Inc()
	if c.closed || c.user == nil {
		return
	}
	if roomID == "" {
		h.sendTo(c, EventJoinFailed, nil)
		return
	}

	room, created := h.reg.EnsureRoom(roomID)
	if created {
		h.roomCreated(room)
	}

	h.sendTo(c, EventJoinSuccess, c.user)

	h.reg.AddMember(room.ID, c.user)
	sessions := h.rooms[room.ID]
	if sessions == nil {
		sessions = make(map[*Client]struct{})
		h.rooms[room.ID] = sessions
	}
	sessions[c] = struct{}{}
	c.roomID = room.ID

	h.broadcastRoom(room.ID, EventUserJoined, c.user, c)
	log.Printf("signaling: %s joined room %s", c.user.ID, room.ID)
}

func (h *Hub) handleLeave(c *Client, roomID string) {
	h.metrics.EventsTotal.WithLabelValues(EventLeave).Inc()
	if c.closed || c.user == nil {
		return
	}
	sessions, ok := h.rooms[roomID]
	if !ok {
		return
	}
	if _, member := sessions[c]; !member {
		// Leaving a room the session never joined is a no-op.
		return
	}

	h.reg.RemoveMember(roomID, c.user)
	delete(sessions, c)
	if len(sessions) == 0 {
		// The room itself stays in the registry; only the live-session
		// index entry is dropped.
		delete(h.rooms, roomID)
	}
	if c.roomID == roomID {
		c.roomID = ""
	}

	h.broadcastRoom(roomID, EventUserLeft, c.user, nil)
	log.Printf("signaling: %s left room %s", c.user.ID, roomID)
}

func (h *Hub) handleDisconnect(c *Client) {
	if c.closed {
		return
	}
	c.closed = true

	if cancel, ok := h.clients[c]; ok {
		delete(h.clients, c)
		cancel()
		close(c.send)
		h.metrics.ActiveConnections.Dec()
	}

	if c.user != nil {
		for _, room := range h.reg.MemberRooms(c.user) {
			if sessions, ok := h.rooms[room.ID]; ok {
				delete(sessions, c)
				if len(sessions) == 0 {
					delete(h.rooms, room.ID)
				}
			}
			h.broadcastRoom(room.ID, EventUserLeft, c.user, nil)
			log.Printf("signaling: %s disconnected from room %s", c.user.ID, room.ID)
		}
		h.reg.RemoveUser(c.connID)
		log.Printf("signaling: user disconnected (%s)", c.user.ID)
	}
}

// createRoom backs the explicit create path (HTTP /create-room).
func (h *Hub) createRoom() *registry.Room {
	room := h.reg.CreateRoom()
	h.roomCreated(room)
	return room
}

// roomCreated announces a new room to every connected session and updates
// the room gauge. Called for both explicit and implicit creation.
func (h *Hub) roomCreated(room *registry.Room) {
	h.metrics.ActiveRooms.Set(float64(h.reg.RoomCount()))
	log.Printf("signaling: room %s created", room.ID)

	data, err := encode(EventNewRoom, room)
	if err != nil {
		log.Printf("signaling: failed to encode new-room: %v", err)
		return
	}
	for c := range h.clients {
		h.deliver(c, data)
	}
}

// sendTo encodes and queues an event for a single client.
func (h *Hub) sendTo(c *Client, typ string, payload any) {
	data, err := encode(typ, payload)
	if err != nil {
		log.Printf("signaling: failed to encode %s: %v", typ, err)
		return
	}
	h.deliver(c, data)
}

// broadcastRoom queues an event for every session joined to the room,
// except the one given (may be nil).
func (h *Hub) broadcastRoom(roomID, typ string, payload any, except *Client) {
	sessions := h.rooms[roomID]
	if len(sessions) == 0 {
		return
	}
	data, err := encode(typ, payload)
	if err != nil {
		log.Printf("signaling: failed to encode %s: %v", typ, err)
		return
	}
	for c := range sessions {
		if c == except {
			continue
		}
		h.deliver(c, data)
	}
}

// deliver queues wire bytes for a client without blocking the run loop.
// Events for slow consumers are dropped and counted.
func (h *Hub) deliver(c *Client, data []byte) {
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
		h.metrics.DroppedMessages.Inc()
		log.Printf("signaling: send buffer full for connection %s, dropping event", c.connID)
	}
}

// shutdown closes every tracked connection when the run loop stops.
func (h *Hub) shutdown() {
	for c, cancel := range h.clients {
		c.closed = true
		cancel()
		close(c.send)
		c.conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
	h.clients = make(map[*Client]context.CancelFunc)
	h.rooms = make(map[string]map[*Client]struct{})
}
