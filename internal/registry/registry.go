package registry

import (
	"crypto/rand"
	"encoding/hex"
)

// User represents one connected participant. The ID doubles as the address
// that peers dial each other with when they negotiate a direct connection.
type User struct {
	ID           string `json:"id"`
	ConnectionID string `json:"connection_id"`
}

// Room is a meeting point holding its current members in join order.
type Room struct {
	ID    string  `json:"id"`
	Users []*User `json:"users"`
}

// Registry is the in-memory store of active rooms and users. It carries no
// locking of its own: every call must come from the signaling hub's run
// loop, which processes events one at a time, so the maps are never observed
// mid-mutation. HTTP ingress reaches the registry only through the hub's
// request channels.
type Registry struct {
	rooms map[string]*Room
	users map[string]*User // keyed by connection id
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		rooms: make(map[string]*Room),
		users: make(map[string]*User),
	}
}

// CreateRoom inserts a room with a fresh id and no members.
func (r *Registry) CreateRoom() *Room {
	room := &Room{ID: generateID(), Users: []*User{}}
	r.rooms[room.ID] = room
	return room
}

// EnsureRoom returns the room with the given id, creating it first when it
// does not exist yet. The second return value reports whether a room was
// created.
func (r *Registry) EnsureRoom(id string) (*Room, bool) {
	if room, ok := r.rooms[id]; ok {
		return room, false
	}
	room := &Room{ID: id, Users: []*User{}}
	r.rooms[id] = room
	return room, true
}

// Room returns the room with the given id, or nil when it does not exist.
// A missing room is a normal outcome, not an error.
func (r *Registry) Room(id string) *Room {
	return r.rooms[id]
}

// Rooms returns a snapshot of all active rooms. Each returned Room is a
// copy with its own member slice, so callers may serialize or inspect the
// result after the run loop has moved on.
func (r *Registry) Rooms() []*Room {
	result := make([]*Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		snapshot := &Room{ID: room.ID, Users: make([]*User, len(room.Users))}
		copy(snapshot.Users, room.Users)
		result = append(result, snapshot)
	}
	return result
}

// RoomCount returns the number of active rooms.
func (r *Registry) RoomCount() int {
	return len(r.rooms)
}

// RegisterUser binds a new user with a fresh id to the given connection.
// If the connection already owns a user, that user is returned instead of
// creating a duplicate.
func (r *Registry) RegisterUser(connID string) *User {
	if u, ok := r.users[connID]; ok {
		return u
	}
	u := &User{ID: generateID(), ConnectionID: connID}
	r.users[connID] = u
	return u
}

// User returns the user owned by the given connection, or nil.
func (r *Registry) User(connID string) *User {
	return r.users[connID]
}

// UserCount returns the number of active users.
func (r *Registry) UserCount() int {
	return len(r.users)
}

// RemoveUser deletes the connection's user and strips it from every room's
// member list. Removing an unknown connection is a no-op.
func (r *Registry) RemoveUser(connID string) {
	u, ok := r.users[connID]
	if !ok {
		return
	}
	delete(r.users, connID)
	for _, room := range r.rooms {
		room.removeUser(u.ID)
	}
}

// AddMember appends the user to the room's member list. Adding to an
// unknown room or re-adding a current member is a no-op.
func (r *Registry) AddMember(roomID string, u *User) {
	room, ok := r.rooms[roomID]
	if !ok {
		return
	}
	for _, member := range room.Users {
		if member.ID == u.ID {
			return
		}
	}
	room.Users = append(room.Users, u)
}

// RemoveMember drops the user from the room's member list. Removing a
// non-member or targeting an unknown room is a no-op.
func (r *Registry) RemoveMember(roomID string, u *User) {
	if room, ok := r.rooms[roomID]; ok {
		room.removeUser(u.ID)
	}
}

// MemberRooms returns every room the user currently belongs to.
func (r *Registry) MemberRooms(u *User) []*Room {
	var result []*Room
	for _, room := range r.rooms {
		for _, member := range room.Users {
			if member.ID == u.ID {
				result = append(result, room)
				break
			}
		}
	}
	return result
}

func (room *Room) removeUser(userID string) {
	for i, member := range room.Users {
		if member.ID == userID {
			room.Users = append(room.Users[:i], room.Users[i+1:]...)
			return
		}
	}
}

// generateID returns a random hex ID.
func generateID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}
