package signaling

import "encoding/json"

// Envelope is the JSON frame for every message in both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Inbound event types (client to server).
const (
	EventJoin  = "join"
	EventLeave = "leave"
)

// Outbound event types (server to client).
const (
	EventJoinSuccess = "join-success"
	EventJoinFailed  = "join-failed"
	EventUserJoined  = "user-joined"
	EventUserLeft    = "user-left"
	EventNewRoom     = "new-room"
)

// RoomPayload is the payload of the inbound join and leave events.
type RoomPayload struct {
	Room string `json:"room"`
}

// encode builds the wire bytes for an outbound event. payload may be nil;
// join-failed carries none.
func encode(typ string, payload any) ([]byte, error) {
	env := Envelope{Type: typ}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		env.Payload = data
	}
	return json.Marshal(env)
}
