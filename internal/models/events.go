package models

import "encoding/json"

type EventType string

const (
	// Inbound
	EventJoinRoom EventType = "join-room"
	EventMessage  EventType = "event:message"

	// Outbound
	EventRoomJoined EventType = "room-joined"
	EventUserJoined EventType = "user-joined"
	EventUserLeft   EventType = "user-left"
	EventChat       EventType = "message"
)

// Envelope is the wire frame for every event in either direction.
type Envelope struct {
	Event EventType       `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// JoinRoomPayload is the data of an inbound join-room event.
type JoinRoomPayload struct {
	RoomID   string `json:"roomId"`
	Username string `json:"username"`
}

// SendMessagePayload is the data of an inbound event:message.
// RoomID and Username are carried for client-side symmetry but the
// session's own state is authoritative for both.
type SendMessagePayload struct {
	Message  string `json:"message"`
	RoomID   string `json:"roomId,omitempty"`
	Username string `json:"username,omitempty"`
}

// RoomJoinedPayload acknowledges a successful join to the requester.
type RoomJoinedPayload struct {
	RoomID    string   `json:"roomId"`
	UserCount int      `json:"userCount"`
	UserList  []string `json:"userList"`
}

// PresencePayload notifies room members of a join or leave.
type PresencePayload struct {
	Username  string   `json:"username"`
	UserCount int      `json:"userCount"`
	UserList  []string `json:"userList"`
}

// NewEnvelope marshals data into a ready-to-send envelope.
func NewEnvelope(event EventType, data interface{}) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}
