package models

import "time"

// ChatMessage is the unit published on the bus and delivered to clients.
// Immutable once constructed; the timestamp is assigned by the instance
// that received the message from the sending connection.
type ChatMessage struct {
	Name      string `json:"name"`
	Message   string `json:"message"`
	RoomID    string `json:"roomId"`
	Timestamp string `json:"timestamp"`
}

func NewChatMessage(name, text, roomID string) ChatMessage {
	return ChatMessage{
		Name:      name,
		Message:   text,
		RoomID:    roomID,
		Timestamp: time.Now().Format(time.RFC3339),
	}
}

// PresenceSnapshot is the derived occupancy of a room at a point in time.
// UserList preserves join order.
type PresenceSnapshot struct {
	RoomID    string   `json:"roomId"`
	UserCount int      `json:"userCount"`
	UserList  []string `json:"userList"`
}
