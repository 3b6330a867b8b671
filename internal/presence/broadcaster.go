package presence

import (
	"chat-relay/internal/models"
	"chat-relay/pkg/logger"
)

// Roster exposes the membership lookups the broadcaster needs.
type Roster interface {
	Members(roomID string) []string
}

// Sender delivers a raw payload to one connection's outbound queue.
type Sender interface {
	Send(connID string, payload []byte)
}

// Broadcaster turns membership changes into presence events for the
// affected room. Snapshots are computed by the caller at mutation time and
// passed through untouched.
type Broadcaster struct {
	roster Roster
	sender Sender
}

func New(roster Roster, sender Sender) *Broadcaster {
	return &Broadcaster{roster: roster, sender: sender}
}

// AnnounceSelf acknowledges a successful join to the requesting connection
// only, carrying its own view of the room.
func (b *Broadcaster) AnnounceSelf(connID string, snap models.PresenceSnapshot) {
	payload, err := models.NewEnvelope(models.EventRoomJoined, models.RoomJoinedPayload{
		RoomID:    snap.RoomID,
		UserCount: snap.UserCount,
		UserList:  snap.UserList,
	})
	if err != nil {
		logger.Error("Error marshaling room-joined event: %v", err)
		return
	}
	b.sender.Send(connID, payload)
}

// AnnounceJoin notifies every current member of the room except the joining
// connection itself.
func (b *Broadcaster) AnnounceJoin(roomID, joinedConnID, username string, snap models.PresenceSnapshot) {
	payload, err := models.NewEnvelope(models.EventUserJoined, models.PresencePayload{
		Username:  username,
		UserCount: snap.UserCount,
		UserList:  snap.UserList,
	})
	if err != nil {
		logger.Error("Error marshaling user-joined event: %v", err)
		return
	}
	for _, connID := range b.roster.Members(roomID) {
		if connID == joinedConnID {
			continue
		}
		b.sender.Send(connID, payload)
	}
}

// AnnounceLeave notifies the remaining members of the room. When the room
// emptied out and no longer exists there is nobody left to notify.
func (b *Broadcaster) AnnounceLeave(roomID, username string, snap models.PresenceSnapshot) {
	members := b.roster.Members(roomID)
	if len(members) == 0 {
		return
	}
	payload, err := models.NewEnvelope(models.EventUserLeft, models.PresencePayload{
		Username:  username,
		UserCount: snap.UserCount,
		UserList:  snap.UserList,
	})
	if err != nil {
		logger.Error("Error marshaling user-left event: %v", err)
		return
	}
	for _, connID := range members {
		b.sender.Send(connID, payload)
	}
}
