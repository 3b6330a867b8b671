package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"chat-relay/internal/models"
	"chat-relay/internal/registry"
	"chat-relay/pkg/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second

	sendBufferSize = 256
)

// Publisher hands a chat message to the fanout path.
type Publisher interface {
	Publish(ctx context.Context, msg models.ChatMessage)
}

// Announcer emits presence events for membership changes.
type Announcer interface {
	AnnounceSelf(connID string, snap models.PresenceSnapshot)
	AnnounceJoin(roomID, joinedConnID, username string, snap models.PresenceSnapshot)
	AnnounceLeave(roomID, username string, snap models.PresenceSnapshot)
}

type sessionState int

const (
	stateConnected sessionState = iota
	stateInRoom
	stateClosed
)

// Client is the per-connection session handler. It owns the connection's
// lifecycle and is the only writer of its own state: every inbound event is
// interpreted on the read goroutine, so state transitions never interleave.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte

	state    sessionState
	username string
	roomID   string

	registry  *registry.Registry
	directory *Directory
	publisher Publisher
	announcer Announcer

	closeOnce sync.Once
}

func NewClient(conn *websocket.Conn, reg *registry.Registry, dir *Directory, pub Publisher, ann Announcer) *Client {
	return &Client{
		id:        uuid.NewString(),
		conn:      conn,
		send:      make(chan []byte, sendBufferSize),
		state:     stateConnected,
		registry:  reg,
		directory: dir,
		publisher: pub,
		announcer: ann,
	}
}

// ID returns the opaque connection identifier.
func (c *Client) ID() string {
	return c.id
}

// Start registers the session and launches its pumps.
func (c *Client) Start() {
	c.directory.add(c)
	logger.Info("New connection %s", c.id)
	go c.writePump()
	go c.readPump()
}

// enqueue offers a payload to the write pump without blocking.
func (c *Client) enqueue(payload []byte) bool {
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// Close tears down the underlying connection. The read pump notices and
// runs the membership cleanup; safe to call from any goroutine, any number
// of times.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

func (c *Client) readPump() {
	defer func() {
		c.handleDisconnect()
		c.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Error("WebSocket error on %s: %v", c.id, err)
			}
			break
		}
		c.handleEvent(message)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.Error("Write error on %s: %v", c.id, err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleEvent interprets one inbound frame. Malformed payloads and events
// arriving in the wrong state are dropped without touching session state.
func (c *Client) handleEvent(raw []byte) {
	if c.state == stateClosed {
		return
	}

	var env models.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		logger.Debug("Dropping undecodable frame from %s: %v", c.id, err)
		return
	}

	switch env.Event {
	case models.EventJoinRoom:
		c.handleJoin(env.Data)
	case models.EventMessage:
		c.handleMessage(env.Data)
	default:
		logger.Debug("Dropping unknown event %q from %s", env.Event, c.id)
	}
}

func (c *Client) handleJoin(data json.RawMessage) {
	if c.state != stateConnected {
		// One room per connection; a second join keeps the first membership.
		logger.Debug("Rejecting join from %s: already in room %s", c.id, c.roomID)
		return
	}

	var payload models.JoinRoomPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		logger.Debug("Dropping malformed join-room from %s: %v", c.id, err)
		return
	}
	if payload.RoomID == "" || payload.Username == "" {
		logger.Debug("Dropping join-room with empty room or username from %s", c.id)
		return
	}

	snap := c.registry.Join(payload.RoomID, c.id, payload.Username)
	c.state = stateInRoom
	c.roomID = payload.RoomID
	c.username = payload.Username

	c.announcer.AnnounceSelf(c.id, snap)
	c.announcer.AnnounceJoin(c.roomID, c.id, c.username, snap)
	logger.Info("Connection %s joined room %s as %q (%d users)", c.id, c.roomID, c.username, snap.UserCount)
}

func (c *Client) handleMessage(data json.RawMessage) {
	if c.state != stateInRoom {
		logger.Debug("Dropping message from %s: not in a room", c.id)
		return
	}

	var payload models.SendMessagePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		logger.Debug("Dropping malformed message from %s: %v", c.id, err)
		return
	}
	if payload.Message == "" {
		return
	}

	// Session state is authoritative for author and room; local members see
	// the message only once it comes back through the bus subscription.
	msg := models.NewChatMessage(c.username, payload.Message, c.roomID)
	c.publisher.Publish(context.Background(), msg)
}

// handleDisconnect runs the terminal transition. The leave cleanup always
// completes eagerly, even when the connection died mid-send.
func (c *Client) handleDisconnect() {
	if c.state == stateClosed {
		return
	}
	c.state = stateClosed
	c.directory.remove(c.id)

	roomID, snap, ok := c.registry.Leave(c.id)
	if ok {
		c.announcer.AnnounceLeave(roomID, c.username, snap)
		logger.Info("Connection %s left room %s (%d users remain)", c.id, roomID, snap.UserCount)
	} else {
		logger.Info("Connection %s closed", c.id)
	}
}
