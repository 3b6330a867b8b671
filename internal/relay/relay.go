package relay

import (
	"context"
	"encoding/json"
	"sync/atomic"

	"chat-relay/internal/bus"
	"chat-relay/internal/models"
	"chat-relay/pkg/logger"
)

// Roster exposes the membership lookup needed to target a room's local
// connections.
type Roster interface {
	Members(roomID string) []string
}

// Sender delivers a raw payload to one connection's outbound queue.
type Sender interface {
	Send(connID string, payload []byte)
}

// Relay bridges local message emission with the pub/sub bus. A message sent
// by a local client is published to the shared channel and reaches local
// room members only through the subscription callback, so same-instance and
// cross-instance delivery share one code path and one wire format.
type Relay struct {
	bus    bus.Bus
	roster Roster
	sender Sender

	// subscribed records whether the bus subscription is live. Without it a
	// publish can succeed against a recovered bus while this instance still
	// has no subscription, and local room members would never see the
	// sender's own messages.
	subscribed atomic.Bool
}

func New(b bus.Bus, roster Roster, sender Sender) *Relay {
	return &Relay{bus: b, roster: roster, sender: sender}
}

// Start subscribes the relay to the bus channel. Delivery runs until the
// context is cancelled. On failure the relay stays in degraded
// single-instance mode: Publish delivers to local members directly.
func (r *Relay) Start(ctx context.Context) error {
	if err := r.bus.Subscribe(ctx, r.handlePayload); err != nil {
		return err
	}
	r.subscribed.Store(true)
	return nil
}

// Publish serializes the message and hands it to the bus. When the bus
// publish fails, or no subscription is live to echo the message back, the
// message is delivered to local room members directly so a bus outage
// degrades to single-instance chat rather than breaking it; remote
// instances miss the message and nothing is retried.
func (r *Relay) Publish(ctx context.Context, msg models.ChatMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		logger.Error("Error marshaling chat message: %v", err)
		return
	}
	if err := r.bus.Publish(ctx, payload); err != nil {
		logger.Error("Bus publish failed, delivering locally only: %v", err)
		r.deliverLocal(msg.RoomID, payload)
		return
	}
	if !r.subscribed.Load() {
		r.deliverLocal(msg.RoomID, payload)
	}
}

// handlePayload runs for every message on the channel, whichever instance
// published it. Corrupt payloads are dropped; the subscription continues.
func (r *Relay) handlePayload(payload []byte) {
	var msg models.ChatMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		logger.Warn("Dropping undecodable bus payload: %v", err)
		return
	}
	if msg.RoomID == "" {
		logger.Warn("Dropping bus payload without room key")
		return
	}
	r.deliverLocal(msg.RoomID, payload)
}

func (r *Relay) deliverLocal(roomID string, payload []byte) {
	event, err := models.NewEnvelope(models.EventChat, json.RawMessage(payload))
	if err != nil {
		logger.Error("Error enveloping chat message: %v", err)
		return
	}
	for _, connID := range r.roster.Members(roomID) {
		r.sender.Send(connID, event)
	}
}
