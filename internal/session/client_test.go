package session

import (
	"context"
	"encoding/json"
	"reflect"
	"testing"
	"time"

	"chat-relay/internal/bus"
	"chat-relay/internal/models"
	"chat-relay/internal/presence"
	"chat-relay/internal/registry"
	"chat-relay/internal/relay"
)

// memoryBus stands in for Redis: Publish hands the payload straight to the
// subscribed handler.
type memoryBus struct {
	handler bus.Handler
}

func (m *memoryBus) Publish(ctx context.Context, payload []byte) error {
	if m.handler != nil {
		m.handler(payload)
	}
	return nil
}

func (m *memoryBus) Subscribe(ctx context.Context, handler bus.Handler) error {
	m.handler = handler
	return nil
}

func (m *memoryBus) Close() error { return nil }

type fakePublisher struct {
	published []models.ChatMessage
}

func (f *fakePublisher) Publish(ctx context.Context, msg models.ChatMessage) {
	f.published = append(f.published, msg)
}

// harness wires a single-instance relay stack without real connections.
type harness struct {
	registry  *registry.Registry
	directory *Directory
	announcer Announcer
	publisher Publisher
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	reg := registry.New()
	dir := NewDirectory()
	mbus := &memoryBus{}
	fanout := relay.New(mbus, reg, dir)
	if err := fanout.Start(context.Background()); err != nil {
		t.Fatalf("relay start: %v", err)
	}
	return &harness{
		registry:  reg,
		directory: dir,
		announcer: presence.New(reg, dir),
		publisher: fanout,
	}
}

func (h *harness) newClient() *Client {
	c := NewClient(nil, h.registry, h.directory, h.publisher, h.announcer)
	h.directory.add(c)
	return c
}

func event(t *testing.T, typ models.EventType, data interface{}) []byte {
	t.Helper()
	raw, err := models.NewEnvelope(typ, data)
	if err != nil {
		t.Fatalf("failed to build %s event: %v", typ, err)
	}
	return raw
}

func drain(t *testing.T, c *Client) []models.Envelope {
	t.Helper()
	var out []models.Envelope
	for {
		select {
		case payload := <-c.send:
			var env models.Envelope
			if err := json.Unmarshal(payload, &env); err != nil {
				t.Fatalf("undecodable outbound frame: %v", err)
			}
			out = append(out, env)
		default:
			return out
		}
	}
}

func joinRoom(t *testing.T, c *Client, roomID, username string) {
	t.Helper()
	c.handleEvent(event(t, models.EventJoinRoom, models.JoinRoomPayload{RoomID: roomID, Username: username}))
}

func TestJoinAcknowledgesAndNotifies(t *testing.T) {
	h := newHarness(t)
	c1 := h.newClient()

	joinRoom(t, c1, "ABCD", "alice")

	events := drain(t, c1)
	if len(events) != 1 || events[0].Event != models.EventRoomJoined {
		t.Fatalf("first joiner events = %v, want single room-joined", events)
	}
	var ack models.RoomJoinedPayload
	if err := json.Unmarshal(events[0].Data, &ack); err != nil {
		t.Fatalf("failed to decode ack: %v", err)
	}
	if ack.RoomID != "ABCD" || ack.UserCount != 1 || !reflect.DeepEqual(ack.UserList, []string{"alice"}) {
		t.Errorf("ack = %+v, want ABCD/1/[alice]", ack)
	}

	c2 := h.newClient()
	joinRoom(t, c2, "ABCD", "bob")

	c1Events := drain(t, c1)
	if len(c1Events) != 1 || c1Events[0].Event != models.EventUserJoined {
		t.Fatalf("existing member events = %v, want single user-joined", c1Events)
	}
	var joined models.PresencePayload
	if err := json.Unmarshal(c1Events[0].Data, &joined); err != nil {
		t.Fatalf("failed to decode user-joined: %v", err)
	}
	if joined.Username != "bob" || joined.UserCount != 2 {
		t.Errorf("user-joined = %+v, want bob/2", joined)
	}
	if !reflect.DeepEqual(joined.UserList, []string{"alice", "bob"}) {
		t.Errorf("user-joined list = %v, want [alice bob]", joined.UserList)
	}

	c2Events := drain(t, c2)
	if len(c2Events) != 1 || c2Events[0].Event != models.EventRoomJoined {
		t.Fatalf("second joiner events = %v, want single room-joined", c2Events)
	}
}

func TestSecondJoinIsRejected(t *testing.T) {
	h := newHarness(t)
	c := h.newClient()

	joinRoom(t, c, "ABCD", "alice")
	drain(t, c)

	joinRoom(t, c, "WXYZ", "alice")

	if events := drain(t, c); len(events) != 0 {
		t.Errorf("second join produced events: %v", events)
	}
	if snap := h.registry.Snapshot("WXYZ"); snap.UserCount != 0 {
		t.Errorf("second join created membership in WXYZ: %+v", snap)
	}
	if snap := h.registry.Snapshot("ABCD"); snap.UserCount != 1 {
		t.Errorf("original membership changed: %+v", snap)
	}
}

func TestJoinValidation(t *testing.T) {
	tests := []struct {
		name string
		raw  func(t *testing.T) []byte
	}{
		{
			name: "empty room",
			raw: func(t *testing.T) []byte {
				return event(t, models.EventJoinRoom, models.JoinRoomPayload{Username: "alice"})
			},
		},
		{
			name: "empty username",
			raw: func(t *testing.T) []byte {
				return event(t, models.EventJoinRoom, models.JoinRoomPayload{RoomID: "ABCD"})
			},
		},
		{
			name: "garbage frame",
			raw:  func(t *testing.T) []byte { return []byte("not json") },
		},
		{
			name: "unknown event",
			raw: func(t *testing.T) []byte {
				return event(t, "dance", map[string]string{"x": "y"})
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			c := h.newClient()

			c.handleEvent(tt.raw(t))

			if c.state != stateConnected {
				t.Errorf("state = %v, want stateConnected", c.state)
			}
			if h.registry.RoomCount() != 0 {
				t.Errorf("registry mutated by dropped frame")
			}
			if events := drain(t, c); len(events) != 0 {
				t.Errorf("dropped frame produced events: %v", events)
			}
		})
	}
}

func TestMessageDeliveredToWholeRoomViaBus(t *testing.T) {
	h := newHarness(t)
	c1 := h.newClient()
	c2 := h.newClient()
	joinRoom(t, c1, "ABCD", "alice")
	joinRoom(t, c2, "ABCD", "bob")
	drain(t, c1)
	drain(t, c2)

	c1.handleEvent(event(t, models.EventMessage, models.SendMessagePayload{Message: "hi"}))

	for name, c := range map[string]*Client{"sender": c1, "peer": c2} {
		events := drain(t, c)
		if len(events) != 1 || events[0].Event != models.EventChat {
			t.Fatalf("%s events = %v, want single message", name, events)
		}
		var msg models.ChatMessage
		if err := json.Unmarshal(events[0].Data, &msg); err != nil {
			t.Fatalf("%s: failed to decode chat message: %v", name, err)
		}
		if msg.Name != "alice" || msg.Message != "hi" || msg.RoomID != "ABCD" {
			t.Errorf("%s got %+v, want alice/hi/ABCD", name, msg)
		}
		if _, err := time.Parse(time.RFC3339, msg.Timestamp); err != nil {
			t.Errorf("%s: timestamp %q not RFC3339: %v", name, msg.Timestamp, err)
		}
	}
}

func TestMessageUsesSessionStateNotPayload(t *testing.T) {
	h := newHarness(t)
	pub := &fakePublisher{}
	c := NewClient(nil, h.registry, h.directory, pub, h.announcer)
	h.directory.add(c)
	joinRoom(t, c, "ABCD", "alice")

	c.handleEvent(event(t, models.EventMessage, models.SendMessagePayload{
		Message:  "hi",
		RoomID:   "WXYZ",
		Username: "mallory",
	}))

	if len(pub.published) != 1 {
		t.Fatalf("published %d messages, want 1", len(pub.published))
	}
	msg := pub.published[0]
	if msg.Name != "alice" || msg.RoomID != "ABCD" {
		t.Errorf("published %+v, want author alice room ABCD", msg)
	}
}

func TestMessageBeforeJoinIsDropped(t *testing.T) {
	h := newHarness(t)
	pub := &fakePublisher{}
	c := NewClient(nil, h.registry, h.directory, pub, h.announcer)
	h.directory.add(c)

	c.handleEvent(event(t, models.EventMessage, models.SendMessagePayload{Message: "hi"}))

	if len(pub.published) != 0 {
		t.Errorf("published %d messages before join, want 0", len(pub.published))
	}
}

func TestDisconnectNotifiesRemainingMembers(t *testing.T) {
	h := newHarness(t)
	c1 := h.newClient()
	c2 := h.newClient()
	joinRoom(t, c1, "ABCD", "alice")
	joinRoom(t, c2, "ABCD", "bob")
	drain(t, c1)
	drain(t, c2)

	c2.handleDisconnect()

	events := drain(t, c1)
	if len(events) != 1 || events[0].Event != models.EventUserLeft {
		t.Fatalf("events after disconnect = %v, want single user-left", events)
	}
	var left models.PresencePayload
	if err := json.Unmarshal(events[0].Data, &left); err != nil {
		t.Fatalf("failed to decode user-left: %v", err)
	}
	if left.Username != "bob" || left.UserCount != 1 || !reflect.DeepEqual(left.UserList, []string{"alice"}) {
		t.Errorf("user-left = %+v, want bob/1/[alice]", left)
	}

	if h.registry.Snapshot("ABCD").UserCount != 1 {
		t.Error("room should survive with one member")
	}
	if h.directory.Count() != 1 {
		t.Errorf("directory.Count() = %d, want 1", h.directory.Count())
	}
}

func TestLastDisconnectRemovesRoom(t *testing.T) {
	h := newHarness(t)
	c := h.newClient()
	joinRoom(t, c, "ABCD", "alice")

	c.handleDisconnect()

	if h.registry.RoomCount() != 0 {
		t.Errorf("RoomCount() = %d, want 0", h.registry.RoomCount())
	}
	snap := h.registry.Snapshot("ABCD")
	if snap.UserCount != 0 || len(snap.UserList) != 0 {
		t.Errorf("Snapshot() = %+v, want empty", snap)
	}

	// A second disconnect must be a no-op.
	c.handleDisconnect()
	if c.state != stateClosed {
		t.Errorf("state = %v, want stateClosed", c.state)
	}
}

func TestDisconnectWithoutMembership(t *testing.T) {
	h := newHarness(t)
	c := h.newClient()

	c.handleDisconnect()

	if c.state != stateClosed {
		t.Errorf("state = %v, want stateClosed", c.state)
	}
	if h.directory.Count() != 0 {
		t.Errorf("directory.Count() = %d, want 0", h.directory.Count())
	}
}

func TestEventsAfterCloseAreIgnored(t *testing.T) {
	h := newHarness(t)
	c := h.newClient()
	joinRoom(t, c, "ABCD", "alice")
	drain(t, c)
	c.handleDisconnect()

	joinRoom(t, c, "ABCD", "alice")

	if h.registry.RoomCount() != 0 {
		t.Error("closed session mutated the registry")
	}
}
