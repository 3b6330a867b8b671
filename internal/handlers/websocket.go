package handlers

import (
	"net/http"

	"github.com/gorilla/websocket"

	"chat-relay/internal/registry"
	"chat-relay/internal/session"
	"chat-relay/pkg/logger"
)

type WebSocketHandlers struct {
	registry  *registry.Registry
	directory *session.Directory
	publisher session.Publisher
	announcer session.Announcer
	upgrader  websocket.Upgrader
}

func NewWebSocketHandlers(reg *registry.Registry, dir *session.Directory, pub session.Publisher, ann session.Announcer) *WebSocketHandlers {
	return &WebSocketHandlers{
		registry:  reg,
		directory: dir,
		publisher: pub,
		announcer: ann,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true }, // Configure for production
		},
	}
}

// HandleWebSocket upgrades the connection and starts its session. Room
// membership is established later by a join-room event, not at upgrade time.
func (h *WebSocketHandlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("Upgrade error: %v", err)
		return
	}

	client := session.NewClient(conn, h.registry, h.directory, h.publisher, h.announcer)
	client.Start()
}
