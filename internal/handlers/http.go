package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"chat-relay/internal/registry"
	"chat-relay/internal/session"
)

// HTTPHandlers serves the small read-only surface next to the websocket
// endpoint: room presence snapshots and a health probe.
type HTTPHandlers struct {
	registry  *registry.Registry
	directory *session.Directory
}

func NewHTTPHandlers(reg *registry.Registry, dir *session.Directory) *HTTPHandlers {
	return &HTTPHandlers{registry: reg, directory: dir}
}

// RoomPresence returns the current snapshot for /rooms/{room}/presence.
// An unknown room is a valid empty room, not a 404.
func (h *HTTPHandlers) RoomPresence(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	parts := strings.Split(r.URL.Path, "/")
	if len(parts) != 4 || parts[2] == "" || parts[3] != "presence" {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	snap := h.registry.Snapshot(parts[2])
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snap)
}

// Health reports liveness plus a couple of gauges useful when eyeballing an
// instance.
func (h *HTTPHandlers) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":      "ok",
		"connections": h.directory.Count(),
		"rooms":       h.registry.RoomCount(),
	})
}
