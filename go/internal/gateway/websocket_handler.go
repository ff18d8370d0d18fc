package gateway

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/guessmoji/go/internal/models"
	"github.com/mcdev12/guessmoji/go/internal/rooms"
)

// WebSocketHandler handles websocket upgrade requests for room connections
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	tokens            *TokenManager
	rooms             *rooms.Directory
}

// NewWebSocketHandler creates a new websocket handler
func NewWebSocketHandler(cm *ConnectionManager, tokens *TokenManager, directory *rooms.Directory) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
		tokens:            tokens,
		rooms:             directory,
	}
}

// HandleRoomConnection attaches a room member to the room's live feed.
func (h *WebSocketHandler) HandleRoomConnection(w http.ResponseWriter, r *http.Request) {
	player, _ := Identity(r.Context())
	code := r.PathValue("code")

	room, err := h.rooms.GetRoom(r.Context(), code)
	if err != nil {
		writeError(w, err)
		return
	}
	if !room.HasPlayer(player.PlayerID) {
		writeError(w, models.ErrNotMember)
		return
	}

	// the upgrader has already answered the request when this fails
	if err := h.connectionManager.UpgradeConnection(w, r, player, code, room.IsHost(player.PlayerID)); err != nil {
		log.Error().
			Err(err).
			Str("room_code", code).
			Str("player_id", player.PlayerID).
			Msg("failed to upgrade websocket connection")
	}
}

// ConnectionStats summarizes open connections.
type ConnectionStats struct {
	TotalConnections int            `json:"total_connections"`
	ActiveRooms      int            `json:"active_rooms"`
	RoomConnections  map[string]int `json:"room_connections"`
}

// Stats returns statistics about active connections
func (cm *ConnectionManager) Stats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	stats := ConnectionStats{
		ActiveRooms:     len(cm.hubs),
		RoomConnections: make(map[string]int, len(cm.hubs)),
	}
	for code, hub := range cm.hubs {
		stats.TotalConnections += len(hub.conns)
		stats.RoomConnections[code] = len(hub.conns)
	}
	return stats
}

// HandleConnectionStats returns statistics about active connections
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.connectionManager.Stats())
}

// RegisterRoutes registers websocket routes with an HTTP mux
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("GET /ws/rooms/{code}", h.tokens.Authenticate(http.HandlerFunc(h.HandleRoomConnection)))
	mux.HandleFunc("GET /ws/stats", h.HandleConnectionStats)
}
