package models

// DefaultMaxPlayers is the capacity given to rooms created without an explicit bound.
const DefaultMaxPlayers = 4

// MaxRoomCodeDigits bounds the length of a room code.
const MaxRoomCodeDigits = 9

// ValidRoomCode reports whether code is 1 to MaxRoomCodeDigits ASCII digits.
// Codes become store path segments, so nothing else may name a room.
func ValidRoomCode(code string) bool {
	if code == "" || len(code) > MaxRoomCodeDigits {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

// Room is a joinable lobby identified by a short numeric code.
type Room struct {
	ID                  string            `json:"id"`
	HostID              string            `json:"host_id"`
	Players             map[string]string `json:"players"`
	PlayerStatus        map[string]bool   `json:"player_status"`
	IsActive            bool              `json:"is_active"`
	MaxPlayers          int               `json:"max_players"`
	GameStarted         bool              `json:"game_started"`
	CurrentTurnPlayerID string            `json:"current_turn_player_id"`
	CreatedAt           int64             `json:"created_at"`
	Game                *GameSession      `json:"game,omitempty"`
}

// HasPlayer reports whether id is a member of the room.
func (r *Room) HasPlayer(id string) bool {
	_, ok := r.Players[id]
	return ok
}

// IsFull reports whether the room has reached capacity.
func (r *Room) IsFull() bool {
	return len(r.Players) >= r.MaxPlayers
}

// IsHost reports whether id holds host authority.
func (r *Room) IsHost(id string) bool {
	return id != "" && r.HostID == id
}

// PlayerName returns the display name for id, falling back to the id itself.
func (r *Room) PlayerName(id string) string {
	if name, ok := r.Players[id]; ok && name != "" {
		return name
	}
	return id
}

// AddPlayer adds a member with a fresh not-ready status.
func (r *Room) AddPlayer(id, name string) {
	if r.Players == nil {
		r.Players = make(map[string]string)
	}
	if r.PlayerStatus == nil {
		r.PlayerStatus = make(map[string]bool)
	}
	r.Players[id] = name
	r.PlayerStatus[id] = false
}

// RemovePlayer drops a member and its status entry.
func (r *Room) RemovePlayer(id string) {
	delete(r.Players, id)
	delete(r.PlayerStatus, id)
}

// PlayerIDs returns the member ids in no particular order.
func (r *Room) PlayerIDs() []string {
	ids := make([]string, 0, len(r.Players))
	for id := range r.Players {
		ids = append(ids, id)
	}
	return ids
}
