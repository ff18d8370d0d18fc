package models

// DrawWinnerID is stored in GameSession.WinnerID when a session ends without a winner.
const DrawWinnerID = "draw"

// Phase is the derived lifecycle state of a GameSession.
type Phase string

const (
	PhaseNotStarted Phase = "NOT_STARTED"
	PhaseInProgress Phase = "IN_PROGRESS"
	PhaseFinalRound Phase = "FINAL_ROUND"
	PhaseEnded      Phase = "ENDED"
)

// GameSession is the live game state of a started room.
type GameSession struct {
	Started           bool              `json:"started"`
	PlayersOrder      []string          `json:"players_order"`
	AssignedEmojis    map[string]string `json:"assigned_emojis"`
	CurrentTurnIndex  int               `json:"current_turn_index"`
	TurnDeadline      int64             `json:"turn_deadline"` // unix millis
	Guesses           map[string]string `json:"guesses"`
	Round             int               `json:"round"`
	EliminatedPlayers map[string]bool   `json:"eliminated_players"`
	IsFinalRound      bool              `json:"is_final_round"`
	WinnerID          string            `json:"winner_id,omitempty"`
	GameEnded         bool              `json:"game_ended"`
}

// Turn identifies one turn of a session. Two transitions computed against the
// same Turn can never both be applied.
type Turn struct {
	Round    int   `json:"round"`
	Index    int   `json:"index"`
	Deadline int64 `json:"deadline"`
}

// Phase derives the lifecycle state from the stored flags.
func (s *GameSession) Phase() Phase {
	switch {
	case s == nil || !s.Started:
		return PhaseNotStarted
	case s.GameEnded:
		return PhaseEnded
	case s.IsFinalRound:
		return PhaseFinalRound
	default:
		return PhaseInProgress
	}
}

// IsActive reports whether turns are still being played.
func (s *GameSession) IsActive() bool {
	return s != nil && s.Started && !s.GameEnded
}

// Turn returns the identity of the current turn.
func (s *GameSession) Turn() Turn {
	return Turn{Round: s.Round, Index: s.CurrentTurnIndex, Deadline: s.TurnDeadline}
}

// CurrentPlayerID returns the player whose turn it is, or "" if the index is out of range.
func (s *GameSession) CurrentPlayerID() string {
	if s.CurrentTurnIndex < 0 || s.CurrentTurnIndex >= len(s.PlayersOrder) {
		return ""
	}
	return s.PlayersOrder[s.CurrentTurnIndex]
}

// IsEliminated reports whether id has been removed from play.
func (s *GameSession) IsEliminated(id string) bool {
	return s.EliminatedPlayers[id]
}

// HasPlayer reports whether id is part of the turn order.
func (s *GameSession) HasPlayer(id string) bool {
	for _, p := range s.PlayersOrder {
		if p == id {
			return true
		}
	}
	return false
}

// ActivePlayers returns the non-eliminated players in turn order.
func (s *GameSession) ActivePlayers() []string {
	active := make([]string, 0, len(s.PlayersOrder))
	for _, id := range s.PlayersOrder {
		if !s.EliminatedPlayers[id] {
			active = append(active, id)
		}
	}
	return active
}

// IsDraw reports whether the session ended without a winner.
func (s *GameSession) IsDraw() bool {
	return s.GameEnded && s.WinnerID == DrawWinnerID
}

// VisibleEmojis returns the assignments viewer is allowed to see: everyone's but their own.
func (s *GameSession) VisibleEmojis(viewer string) map[string]string {
	visible := make(map[string]string, len(s.AssignedEmojis))
	for id, symbol := range s.AssignedEmojis {
		if id != viewer {
			visible[id] = symbol
		}
	}
	return visible
}
