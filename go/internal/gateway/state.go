package gateway

import (
	"time"

	"github.com/mcdev12/guessmoji/go/internal/game"
	"github.com/mcdev12/guessmoji/go/internal/models"
	"github.com/mcdev12/guessmoji/go/internal/turnclock"
)

// RoomState is a room as one particular player is allowed to see it.
type RoomState struct {
	ID                  string            `json:"id"`
	HostID              string            `json:"host_id"`
	Players             map[string]string `json:"players"`
	PlayerStatus        map[string]bool   `json:"player_status"`
	IsActive            bool              `json:"is_active"`
	MaxPlayers          int               `json:"max_players"`
	GameStarted         bool              `json:"game_started"`
	CurrentTurnPlayerID string            `json:"current_turn_player_id"`
	CreatedAt           int64             `json:"created_at"`
	Game                *GameState        `json:"game,omitempty"`
	ServerTime          int64             `json:"server_time"`
}

// GameState is a session with the viewer's own emoji withheld while the
// game is running.
type GameState struct {
	Phase             models.Phase      `json:"phase"`
	PlayersOrder      []string          `json:"players_order"`
	VisibleEmojis     map[string]string `json:"visible_emojis"`
	CurrentTurnIndex  int               `json:"current_turn_index"`
	CurrentPlayerID   string            `json:"current_player_id"`
	TurnDeadline      int64             `json:"turn_deadline"`
	TimeRemainingSec  int               `json:"time_remaining_sec"`
	Guesses           map[string]string `json:"guesses"`
	Round             int               `json:"round"`
	EliminatedPlayers map[string]bool   `json:"eliminated_players"`
	IsFinalRound      bool              `json:"is_final_round"`
	WinnerID          string            `json:"winner_id,omitempty"`
	GameEnded         bool              `json:"game_ended"`
}

// NewRoomState builds viewer's view of room at now.
func NewRoomState(room *models.Room, viewer string, now time.Time) RoomState {
	state := RoomState{
		ID:                  room.ID,
		HostID:              room.HostID,
		Players:             room.Players,
		PlayerStatus:        room.PlayerStatus,
		IsActive:            room.IsActive,
		MaxPlayers:          room.MaxPlayers,
		GameStarted:         room.GameStarted,
		CurrentTurnPlayerID: room.CurrentTurnPlayerID,
		CreatedAt:           room.CreatedAt,
		ServerTime:          now.UnixMilli(),
	}
	if room.Game != nil {
		g := newGameState(room.Game, viewer, now)
		state.Game = &g
	}
	return state
}

func newGameState(s *models.GameSession, viewer string, now time.Time) GameState {
	visible := s.AssignedEmojis
	if !s.GameEnded {
		visible = s.VisibleEmojis(viewer)
	}
	g := GameState{
		Phase:             s.Phase(),
		PlayersOrder:      s.PlayersOrder,
		VisibleEmojis:     visible,
		CurrentTurnIndex:  s.CurrentTurnIndex,
		CurrentPlayerID:   s.CurrentPlayerID(),
		TurnDeadline:      s.TurnDeadline,
		Guesses:           s.Guesses,
		Round:             s.Round,
		EliminatedPlayers: s.EliminatedPlayers,
		IsFinalRound:      s.IsFinalRound,
		WinnerID:          s.WinnerID,
		GameEnded:         s.GameEnded,
	}
	if s.IsActive() {
		g.TimeRemainingSec = turnclock.SecondsRemaining(s.TurnDeadline, now)
	}
	return g
}

// TransitionResponse reports what a game action did.
type TransitionResponse struct {
	Outcome      game.Outcome `json:"outcome"`
	PlayerID     string       `json:"player_id,omitempty"`
	Guess        string       `json:"guess,omitempty"`
	Eliminated   bool         `json:"eliminated"`
	RoundStarted bool         `json:"round_started"`
	FinalRound   bool         `json:"final_round"`
	Ended        bool         `json:"ended"`
	WinnerID     string       `json:"winner_id,omitempty"`
	Draw         bool         `json:"draw"`
	Game         *GameState   `json:"game,omitempty"`
}

func newTransitionResponse(t game.Transition, viewer string, now time.Time) TransitionResponse {
	resp := TransitionResponse{
		Outcome:      t.Outcome,
		PlayerID:     t.PlayerID,
		Guess:        t.Guess,
		Eliminated:   t.Eliminated,
		RoundStarted: t.RoundStarted,
		FinalRound:   t.FinalRound,
		Ended:        t.Ended,
		WinnerID:     t.WinnerID,
		Draw:         t.Draw(),
	}
	if t.Session != nil {
		g := newGameState(t.Session, viewer, now)
		resp.Game = &g
	}
	return resp
}
