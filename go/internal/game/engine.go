// Package game is the session state machine. Every transition is computed by
// a pure function over models.GameSession and committed as one transaction
// on the room document, so a turn is advanced at most once no matter how
// many clients race to move it.
package game

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/guessmoji/go/internal/events"
	"github.com/mcdev12/guessmoji/go/internal/models"
	"github.com/mcdev12/guessmoji/go/internal/rooms"
	"github.com/mcdev12/guessmoji/go/internal/store"
)

// Narrator appends system messages to a room's chat log.
type Narrator interface {
	SendSystem(ctx context.Context, code, text string) (*models.ChatMessage, error)
}

// Engine applies session transitions against the store.
type Engine struct {
	store     store.Store
	narrator  Narrator
	publisher events.Publisher
	clock     clockwork.Clock
	config    Config

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewEngine creates an Engine. A nil rng gets a randomly seeded source.
func NewEngine(st store.Store, narrator Narrator, publisher events.Publisher, clock clockwork.Clock, cfg Config, rng *rand.Rand) *Engine {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if cfg.TurnDuration <= 0 {
		cfg.TurnDuration = DefaultConfig().TurnDuration
	}
	if len(cfg.Palette) == 0 {
		cfg.Palette = DefaultPalette
	}
	return &Engine{
		store:     st,
		narrator:  narrator,
		publisher: publisher,
		clock:     clock,
		config:    cfg,
		rng:       rng,
	}
}

func (e *Engine) deadlineFrom(now time.Time) int64 {
	return now.Add(e.config.TurnDuration).UnixMilli()
}

// StartSession deals a new session for the room's current members and marks
// the room started in the same write. Host only.
func (e *Engine) StartSession(ctx context.Context, code, requesterID string) (Transition, error) {
	var (
		t    Transition
		room models.Room
	)
	if !models.ValidRoomCode(code) {
		return Transition{}, models.ErrRoomNotFound
	}
	_, err := e.store.RunTransaction(ctx, rooms.RoomPath(code), func(cur store.Snapshot) (any, error) {
		room = models.Room{}
		if err := decodeRoom(cur, &room); err != nil {
			return nil, err
		}
		switch {
		case !room.IsHost(requesterID):
			return nil, models.ErrNotHost
		case !room.IsActive:
			return nil, models.ErrRoomInactive
		case room.Game.IsActive():
			return nil, models.ErrGameAlreadyStarted
		}

		now := e.clock.Now()
		e.rngMu.Lock()
		session, err := NewSession(room.PlayerIDs(), e.config.Palette, e.rng, e.deadlineFrom(now))
		e.rngMu.Unlock()
		if err != nil {
			return nil, err
		}

		room.GameStarted = true
		room.Game = session
		room.CurrentTurnPlayerID = session.CurrentPlayerID()
		t = Transition{
			Outcome:      OutcomeStarted,
			Turn:         session.Turn(),
			RoundStarted: true,
			Session:      session,
		}
		return room, nil
	})
	if err != nil {
		return Transition{}, models.Unavailable(fmt.Errorf("failed to start session in room %s: %w", code, err))
	}
	t.RoomCode = code

	log.Info().
		Str("room_code", code).
		Strs("players_order", t.Session.PlayersOrder).
		Int64("turn_deadline", t.Session.TurnDeadline).
		Msg("game session started")
	e.announce(ctx, &room, t)
	return t, nil
}

// SubmitGuess applies playerID's guess. Only the player whose turn it is
// may guess; a wrong guess eliminates them.
func (e *Engine) SubmitGuess(ctx context.Context, code, playerID, symbol string) (Transition, error) {
	return e.transition(ctx, code, func(s *models.GameSession, now time.Time) (Transition, error) {
		return applyGuess(s, playerID, symbol, e.deadlineFrom(now))
	})
}

// HandleTimeout eliminates the current player of turn once its deadline has
// passed. It fails with ErrStaleTurn when the session has already moved past
// turn, which is how a timeout that lost a race against a guess ends.
func (e *Engine) HandleTimeout(ctx context.Context, code string, turn models.Turn) (Transition, error) {
	return e.transition(ctx, code, func(s *models.GameSession, now time.Time) (Transition, error) {
		return applyTimeout(s, turn, now.UnixMilli(), e.deadlineFrom(now))
	})
}

// EndSession ends the session with winnerID, or as a draw when winnerID is
// empty. Host only.
func (e *Engine) EndSession(ctx context.Context, code, requesterID, winnerID string) (Transition, error) {
	var room models.Room
	t, err := e.update(ctx, code, &room, func(s *models.GameSession, _ time.Time) (Transition, error) {
		if !room.IsHost(requesterID) {
			return Transition{}, models.ErrNotHost
		}
		return applyEnd(s, winnerID)
	})
	if err != nil {
		return Transition{}, err
	}
	e.announce(ctx, &room, t)
	return t, nil
}

// Session reads the room's current session.
func (e *Engine) Session(ctx context.Context, code string) (*models.GameSession, error) {
	if !models.ValidRoomCode(code) {
		return nil, models.ErrRoomNotFound
	}
	snap, err := e.store.Get(ctx, rooms.RoomPath(code))
	if err != nil {
		return nil, models.Unavailable(fmt.Errorf("failed to get session for room %s: %w", code, err))
	}
	var room models.Room
	if err := decodeRoom(snap, &room); err != nil {
		return nil, models.Unavailable(err)
	}
	if room.Game == nil || !room.Game.Started {
		return nil, models.ErrSessionNotFound
	}
	return room.Game, nil
}

type applyFunc func(s *models.GameSession, now time.Time) (Transition, error)

func (e *Engine) transition(ctx context.Context, code string, apply applyFunc) (Transition, error) {
	var room models.Room
	t, err := e.update(ctx, code, &room, apply)
	if err != nil {
		return Transition{}, err
	}
	e.announce(ctx, &room, t)
	return t, nil
}

// update runs apply inside a transaction on the room document, leaving the
// committed room in room.
func (e *Engine) update(ctx context.Context, code string, room *models.Room, apply applyFunc) (Transition, error) {
	if !models.ValidRoomCode(code) {
		return Transition{}, models.ErrRoomNotFound
	}
	var t Transition
	_, err := e.store.RunTransaction(ctx, rooms.RoomPath(code), func(cur store.Snapshot) (any, error) {
		*room = models.Room{}
		if err := decodeRoom(cur, room); err != nil {
			return nil, err
		}
		var err error
		t, err = apply(room.Game, e.clock.Now())
		if err != nil {
			return nil, err
		}
		room.CurrentTurnPlayerID = room.Game.CurrentPlayerID()
		return room, nil
	})
	if err != nil {
		return Transition{}, models.Unavailable(fmt.Errorf("failed to update session in room %s: %w", code, err))
	}
	t.RoomCode = code

	log.Info().
		Str("room_code", code).
		Str("outcome", string(t.Outcome)).
		Str("player_id", t.PlayerID).
		Int("round", t.Turn.Round).
		Int("turn_index", t.Turn.Index).
		Bool("ended", t.Ended).
		Msg("session transition applied")
	return t, nil
}

func decodeRoom(snap store.Snapshot, room *models.Room) error {
	if !snap.Exists() {
		return models.ErrRoomNotFound
	}
	return snap.DataTo(room)
}
