// Package rooms is the room directory: code issuance, creation and the
// membership protocol. Every membership change is a single store
// transaction on the room document.
package rooms

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/guessmoji/go/internal/events"
	"github.com/mcdev12/guessmoji/go/internal/models"
	"github.com/mcdev12/guessmoji/go/internal/store"
)

// RoomPath is the document holding a room and its game session.
func RoomPath(code string) string {
	return store.Join("rooms", code)
}

// checkCode rejects codes that could not have been issued under cfg.
func (d *Directory) checkCode(code string) error {
	if !models.ValidRoomCode(code) || len(code) != d.config.CodeDigits {
		return fmt.Errorf("%w: want %d digits, got %q", models.ErrInvalidCode, d.config.CodeDigits, code)
	}
	return nil
}

// ChatClearer drops a room's chat log.
type ChatClearer interface {
	Clear(ctx context.Context, code string) error
}

// Directory handles room business logic
type Directory struct {
	store     store.Store
	chat      ChatClearer
	publisher events.Publisher
	clock     clockwork.Clock
	config    Config

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewDirectory creates a Directory. A nil rng gets a randomly seeded source.
func NewDirectory(st store.Store, chat ChatClearer, publisher events.Publisher, clock clockwork.Clock, cfg Config, rng *rand.Rand) *Directory {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Directory{
		store:     st,
		chat:      chat,
		publisher: publisher,
		clock:     clock,
		config:    cfg,
		rng:       rng,
	}
}

func (d *Directory) intN(n int) int {
	d.rngMu.Lock()
	defer d.rngMu.Unlock()
	return d.rng.IntN(n)
}

// codeRange returns the smallest code and how many codes exist.
func (d *Directory) codeRange() (int, int) {
	low := 1
	for i := 1; i < d.config.CodeDigits; i++ {
		low *= 10
	}
	return low, 9 * low
}

// GenerateUniqueCode draws codes until it finds one not in use.
func (d *Directory) GenerateUniqueCode(ctx context.Context) (string, error) {
	low, span := d.codeRange()
	for attempt := 0; attempt < d.config.CodeAttempts; attempt++ {
		code := strconv.Itoa(low + d.intN(span))
		snap, err := d.store.Get(ctx, RoomPath(code))
		if err != nil {
			return "", models.Unavailable(fmt.Errorf("failed to check room code: %w", err))
		}
		if !snap.Exists() {
			return code, nil
		}
	}
	return "", fmt.Errorf("%w: no free code after %d attempts", models.ErrCodeSpaceExhausted, d.config.CodeAttempts)
}

// CreateRoom creates a room under code with the host as its only member.
// It fails with ErrRoomExists if the code is taken.
func (d *Directory) CreateRoom(ctx context.Context, code, hostID, hostName string) (*models.Room, error) {
	if hostID == "" {
		return nil, fmt.Errorf("%w: host id is required", models.ErrInvalidState)
	}
	if err := d.checkCode(code); err != nil {
		return nil, err
	}

	var room models.Room
	_, err := d.store.RunTransaction(ctx, RoomPath(code), func(cur store.Snapshot) (any, error) {
		if cur.Exists() {
			return nil, models.ErrRoomExists
		}
		room = models.Room{
			ID:                  code,
			HostID:              hostID,
			IsActive:            true,
			MaxPlayers:          d.config.MaxPlayers,
			CurrentTurnPlayerID: hostID,
			CreatedAt:           d.clock.Now().UnixMilli(),
		}
		room.AddPlayer(hostID, hostName)
		return room, nil
	})
	if err != nil {
		return nil, models.Unavailable(fmt.Errorf("failed to create room %s: %w", code, err))
	}

	// a previous room under this code may have left its log behind
	d.clearChat(ctx, code)

	log.Info().Str("room_code", code).Str("host_id", hostID).Msg("room created")
	events.Emit(ctx, d.publisher, code, events.EventTypeRoomCreated, events.RoomCreatedPayload{
		HostID:     hostID,
		HostName:   hostName,
		MaxPlayers: room.MaxPlayers,
	}, d.clock.Now())

	return &room, nil
}

// CreateRoomWithCode issues a fresh code and creates the room under it,
// drawing again if another host claims the code first.
func (d *Directory) CreateRoomWithCode(ctx context.Context, hostID, hostName string) (*models.Room, error) {
	for attempt := 0; attempt < d.config.CodeAttempts; attempt++ {
		code, err := d.GenerateUniqueCode(ctx)
		if err != nil {
			return nil, err
		}
		room, err := d.CreateRoom(ctx, code, hostID, hostName)
		if errors.Is(err, models.ErrRoomExists) {
			continue
		}
		return room, err
	}
	return nil, fmt.Errorf("%w: lost every code race", models.ErrCodeSpaceExhausted)
}

// GetRoom reads a room.
func (d *Directory) GetRoom(ctx context.Context, code string) (*models.Room, error) {
	if !models.ValidRoomCode(code) {
		return nil, models.ErrRoomNotFound
	}
	snap, err := d.store.Get(ctx, RoomPath(code))
	if err != nil {
		return nil, models.Unavailable(fmt.Errorf("failed to get room %s: %w", code, err))
	}
	room, err := store.DecodeOptional[models.Room](snap)
	if err != nil {
		return nil, models.Unavailable(err)
	}
	if room == nil {
		return nil, models.ErrRoomNotFound
	}
	return room, nil
}

// JoinRoom adds userID to the room. Expected refusals are reported through
// the result; the error is non-nil only with JoinResultError.
func (d *Directory) JoinRoom(ctx context.Context, code, userID, userName string) (JoinResult, error) {
	if userID == "" {
		return JoinResultError, fmt.Errorf("%w: user id is required", models.ErrInvalidState)
	}
	if !models.ValidRoomCode(code) {
		return JoinResultRoomNotFound, nil
	}

	var (
		result JoinResult
		count  int
	)
	_, err := d.store.RunTransaction(ctx, RoomPath(code), func(cur store.Snapshot) (any, error) {
		if !cur.Exists() {
			result = JoinResultRoomNotFound
			return nil, store.ErrSkip
		}
		var room models.Room
		if err := cur.DataTo(&room); err != nil {
			return nil, err
		}

		switch {
		case !room.IsActive:
			result = JoinResultRoomInactive
			return nil, store.ErrSkip
		case room.IsFull():
			result = JoinResultRoomFull
			return nil, store.ErrSkip
		case room.HasPlayer(userID):
			result = JoinResultAlreadyJoined
			return nil, store.ErrSkip
		}

		room.AddPlayer(userID, userName)
		result = JoinResultSuccess
		count = len(room.Players)
		return room, nil
	})
	if err != nil {
		return JoinResultError, models.Unavailable(fmt.Errorf("failed to join room %s: %w", code, err))
	}

	log.Info().
		Str("room_code", code).
		Str("user_id", userID).
		Stringer("result", result).
		Msg("join attempt")

	if result == JoinResultSuccess {
		events.Emit(ctx, d.publisher, code, events.EventTypePlayerJoined, events.PlayerJoinedPayload{
			PlayerID:    userID,
			PlayerName:  userName,
			PlayerCount: count,
		}, d.clock.Now())
	}
	return result, nil
}

// LeaveRoom removes userID. The host leaving, or the last member leaving,
// deletes the room. Leaving a room one is not in is a successful no-op.
func (d *Directory) LeaveRoom(ctx context.Context, code, userID string) (LeaveResult, error) {
	if !models.ValidRoomCode(code) {
		return LeaveResultNothingToDo, nil
	}
	var result LeaveResult
	_, err := d.store.RunTransaction(ctx, RoomPath(code), func(cur store.Snapshot) (any, error) {
		if !cur.Exists() {
			result = LeaveResultNothingToDo
			return nil, store.ErrSkip
		}
		var room models.Room
		if err := cur.DataTo(&room); err != nil {
			return nil, err
		}
		if !room.HasPlayer(userID) {
			result = LeaveResultNothingToDo
			return nil, store.ErrSkip
		}
		if room.IsHost(userID) {
			result = LeaveResultRoomDeleted
			return nil, nil
		}

		room.RemovePlayer(userID)
		if len(room.Players) == 0 {
			result = LeaveResultRoomDeleted
			return nil, nil
		}
		result = LeaveResultLeft
		return room, nil
	})
	if err != nil {
		return LeaveResultError, models.Unavailable(fmt.Errorf("failed to leave room %s: %w", code, err))
	}

	log.Info().
		Str("room_code", code).
		Str("user_id", userID).
		Stringer("result", result).
		Msg("leave processed")

	switch result {
	case LeaveResultRoomDeleted:
		d.clearChat(ctx, code)
		events.Emit(ctx, d.publisher, code, events.EventTypePlayerLeft, events.PlayerLeftPayload{
			PlayerID:    userID,
			RoomDeleted: true,
		}, d.clock.Now())
	case LeaveResultLeft:
		events.Emit(ctx, d.publisher, code, events.EventTypePlayerLeft, events.PlayerLeftPayload{
			PlayerID: userID,
		}, d.clock.Now())
	}
	return result, nil
}

// CloseRoom marks the room inactive so it stops accepting joins. Host only.
func (d *Directory) CloseRoom(ctx context.Context, code, requesterID string) error {
	if !models.ValidRoomCode(code) {
		return models.ErrRoomNotFound
	}
	changed := false
	_, err := d.store.RunTransaction(ctx, RoomPath(code), func(cur store.Snapshot) (any, error) {
		room, err := decodeForHost(cur, requesterID)
		if err != nil {
			return nil, err
		}
		if !room.IsActive {
			changed = false
			return nil, store.ErrSkip
		}
		room.IsActive = false
		changed = true
		return room, nil
	})
	if err != nil {
		return models.Unavailable(fmt.Errorf("failed to close room %s: %w", code, err))
	}

	if changed {
		log.Info().Str("room_code", code).Msg("room closed")
		events.Emit(ctx, d.publisher, code, events.EventTypeRoomClosed, events.RoomClosedPayload{
			ClosedBy: requesterID,
		}, d.clock.Now())
	}
	return nil
}

// DeleteRoom removes the room and its chat log. Host only.
func (d *Directory) DeleteRoom(ctx context.Context, code, requesterID string) error {
	if !models.ValidRoomCode(code) {
		return models.ErrRoomNotFound
	}
	_, err := d.store.RunTransaction(ctx, RoomPath(code), func(cur store.Snapshot) (any, error) {
		if _, err := decodeForHost(cur, requesterID); err != nil {
			return nil, err
		}
		return nil, nil
	})
	if err != nil {
		return models.Unavailable(fmt.Errorf("failed to delete room %s: %w", code, err))
	}

	d.clearChat(ctx, code)

	log.Info().Str("room_code", code).Msg("room deleted")
	events.Emit(ctx, d.publisher, code, events.EventTypeRoomDeleted, events.RoomDeletedPayload{
		DeletedBy: requesterID,
	}, d.clock.Now())
	return nil
}

// SetReady records a member's ready flag.
func (d *Directory) SetReady(ctx context.Context, code, userID string, ready bool) error {
	room, err := d.GetRoom(ctx, code)
	if err != nil {
		return err
	}
	if !room.HasPlayer(userID) {
		return models.ErrNotMember
	}

	err = d.store.UpdateFields(ctx, RoomPath(code), map[string]any{
		store.Join("player_status", userID): ready,
	})
	if errors.Is(err, store.ErrNotFound) {
		return models.ErrRoomNotFound
	}
	if err != nil {
		return models.Unavailable(fmt.Errorf("failed to set ready flag: %w", err))
	}
	return nil
}

// SubscribeRoom streams the room, nil once it no longer exists.
func (d *Directory) SubscribeRoom(ctx context.Context, code string) (*store.Feed[*models.Room], error) {
	if !models.ValidRoomCode(code) {
		return nil, models.ErrRoomNotFound
	}
	feed, err := store.Watch(ctx, d.store, RoomPath(code), store.DecodeOptional[models.Room])
	if err != nil {
		return nil, models.Unavailable(fmt.Errorf("failed to subscribe to room %s: %w", code, err))
	}
	return feed, nil
}

func (d *Directory) clearChat(ctx context.Context, code string) {
	if d.chat == nil {
		return
	}
	if err := d.chat.Clear(ctx, code); err != nil {
		log.Warn().Err(err).Str("room_code", code).Msg("failed to clear chat log")
	}
}

func decodeForHost(cur store.Snapshot, requesterID string) (*models.Room, error) {
	if !cur.Exists() {
		return nil, models.ErrRoomNotFound
	}
	var room models.Room
	if err := cur.DataTo(&room); err != nil {
		return nil, err
	}
	if !room.IsHost(requesterID) {
		return nil, models.ErrNotHost
	}
	return &room, nil
}
