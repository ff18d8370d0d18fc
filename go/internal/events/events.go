// Package events describes domain events emitted after room, game and chat
// state changes commit, and the publishers that ship them.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// EventType names a domain event.
type EventType string

const (
	EventTypeRoomCreated  EventType = "room.created"
	EventTypePlayerJoined EventType = "room.joined"
	EventTypePlayerLeft   EventType = "room.left"
	EventTypeRoomClosed   EventType = "room.closed"
	EventTypeRoomDeleted  EventType = "room.deleted"

	EventTypeGameStarted      EventType = "game.started"
	EventTypeGuessRecorded    EventType = "game.guessed"
	EventTypePlayerEliminated EventType = "game.eliminated"
	EventTypeRoundStarted     EventType = "game.round_started"
	EventTypeGameEnded        EventType = "game.ended"

	EventTypeChatMessage EventType = "chat.message"
)

// Event is the envelope every publisher ships.
type Event struct {
	ID        string          `json:"eventId"`
	Type      EventType       `json:"eventType"`
	RoomCode  string          `json:"roomCode"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// New wraps payload in an envelope.
func New(roomCode string, eventType EventType, payload any, at time.Time) (Event, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Event{}, fmt.Errorf("failed to generate event id: %w", err)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	return Event{
		ID:        id.String(),
		Type:      eventType,
		RoomCode:  roomCode,
		Timestamp: at.UTC(),
		Payload:   data,
	}, nil
}

// Publisher ships events somewhere.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Emit builds and publishes an event. State has already been committed when
// events are emitted, so failures are logged rather than returned.
func Emit(ctx context.Context, p Publisher, roomCode string, eventType EventType, payload any, at time.Time) {
	if p == nil {
		return
	}
	event, err := New(roomCode, eventType, payload, at)
	if err != nil {
		log.Error().Err(err).Str("room_code", roomCode).Str("event_type", string(eventType)).Msg("failed to build event")
		return
	}
	if err := p.Publish(ctx, event); err != nil {
		log.Warn().Err(err).
			Str("room_code", roomCode).
			Str("event_type", string(eventType)).
			Str("event_id", event.ID).
			Msg("failed to publish event")
	}
}
