// Package chat is the per-room append-only message log. It carries player
// chat and the system narration written by the game engine.
package chat

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/guessmoji/go/internal/events"
	"github.com/mcdev12/guessmoji/go/internal/models"
	"github.com/mcdev12/guessmoji/go/internal/store"
)

// MaxMessageRunes bounds the length of a single message.
const MaxMessageRunes = 500

// LogPath is the document holding a room's chat log.
func LogPath(code string) string {
	return store.Join("chats", code)
}

func messagesPath(code string) string {
	return store.Join("chats", code, "messages")
}

// Log appends to and reads room chat logs.
type Log struct {
	store     store.Store
	clock     clockwork.Clock
	publisher events.Publisher
}

// NewLog creates a chat Log.
func NewLog(st store.Store, clock clockwork.Clock, publisher events.Publisher) *Log {
	return &Log{
		store:     st,
		clock:     clock,
		publisher: publisher,
	}
}

// Send appends a player message. Blank text is rejected without writing.
func (l *Log) Send(ctx context.Context, code, senderID, senderName, text string) (*models.ChatMessage, error) {
	if !models.ValidRoomCode(code) {
		return nil, models.ErrInvalidCode
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, models.ErrBlankMessage
	}
	if utf8.RuneCountInString(text) > MaxMessageRunes {
		return nil, models.ErrMessageTooLong
	}
	if senderID == models.SystemSenderID {
		return nil, fmt.Errorf("%w: sender id %q is reserved", models.ErrInvalidState, senderID)
	}
	return l.append(ctx, code, models.ChatMessage{
		SenderID:   senderID,
		SenderName: senderName,
		Text:       text,
	})
}

// SendSystem appends a message narrated by the game.
func (l *Log) SendSystem(ctx context.Context, code, text string) (*models.ChatMessage, error) {
	if !models.ValidRoomCode(code) {
		return nil, models.ErrInvalidCode
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, models.ErrBlankMessage
	}
	return l.append(ctx, code, models.ChatMessage{
		SenderID:   models.SystemSenderID,
		SenderName: "Game",
		Text:       text,
	})
}

func (l *Log) append(ctx context.Context, code string, msg models.ChatMessage) (*models.ChatMessage, error) {
	parent := messagesPath(code)
	key, err := l.store.PushKey(ctx, parent)
	if err != nil {
		return nil, models.Unavailable(fmt.Errorf("failed to allocate message key: %w", err))
	}
	msg.ID = key
	msg.Timestamp = l.clock.Now().UnixMilli()

	if err := l.store.Set(ctx, store.Join(parent, key), msg); err != nil {
		return nil, models.Unavailable(fmt.Errorf("failed to append chat message: %w", err))
	}

	log.Debug().
		Str("room_code", code).
		Str("message_id", msg.ID).
		Str("sender_id", msg.SenderID).
		Msg("chat message appended")

	events.Emit(ctx, l.publisher, code, events.EventTypeChatMessage, events.ChatMessagePayload{
		MessageID: msg.ID,
		SenderID:  msg.SenderID,
		System:    msg.IsSystem(),
	}, l.clock.Now())

	return &msg, nil
}

// History returns the whole log in display order.
func (l *Log) History(ctx context.Context, code string) ([]models.ChatMessage, error) {
	if !models.ValidRoomCode(code) {
		return nil, models.ErrInvalidCode
	}
	snap, err := l.store.Get(ctx, messagesPath(code))
	if err != nil {
		return nil, models.Unavailable(fmt.Errorf("failed to read chat log: %w", err))
	}
	return decodeMessages(snap)
}

// Subscribe streams the full ordered log every time it changes.
func (l *Log) Subscribe(ctx context.Context, code string) (*store.Feed[[]models.ChatMessage], error) {
	if !models.ValidRoomCode(code) {
		return nil, models.ErrInvalidCode
	}
	feed, err := store.Watch(ctx, l.store, messagesPath(code), decodeMessages)
	if err != nil {
		return nil, models.Unavailable(fmt.Errorf("failed to subscribe to chat log: %w", err))
	}
	return feed, nil
}

// Clear drops the log of a room.
func (l *Log) Clear(ctx context.Context, code string) error {
	if !models.ValidRoomCode(code) {
		return models.ErrInvalidCode
	}
	if err := l.store.Delete(ctx, LogPath(code)); err != nil {
		return models.Unavailable(fmt.Errorf("failed to clear chat log: %w", err))
	}
	return nil
}

func decodeMessages(snap store.Snapshot) ([]models.ChatMessage, error) {
	if !snap.Exists() {
		return []models.ChatMessage{}, nil
	}
	var byKey map[string]models.ChatMessage
	if err := snap.DataTo(&byKey); err != nil {
		return nil, err
	}
	msgs := make([]models.ChatMessage, 0, len(byKey))
	for key, m := range byKey {
		if m.ID == "" {
			m.ID = key
		}
		msgs = append(msgs, m)
	}
	Sort(msgs)
	return msgs, nil
}

// Sort orders messages by timestamp, then by key. The store does not
// guarantee delivery order matches timestamps.
func Sort(msgs []models.ChatMessage) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if msgs[i].Timestamp != msgs[j].Timestamp {
			return msgs[i].Timestamp < msgs[j].Timestamp
		}
		return msgs[i].ID < msgs[j].ID
	})
}
