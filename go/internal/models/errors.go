package models

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the room, game, chat and player
// packages matches exactly one of these with errors.Is.
var (
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrInvalidState       = errors.New("invalid state")
	ErrStoreUnavailable   = errors.New("store unavailable")
	ErrCodeSpaceExhausted = errors.New("room code space exhausted")
)

var (
	ErrRoomNotFound  = fmt.Errorf("room %w", ErrNotFound)
	ErrRoomExists    = fmt.Errorf("%w: room code already taken", ErrConflict)
	ErrInvalidCode   = fmt.Errorf("%w: malformed room code", ErrInvalidState)
	ErrRoomFull      = fmt.Errorf("%w: room is full", ErrConflict)
	ErrAlreadyJoined = fmt.Errorf("%w: player already joined", ErrConflict)
	ErrRoomInactive  = fmt.Errorf("%w: room is not active", ErrInvalidState)
	ErrNotHost       = fmt.Errorf("%w: only the host may do that", ErrInvalidState)
	ErrNotMember     = fmt.Errorf("%w: player is not in the room", ErrInvalidState)

	ErrSessionNotFound    = fmt.Errorf("game session %w", ErrNotFound)
	ErrNotEnoughPlayers   = fmt.Errorf("%w: at least two players are required", ErrInvalidState)
	ErrGameAlreadyStarted = fmt.Errorf("%w: game already started", ErrInvalidState)
	ErrGameEnded          = fmt.Errorf("%w: game has ended", ErrInvalidState)
	ErrNotInSession       = fmt.Errorf("%w: player is not part of the game", ErrInvalidState)
	ErrNotYourTurn        = fmt.Errorf("%w: not this player's turn", ErrInvalidState)
	ErrPlayerEliminated   = fmt.Errorf("%w: player is eliminated", ErrInvalidState)
	ErrBlankGuess         = fmt.Errorf("%w: guess is blank", ErrInvalidState)
	ErrStaleTurn          = fmt.Errorf("%w: turn already moved on", ErrInvalidState)
	ErrTurnNotExpired     = fmt.Errorf("%w: turn deadline has not passed", ErrInvalidState)

	ErrBlankMessage   = fmt.Errorf("%w: message is blank", ErrInvalidState)
	ErrMessageTooLong = fmt.Errorf("%w: message is too long", ErrInvalidState)

	ErrPlayerNotFound = fmt.Errorf("player %w", ErrNotFound)
	ErrIncorrectLogin = fmt.Errorf("%w: incorrect name or password", ErrNotFound)
	ErrNameTaken      = fmt.Errorf("%w: player name already taken", ErrConflict)
)

// Unavailable wraps a backend failure as ErrStoreUnavailable, leaving
// already-classified errors untouched.
func Unavailable(err error) error {
	if err == nil || IsClassified(err) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}

// IsClassified reports whether err already carries one of the error kinds.
func IsClassified(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrStoreUnavailable) ||
		errors.Is(err, ErrCodeSpaceExhausted)
}
