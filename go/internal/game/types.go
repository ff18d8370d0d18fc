package game

import (
	"time"

	"github.com/mcdev12/guessmoji/go/internal/models"
)

// DefaultPalette is the symbol set assigned to players.
var DefaultPalette = []string{"😀", "😜", "😎", "🤖", "🐱", "🍕", "🏀", "🌈", "🐶", "🦄"}

// Config holds engine settings.
type Config struct {
	TurnDuration time.Duration
	Palette      []string
}

// DefaultConfig returns sixty second turns over the default palette.
func DefaultConfig() Config {
	return Config{
		TurnDuration: 60 * time.Second,
		Palette:      DefaultPalette,
	}
}

// Outcome names what a transition did to the turn it was applied to.
type Outcome string

const (
	OutcomeStarted      Outcome = "STARTED"
	OutcomeCorrectGuess Outcome = "CORRECT_GUESS"
	OutcomeWrongGuess   Outcome = "WRONG_GUESS"
	OutcomeTimeout      Outcome = "TIMEOUT"
	OutcomeEndedByHost  Outcome = "ENDED_BY_HOST"
)

// Transition describes one committed change to a session.
type Transition struct {
	RoomCode string
	Outcome  Outcome
	// Turn is the turn the transition was applied to.
	Turn     models.Turn
	PlayerID string
	Guess    string

	Eliminated   bool
	RoundStarted bool
	FinalRound   bool
	Ended        bool
	WinnerID     string

	// Session is the state after the transition.
	Session *models.GameSession
}

// Draw reports whether the transition ended the session without a winner.
func (t Transition) Draw() bool {
	return t.Ended && t.WinnerID == models.DrawWinnerID
}
