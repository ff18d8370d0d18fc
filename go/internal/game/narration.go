package game

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/guessmoji/go/internal/events"
	"github.com/mcdev12/guessmoji/go/internal/models"
)

// announce narrates a committed transition to the chat log and publishes
// its events. The state is already written, so failures are only logged.
func (e *Engine) announce(ctx context.Context, room *models.Room, t Transition) {
	at := e.clock.Now()
	for _, line := range narrate(room, t) {
		if e.narrator == nil {
			break
		}
		if _, err := e.narrator.SendSystem(ctx, t.RoomCode, line); err != nil {
			log.Warn().Err(err).Str("room_code", t.RoomCode).Msg("failed to narrate transition")
		}
	}

	s := t.Session
	switch t.Outcome {
	case OutcomeStarted:
		events.Emit(ctx, e.publisher, t.RoomCode, events.EventTypeGameStarted, events.GameStartedPayload{
			PlayersOrder: s.PlayersOrder,
			Round:        s.Round,
			TurnDeadline: s.TurnDeadline,
		}, at)
	case OutcomeCorrectGuess, OutcomeWrongGuess:
		events.Emit(ctx, e.publisher, t.RoomCode, events.EventTypeGuessRecorded, events.GuessRecordedPayload{
			PlayerID: t.PlayerID,
			Round:    t.Turn.Round,
			Correct:  t.Outcome == OutcomeCorrectGuess,
		}, at)
	}

	if t.Eliminated {
		reason := "wrong_guess"
		if t.Outcome == OutcomeTimeout {
			reason = "timeout"
		}
		events.Emit(ctx, e.publisher, t.RoomCode, events.EventTypePlayerEliminated, events.PlayerEliminatedPayload{
			PlayerID: t.PlayerID,
			Round:    t.Turn.Round,
			Reason:   reason,
		}, at)
	}
	if t.RoundStarted && t.Outcome != OutcomeStarted {
		events.Emit(ctx, e.publisher, t.RoomCode, events.EventTypeRoundStarted, events.RoundStartedPayload{
			Round:         s.Round,
			IsFinalRound:  s.IsFinalRound,
			ActivePlayers: s.ActivePlayers(),
			TurnDeadline:  s.TurnDeadline,
		}, at)
	}
	if t.Ended {
		events.Emit(ctx, e.publisher, t.RoomCode, events.EventTypeGameEnded, events.GameEndedPayload{
			WinnerID: t.WinnerID,
			Draw:     t.Draw(),
			Round:    s.Round,
		}, at)
	}
}

// narrate renders the system chat lines for t.
func narrate(room *models.Room, t Transition) []string {
	s := t.Session
	var lines []string

	switch t.Outcome {
	case OutcomeStarted:
		lines = append(lines, fmt.Sprintf("The game has started! %s goes first.", room.PlayerName(s.CurrentPlayerID())))
	case OutcomeCorrectGuess:
		lines = append(lines, fmt.Sprintf("%s guessed their emoji %s!", room.PlayerName(t.PlayerID), t.Guess))
	case OutcomeWrongGuess:
		lines = append(lines, fmt.Sprintf("%s guessed %s, but their emoji was %s. %s is eliminated.",
			room.PlayerName(t.PlayerID), t.Guess, s.AssignedEmojis[t.PlayerID], room.PlayerName(t.PlayerID)))
	case OutcomeTimeout:
		lines = append(lines, fmt.Sprintf("%s ran out of time and is eliminated.", room.PlayerName(t.PlayerID)))
	}

	if t.RoundStarted && t.Outcome != OutcomeStarted {
		if s.IsFinalRound {
			active := s.ActivePlayers()
			lines = append(lines, fmt.Sprintf("Final round! %s and %s remain.",
				room.PlayerName(active[0]), room.PlayerName(active[1])))
		} else {
			lines = append(lines, fmt.Sprintf("Round %d begins.", s.Round))
		}
	}

	if t.Ended {
		if t.Draw() {
			lines = append(lines, "The game ended in a draw.")
		} else {
			lines = append(lines, fmt.Sprintf("%s wins!", room.PlayerName(t.WinnerID)))
		}
	}
	return lines
}
