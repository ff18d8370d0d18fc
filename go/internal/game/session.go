package game

import (
	"math/rand/v2"
	"slices"
	"strings"

	"github.com/mcdev12/guessmoji/go/internal/models"
)

// NewSession builds round one for playerIDs. The turn order is a uniform
// shuffle and symbols are dealt from a shuffled palette, cycling it when
// there are more players than symbols.
func NewSession(playerIDs []string, palette []string, rng *rand.Rand, deadline int64) (*models.GameSession, error) {
	if len(playerIDs) < 2 {
		return nil, models.ErrNotEnoughPlayers
	}
	if len(palette) == 0 {
		palette = DefaultPalette
	}

	// map iteration order is random, start from a stable order so a seeded
	// rng gives a repeatable shuffle
	order := slices.Clone(playerIDs)
	slices.Sort(order)
	rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

	symbols := slices.Clone(palette)
	rng.Shuffle(len(symbols), func(i, j int) { symbols[i], symbols[j] = symbols[j], symbols[i] })

	assigned := make(map[string]string, len(order))
	for i, id := range order {
		assigned[id] = symbols[i%len(symbols)]
	}

	return &models.GameSession{
		Started:           true,
		PlayersOrder:      order,
		AssignedEmojis:    assigned,
		CurrentTurnIndex:  0,
		TurnDeadline:      deadline,
		Guesses:           map[string]string{},
		Round:             1,
		EliminatedPlayers: map[string]bool{},
	}, nil
}

// checkPlayable rejects transitions on a session that is not being played.
func checkPlayable(s *models.GameSession) error {
	switch {
	case s == nil || !s.Started:
		return models.ErrSessionNotFound
	case s.GameEnded:
		return models.ErrGameEnded
	}
	return nil
}

// applyGuess records playerID's guess for the current turn.
func applyGuess(s *models.GameSession, playerID, symbol string, nextDeadline int64) (Transition, error) {
	if err := checkPlayable(s); err != nil {
		return Transition{}, err
	}
	switch {
	case !s.HasPlayer(playerID):
		return Transition{}, models.ErrNotInSession
	case s.IsEliminated(playerID):
		return Transition{}, models.ErrPlayerEliminated
	case s.CurrentPlayerID() != playerID:
		return Transition{}, models.ErrNotYourTurn
	}
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return Transition{}, models.ErrBlankGuess
	}

	t := Transition{
		Turn:     s.Turn(),
		PlayerID: playerID,
		Guess:    symbol,
	}
	if symbol == s.AssignedEmojis[playerID] {
		t.Outcome = OutcomeCorrectGuess
		if s.Guesses == nil {
			s.Guesses = map[string]string{}
		}
		s.Guesses[playerID] = symbol
		advanceTurn(s, &t, nextDeadline)
	} else {
		t.Outcome = OutcomeWrongGuess
		eliminateAndAdvance(s, &t, nextDeadline)
	}
	t.Session = s
	return t, nil
}

// applyTimeout eliminates the current player of turn, provided turn is still
// current and its deadline has passed at now.
func applyTimeout(s *models.GameSession, turn models.Turn, now, nextDeadline int64) (Transition, error) {
	if err := checkPlayable(s); err != nil {
		return Transition{}, err
	}
	if s.Turn() != turn {
		return Transition{}, models.ErrStaleTurn
	}
	if now < s.TurnDeadline {
		return Transition{}, models.ErrTurnNotExpired
	}

	t := Transition{
		Outcome:  OutcomeTimeout,
		Turn:     turn,
		PlayerID: s.CurrentPlayerID(),
	}
	eliminateAndAdvance(s, &t, nextDeadline)
	t.Session = s
	return t, nil
}

// applyEnd terminates the session by host decision. An empty winner is a draw.
func applyEnd(s *models.GameSession, winnerID string) (Transition, error) {
	if err := checkPlayable(s); err != nil {
		return Transition{}, err
	}
	if winnerID == "" {
		winnerID = models.DrawWinnerID
	}
	if winnerID != models.DrawWinnerID && !s.HasPlayer(winnerID) {
		return Transition{}, models.ErrNotInSession
	}

	t := Transition{Outcome: OutcomeEndedByHost, Turn: s.Turn()}
	endSession(s, &t, winnerID)
	t.Session = s
	return t, nil
}

func eliminateAndAdvance(s *models.GameSession, t *Transition, nextDeadline int64) {
	if s.EliminatedPlayers == nil {
		s.EliminatedPlayers = map[string]bool{}
	}
	s.EliminatedPlayers[t.PlayerID] = true
	t.Eliminated = true

	if active := s.ActivePlayers(); len(active) == 1 {
		endSession(s, t, active[0])
		return
	}
	advanceTurn(s, t, nextDeadline)
}

// advanceTurn moves to the next non-eliminated player of this round. Running
// off the end of the order completes the round.
func advanceTurn(s *models.GameSession, t *Transition, nextDeadline int64) {
	for next := s.CurrentTurnIndex + 1; next < len(s.PlayersOrder); next++ {
		if !s.IsEliminated(s.PlayersOrder[next]) {
			s.CurrentTurnIndex = next
			s.TurnDeadline = nextDeadline
			return
		}
	}
	evaluateEndOfRound(s, t, nextDeadline)
}

func evaluateEndOfRound(s *models.GameSession, t *Transition, nextDeadline int64) {
	active := s.ActivePlayers()
	switch {
	case len(active) == 0:
		endSession(s, t, models.DrawWinnerID)
	case len(active) == 1:
		endSession(s, t, active[0])
	case s.IsFinalRound:
		// surviving the final round together is a draw
		endSession(s, t, models.DrawWinnerID)
	default:
		startNewRound(s, t, len(active) == 2, nextDeadline)
	}
}

func startNewRound(s *models.GameSession, t *Transition, final bool, nextDeadline int64) {
	s.Guesses = map[string]string{}
	s.Round++
	s.IsFinalRound = final
	s.TurnDeadline = nextDeadline
	for i, id := range s.PlayersOrder {
		if !s.IsEliminated(id) {
			s.CurrentTurnIndex = i
			break
		}
	}
	t.RoundStarted = true
	t.FinalRound = final
}

func endSession(s *models.GameSession, t *Transition, winnerID string) {
	s.GameEnded = true
	s.WinnerID = winnerID
	t.Ended = true
	t.WinnerID = winnerID
}
