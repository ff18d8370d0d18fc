package game

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/guessmoji/go/internal/models"
)

func fixedSession(order ...string) *models.GameSession {
	assigned := make(map[string]string, len(order))
	for i, id := range order {
		assigned[id] = DefaultPalette[i%len(DefaultPalette)]
	}
	return &models.GameSession{
		Started:           true,
		PlayersOrder:      order,
		AssignedEmojis:    assigned,
		TurnDeadline:      1_000,
		Guesses:           map[string]string{},
		Round:             1,
		EliminatedPlayers: map[string]bool{},
	}
}

func wrongSymbol(s *models.GameSession, id string) string {
	for _, symbol := range DefaultPalette {
		if symbol != s.AssignedEmojis[id] {
			return symbol
		}
	}
	return "?"
}

func TestNewSessionNeedsTwoPlayers(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for _, ids := range [][]string{nil, {"a"}} {
		_, err := NewSession(ids, DefaultPalette, rng, 0)
		assert.ErrorIs(t, err, models.ErrNotEnoughPlayers)
		assert.ErrorIs(t, err, models.ErrInvalidState)
	}
}

func TestNewSession(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	ids := []string{"a", "b", "c", "d"}

	s, err := NewSession(ids, DefaultPalette, rng, 61_000)
	require.NoError(t, err)

	assert.True(t, s.Started)
	assert.False(t, s.GameEnded)
	assert.ElementsMatch(t, ids, s.PlayersOrder)
	assert.Equal(t, 0, s.CurrentTurnIndex)
	assert.Equal(t, 1, s.Round)
	assert.Equal(t, int64(61_000), s.TurnDeadline)
	assert.Empty(t, s.Guesses)
	assert.Empty(t, s.EliminatedPlayers)
	assert.Equal(t, models.PhaseInProgress, s.Phase())

	seen := map[string]bool{}
	for _, id := range ids {
		symbol, ok := s.AssignedEmojis[id]
		require.True(t, ok, "player %s has no emoji", id)
		assert.Contains(t, DefaultPalette, symbol)
		assert.False(t, seen[symbol], "emoji %s dealt twice", symbol)
		seen[symbol] = true
	}
}

func TestNewSessionIsRepeatableForSeed(t *testing.T) {
	ids := []string{"d", "b", "a", "c", "e"}
	first, err := NewSession(ids, DefaultPalette, rand.New(rand.NewPCG(7, 7)), 0)
	require.NoError(t, err)
	// input order must not matter
	second, err := NewSession([]string{"a", "b", "c", "d", "e"}, DefaultPalette, rand.New(rand.NewPCG(7, 7)), 0)
	require.NoError(t, err)

	assert.Equal(t, first.PlayersOrder, second.PlayersOrder)
	assert.Equal(t, first.AssignedEmojis, second.AssignedEmojis)
}

func TestNewSessionCyclesPalette(t *testing.T) {
	ids := make([]string, 9)
	for i := range ids {
		ids[i] = fmt.Sprintf("p%d", i)
	}
	palette := []string{"x", "y", "z"}

	s, err := NewSession(ids, palette, rand.New(rand.NewPCG(3, 4)), 0)
	require.NoError(t, err)

	counts := map[string]int{}
	for _, symbol := range s.AssignedEmojis {
		counts[symbol]++
	}
	assert.Equal(t, map[string]int{"x": 3, "y": 3, "z": 3}, counts)
}

func TestApplyGuessRejections(t *testing.T) {
	s := fixedSession("a", "b", "c")
	s.EliminatedPlayers["c"] = true

	tests := []struct {
		name    string
		session *models.GameSession
		player  string
		symbol  string
		wantErr error
	}{
		{"no session", nil, "a", "😀", models.ErrSessionNotFound},
		{"stranger", s, "z", "😀", models.ErrNotInSession},
		{"eliminated", s, "c", "😎", models.ErrPlayerEliminated},
		{"off turn", s, "b", "😜", models.ErrNotYourTurn},
		{"blank", s, "a", "  ", models.ErrBlankGuess},
		{"ended", &models.GameSession{Started: true, GameEnded: true, PlayersOrder: []string{"a"}}, "a", "😀", models.ErrGameEnded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := applyGuess(tt.session, tt.player, tt.symbol, 2_000)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	assert.Equal(t, 0, s.CurrentTurnIndex)
	assert.Empty(t, s.Guesses)
	assert.Equal(t, map[string]bool{"c": true}, s.EliminatedPlayers)
}

func TestApplyGuessCorrect(t *testing.T) {
	s := fixedSession("a", "b", "c")

	tr, err := applyGuess(s, "a", s.AssignedEmojis["a"], 2_000)
	require.NoError(t, err)

	assert.Equal(t, OutcomeCorrectGuess, tr.Outcome)
	assert.False(t, tr.Eliminated)
	assert.Equal(t, models.Turn{Round: 1, Index: 0, Deadline: 1_000}, tr.Turn)
	assert.NotContains(t, s.EliminatedPlayers, "a")
	assert.Equal(t, s.AssignedEmojis["a"], s.Guesses["a"])
	assert.Equal(t, 1, s.CurrentTurnIndex)
	assert.Equal(t, int64(2_000), s.TurnDeadline)
}

func TestApplyGuessWrong(t *testing.T) {
	s := fixedSession("a", "b", "c")

	tr, err := applyGuess(s, "a", wrongSymbol(s, "a"), 2_000)
	require.NoError(t, err)

	assert.Equal(t, OutcomeWrongGuess, tr.Outcome)
	assert.True(t, tr.Eliminated)
	assert.True(t, s.IsEliminated("a"))
	assert.NotContains(t, s.Guesses, "a")
	assert.Equal(t, "b", s.CurrentPlayerID())
}

func TestRoundTransition(t *testing.T) {
	s := fixedSession("a", "b", "c")
	s.Guesses["stale"] = "x"

	for _, id := range []string{"a", "b"} {
		tr, err := applyGuess(s, id, s.AssignedEmojis[id], 2_000)
		require.NoError(t, err)
		assert.False(t, tr.RoundStarted)
	}
	tr, err := applyGuess(s, "c", s.AssignedEmojis["c"], 3_000)
	require.NoError(t, err)

	assert.True(t, tr.RoundStarted)
	assert.False(t, tr.FinalRound)
	assert.Equal(t, 2, s.Round)
	assert.Empty(t, s.Guesses)
	assert.Equal(t, 0, s.CurrentTurnIndex)
	assert.Equal(t, int64(3_000), s.TurnDeadline)
}

func TestNewRoundSkipsEliminatedLeaders(t *testing.T) {
	s := fixedSession("a", "b", "c", "d")

	_, err := applyGuess(s, "a", wrongSymbol(s, "a"), 2_000)
	require.NoError(t, err)
	for _, id := range []string{"b", "c", "d"} {
		_, err := applyGuess(s, id, s.AssignedEmojis[id], 2_000)
		require.NoError(t, err)
	}

	assert.Equal(t, 2, s.Round)
	assert.False(t, s.IsFinalRound)
	assert.Equal(t, "b", s.CurrentPlayerID())
}

func TestFinalRound(t *testing.T) {
	setup := func(t *testing.T) *models.GameSession {
		s := fixedSession("a", "b", "c")
		_, err := applyGuess(s, "a", wrongSymbol(s, "a"), 2_000)
		require.NoError(t, err)
		_, err = applyGuess(s, "b", s.AssignedEmojis["b"], 2_000)
		require.NoError(t, err)
		tr, err := applyGuess(s, "c", s.AssignedEmojis["c"], 2_000)
		require.NoError(t, err)
		require.True(t, tr.FinalRound)
		require.Equal(t, models.PhaseFinalRound, s.Phase())
		require.Equal(t, "b", s.CurrentPlayerID())
		return s
	}

	t.Run("both survive is a draw", func(t *testing.T) {
		s := setup(t)
		_, err := applyGuess(s, "b", s.AssignedEmojis["b"], 3_000)
		require.NoError(t, err)
		tr, err := applyGuess(s, "c", s.AssignedEmojis["c"], 3_000)
		require.NoError(t, err)

		assert.True(t, tr.Ended)
		assert.True(t, tr.Draw())
		assert.True(t, s.IsDraw())
		assert.Equal(t, models.PhaseEnded, s.Phase())
	})

	t.Run("one wrong guess decides it", func(t *testing.T) {
		s := setup(t)
		tr, err := applyGuess(s, "b", wrongSymbol(s, "b"), 3_000)
		require.NoError(t, err)

		assert.True(t, tr.Ended)
		assert.Equal(t, "c", tr.WinnerID)
		assert.Equal(t, "c", s.WinnerID)
		assert.False(t, s.IsDraw())
	})
}

func TestEndOfRoundWithNobodyLeft(t *testing.T) {
	s := fixedSession("a", "b")
	s.EliminatedPlayers = map[string]bool{"a": true, "b": true}

	var tr Transition
	evaluateEndOfRound(s, &tr, 0)

	assert.True(t, s.GameEnded)
	assert.Equal(t, models.DrawWinnerID, s.WinnerID)
	assert.True(t, tr.Draw())
}

func TestApplyTimeout(t *testing.T) {
	s := fixedSession("a", "b", "c")
	turn := s.Turn()

	_, err := applyTimeout(s, turn, 999, 5_000)
	assert.ErrorIs(t, err, models.ErrTurnNotExpired)

	_, err = applyTimeout(s, models.Turn{Round: 1, Index: 1, Deadline: 1_000}, 1_000, 5_000)
	assert.ErrorIs(t, err, models.ErrStaleTurn)

	tr, err := applyTimeout(s, turn, 1_000, 5_000)
	require.NoError(t, err)
	assert.Equal(t, OutcomeTimeout, tr.Outcome)
	assert.Equal(t, "a", tr.PlayerID)
	assert.True(t, s.IsEliminated("a"))
	assert.Equal(t, "b", s.CurrentPlayerID())

	// the same turn cannot time out twice
	_, err = applyTimeout(s, turn, 10_000, 5_000)
	assert.ErrorIs(t, err, models.ErrStaleTurn)
	assert.Len(t, s.EliminatedPlayers, 1)
}

func TestTimeoutDownToOnePlayerEndsSession(t *testing.T) {
	s := fixedSession("a", "b", "c")
	s.EliminatedPlayers["c"] = true

	tr, err := applyTimeout(s, s.Turn(), 1_000, 5_000)
	require.NoError(t, err)

	assert.True(t, tr.Ended)
	assert.Equal(t, "b", s.WinnerID)
	assert.True(t, s.GameEnded)
}

func TestApplyEnd(t *testing.T) {
	s := fixedSession("a", "b")
	_, err := applyEnd(s, "z")
	assert.ErrorIs(t, err, models.ErrNotInSession)

	tr, err := applyEnd(s, "")
	require.NoError(t, err)
	assert.True(t, tr.Draw())

	_, err = applyEnd(s, "a")
	assert.ErrorIs(t, err, models.ErrGameEnded)
}

func TestRandomPlayKeepsTurnOnActivePlayer(t *testing.T) {
	for seed := uint64(0); seed < 200; seed++ {
		rng := rand.New(rand.NewPCG(seed, seed*31+1))
		ids := []string{"a", "b", "c", "d"}[:2+rng.IntN(3)]

		s, err := NewSession(ids, DefaultPalette, rng, 1_000)
		require.NoError(t, err)

		now := int64(0)
		for step := 0; !s.GameEnded; step++ {
			require.Less(t, step, 100, "seed %d never ended", seed)
			current := s.CurrentPlayerID()
			require.NotEmpty(t, current)
			require.False(t, s.IsEliminated(current), "seed %d: turn on eliminated player", seed)

			round := s.Round
			now += 1_000
			var tr Transition
			switch rng.IntN(3) {
			case 0:
				tr, err = applyGuess(s, current, s.AssignedEmojis[current], now+60_000)
				require.NoError(t, err)
				assert.False(t, s.IsEliminated(current))
			case 1:
				tr, err = applyGuess(s, current, wrongSymbol(s, current), now+60_000)
				require.NoError(t, err)
				assert.True(t, s.IsEliminated(current))
			default:
				tr, err = applyTimeout(s, s.Turn(), s.TurnDeadline, now+60_000)
				require.NoError(t, err)
				assert.True(t, s.IsEliminated(current))
			}

			if tr.RoundStarted {
				assert.Equal(t, round+1, s.Round)
				assert.Empty(t, s.Guesses)
			}
		}

		active := s.ActivePlayers()
		if s.IsDraw() {
			assert.NotEqual(t, 1, len(active))
		} else {
			assert.Equal(t, []string{s.WinnerID}, active)
		}
	}
}
