package turnclock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/guessmoji/go/internal/models"
)

var epoch = time.UnixMilli(1_700_000_000_000)

func TestRemaining(t *testing.T) {
	deadline := epoch.Add(60 * time.Second).UnixMilli()

	tests := []struct {
		name    string
		now     time.Time
		want    time.Duration
		seconds int
	}{
		{"full turn", epoch, 60 * time.Second, 60},
		{"partial second floors", epoch.Add(500 * time.Millisecond), 59500 * time.Millisecond, 59},
		{"at deadline", epoch.Add(60 * time.Second), 0, 0},
		{"past deadline clamps", epoch.Add(90 * time.Second), 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Remaining(deadline, tt.now))
			assert.Equal(t, tt.seconds, SecondsRemaining(deadline, tt.now))
		})
	}

	assert.Zero(t, Remaining(0, epoch))
}

func roomWithTurn(index int, deadline time.Time) *models.Room {
	return &models.Room{
		ID:     "7421",
		HostID: "a",
		Game: &models.GameSession{
			Started:           true,
			PlayersOrder:      []string{"a", "b", "c"},
			CurrentTurnIndex:  index,
			TurnDeadline:      deadline.UnixMilli(),
			Round:             1,
			EliminatedPlayers: map[string]bool{},
		},
	}
}

type timeouts chan models.Turn

func (c timeouts) record(err error) TimeoutFunc {
	return func(ctx context.Context, turn models.Turn) error {
		c <- turn
		return err
	}
}

func (c timeouts) next(t *testing.T) models.Turn {
	t.Helper()
	select {
	case turn := <-c:
		return turn
	case <-time.After(time.Second):
		t.Fatal("timeout was never called")
		return models.Turn{}
	}
}

func (c timeouts) none(t *testing.T) {
	t.Helper()
	select {
	case turn := <-c:
		t.Fatalf("unexpected timeout for %+v", turn)
	case <-time.After(50 * time.Millisecond):
	}
}

func start(t *testing.T, w *Watcher) (chan<- *models.Room, func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	rooms := make(chan *models.Room)
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, rooms) }()
	return rooms, func() {
		cancel()
		require.NoError(t, <-done)
	}
}

func TestHostTimesOutExpiredTurnOnce(t *testing.T) {
	clock := clockwork.NewFakeClockAt(epoch)
	calls := make(timeouts, 10)
	w := &Watcher{Clock: clock, IsHost: true, Timeout: calls.record(nil)}
	rooms, stop := start(t, w)
	defer stop()

	expired := roomWithTurn(0, epoch.Add(-time.Second))
	rooms <- expired
	assert.Equal(t, expired.Game.Turn(), calls.next(t))

	// the same turn arriving again is not arbitrated twice
	rooms <- expired
	calls.none(t)

	next := roomWithTurn(1, epoch.Add(-time.Millisecond))
	rooms <- next
	assert.Equal(t, next.Game.Turn(), calls.next(t))
}

func TestHostTimesOutAtDeadline(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(epoch)
	calls := make(timeouts, 10)
	w := &Watcher{Clock: clock, IsHost: true, Timeout: calls.record(nil)}
	rooms, stop := start(t, w)
	defer stop()

	room := roomWithTurn(0, epoch.Add(10*time.Second))
	rooms <- room

	// ticker plus the deadline timer
	require.NoError(t, clock.BlockUntilContext(ctx, 2))
	clock.Advance(9 * time.Second)
	calls.none(t)

	clock.Advance(time.Second)
	assert.Equal(t, room.Game.Turn(), calls.next(t))
}

func TestNonHostNeverTimesOut(t *testing.T) {
	clock := clockwork.NewFakeClockAt(epoch)
	calls := make(timeouts, 10)
	statuses := make(chan Status, 10)
	w := &Watcher{
		Clock:   clock,
		Timeout: calls.record(nil),
		OnTick:  func(s Status) { statuses <- s },
	}
	rooms, stop := start(t, w)
	defer stop()

	rooms <- roomWithTurn(0, epoch.Add(-time.Second))
	status := <-statuses
	assert.True(t, status.Expired())
	assert.Equal(t, "a", status.CurrentPlayerID)
	calls.none(t)
}

func TestStaleRejectionIsNotRetried(t *testing.T) {
	clock := clockwork.NewFakeClockAt(epoch)
	calls := make(timeouts, 10)
	statuses := make(chan Status, 10)
	w := &Watcher{
		Clock:   clock,
		IsHost:  true,
		Timeout: calls.record(models.ErrStaleTurn),
		OnTick:  func(s Status) { statuses <- s },
	}
	rooms, stop := start(t, w)
	defer stop()

	rooms <- roomWithTurn(0, epoch.Add(-time.Second))
	calls.next(t)
	<-statuses

	clock.Advance(time.Second)
	<-statuses
	calls.none(t)
}

func TestFailedTimeoutIsRetriedOnNextTick(t *testing.T) {
	clock := clockwork.NewFakeClockAt(epoch)
	calls := make(timeouts, 10)
	w := &Watcher{Clock: clock, IsHost: true, Timeout: calls.record(errors.New("store down"))}
	rooms, stop := start(t, w)
	defer stop()

	room := roomWithTurn(0, epoch.Add(-time.Second))
	rooms <- room
	assert.Equal(t, room.Game.Turn(), calls.next(t))

	clock.Advance(time.Second)
	assert.Equal(t, room.Game.Turn(), calls.next(t))
}

func TestEndedSessionIsIgnored(t *testing.T) {
	clock := clockwork.NewFakeClockAt(epoch)
	calls := make(timeouts, 10)
	statuses := make(chan Status, 10)
	w := &Watcher{
		Clock:   clock,
		IsHost:  true,
		Timeout: calls.record(nil),
		OnTick:  func(s Status) { statuses <- s },
	}
	rooms, stop := start(t, w)
	defer stop()

	room := roomWithTurn(0, epoch.Add(-time.Second))
	room.Game.GameEnded = true
	rooms <- room
	status := <-statuses
	assert.False(t, status.Active())
	assert.Zero(t, status.SecondsRemaining)

	rooms <- nil
	status = <-statuses
	assert.Nil(t, status.Session)
	calls.none(t)
}

func TestRunStopsWhenFeedCloses(t *testing.T) {
	w := &Watcher{Clock: clockwork.NewFakeClockAt(epoch)}
	rooms := make(chan *models.Room)
	close(rooms)
	assert.NoError(t, w.Run(context.Background(), rooms))
}

func TestOfferKeepsLatestRoom(t *testing.T) {
	ch := make(chan *models.Room, 1)
	first := &models.Room{ID: "1"}
	second := &models.Room{ID: "2"}

	Offer(ch, first)
	Offer(ch, second)

	assert.Same(t, second, <-ch)
	select {
	case r := <-ch:
		t.Fatalf("unexpected pending room %v", r)
	default:
	}
}
