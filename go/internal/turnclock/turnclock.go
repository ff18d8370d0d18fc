// Package turnclock derives countdowns from absolute turn deadlines and lets
// the host's process arbitrate expired turns.
package turnclock

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/guessmoji/go/internal/models"
)

// DefaultTick is the display refresh interval.
const DefaultTick = time.Second

// Remaining returns the time left until deadline (epoch millis), never negative.
func Remaining(deadline int64, now time.Time) time.Duration {
	if deadline == 0 {
		return 0
	}
	remaining := time.UnixMilli(deadline).Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// SecondsRemaining returns the whole seconds left until deadline.
func SecondsRemaining(deadline int64, now time.Time) int {
	return int(Remaining(deadline, now) / time.Second)
}

// Status is what a watcher reports on every tick.
type Status struct {
	Session          *models.GameSession
	Turn             models.Turn
	CurrentPlayerID  string
	Remaining        time.Duration
	SecondsRemaining int
}

// Active reports whether a turn is being played.
func (s Status) Active() bool {
	return s.Session.IsActive()
}

// Expired reports whether the current turn is active and out of time.
func (s Status) Expired() bool {
	return s.Active() && s.Remaining == 0
}

// TimeoutFunc asks the engine to time out turn.
type TimeoutFunc func(ctx context.Context, turn models.Turn) error

// Watcher follows a room feed and ticks a local countdown. When IsHost is
// set it calls Timeout once for every turn it sees expire.
type Watcher struct {
	Clock   clockwork.Clock
	Tick    time.Duration
	OnTick  func(Status)
	Timeout TimeoutFunc
	IsHost  bool
}

// Run consumes rooms until ctx ends or the channel is closed.
func (w *Watcher) Run(ctx context.Context, rooms <-chan *models.Room) error {
	clock := w.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	tick := w.Tick
	if tick <= 0 {
		tick = DefaultTick
	}

	ticker := clock.NewTicker(tick)
	defer ticker.Stop()

	var (
		session  *models.GameSession
		deadline clockwork.Timer
		armedFor models.Turn
		fired    models.Turn
		hasFired bool
	)
	defer func() {
		if deadline != nil {
			stopAndDrainTimer(deadline)
		}
	}()

	evaluate := func() {
		status := statusOf(session, clock.Now())
		if w.OnTick != nil {
			w.OnTick(status)
		}
		if !w.IsHost || w.Timeout == nil || !status.Active() {
			return
		}

		if !status.Expired() {
			// wake exactly at the deadline rather than on the next tick
			if deadline == nil || armedFor != status.Turn {
				if deadline != nil {
					stopAndDrainTimer(deadline)
				}
				deadline = clock.NewTimer(status.Remaining)
				armedFor = status.Turn
			}
			return
		}
		if hasFired && fired == status.Turn {
			return
		}
		fired, hasFired = status.Turn, true

		err := w.Timeout(ctx, status.Turn)
		switch {
		case err == nil:
			log.Info().
				Int("round", status.Turn.Round).
				Int("turn_index", status.Turn.Index).
				Str("player_id", status.CurrentPlayerID).
				Msg("turn timed out")
		case errors.Is(err, models.ErrStaleTurn),
			errors.Is(err, models.ErrTurnNotExpired),
			errors.Is(err, models.ErrGameEnded):
			log.Debug().Err(err).Int("turn_index", status.Turn.Index).Msg("turn already moved on")
		default:
			// try again on the next tick
			hasFired = false
			log.Error().Err(err).Int("turn_index", status.Turn.Index).Msg("failed to time out turn")
		}
	}

	for {
		var deadlineCh <-chan time.Time
		if deadline != nil {
			deadlineCh = deadline.Chan()
		}

		select {
		case <-ctx.Done():
			return nil
		case room, ok := <-rooms:
			if !ok {
				return nil
			}
			session = nil
			if room != nil {
				session = room.Game
			}
			evaluate()
		case <-ticker.Chan():
			evaluate()
		case <-deadlineCh:
			deadline = nil
			evaluate()
		}
	}
}

func statusOf(s *models.GameSession, now time.Time) Status {
	if s == nil {
		return Status{}
	}
	status := Status{
		Session:         s,
		Turn:            s.Turn(),
		CurrentPlayerID: s.CurrentPlayerID(),
	}
	if s.IsActive() {
		status.Remaining = Remaining(s.TurnDeadline, now)
		status.SecondsRemaining = int(status.Remaining / time.Second)
	}
	return status
}

// stopAndDrainTimer stops a timer and drains its channel if it already fired.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}

// Offer hands room to a watcher's buffered channel, replacing any room the
// watcher has not picked up yet.
func Offer(ch chan *models.Room, room *models.Room) {
	for {
		select {
		case ch <- room:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
