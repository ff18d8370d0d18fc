// Package services wires the domain packages together from a Config:
// store → chat → rooms → game, plus players and the event publisher.
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/guessmoji/go/internal/chat"
	"github.com/mcdev12/guessmoji/go/internal/config"
	"github.com/mcdev12/guessmoji/go/internal/events"
	"github.com/mcdev12/guessmoji/go/internal/game"
	"github.com/mcdev12/guessmoji/go/internal/players"
	"github.com/mcdev12/guessmoji/go/internal/rooms"
	"github.com/mcdev12/guessmoji/go/internal/store"
)

type Services struct {
	Clock     clockwork.Clock
	Store     *store.PathStore
	Publisher events.Publisher
	Chat      *chat.Log
	Rooms     *rooms.Directory
	Engine    *game.Engine
	Players   *players.App

	closers []func() error
}

// New opens every backend named by cfg and builds the services on top.
func New(ctx context.Context, cfg *config.Config) (*Services, error) {
	s := &Services{Clock: clockwork.NewRealClock()}

	st, closeStore, err := config.OpenStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	s.Store = st
	s.closers = append(s.closers, closeStore)

	publisher, err := openPublisher(ctx, cfg)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.Publisher = publisher
	if c, ok := publisher.(interface{ Close() error }); ok {
		s.closers = append(s.closers, c.Close)
	}

	repo, err := openPlayerRepository(ctx, cfg, st)
	if err != nil {
		s.Close()
		return nil, err
	}
	if c, ok := repo.(interface{ Close() }); ok {
		s.closers = append(s.closers, func() error { c.Close(); return nil })
	}

	// Database layer → Repository layer → App layer
	s.Chat = chat.NewLog(st, s.Clock, publisher)
	s.Rooms = rooms.NewDirectory(st, s.Chat, publisher, s.Clock, cfg.Rooms(), nil)
	s.Engine = game.NewEngine(st, s.Chat, publisher, s.Clock, cfg.Engine(), nil)
	s.Players = players.NewApp(repo, players.DefaultHasher(), s.Clock)

	log.Info().
		Str("store_backend", cfg.Store.Backend).
		Str("players_repository", cfg.Players.Repository).
		Bool("events", cfg.Events.Enabled).
		Msg("services ready")

	return s, nil
}

func openPublisher(ctx context.Context, cfg *config.Config) (events.Publisher, error) {
	if !cfg.Events.Enabled {
		return events.NewLogPublisher(), nil
	}
	publisher, err := events.NewJetStreamPublisher(ctx, cfg.JetStream())
	if err != nil {
		return nil, fmt.Errorf("failed to connect event publisher: %w", err)
	}
	return publisher, nil
}

func openPlayerRepository(ctx context.Context, cfg *config.Config, st store.Store) (players.Repository, error) {
	switch cfg.Players.Repository {
	case config.PlayersPostgres:
		poolCfg, err := cfg.Postgres.PoolConfig()
		if err != nil {
			return nil, err
		}
		repo, err := players.NewPostgresRepository(ctx, poolCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to open player repository: %w", err)
		}
		return repo, nil
	default:
		return players.NewStoreRepository(st), nil
	}
}

// Close releases everything New opened, last opened first.
func (s *Services) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
