package config

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/guessmoji/go/internal/store"
	"github.com/mcdev12/guessmoji/go/internal/store/firestore"
	"github.com/mcdev12/guessmoji/go/internal/store/mongo"
	"github.com/mcdev12/guessmoji/go/internal/store/postgres"
)

// OpenStore connects the configured backend. The returned close func
// releases the backend and anything opened for it.
func OpenStore(ctx context.Context, cfg *Config) (*store.PathStore, func() error, error) {
	var (
		backend store.Backend
		closers []func() error
	)

	switch cfg.Store.Backend {
	case BackendMemory:
		backend = store.NewMemoryBackend()

	case BackendPostgres:
		db, err := sql.Open("postgres", cfg.Postgres.DSN())
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create database connection: %w", err)
		}
		cfg.Postgres.Configure(db)
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to ping database: %w", err)
		}
		pg, err := postgres.NewBackend(ctx, db, postgres.ListenerConfig{
			DSN:          cfg.Postgres.ListenerDSN(),
			MinReconnect: cfg.Postgres.ListenerMinReconnect,
			MaxReconnect: cfg.Postgres.ListenerMaxReconnect,
		})
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		backend = pg
		closers = append(closers, db.Close)
		log.Info().
			Str("host", cfg.Postgres.Host).
			Int("port", cfg.Postgres.Port).
			Str("database", cfg.Postgres.Database).
			Int("max_open_conns", cfg.Postgres.MaxOpenConns).
			Msg("connected to postgres")

	case BackendMongo:
		m, err := mongo.NewBackend(ctx, mongo.Config{
			URI:            cfg.Store.Mongo.URI,
			Database:       cfg.Store.Mongo.Database,
			ConnectTimeout: cfg.Store.Mongo.ConnectTimeout,
		})
		if err != nil {
			return nil, nil, err
		}
		backend = m
		log.Info().Str("database", cfg.Store.Mongo.Database).Msg("connected to mongodb")

	case BackendFirestore:
		f, err := firestore.NewBackend(ctx, firestore.Config{
			ProjectID: cfg.Store.Firestore.ProjectID,
			Root:      cfg.Store.Firestore.Root,
		})
		if err != nil {
			return nil, nil, err
		}
		backend = f
		log.Info().Str("project_id", cfg.Store.Firestore.ProjectID).Msg("connected to firestore")

	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	st := store.New(backend, cfg.StoreOptions())
	closeAll := func() error {
		err := st.Close()
		for _, c := range closers {
			if cerr := c(); cerr != nil && err == nil {
				err = cerr
			}
		}
		return err
	}
	return st, closeAll, nil
}
