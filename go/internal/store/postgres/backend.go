// Package postgres stores documents as jsonb rows in Postgres and uses
// LISTEN/NOTIFY for subscriptions.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"github.com/sqlc-dev/pqtype"

	"github.com/mcdev12/guessmoji/go/internal/sqlutil"
	"github.com/mcdev12/guessmoji/go/internal/store"
)

const notifyChannel = "store_documents"

const schema = `
CREATE SEQUENCE IF NOT EXISTS store_document_versions;

CREATE TABLE IF NOT EXISTS store_documents (
    collection TEXT NOT NULL,
    id         TEXT NOT NULL,
    data       JSONB,
    version    BIGINT NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (collection, id)
);
`

// Backend is a store.Backend over the store_documents table.
type Backend struct {
	db       *sql.DB
	notifier *notifier
}

var _ store.Backend = (*Backend)(nil)

// ListenerConfig is the dedicated connection change notifications arrive on.
type ListenerConfig struct {
	DSN          string
	MinReconnect time.Duration
	MaxReconnect time.Duration
}

// NewBackend creates the schema if needed and starts listening for change
// notifications on the listener connection.
func NewBackend(ctx context.Context, db *sql.DB, lc ListenerConfig) (*Backend, error) {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to create store schema: %w", err)
	}

	if lc.MinReconnect <= 0 {
		lc.MinReconnect = 10 * time.Second
	}
	if lc.MaxReconnect < lc.MinReconnect {
		lc.MaxReconnect = time.Minute
	}
	listener := pq.NewListener(lc.DSN, lc.MinReconnect, lc.MaxReconnect, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			log.Error().Err(err).Int("event", int(ev)).Msg("postgres listener event")
		}
	})
	if err := listener.Listen(notifyChannel); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("failed to listen on %s: %w", notifyChannel, err)
	}

	n := newNotifier(listener)
	go n.run()

	return &Backend{db: db, notifier: n}, nil
}

func (b *Backend) Load(ctx context.Context, key store.Key) (store.Document, error) {
	var (
		data    pqtype.NullRawMessage
		version int64
	)
	err := b.db.QueryRowContext(ctx,
		`SELECT data, version FROM store_documents WHERE collection = $1 AND id = $2`,
		key.Collection, key.ID,
	).Scan(&data, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Document{}, nil
	}
	if err != nil {
		return store.Document{}, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return decodeDocument(data, version)
}

func (b *Backend) Commit(ctx context.Context, key store.Key, expect int64, data map[string]any) (int64, error) {
	payload, err := sqlutil.ToNullJSON(data)
	if err != nil {
		return 0, err
	}

	var version int64
	err = sqlutil.Run(ctx, b.db, nil, func(tx *sql.Tx) error {
		var current int64
		err := tx.QueryRowContext(ctx,
			`SELECT version FROM store_documents WHERE collection = $1 AND id = $2 FOR UPDATE`,
			key.Collection, key.ID,
		).Scan(&current)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to lock %s: %w", key, err)
		}
		if current != expect {
			return store.ErrVersionConflict
		}

		switch {
		case data == nil && expect == 0:
			return nil
		case data == nil:
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM store_documents WHERE collection = $1 AND id = $2`,
				key.Collection, key.ID,
			); err != nil {
				return fmt.Errorf("failed to delete %s: %w", key, err)
			}
		case expect == 0:
			if err := tx.QueryRowContext(ctx,
				`INSERT INTO store_documents (collection, id, data, version)
				 VALUES ($1, $2, $3, nextval('store_document_versions'))
				 RETURNING version`,
				key.Collection, key.ID, payload,
			).Scan(&version); err != nil {
				if sqlutil.IsUniqueViolation(err) {
					return store.ErrVersionConflict
				}
				return fmt.Errorf("failed to insert %s: %w", key, err)
			}
		default:
			if err := tx.QueryRowContext(ctx,
				`UPDATE store_documents
				 SET data = $3, version = nextval('store_document_versions'), updated_at = now()
				 WHERE collection = $1 AND id = $2
				 RETURNING version`,
				key.Collection, key.ID, payload,
			).Scan(&version); err != nil {
				return fmt.Errorf("failed to update %s: %w", key, err)
			}
		}

		// delivered only if the transaction commits
		if _, err := tx.ExecContext(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, key.String()); err != nil {
			return fmt.Errorf("failed to notify %s: %w", key, err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return version, nil
}

func (b *Backend) Watch(ctx context.Context, key store.Key, emit func(store.Document) bool) error {
	signal := b.notifier.subscribe(key.String())
	defer b.notifier.unsubscribe(key.String(), signal)

	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-signal:
			if !ok {
				return fmt.Errorf("watching %s: listener closed", key)
			}
			doc, err := b.Load(ctx, key)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			if !emit(doc) {
				return nil
			}
		}
	}
}

// Close stops the listener. The *sql.DB belongs to the caller.
func (b *Backend) Close() error {
	return b.notifier.close()
}

func decodeDocument(data pqtype.NullRawMessage, version int64) (store.Document, error) {
	var tree map[string]any
	if _, err := sqlutil.FromNullJSON(data, &tree); err != nil {
		return store.Document{}, err
	}
	if tree == nil {
		tree = map[string]any{}
	}
	return store.Document{Data: tree, Version: version}, nil
}
