// Package firestore stores documents in Google Cloud Firestore.
package firestore

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/guessmoji/go/internal/store"
)

const (
	dataField    = "data"
	versionField = "version"
)

// Config selects the Firestore project and the root document every
// collection lives under.
type Config struct {
	ProjectID string
	Root      string
}

// Backend is a store.Backend over Firestore documents shaped as
// {data: <tree>, version: <int64>}.
type Backend struct {
	client *firestore.Client
	root   string
}

var _ store.Backend = (*Backend)(nil)

// NewBackend creates the Firestore client.
func NewBackend(ctx context.Context, cfg Config) (*Backend, error) {
	client, err := firestore.NewClient(ctx, cfg.ProjectID) // do not timeout context - the client outlives it
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}
	root := cfg.Root
	if root == "" {
		root = "guessmoji"
	}
	return &Backend{client: client, root: root}, nil
}

func (b *Backend) doc(key store.Key) *firestore.DocumentRef {
	return b.client.Collection("services").Doc(b.root).Collection(key.Collection).Doc(key.ID)
}

func (b *Backend) Load(ctx context.Context, key store.Key) (store.Document, error) {
	snapshot, err := b.doc(key).Get(ctx)
	doc, err := toDocument(snapshot, err)
	if err != nil {
		return store.Document{}, fmt.Errorf("reading %s: %w", key, err)
	}
	return doc, nil
}

func (b *Backend) Commit(ctx context.Context, key store.Key, expect int64, data map[string]any) (int64, error) {
	ref := b.doc(key)
	var version int64
	err := b.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		current, err := toDocument(tx.Get(ref))
		if err != nil {
			return err
		}
		if current.Version != expect {
			return store.ErrVersionConflict
		}
		if data == nil {
			version = 0
			return tx.Delete(ref)
		}
		version = store.NextVersion(expect)
		return tx.Set(ref, map[string]interface{}{
			dataField:    data,
			versionField: version,
		})
	})
	if err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			return 0, store.ErrVersionConflict
		}
		return 0, fmt.Errorf("committing %s: %w", key, err)
	}
	return version, nil
}

func (b *Backend) Watch(ctx context.Context, key store.Key, emit func(store.Document) bool) error {
	it := b.doc(key).Snapshots(ctx)
	defer it.Stop()
	for {
		snapshot, err := it.Next()
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			return fmt.Errorf("watching %s: %w", key, err)
		}
		doc, err := toDocument(snapshot, nil)
		if err != nil {
			log.Error().Err(err).Str("key", key.String()).Msg("skipping undecodable firestore snapshot")
			continue
		}
		if !emit(doc) {
			return nil
		}
	}
}

func (b *Backend) Close() error {
	return b.client.Close()
}

// toDocument converts a snapshot. A missing document comes back from
// Firestore as a NotFound error alongside a snapshot that does not exist.
func toDocument(snapshot *firestore.DocumentSnapshot, err error) (store.Document, error) {
	if snapshot != nil && !snapshot.Exists() {
		return store.Document{}, nil
	}
	if err != nil {
		return store.Document{}, err
	}

	raw := snapshot.Data()
	version, ok := raw[versionField].(int64)
	if !ok || version == 0 {
		return store.Document{}, fmt.Errorf("document %s has no version", snapshot.Ref.Path)
	}
	data, _ := raw[dataField].(map[string]interface{})
	if data == nil {
		data = map[string]interface{}{}
	}
	return store.Document{Data: data, Version: version}, nil
}
