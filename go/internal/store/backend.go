package store

import (
	"context"
	"math/rand/v2"
)

// Document is the stored form of one document. Version 0 means the document
// does not exist.
type Document struct {
	Data    map[string]any
	Version int64
}

// Exists reports whether the document is present.
func (d Document) Exists() bool {
	return d.Version != 0
}

// Backend persists whole documents with a version used for optimistic
// concurrency. Versions must never repeat for a key, even across a delete
// and re-create, so a stale writer can never match a newer document.
type Backend interface {
	Load(ctx context.Context, key Key) (Document, error)
	// Commit replaces the document if its version still equals expect and
	// returns the new version. A nil data deletes the document. A mismatch
	// returns ErrVersionConflict.
	Commit(ctx context.Context, key Key, expect int64, data map[string]any) (int64, error)
	// Watch calls emit with the current document and again after every
	// change until ctx is done or emit returns false. Intermediate versions
	// may be coalesced.
	Watch(ctx context.Context, key Key, emit func(Document) bool) error
	Close() error
}

// NextVersion picks a random non-zero version distinct from prev, for
// backends that cannot draw from a shared sequence.
func NextVersion(prev int64) int64 {
	for {
		v := rand.Int64()
		if v != 0 && v != prev {
			return v
		}
	}
}
