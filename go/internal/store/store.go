// Package store is a path-addressed real-time state store: plain reads and
// writes, atomic multi-field updates, optimistic single-document
// transactions and cancelable subscriptions.
//
// A path is a slash-separated list of segments. The first two segments name
// a document (collection and id); any remaining segments address a field
// inside that document, so "rooms/7421" is a room document and
// "rooms/7421/game" is the game subtree stored in it.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrInvalidPath     = errors.New("store: invalid path")
	ErrInvalidValue    = errors.New("store: document root must be an object")
	ErrNotFound        = errors.New("store: document not found")
	ErrVersionConflict = errors.New("store: version conflict")
	ErrTooManyAttempts = errors.New("store: transaction retries exhausted")

	// ErrSkip may be returned by a TxFunc to end the transaction without
	// writing anything. RunTransaction then reports success.
	ErrSkip = errors.New("store: transaction skipped")
)

// Store is what the game packages need from the shared state store.
type Store interface {
	Get(ctx context.Context, path string) (Snapshot, error)
	// Set overwrites the value at path. A nil value deletes it.
	Set(ctx context.Context, path string, value any) error
	Delete(ctx context.Context, path string) error
	// UpdateFields writes every relative path in fields together or not at
	// all. The document must already exist.
	UpdateFields(ctx context.Context, path string, fields map[string]any) error
	// RunTransaction calls fn with the current value at path and writes its
	// result if nobody else wrote the document in between, re-running fn on
	// conflict. A nil result deletes the value.
	RunTransaction(ctx context.Context, path string, fn TxFunc) (Snapshot, error)
	// Subscribe streams the value at path, current value first.
	Subscribe(ctx context.Context, path string) (*Subscription, error)
	// PushKey returns a fresh, time-ordered child key for parent.
	PushKey(ctx context.Context, parent string) (string, error)
}

// TxFunc computes the new value of a transaction from the current one.
type TxFunc func(current Snapshot) (any, error)

// Snapshot is a value read from the store at a point in time.
type Snapshot struct {
	Path   string
	value  any
	exists bool
}

// NewSnapshot builds a snapshot from an already normalized value.
func NewSnapshot(path string, value any) Snapshot {
	return Snapshot{Path: path, value: value, exists: value != nil}
}

// Exists reports whether a value was present at the path.
func (s Snapshot) Exists() bool {
	return s.exists
}

// Value returns the raw JSON-shaped value (maps, slices, float64, string, bool).
func (s Snapshot) Value() any {
	return s.value
}

// DataTo decodes the snapshot into dst, which must be a pointer.
func (s Snapshot) DataTo(dst any) error {
	if !s.exists {
		return fmt.Errorf("%w: %s", ErrNotFound, s.Path)
	}
	data, err := json.Marshal(s.value)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot %s: %w", s.Path, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("failed to decode snapshot %s: %w", s.Path, err)
	}
	return nil
}

// Subscription is a live stream of snapshots for one path. It is not
// restartable; subscribe again to get a new stream.
type Subscription struct {
	updates <-chan Snapshot
	cancel  context.CancelFunc
	done    chan struct{}
	err     error
}

// Updates is closed once the subscription ends.
func (s *Subscription) Updates() <-chan Snapshot {
	return s.updates
}

// Close stops the subscription and returns once the underlying watch has
// been released. It is safe to call more than once.
func (s *Subscription) Close() {
	s.cancel()
	<-s.done
}

// Done is closed after the subscription has fully stopped.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Err reports why the subscription ended early. It is nil after Close or
// context cancellation and only meaningful once Updates is closed.
func (s *Subscription) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}
