package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Options tunes a PathStore.
type Options struct {
	// MaxAttempts bounds how often a transaction is re-run on conflict.
	MaxAttempts int
	// OpTimeout applies to each individual backend call. Zero disables it.
	OpTimeout time.Duration
}

// DefaultOptions returns the settings used when none are configured.
func DefaultOptions() Options {
	return Options{
		MaxAttempts: 25,
		OpTimeout:   10 * time.Second,
	}
}

// PathStore implements Store on top of a document Backend.
type PathStore struct {
	backend Backend
	opts    Options
}

var _ Store = (*PathStore)(nil)

// New creates a PathStore.
func New(backend Backend, opts Options) *PathStore {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultOptions().MaxAttempts
	}
	return &PathStore{backend: backend, opts: opts}
}

// NewMemory returns a PathStore over a fresh in-memory backend.
func NewMemory() *PathStore {
	return New(NewMemoryBackend(), DefaultOptions())
}

// Close releases the backend.
func (s *PathStore) Close() error {
	return s.backend.Close()
}

func (s *PathStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opts.OpTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.opts.OpTimeout)
}

func (s *PathStore) load(ctx context.Context, key Key) (Document, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	doc, err := s.backend.Load(ctx, key)
	if err != nil {
		return Document{}, fmt.Errorf("failed to load %s: %w", key, err)
	}
	return doc, nil
}

func (s *PathStore) commit(ctx context.Context, key Key, expect int64, data map[string]any) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if _, err := s.backend.Commit(ctx, key, expect, data); err != nil {
		if errors.Is(err, ErrVersionConflict) {
			return err
		}
		return fmt.Errorf("failed to commit %s: %w", key, err)
	}
	return nil
}

// Get reads the value at path.
func (s *PathStore) Get(ctx context.Context, path string) (Snapshot, error) {
	p, err := ParsePath(path)
	if err != nil {
		return Snapshot{}, err
	}
	doc, err := s.load(ctx, p.Key)
	if err != nil {
		return Snapshot{}, err
	}
	return snapshotOf(path, doc, p.Field), nil
}

// Set overwrites the value at path.
func (s *PathStore) Set(ctx context.Context, path string, value any) error {
	_, err := s.RunTransaction(ctx, path, func(Snapshot) (any, error) {
		return value, nil
	})
	return err
}

// Delete removes the value at path. Deleting something absent is not an error.
func (s *PathStore) Delete(ctx context.Context, path string) error {
	return s.Set(ctx, path, nil)
}

// UpdateFields writes several fields below path in one commit.
func (s *PathStore) UpdateFields(ctx context.Context, path string, fields map[string]any) error {
	p, err := ParsePath(path)
	if err != nil {
		return err
	}

	type update struct {
		field []string
		value any
	}
	updates := make([]update, 0, len(fields))
	for rel, v := range fields {
		segs, err := splitSegments(rel)
		if err != nil {
			return err
		}
		value, err := Normalize(v)
		if err != nil {
			return err
		}
		field := append(append([]string{}, p.Field...), segs...)
		updates = append(updates, update{field: field, value: value})
	}

	for attempt := 1; attempt <= s.opts.MaxAttempts; attempt++ {
		doc, err := s.load(ctx, p.Key)
		if err != nil {
			return err
		}
		if !doc.Exists() {
			return fmt.Errorf("%w: %s", ErrNotFound, path)
		}

		var data any = doc.Data
		for _, u := range updates {
			data = setIn(data, u.field, u.value)
		}

		err = s.commit(ctx, p.Key, doc.Version, data.(map[string]any))
		if errors.Is(err, ErrVersionConflict) {
			log.Debug().Str("path", path).Int("attempt", attempt).Msg("update conflicted, retrying")
			continue
		}
		return err
	}
	return fmt.Errorf("%w: %s", ErrTooManyAttempts, path)
}

// RunTransaction runs fn against the current value at path and commits the
// result with optimistic concurrency.
func (s *PathStore) RunTransaction(ctx context.Context, path string, fn TxFunc) (Snapshot, error) {
	p, err := ParsePath(path)
	if err != nil {
		return Snapshot{}, err
	}

	for attempt := 1; attempt <= s.opts.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Snapshot{}, err
		}
		doc, err := s.load(ctx, p.Key)
		if err != nil {
			return Snapshot{}, err
		}

		current := snapshotOf(path, doc, p.Field)
		next, err := fn(current)
		if errors.Is(err, ErrSkip) {
			return current, nil
		}
		if err != nil {
			return current, err
		}

		value, err := Normalize(next)
		if err != nil {
			return current, err
		}
		data, err := replaceIn(doc.Data, p.Field, value)
		if err != nil {
			return current, err
		}
		if data == nil && !doc.Exists() {
			return NewSnapshot(path, nil), nil
		}

		err = s.commit(ctx, p.Key, doc.Version, data)
		if errors.Is(err, ErrVersionConflict) {
			log.Debug().Str("path", path).Int("attempt", attempt).Msg("transaction conflicted, retrying")
			continue
		}
		if err != nil {
			return current, err
		}
		return NewSnapshot(path, value), nil
	}
	return Snapshot{}, fmt.Errorf("%w: %s", ErrTooManyAttempts, path)
}

// Subscribe streams snapshots of path until ctx ends or Close is called.
func (s *PathStore) Subscribe(ctx context.Context, path string) (*Subscription, error) {
	p, err := ParsePath(path)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	out := make(chan Snapshot)
	sub := &Subscription{
		updates: out,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	go func() {
		defer close(sub.done)
		defer close(out)

		err := s.backend.Watch(ctx, p.Key, func(doc Document) bool {
			select {
			case out <- snapshotOf(path, doc, p.Field):
				return true
			case <-ctx.Done():
				return false
			}
		})
		if err != nil && ctx.Err() == nil {
			sub.err = err
			log.Warn().Err(err).Str("path", path).Msg("subscription ended")
		}
	}()

	return sub, nil
}

// PushKey returns a UUIDv7, which sorts by creation time.
func (s *PathStore) PushKey(ctx context.Context, parent string) (string, error) {
	if _, err := splitSegments(parent); err != nil {
		return "", err
	}
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to generate key: %w", err)
	}
	return id.String(), nil
}

func snapshotOf(path string, doc Document, field []string) Snapshot {
	if !doc.Exists() {
		return NewSnapshot(path, nil)
	}
	return NewSnapshot(path, getIn(map[string]any(doc.Data), field))
}

// replaceIn stores value at field inside data, returning the new document
// data or nil when the document itself should be deleted.
func replaceIn(data map[string]any, field []string, value any) (map[string]any, error) {
	if len(field) == 0 {
		if value == nil {
			return nil, nil
		}
		m, ok := value.(map[string]any)
		if !ok {
			return nil, ErrInvalidValue
		}
		return m, nil
	}
	return setIn(data, field, value).(map[string]any), nil
}
