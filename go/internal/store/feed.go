package store

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Feed is a Subscription whose snapshots are decoded into T.
type Feed[T any] struct {
	updates chan T
	sub     *Subscription
	cancel  context.CancelFunc
	done    chan struct{}
}

// Watch subscribes to path and decodes every snapshot with decode.
// Snapshots that fail to decode are logged and skipped.
func Watch[T any](ctx context.Context, s Store, path string, decode func(Snapshot) (T, error)) (*Feed[T], error) {
	ctx, cancel := context.WithCancel(ctx)
	sub, err := s.Subscribe(ctx, path)
	if err != nil {
		cancel()
		return nil, err
	}

	f := &Feed[T]{
		updates: make(chan T),
		sub:     sub,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	go func() {
		defer close(f.done)
		defer close(f.updates)
		defer sub.Close()

		for snap := range sub.Updates() {
			v, err := decode(snap)
			if err != nil {
				log.Error().Err(err).Str("path", path).Msg("failed to decode snapshot")
				continue
			}
			select {
			case f.updates <- v:
			case <-ctx.Done():
				return
			}
		}
	}()

	return f, nil
}

// Updates is closed once the feed ends.
func (f *Feed[T]) Updates() <-chan T {
	return f.updates
}

// Close stops the feed and waits for the underlying watch to be released.
func (f *Feed[T]) Close() {
	f.cancel()
	<-f.done
}

// Done is closed after the feed has fully stopped.
func (f *Feed[T]) Done() <-chan struct{} {
	return f.done
}

// Err reports why the feed ended on its own.
func (f *Feed[T]) Err() error {
	return f.sub.Err()
}

// DecodeOptional decodes a snapshot into a *T, returning nil when absent.
func DecodeOptional[T any](snap Snapshot) (*T, error) {
	if !snap.Exists() {
		return nil, nil
	}
	v := new(T)
	if err := snap.DataTo(v); err != nil {
		return nil, err
	}
	return v, nil
}
