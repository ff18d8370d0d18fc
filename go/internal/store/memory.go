package store

import (
	"context"
	"sync"
)

// MemoryBackend keeps documents in process memory. It backs tests and
// single-process deployments.
type MemoryBackend struct {
	mu       sync.Mutex
	docs     map[Key]Document
	watchers map[Key]map[chan struct{}]struct{}
	version  int64
}

var _ Backend = (*MemoryBackend)(nil)

// NewMemoryBackend creates an empty backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		docs:     make(map[Key]Document),
		watchers: make(map[Key]map[chan struct{}]struct{}),
	}
}

func (m *MemoryBackend) Load(ctx context.Context, key Key) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	doc := m.docs[key]
	return Document{Data: CopyDocument(doc.Data), Version: doc.Version}, nil
}

func (m *MemoryBackend) Commit(ctx context.Context, key Key, expect int64, data map[string]any) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.docs[key].Version != expect {
		return 0, ErrVersionConflict
	}

	var version int64
	if data == nil {
		delete(m.docs, key)
	} else {
		m.version++
		version = m.version
		m.docs[key] = Document{Data: CopyDocument(data), Version: version}
	}

	for ch := range m.watchers[key] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	return version, nil
}

func (m *MemoryBackend) Watch(ctx context.Context, key Key, emit func(Document) bool) error {
	signal := make(chan struct{}, 1)
	signal <- struct{}{}

	m.mu.Lock()
	if m.watchers[key] == nil {
		m.watchers[key] = make(map[chan struct{}]struct{})
	}
	m.watchers[key][signal] = struct{}{}
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.watchers[key], signal)
		if len(m.watchers[key]) == 0 {
			delete(m.watchers, key)
		}
		m.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-signal:
			doc, err := m.Load(ctx, key)
			if err != nil {
				return nil
			}
			if !emit(doc) {
				return nil
			}
		}
	}
}

// WatcherCount reports how many watches are registered for key.
func (m *MemoryBackend) WatcherCount(key Key) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.watchers[key])
}

func (m *MemoryBackend) Close() error {
	return nil
}
