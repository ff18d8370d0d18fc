package postgres

import (
	"sync"

	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

// notifier fans LISTEN notifications out to the watches of each document.
type notifier struct {
	listener *pq.Listener

	mu     sync.Mutex
	subs   map[string]map[chan struct{}]struct{}
	closed bool
}

func newNotifier(listener *pq.Listener) *notifier {
	return &notifier{
		listener: listener,
		subs:     make(map[string]map[chan struct{}]struct{}),
	}
}

// subscribe returns a signal channel that already holds one pending signal,
// so the watcher performs its initial read.
func (n *notifier) subscribe(key string) chan struct{} {
	ch := make(chan struct{}, 1)
	ch <- struct{}{}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		close(ch)
		return ch
	}
	if n.subs[key] == nil {
		n.subs[key] = make(map[chan struct{}]struct{})
	}
	n.subs[key][ch] = struct{}{}
	return ch
}

func (n *notifier) unsubscribe(key string, ch chan struct{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.subs[key][ch]; !ok {
		return
	}
	delete(n.subs[key], ch)
	if len(n.subs[key]) == 0 {
		delete(n.subs, key)
	}
}

func (n *notifier) run() {
	for notification := range n.listener.Notify {
		n.mu.Lock()
		if notification == nil {
			// reconnected: notifications may have been missed, wake everyone
			log.Warn().Msg("postgres listener reconnected, refreshing all watches")
			for _, chans := range n.subs {
				wake(chans)
			}
		} else {
			wake(n.subs[notification.Extra])
		}
		n.mu.Unlock()
	}
}

func wake(chans map[chan struct{}]struct{}) {
	for ch := range chans {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (n *notifier) close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	for key, chans := range n.subs {
		for ch := range chans {
			close(ch)
		}
		delete(n.subs, key)
	}
	n.mu.Unlock()
	return n.listener.Close()
}
