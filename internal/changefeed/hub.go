package changefeed

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

type subscription struct {
	ch          chan Change
	collections map[string]bool
}

func (s *subscription) wants(collection string) bool {
	return len(s.collections) == 0 || s.collections[collection]
}

// Hub is an in-process feed for single-node deployments and tests.
// Slow subscribers lose changes rather than blocking writers.
type Hub struct {
	mu     sync.RWMutex
	subs   map[*subscription]struct{}
	buffer int
}

// NewHub returns a hub whose subscribers buffer up to buffer changes.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{subs: make(map[*subscription]struct{}), buffer: buffer}
}

func (h *Hub) Publish(_ context.Context, c Change) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs {
		if !s.wants(c.Collection) {
			continue
		}
		select {
		case s.ch <- c:
		default:
			log.Warn().Str("collection", c.Collection).Str("id", c.ID).Msg("[ChangeHub] subscriber full, change dropped")
		}
	}
	return nil
}

func (h *Hub) Subscribe(ctx context.Context, collections ...string) (<-chan Change, error) {
	s := &subscription{ch: make(chan Change, h.buffer), collections: make(map[string]bool)}
	for _, c := range collections {
		s.collections[c] = true
	}
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs, s)
		close(s.ch)
		h.mu.Unlock()
	}()
	return s.ch, nil
}

// Subscribers returns the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
