package reconcile

import (
	"sync"

	"github.com/glowhub/portal/internal/docstore"
	"go.uber.org/zap"
)

// Update is one reconciled state change, published only when the new
// snapshot genuinely differs from the previous one.
type Update struct {
	Collection string            `json:"collection"`
	Records    []docstore.Record `json:"records"`
}

// UpdateSub is one hub subscriber.
type UpdateSub struct {
	ch   chan Update
	once sync.Once
}

// C is the subscriber's update channel. It closes on unsubscribe.
func (s *UpdateSub) C() <-chan Update { return s.ch }

// Hub fans reconciled updates out to view subscribers. Slow consumers
// lose updates rather than block the reconciler.
type Hub struct {
	mu     sync.RWMutex
	subs   map[*UpdateSub]struct{}
	closed bool
	log    *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		subs: make(map[*UpdateSub]struct{}),
		log:  log.Named("reconcile.hub"),
	}
}

func (h *Hub) Subscribe() *UpdateSub {
	sub := &UpdateSub{ch: make(chan Update, 16)}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(sub.ch)
		return sub
	}
	h.subs[sub] = struct{}{}
	return sub
}

func (h *Hub) Unsubscribe(sub *UpdateSub) {
	h.mu.Lock()
	if _, ok := h.subs[sub]; ok {
		delete(h.subs, sub)
	}
	h.mu.Unlock()

	sub.once.Do(func() { close(sub.ch) })
}

func (h *Hub) Publish(u Update) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	for sub := range h.subs {
		select {
		case sub.ch <- u:
		default:
			h.log.Warn("dropping update for slow subscriber",
				zap.String("collection", u.Collection),
			)
		}
	}
}

func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for sub := range h.subs {
		delete(h.subs, sub)
		sub.once.Do(func() { close(sub.ch) })
	}
}
