package docstore

import (
	"sync"
)

const defaultSubscriberBuffer = 16

// changeHub fans snapshots out to collection subscribers. Delivery is
// latest-wins: a slow consumer drops stale snapshots, never blocks a writer.
type changeHub struct {
	mu      sync.RWMutex
	streams map[string]*stream
	buffer  int
}

type stream struct {
	mu     sync.Mutex
	subs   map[uint64]*Subscription
	nextID uint64
}

// Subscription is a live feed of snapshots for one collection and filter set.
type Subscription struct {
	hub        *changeHub
	collection string
	filters    []Filter
	id         uint64
	ch         chan Snapshot
	once       sync.Once
}

func newChangeHub() *changeHub {
	return &changeHub{
		streams: make(map[string]*stream),
		buffer:  defaultSubscriberBuffer,
	}
}

func (h *changeHub) subscribe(collection string, filters []Filter) *Subscription {
	st := h.ensureStream(collection)

	st.mu.Lock()
	defer st.mu.Unlock()
	id := st.nextID
	st.nextID++
	sub := &Subscription{
		hub:        h,
		collection: collection,
		filters:    filters,
		id:         id,
		ch:         make(chan Snapshot, h.buffer),
	}
	st.subs[id] = sub
	return sub
}

// subscribers returns the subscriptions whose filters match either the new
// or the previous state of a changed record.
func (h *changeHub) subscribers(collection string, newRec, oldRec Record) []*Subscription {
	h.mu.RLock()
	st := h.streams[collection]
	h.mu.RUnlock()
	if st == nil {
		return nil
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	matched := make([]*Subscription, 0, len(st.subs))
	for _, sub := range st.subs {
		if matchesFilters(newRec, sub.filters) || matchesFilters(oldRec, sub.filters) {
			matched = append(matched, sub)
		}
	}
	return matched
}

func (h *changeHub) ensureStream(collection string) *stream {
	h.mu.RLock()
	current := h.streams[collection]
	h.mu.RUnlock()
	if current != nil {
		return current
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	current = h.streams[collection]
	if current == nil {
		current = &stream{subs: make(map[uint64]*Subscription)}
		h.streams[collection] = current
	}
	return current
}

func (h *changeHub) unsubscribe(collection string, id uint64) {
	h.mu.RLock()
	st := h.streams[collection]
	h.mu.RUnlock()
	if st == nil {
		return
	}

	st.mu.Lock()
	delete(st.subs, id)
	remaining := len(st.subs)
	st.mu.Unlock()
	if remaining != 0 {
		return
	}

	h.mu.Lock()
	current := h.streams[collection]
	if current == st {
		st.mu.Lock()
		if len(st.subs) == 0 {
			delete(h.streams, collection)
		}
		st.mu.Unlock()
	}
	h.mu.Unlock()
}

func (s *Subscription) deliver(snap Snapshot) {
	for {
		select {
		case s.ch <- snap:
			return
		default:
		}
		// Full buffer: evict the oldest pending snapshot, it is stale
		// anyway since every snapshot carries the complete state.
		select {
		case <-s.ch:
		default:
		}
	}
}

// Snapshots returns the subscription's delivery channel.
func (s *Subscription) Snapshots() <-chan Snapshot {
	if s == nil {
		return nil
	}
	return s.ch
}

// Close detaches the subscription from the hub.
func (s *Subscription) Close() {
	if s == nil || s.hub == nil {
		return
	}
	s.once.Do(func() {
		s.hub.unsubscribe(s.collection, s.id)
	})
}
