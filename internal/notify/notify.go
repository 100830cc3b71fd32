// Package notify broadcasts change signals to in-process observers.
//
// Delivery is fire-and-forget: Publish never blocks, and an event is dropped
// for any subscriber whose buffer is full. Nothing is queued for observers
// that subscribe later.
package notify

import (
	"sync"
	"sync/atomic"
)

type Signal string

const (
	DataChanged     Signal = "data_changed"
	SettingsChanged Signal = "settings_changed"
)

// Event carries the signal and, for DataChanged, the entity kind that
// changed. SettingsChanged events carry the setting key in Entity.
type Event struct {
	Signal Signal
	Entity string
}

func Data(kind string) Event     { return Event{Signal: DataChanged, Entity: kind} }
func Settings(key string) Event { return Event{Signal: SettingsChanged, Entity: key} }

const DefaultBuffer = 64

type Hub struct {
	mu      sync.RWMutex
	subs    map[*Subscription]struct{}
	closed  bool
	dropped atomic.Uint64
}

func NewHub() *Hub {
	return &Hub{subs: map[*Subscription]struct{}{}}
}

type Subscription struct {
	hub  *Hub
	ch   chan Event
	once sync.Once
}

// C is closed when the subscription is cancelled or the hub is closed.
func (s *Subscription) C() <-chan Event {
	return s.ch
}

func (s *Subscription) Close() {
	s.hub.remove(s)
}

// Subscribe registers an observer. A buffer <= 0 uses DefaultBuffer.
func (h *Hub) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	sub := &Subscription{hub: h, ch: make(chan Event, buffer)}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		sub.once.Do(func() { close(sub.ch) })
		return sub
	}
	h.subs[sub] = struct{}{}
	return sub
}

// Publish is safe on a nil hub.
func (h *Hub) Publish(event Event) {
	if h == nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs {
		select {
		case sub.ch <- event:
		default:
			h.dropped.Add(1)
		}
	}
}

// Dropped reports how many deliveries were skipped because a subscriber was
// full.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
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

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, sub)
	sub.once.Do(func() { close(sub.ch) })
}
