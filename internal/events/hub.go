package events

import (
	"log"
	"reflect"
	"sync"
)

type Event string

const (
	Connected    Event = "connected"
	Disconnected Event = "disconnected"
	Error        Event = "error"
	NoteUpdated  Event = "noteUpdated"
	NoteCreated  Event = "noteCreated"
)

type Callback func(payload any)

type subscriber struct {
	key uintptr
	fn  Callback
}

// Hub is a synchronous in-process publish/subscribe registry. Callbacks for an
// event fire in registration order; there is no ordering across events and no
// buffering.
type Hub struct {
	mu          sync.Mutex
	subscribers map[Event][]subscriber
}

func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[Event][]subscriber),
	}
}

// On registers fn under event. Registering the same function twice is a no-op.
// Callback identity is the function's code pointer, so distinct closures built
// from the same literal count as the same callback.
func (h *Hub) On(event Event, fn Callback) {
	key := reflect.ValueOf(fn).Pointer()

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, sub := range h.subscribers[event] {
		if sub.key == key {
			return
		}
	}
	h.subscribers[event] = append(h.subscribers[event], subscriber{key: key, fn: fn})
}

func (h *Hub) Off(event Event, fn Callback) {
	key := reflect.ValueOf(fn).Pointer()

	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.subscribers[event]
	for i, sub := range subs {
		if sub.key == key {
			h.subscribers[event] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

// Emit invokes every callback currently registered for event. A panicking
// callback is logged and must not stop the remaining callbacks from running.
func (h *Hub) Emit(event Event, payload any) {
	h.mu.Lock()
	subs := make([]subscriber, len(h.subscribers[event]))
	copy(subs, h.subscribers[event])
	h.mu.Unlock()

	for _, sub := range subs {
		invoke(event, sub.fn, payload)
	}
}

func invoke(event Event, fn Callback, payload any) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("events: callback for %q panicked: %v", event, r)
		}
	}()
	fn(payload)
}
