package transport

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
)

// Handler is invoked with the raw payload of a named event.
type Handler func(data json.RawMessage)

// Subscription identifies a registered handler so it can be removed later.
type Subscription struct {
	event string
	id    string
}

type registration struct {
	id string
	fn Handler
}

// bus is a per-event callback registry. Handlers for the same event are
// invoked in registration order.
type bus struct {
	mu       sync.RWMutex
	handlers map[string][]registration
}

func newBus() *bus {
	return &bus{
		handlers: make(map[string][]registration),
	}
}

// on registers a handler for the named event
func (b *bus) on(event string, fn Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.NewString()
	b.handlers[event] = append(b.handlers[event], registration{id: id, fn: fn})
	return Subscription{event: event, id: id}
}

// off removes a previously registered handler. Removing an unknown or
// already-removed subscription is a no-op.
func (b *bus) off(sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	regs, ok := b.handlers[sub.event]
	if !ok {
		return
	}
	for i, reg := range regs {
		if reg.id == sub.id {
			b.handlers[sub.event] = append(regs[:i:i], regs[i+1:]...)
			break
		}
	}
	if len(b.handlers[sub.event]) == 0 {
		delete(b.handlers, sub.event)
	}
}

// emit invokes every handler registered for the event, in order. Handlers
// run on the caller's goroutine; the registry lock is not held during calls
// so handlers may register or remove subscriptions.
func (b *bus) emit(event string, data json.RawMessage) {
	b.mu.RLock()
	regs := make([]registration, len(b.handlers[event]))
	copy(regs, b.handlers[event])
	b.mu.RUnlock()

	for _, reg := range regs {
		reg.fn(data)
	}
}

// clear drops every registered handler
func (b *bus) clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = make(map[string][]registration)
}
