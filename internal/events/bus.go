package events

import "sync"

// Handler receives published events.
type Handler func(Event)

// Bus delivers events synchronously to subscribers in subscription order.
// A nil *Bus drops everything, so publishers never need a nil check.
type Bus struct {
	mu       sync.RWMutex
	byKind   map[Kind][]Handler
	wildcard []Handler
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{byKind: make(map[Kind][]Handler)}
}

// Subscribe registers h for the given kinds, or for every kind when none
// are given.
func (b *Bus) Subscribe(h Handler, kinds ...Kind) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(kinds) == 0 {
		b.wildcard = append(b.wildcard, h)
		return
	}
	for _, k := range kinds {
		b.byKind[k] = append(b.byKind[k], h)
	}
}

// Publish delivers ev to kind subscribers, then wildcard subscribers.
func (b *Bus) Publish(ev Event) {
	if b == nil || ev == nil {
		return
	}

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.byKind[ev.Kind()])+len(b.wildcard))
	handlers = append(handlers, b.byKind[ev.Kind()]...)
	handlers = append(handlers, b.wildcard...)
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
}
