package event

import (
	"reflect"
	"sync"
)

// Bus delivers typed events synchronously on the publisher's goroutine.
// Handlers must not block; hand long work to a goroutine or channel.
type Bus struct {
	mu       sync.RWMutex
	handlers map[reflect.Type][]any
	all      []func(any)
}

func NewBus() *Bus {
	return &Bus{
		handlers: make(map[reflect.Type][]any),
	}
}

// Subscribe registers a typed handler for events of type T.
func Subscribe[T any](b *Bus, fn func(T)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t := reflect.TypeOf((*T)(nil)).Elem()
	b.handlers[t] = append(b.handlers[t], fn)
}

// SubscribeAll registers a handler that sees every event, used by feeds
// that forward events without knowing their types.
func (b *Bus) SubscribeAll(fn func(event any)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, fn)
}

// Publish calls every handler subscribed to T, then every SubscribeAll
// handler, in registration order.
func Publish[T any](b *Bus, event T) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	b.mu.RLock()
	handlers := b.handlers[t]
	all := b.all
	b.mu.RUnlock()

	for _, h := range handlers {
		// Safe because Subscribe and Publish use the same type key.
		h.(func(T))(event)
	}
	for _, h := range all {
		h(event)
	}
}

// Name returns the event's type name, e.g. "PositionChanged".
func Name(event any) string {
	return reflect.TypeOf(event).Name()
}
