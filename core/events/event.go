package events

import (
	"sync"

	"tranchefi/core/types"
)

// Event represents a structured state change emitted by a ledger engine.
type Event interface {
	EventType() string
}

// Typed is implemented by events that can render themselves as a
// types.Event for logging and API responses.
type Typed interface {
	Event
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (e.g. logs, metrics).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Buffer holds emitted events until the caller drains them. It lets a host
// publish events only once the state change that produced them is durable.
type Buffer struct {
	mu     sync.Mutex
	events []Event
}

// Emit implements the Emitter interface.
func (b *Buffer) Emit(evt Event) {
	if b == nil || evt == nil {
		return
	}
	b.mu.Lock()
	b.events = append(b.events, evt)
	b.mu.Unlock()
}

// Drain returns the buffered events and empties the buffer.
func (b *Buffer) Drain() []Event {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.events
	b.events = nil
	return out
}

// Render converts events into their attribute form, skipping events that do
// not implement Typed.
func Render(list []Event) []*types.Event {
	out := make([]*types.Event, 0, len(list))
	for _, evt := range list {
		typed, ok := evt.(Typed)
		if !ok {
			continue
		}
		if rendered := typed.Event(); rendered != nil {
			out = append(out, rendered)
		}
	}
	return out
}
