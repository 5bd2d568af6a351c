// Package events provides the in-process event bus used to push job
// lifecycle and progress updates to the SSE and WebSocket streams.
package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EventType identifies a class of event on the bus
type EventType string

const (
	// JobStarted is published when a single-run or batch job begins
	JobStarted EventType = "JobStarted"
	// JobProgress is published while a job advances (throttled by the reporter)
	JobProgress EventType = "JobProgress"
	// JobCompleted is published when a job reaches DONE
	JobCompleted EventType = "JobCompleted"
	// JobFailed is published when a job fails before producing a result
	JobFailed EventType = "JobFailed"
	// JobAborted is published when a cancelled job settles
	JobAborted EventType = "JobAborted"
	// HistoryImported is published after a CSV import finishes
	HistoryImported EventType = "HistoryImported"
)

// Event is a single bus message
type Event struct {
	Type      EventType   `json:"type"`
	Module    string      `json:"module"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// Handler receives published events. Handlers must not block; slow consumers
// buffer internally and drop (see the stream handlers).
type Handler func(event *Event)

// Bus is a simple synchronous publish/subscribe bus. Publish calls every
// subscribed handler inline, so handler registration happens at startup and
// handlers hand work off to channels.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[EventType][]subscription
	log    zerolog.Logger
}

type subscription struct {
	id      uint64
	handler Handler
}

// NewBus creates a new event bus
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		subs: make(map[EventType][]subscription),
		log:  log.With().Str("component", "event_bus").Logger(),
	}
}

// Subscribe registers a handler for one event type. The returned function
// removes the handler again; stream handlers call it when a client
// disconnects.
func (b *Bus) Subscribe(eventType EventType, handler Handler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[eventType] = append(b.subs[eventType], subscription{id: id, handler: handler})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		list := b.subs[eventType]
		for i, sub := range list {
			if sub.id == id {
				// Full slice expression forces a copy so a Publish iterating
				// the old backing array never sees the mutation
				b.subs[eventType] = append(list[:i:i], list[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers an event to all handlers subscribed to its type.
// A nil timestamp is filled in with the current time.
func (b *Bus) Publish(event *Event) {
	if event == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	subs := b.subs[event.Type]
	b.mu.RUnlock()

	for _, sub := range subs {
		sub.handler(event)
	}
}

// Emit is a convenience wrapper building the Event envelope
func (b *Bus) Emit(eventType EventType, module string, data interface{}) {
	b.Publish(&Event{
		Type:   eventType,
		Module: module,
		Data:   data,
	})
}
