// Package events carries per-target lifecycle progress out of the fleet
// coordinator so callers can render it without blocking dispatch.
package events

import "sync"

// EventType defines the type of event
type EventType string

const (
	EventConnecting    EventType = "connecting"
	EventTrustAccepted EventType = "trust_accepted"
	EventStaging       EventType = "staging"
	EventExecuting     EventType = "executing"
	EventRetrying      EventType = "retrying"
	EventDone          EventType = "done"
	EventFailed        EventType = "failed"
)

// Event is one lifecycle step on one target
type Event struct {
	Type    EventType `json:"type"`
	Target  string    `json:"target"`
	Detail  string    `json:"detail,omitempty"`
	Attempt int       `json:"attempt,omitempty"`
}

// Bus allows publishing and subscribing to events. Publish never
// blocks: a slow subscriber misses events rather than stalling a
// target's dispatch.
type Bus struct {
	mu          sync.RWMutex
	subscribers []chan<- Event
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{
		subscribers: make([]chan<- Event, 0),
	}
}

// Subscribe adds a subscriber to receive events
func (b *Bus) Subscribe(ch chan<- Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, ch)
}

// Publish sends an event to all subscribers
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			// Subscriber is slow, skip
		}
	}
}
