package events

import (
	"sync"
	"time"
)

// EventSource represents the source of an event
type EventSource string

const (
	EventSourceIRC     EventSource = "irc"
	EventSourceSession EventSource = "session"
	EventSourceRemote  EventSource = "remote"
)

// Wildcard subscribes to every event type
const Wildcard = "*"

// Event represents a generic event
type Event struct {
	Type      string
	Data      map[string]interface{}
	Timestamp time.Time
	Source    EventSource
}

// New builds an event stamped with the current time
func New(eventType string, source EventSource, data map[string]interface{}) Event {
	return Event{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now(),
		Source:    source,
	}
}

// Subscriber is an interface for event subscribers
type Subscriber interface {
	OnEvent(event Event)
}

// SubscriberFunc adapts a function to the Subscriber interface
type SubscriberFunc func(event Event)

// OnEvent calls f(event)
func (f SubscriberFunc) OnEvent(event Event) {
	f(event)
}

type subscription struct {
	id  uint64
	sub Subscriber
}

// EventBus manages event routing
type EventBus struct {
	subscribers map[string][]subscription
	nextID      uint64
	mu          sync.RWMutex
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[string][]subscription),
	}
}

// Subscribe subscribes to a specific event type (or Wildcard) and returns a
// function that removes the subscription.
func (eb *EventBus) Subscribe(eventType string, subscriber Subscriber) func() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.nextID++
	id := eb.nextID
	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscription{id: id, sub: subscriber})

	var once sync.Once
	return func() {
		once.Do(func() { eb.unsubscribe(eventType, id) })
	}
}

func (eb *EventBus) unsubscribe(eventType string, id uint64) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	subs := eb.subscribers[eventType]
	for i, s := range subs {
		if s.id == id {
			eb.subscribers[eventType] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(eb.subscribers[eventType]) == 0 {
		delete(eb.subscribers, eventType)
	}
}

// snapshot copies the specific and wildcard subscribers for an event type
func (eb *EventBus) snapshot(eventType string) []Subscriber {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	specific := eb.subscribers[eventType]
	wildcard := eb.subscribers[Wildcard]
	subs := make([]Subscriber, 0, len(specific)+len(wildcard))
	for _, s := range specific {
		subs = append(subs, s.sub)
	}
	if eventType != Wildcard {
		for _, s := range wildcard {
			subs = append(subs, s.sub)
		}
	}
	return subs
}

// Emit delivers an event to every subscriber on its own goroutine
func (eb *EventBus) Emit(event Event) {
	if eb == nil {
		return
	}
	for _, sub := range eb.snapshot(event.Type) {
		go sub.OnEvent(event)
	}
}

// EmitSync delivers an event synchronously (for testing or when order matters)
func (eb *EventBus) EmitSync(event Event) {
	if eb == nil {
		return
	}
	for _, sub := range eb.snapshot(event.Type) {
		sub.OnEvent(event)
	}
}
