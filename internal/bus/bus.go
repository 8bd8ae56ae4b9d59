// Package bus provides the synchronous event bus for loop lifecycle events.
package bus

import (
	"log/slog"
	"sync"
)

// Well-known event names emitted by the run loop.
const (
	TaskStarted        = "task_started"
	BeforeModelCall    = "before_model_call"
	AfterModelCall     = "after_model_call"
	BeforeAction       = "before_action"
	AfterAction        = "after_action"
	BeforeHistoryClear = "before_history_clear"
	AfterHistoryClear  = "after_history_clear"
	BeforeSummary      = "before_summary"
	AfterSummary       = "after_summary"
	TaskCompleted      = "task_completed"
)

// Event is an ephemeral notification. Subscribers must treat the payload
// as a read-only snapshot.
type Event struct {
	Name    string
	Payload map[string]any
}

// Handler receives events for a subscribed name.
type Handler func(Event)

type subscription struct {
	id      int
	handler Handler
}

// EventBus delivers events to subscribers in subscription order. Emit is a
// direct, in-line call chain: nothing is queued or delivered asynchronously.
type EventBus struct {
	mu     sync.Mutex
	nextID int
	subs   map[string][]subscription
}

// NewEventBus creates an empty event bus.
func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[string][]subscription)}
}

// Subscribe registers a handler for the named event and returns a
// subscription id for Unsubscribe.
func (b *EventBus) Subscribe(name string, h Handler) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.subs[name] = append(b.subs[name], subscription{id: b.nextID, handler: h})
	return b.nextID
}

// Unsubscribe removes the subscription with the given id from the named
// event. Unknown ids are ignored.
func (b *EventBus) Unsubscribe(name string, id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[name]
	for i, s := range subs {
		if s.id == id {
			b.subs[name] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

// Emit delivers the event to all subscribers of name, in subscription
// order. A panicking subscriber is logged and skipped; delivery to the
// remaining subscribers continues and nothing propagates to the caller.
func (b *EventBus) Emit(name string, payload map[string]any) {
	b.mu.Lock()
	subs := make([]subscription, len(b.subs[name]))
	copy(subs, b.subs[name])
	b.mu.Unlock()

	ev := Event{Name: name, Payload: payload}
	for _, s := range subs {
		deliver(s.handler, ev)
	}
}

// SubscriberCount returns the number of subscribers for the named event.
func (b *EventBus) SubscriberCount(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[name])
}

func deliver(h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("Event subscriber panicked", "event", ev.Name, "panic", r)
		}
	}()
	h(ev)
}
