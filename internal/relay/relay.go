// Package relay forwards loop lifecycle events to a Kafka topic as JSON
// envelopes, so external observers can follow task progress.
package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/HelmsmanAI/helmsman/internal/bus"
)

// Envelope is the wire form of one relayed event.
type Envelope struct {
	Event     string         `json:"event"`
	Agent     string         `json:"agent,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// messageWriter is the slice of kafka.Writer the relay needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// defaultEvents are relayed when no explicit selection is given. Model
// call events are omitted: they carry full prompts and replies.
var defaultEvents = []string{
	bus.TaskStarted,
	bus.BeforeAction,
	bus.AfterAction,
	bus.BeforeHistoryClear,
	bus.AfterHistoryClear,
	bus.TaskCompleted,
}

// Relay is an event-bus subscriber that publishes envelopes to Kafka.
// Publish failures are logged and never propagate into the loop.
type Relay struct {
	writer  messageWriter
	timeout time.Duration
	subs    map[string]int
}

// New creates a relay writing to topic on the given brokers.
func New(brokers []string, topic string) *Relay {
	return &Relay{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireOne,
			Async:        false,
		},
		timeout: 5 * time.Second,
		subs:    make(map[string]int),
	}
}

// NewWithWriter creates a relay over an existing writer. Tests use this.
func NewWithWriter(w messageWriter) *Relay {
	return &Relay{writer: w, timeout: 5 * time.Second, subs: make(map[string]int)}
}

// Attach subscribes the relay to the named events, or to the default set
// when none are given.
func (r *Relay) Attach(b *bus.EventBus, names ...string) {
	if len(names) == 0 {
		names = defaultEvents
	}
	for _, name := range names {
		n := name
		r.subs[n] = b.Subscribe(n, func(ev bus.Event) { r.publish(ev) })
	}
}

// Detach removes the relay's subscriptions from the bus.
func (r *Relay) Detach(b *bus.EventBus) {
	for name, id := range r.subs {
		b.Unsubscribe(name, id)
		delete(r.subs, name)
	}
}

// Close releases the underlying writer.
func (r *Relay) Close() error {
	return r.writer.Close()
}

func (r *Relay) publish(ev bus.Event) {
	env := Envelope{
		Event:     ev.Name,
		Timestamp: time.Now().UTC(),
		Payload:   ev.Payload,
	}
	if agent, ok := ev.Payload["agent"].(string); ok {
		env.Agent = agent
	}

	data, err := json.Marshal(env)
	if err != nil {
		slog.Warn("Relay envelope encode failed", "event", ev.Name, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	msg := kafka.Message{Key: []byte(env.Agent), Value: data}
	if err := r.writer.WriteMessages(ctx, msg); err != nil {
		slog.Warn("Relay publish failed", "event", ev.Name, "error", err)
	}
}
