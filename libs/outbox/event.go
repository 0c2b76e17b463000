package outbox

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Event is the domain event envelope written to the outbox table.
// The Kafka topic name equals EventType.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// NewEvent marshals payload as JSON into an Event.
func NewEvent(aggregateType, aggregateID, eventType string, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Event{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       raw,
	}, nil
}

// Buffer holds events in process memory. Stores without a database append
// here in the same critical section as their data write.
type Buffer struct {
	mu     sync.Mutex
	events []Event
}

func NewBuffer() *Buffer {
	return &Buffer{}
}

func (b *Buffer) Append(events ...Event) {
	if len(events) == 0 {
		return
	}
	b.mu.Lock()
	b.events = append(b.events, events...)
	b.mu.Unlock()
}

// Drain returns buffered events and empties the buffer.
func (b *Buffer) Drain() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.events
	b.events = nil
	return out
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}
