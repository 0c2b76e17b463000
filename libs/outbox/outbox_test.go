package outbox

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/localli/booking/libs/kafkax"
	"github.com/segmentio/kafka-go"
)

func TestNewEventMarshalsPayload(t *testing.T) {
	evt, err := NewEvent("appointment", "appt-1", "booking.appointment.booked.v1", map[string]string{"slot": "11:00-12:00"})
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}
	var payload map[string]string
	if err := json.Unmarshal(evt.Payload, &payload); err != nil {
		t.Fatalf("payload is not json: %v", err)
	}
	if payload["slot"] != "11:00-12:00" || evt.AggregateID != "appt-1" {
		t.Fatalf("unexpected event: %+v", evt)
	}
}

func TestBufferConcurrentAppendAndDrain(t *testing.T) {
	b := NewBuffer()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Append(Event{EventType: "x"})
		}()
	}
	wg.Wait()
	if b.Len() != 20 {
		t.Fatalf("expected 20 events, got %d", b.Len())
	}
	if got := len(b.Drain()); got != 20 {
		t.Fatalf("expected drain of 20, got %d", got)
	}
	if b.Len() != 0 {
		t.Fatal("expected empty buffer after drain")
	}
}

func TestToMessage(t *testing.T) {
	msg := ToMessage(context.Background(), Record{
		EventID:     "evt-1",
		AggregateID: "appt-1",
		EventType:   "booking.appointment.cancelled.v1",
		Payload:     []byte(`{}`),
	})
	if msg.Topic != "booking.appointment.cancelled.v1" || string(msg.Key) != "appt-1" {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if kafkax.HeaderValue(msg.Headers, "event_id") != "evt-1" {
		t.Fatal("missing event_id header")
	}
}

type fakeWriter struct {
	msgs []kafka.Message
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestBufferRelayFlush(t *testing.T) {
	buf := NewBuffer()
	w := &fakeWriter{}
	relay := NewBufferRelay(buf, w, slog.New(slog.NewTextHandler(io.Discard, nil)), time.Second)

	if n := relay.Flush(context.Background()); n != 0 {
		t.Fatalf("expected nothing to flush, got %d", n)
	}
	buf.Append(Event{AggregateID: "a1", EventType: "booking.appointment.booked.v1", Payload: []byte(`{}`)})
	if n := relay.Flush(context.Background()); n != 1 {
		t.Fatalf("expected 1 flushed event, got %d", n)
	}
	if len(w.msgs) != 1 || w.msgs[0].Topic != "booking.appointment.booked.v1" {
		t.Fatalf("unexpected messages %+v", w.msgs)
	}
	if kafkax.HeaderValue(w.msgs[0].Headers, "event_id") == "" {
		t.Fatal("expected generated event_id header")
	}
	if buf.Len() != 0 {
		t.Fatal("expected drained buffer")
	}
}
