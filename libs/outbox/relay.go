package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/localli/booking/libs/kafkax"
	"github.com/segmentio/kafka-go"
)

// BufferRelay forwards events from an in-memory Buffer. With no writer the
// events are only logged. Delivery is best effort: a failed write is logged
// and the batch dropped, since the buffer does not survive restarts anyway.
type BufferRelay struct {
	buf    *Buffer
	writer MessageWriter
	logger *slog.Logger
	every  time.Duration
}

func NewBufferRelay(buf *Buffer, writer MessageWriter, logger *slog.Logger, every time.Duration) *BufferRelay {
	if every <= 0 {
		every = time.Second
	}
	return &BufferRelay{buf: buf, writer: writer, logger: logger, every: every}
}

func (r *BufferRelay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.Flush(context.Background())
			return
		case <-ticker.C:
			r.Flush(ctx)
		}
	}
}

// Flush drains the buffer once and returns how many events were handled.
func (r *BufferRelay) Flush(ctx context.Context) int {
	events := r.buf.Drain()
	if len(events) == 0 {
		return 0
	}
	if r.writer == nil {
		for _, evt := range events {
			r.logger.Info("event emitted", "event_type", evt.EventType, "aggregate_id", evt.AggregateID, "payload", string(evt.Payload))
		}
		return len(events)
	}

	msgs := make([]kafka.Message, 0, len(events))
	for _, evt := range events {
		eventID := uuid.NewString()
		msgs = append(msgs, kafka.Message{
			Topic:   evt.EventType,
			Key:     []byte(evt.AggregateID),
			Value:   evt.Payload,
			Headers: kafkax.InjectTraceHeaders(ctx, kafkax.Headers(eventID, evt.EventType)),
		})
	}
	if err := r.writer.WriteMessages(ctx, msgs...); err != nil {
		r.logger.Error("in-memory outbox relay failed", "count", len(msgs), "err", err)
		return 0
	}
	return len(msgs)
}
