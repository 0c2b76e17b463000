package kafkax

import (
	"time"

	"github.com/segmentio/kafka-go"
)

// NewWriter returns a writer that routes each message by its Topic field and
// hashes keys so events of one aggregate stay on one partition.
func NewWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
	}
}

// Headers builds the canonical event headers carried on every message.
func Headers(eventID, eventType string) []kafka.Header {
	return []kafka.Header{
		{Key: HeaderEventID, Value: []byte(eventID)},
		{Key: HeaderEventType, Value: []byte(eventType)},
	}
}
