package kafkax

import (
	"github.com/localli/booking/libs/config"
	"github.com/segmentio/kafka-go"
)

// Header keys set on every event published from an outbox.
const (
	HeaderEventID   = "event_id"
	HeaderEventType = "event_type"
)

// EventMeta identifies a consumed event for inbox dedupe and logging.
type EventMeta struct {
	EventID   string
	EventType string
}

// ExtractEventMeta reads the event headers. Messages from producers that do
// not set them fall back to the message key and the topic.
func ExtractEventMeta(msg kafka.Message) EventMeta {
	meta := EventMeta{
		EventID:   HeaderValue(msg.Headers, HeaderEventID),
		EventType: HeaderValue(msg.Headers, HeaderEventType),
	}
	if meta.EventID == "" {
		meta.EventID = string(msg.Key)
	}
	if meta.EventType == "" {
		meta.EventType = msg.Topic
	}
	return meta
}

// HeaderValue returns the last value of key; later headers override earlier ones.
func HeaderValue(headers []kafka.Header, key string) string {
	for i := len(headers) - 1; i >= 0; i-- {
		if headers[i].Key == key {
			return string(headers[i].Value)
		}
	}
	return ""
}

// SplitBrokers parses a KAFKA_BROKERS style list. Empty input yields nil.
func SplitBrokers(raw string) []string {
	brokers := config.SplitList(raw)
	if len(brokers) == 0 {
		return nil
	}
	return brokers
}
