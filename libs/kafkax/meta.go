package kafkax

import (
	"context"
	"strings"

	"github.com/segmentio/kafka-go"
)

// EventMeta is carried as headers on every message we publish.
type EventMeta struct {
	EventID   string
	EventType string
}

// NewMessage builds a message for topic keyed by key, with the event meta
// and the W3C trace context of ctx as headers.
func NewMessage(ctx context.Context, topic, key string, meta EventMeta, value []byte) kafka.Message {
	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(meta.EventID)},
			{Key: "event_type", Value: []byte(meta.EventType)},
		},
	}
	msg.Headers = InjectTraceHeaders(ctx, msg.Headers)
	return msg
}

func HeaderValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func SplitBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
