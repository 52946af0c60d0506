package observability

import (
	"context"
	"fmt"
	"time"
)

// EventEnvelope wraps operational events published to the broker.
type EventEnvelope struct {
	SchemaVersion int    `json:"schema_version"`
	EventType     string `json:"event_type"`
	EventName     string `json:"event_name"`
	OccurredAt    string `json:"occurred_at"`
	RequestID     string `json:"request_id,omitempty"`
	TraceID       string `json:"trace_id,omitempty"`
	Payload       any    `json:"payload"`
}

// EventPublisher is satisfied by rabbitmq.Publisher.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

var defaultPublisher EventPublisher

func SetPublisher(publisher EventPublisher) {
	defaultPublisher = publisher
}

// PublishEvent sends an operational event when a publisher is configured.
func PublishEvent(ctx context.Context, routingKey string, envelope EventEnvelope) error {
	if defaultPublisher == nil {
		return nil
	}
	if envelope.SchemaVersion == 0 {
		envelope.SchemaVersion = 1
	}
	if envelope.OccurredAt == "" {
		envelope.OccurredAt = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if envelope.TraceID == "" {
		envelope.TraceID = TraceIDFromContext(ctx)
	}

	if err := defaultPublisher.Publish(ctx, routingKey, envelope); err != nil {
		return fmt.Errorf("publish %s: %w", envelope.EventName, err)
	}
	return nil
}
