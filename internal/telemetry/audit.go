package telemetry

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

type requestIDKey struct{}

// WithRequestID stores the request id on ctx so that audit events emitted
// further down the call chain can be correlated with the request.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestIDFromContext returns the request id stored by WithRequestID.
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

type AuditEmitter struct {
	publisher   Publisher
	routingKey  string
	service     string
	environment string
	log         logrus.FieldLogger
}

type AuditEnvelope struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	OccurredAt    string       `json:"occurred_at"`
	Service       string       `json:"service"`
	Environment   string       `json:"environment"`
	RequestID     string       `json:"request_id"`
	UserID        *string      `json:"user_id,omitempty"`
	Payload       AuditPayload `json:"payload"`
}

type AuditPayload struct {
	Level    string `json:"level"`
	Action   string `json:"action"`
	Resource string `json:"resource,omitempty"`
	Text     string `json:"text"`
}

func NewAuditEmitter(publisher Publisher, routingKey, service, environment string, log logrus.FieldLogger) *AuditEmitter {
	return &AuditEmitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
		log:         log,
	}
}

// Emit publishes an audit record. Failures are logged and never returned.
func (e *AuditEmitter) Emit(ctx context.Context, level, action, resource, text, userID string) {
	if e == nil || e.publisher == nil {
		return
	}

	requestID := RequestIDFromContext(ctx)
	var actor *string
	if userID != "" {
		actor = &userID
	}

	envelope := AuditEnvelope{
		SchemaVersion: 1,
		EventType:     "audit_log",
		OccurredAt:    time.Now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		RequestID:     requestID,
		UserID:        actor,
		Payload: AuditPayload{
			Level:    level,
			Action:   action,
			Resource: resource,
			Text:     text,
		},
	}

	if err := e.publisher.Publish(ctx, e.routingKey, envelope); err != nil && e.log != nil {
		e.log.WithError(err).WithFields(logrus.Fields{
			"action":     action,
			"request_id": requestID,
		}).Warn("audit publish failed")
	}
}
