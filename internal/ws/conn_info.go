package ws

import (
	"context"
	"time"

	"messaging-service/internal/observability"
)

const wsRoutingKey = "ws_events.messages"

// ConnInfo identifies one websocket connection for logs and ws_events.
type ConnInfo struct {
	observability.Client
	ConnID      string
	UserID      string
	TraceID     string
	ConnectedAt time.Time
}

type wsEventPayload struct {
	Event      string `json:"event"`
	ConnID     string `json:"conn_id"`
	DurationMS int64  `json:"duration_ms"`
	Reason     string `json:"reason,omitempty"`
	Online     int    `json:"online_connections,omitempty"`
}

type wsIdentity struct {
	UserID    string `json:"user_id"`
	DeviceID  string `json:"device_id,omitempty"`
	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

// publish counts a connection lifecycle event and emits it as ws_events.
func (info ConnInfo) publish(ctx context.Context, event, reason string, online int) {
	observability.IncWSEvent(event)
	_ = observability.PublishEvent(ctx, wsRoutingKey, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		RequestID: info.RequestID,
		TraceID:   info.TraceID,
		Payload: struct {
			WS       wsEventPayload `json:"ws"`
			Identity wsIdentity     `json:"identity"`
		}{
			WS: wsEventPayload{
				Event:      event,
				ConnID:     info.ConnID,
				DurationMS: time.Since(info.ConnectedAt).Milliseconds(),
				Reason:     reason,
				Online:     online,
			},
			Identity: wsIdentity{
				UserID:    info.UserID,
				DeviceID:  info.DeviceID,
				IP:        info.IP,
				UserAgent: info.UserAgent,
			},
		},
	})
}
