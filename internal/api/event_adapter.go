package api

import (
	"time"
)

// SSEEventBroadcaster adapts the SSE hub to the event sink consumed by the
// application services, so weight mutations and sealed entries stream out to
// connected dashboards as they happen
type SSEEventBroadcaster struct {
	hub *SSEHub
}

// NewSSEEventBroadcaster creates an adapter for the SSE hub
func NewSSEEventBroadcaster(hub *SSEHub) *SSEEventBroadcaster {
	return &SSEEventBroadcaster{hub: hub}
}

// Publish broadcasts a service event to SSE clients
func (b *SSEEventBroadcaster) Publish(event string, payload interface{}) {
	if b.hub == nil {
		return
	}

	b.hub.Broadcast(AuditEvent{
		Event:     event,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	})
}
