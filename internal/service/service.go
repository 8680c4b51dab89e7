// Package service implements the conversation, message and social-graph
// operations on top of the repository interfaces. Authorization and
// validation run first and fail without side effects; broadcasts happen
// only after the store acknowledged the write.
package service

import "context"

// Broadcaster is the fan-out bus seam; *ws.Hub satisfies it.
type Broadcaster interface {
	Publish(topic, event string, data any)
}

// EventSink is the durable event outbox seam; *events.Producer satisfies it.
type EventSink interface {
	Publish(ctx context.Context, eventType string, payload any) error
}
