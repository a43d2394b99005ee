package gate

import (
	"context"
)

// EventsEmitter emits events onto the configured queues.
type EventsEmitter interface {
	Emit(ctx context.Context, eventName string, payload any) error
}
