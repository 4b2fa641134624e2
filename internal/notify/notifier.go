// Package notify is the fire-and-forget boundary to the notification
// dispatcher. Lifecycle components emit facts here and never block on or
// fail because of delivery.
package notify

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Event is one "this happened" fact handed to the dispatcher.
type Event struct {
	Type     string
	EntityID string
	Metadata map[string]any
}

// Dispatcher delivers events to out-of-scope channels (email, webhooks).
// Implementations must swallow their own failures.
type Dispatcher interface {
	Dispatch(ctx context.Context, event Event)
}

type logDispatcher struct {
	log *zap.Logger
}

// NewLogDispatcher returns a dispatcher that only records the fact. The real
// delivery pipeline lives outside this service.
func NewLogDispatcher(log *zap.Logger) Dispatcher {
	return &logDispatcher{log: log.Named("notify")}
}

func (d *logDispatcher) Dispatch(_ context.Context, event Event) {
	d.log.Info("event dispatched",
		zap.String("type", event.Type),
		zap.String("entity_id", event.EntityID),
	)
}

var Module = fx.Module("notify",
	fx.Provide(NewLogDispatcher),
)
