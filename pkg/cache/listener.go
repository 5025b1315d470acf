package cache

import (
	"context"
	"log/slog"

	"github.com/dmitrymomot/flagkit/pkg/bus"
)

// Apply reacts to a single invalidation event. Exposed separately from
// Listen so tests can drive invalidation synchronously.
func (c *FlagCache) Apply(ctx context.Context, event bus.Event) {
	switch event.Action {
	case bus.ActionUpdate, bus.ActionDelete:
		c.InvalidateFlag(ctx, event.AppID, event.FlagKey)
	case bus.ActionBulkUpdate:
		c.InvalidateApp(ctx, event.AppID)
	default:
		c.log.Warn("ignoring invalidation event with unknown action",
			slog.String("action", string(event.Action)),
			slog.String("app_id", event.AppID))
	}
}

// Listen subscribes the cache to the invalidation bus and applies events
// until the context is cancelled or the bus closes. It blocks; run it in
// its own goroutine.
func (c *FlagCache) Listen(ctx context.Context, b bus.Bus) {
	sub := b.Subscribe(ctx)
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			c.Apply(ctx, event)
		}
	}
}
