package bus

import (
	"context"
	"time"
)

// Action describes what happened to a flag or its rules.
type Action string

const (
	// ActionUpdate covers creates and updates of a flag or any of its rules.
	ActionUpdate Action = "update"
	// ActionDelete covers deletion of a flag or any of its rules.
	ActionDelete Action = "delete"
	// ActionBulkUpdate covers application-wide mutations; subscribers drop
	// every cached entry of the application.
	ActionBulkUpdate Action = "bulk_update"
)

// Event is an invalidation notification. The management layer publishes one
// after every committed mutation; every cache instance applies it. The JSON
// field names are the wire contract shared with the management layer.
type Event struct {
	AppID     string `json:"applicationId"`
	FlagKey   string `json:"flagKey,omitempty"`
	Action    Action `json:"action"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// NewEvent builds a timestamped invalidation event.
func NewEvent(appID, flagKey string, action Action) Event {
	return Event{
		AppID:     appID,
		FlagKey:   flagKey,
		Action:    action,
		Timestamp: time.Now().UnixMilli(),
	}
}

// Subscription is a live feed of invalidation events. The channel is closed
// when the subscription or its bus closes; Close is idempotent.
type Subscription interface {
	Events() <-chan Event
	Close() error
}

// Bus is the publish/subscribe channel carrying invalidation events between
// server instances. It is injected into the cache rather than reached for
// globally, so tests can substitute the in-memory implementation.
//
// Delivery is best-effort and eventually consistent: a bounded window
// between a mutation committing and every subscriber applying the event is
// expected, and staleness inside that window is capped by the cache TTLs.
type Bus interface {
	// Publish delivers the event to all current subscribers. Slow
	// subscribers may miss events rather than block the publisher.
	Publish(ctx context.Context, event Event) error

	// Subscribe registers a new subscriber. Cancelling the context tears the
	// subscription down.
	Subscribe(ctx context.Context) Subscription

	// Close shuts the bus down and closes every subscription.
	Close() error
}
