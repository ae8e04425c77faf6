package changefeed

import (
	"context"
	"time"
)

// Event signals that a family item changed and should be (re)examined.
type Event struct {
	FamilyID  string    `json:"family_id"`
	ItemID    string    `json:"item_id"`
	ChangedAt time.Time `json:"changed_at"`
}

// Handler processes one delivered event. Returning an error requests
// redelivery; returning nil acknowledges the event.
type Handler func(ctx context.Context, event Event) error

// Publisher appends events to the ordered change stream. Events sharing a
// FamilyID are delivered in publish order.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Subscriber consumes the change stream. Delivery is at-least-once; partition
// assignment across concurrent consumer instances is owned by the broker.
type Subscriber interface {
	Receive(ctx context.Context, handler Handler) error
}
