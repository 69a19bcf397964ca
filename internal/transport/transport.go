// Package transport defines the boundary to the remote chat backend: an
// authenticated query service over named record collections, a row-change
// stream, and named bidirectional channels carrying broadcast and presence
// events. The core never talks to a concrete backend directly; adapters in
// the subpackages implement these contracts.
package transport

import (
	"context"
	"encoding/json"
)

// Record is one row of a remote collection, as delivered by the backend.
type Record map[string]any

// Order describes the sort applied to a Select.
type Order struct {
	Field     string
	Ascending bool
}

// Querier is the remote query service: select/insert/update against named
// record collections.
type Querier interface {
	Select(ctx context.Context, collection string, filter map[string]any, order Order) ([]Record, error)
	Insert(ctx context.Context, collection string, record Record) (Record, error)
	Update(ctx context.Context, collection string, filter map[string]any, patch Record) (Record, error)
}

// RowAction is the kind of change reported by a row-change stream.
type RowAction string

const (
	RowCreate RowAction = "CREATE"
	RowUpdate RowAction = "UPDATE"
	RowDelete RowAction = "DELETE"
)

// RowHandler is called for every change matching a row subscription.
type RowHandler func(ctx context.Context, action RowAction, rec Record)

// RowQuery describes one row-change subscription.
type RowQuery struct {
	Collection string
	// Filter holds equality constraints (column -> value), e.g. room_id.
	Filter map[string]any
	// Handler receives matching changes in delivery order.
	Handler RowHandler
	// OnError is invoked when the subscription degrades mid-session.
	// The subscription is not torn down automatically.
	OnError func(error)
}

// RowSubscription is an open row-change subscription.
type RowSubscription interface {
	ID() string
	// Close releases the subscription. A bounded wait applies; after the
	// context deadline the resource is considered released regardless.
	Close(ctx context.Context) error
}

// RowStream opens row-change subscriptions against the backend.
type RowStream interface {
	Subscribe(ctx context.Context, q RowQuery) (RowSubscription, error)
}

// ChannelConfig configures an opened channel.
type ChannelConfig struct {
	// Presence enables presence tracking on the channel, keyed by
	// participant ID.
	Presence bool
	// BroadcastSelf controls whether self-originated broadcasts echo back.
	BroadcastSelf bool
}

// BroadcastHandler receives the raw payload of one broadcast event.
type BroadcastHandler func(ctx context.Context, payload json.RawMessage)

// PresenceHandler receives one normalized presence event (PresenceSync,
// PresenceJoin or PresenceLeave).
type PresenceHandler func(ctx context.Context, ev PresenceEvent)

// Channel is an open named channel supporting broadcast delivery and
// presence tracking.
type Channel interface {
	Name() string

	// OnBroadcast registers a handler for a named broadcast event.
	// Handlers must be registered before events for that name arrive;
	// events with no handler are dropped.
	OnBroadcast(event string, h BroadcastHandler)

	// OnPresence registers the handler for presence events.
	OnPresence(h PresenceHandler)

	// OnError registers the degraded-channel handler. The channel is not
	// torn down automatically on error.
	OnError(h func(error))

	// Send broadcasts a named event to the channel's subscribers.
	// Broadcasts are fire-and-forget and not persisted.
	Send(ctx context.Context, event string, payload any) error

	// Track asserts the local participant's presence on the channel.
	Track(ctx context.Context, payload PresencePayload) error

	// Untrack withdraws the local participant's presence.
	Untrack(ctx context.Context) error

	// Close releases the channel. A bounded wait applies; after the
	// context deadline the handle is considered released regardless.
	Close(ctx context.Context) error
}

// ChannelService opens named channels on the backend.
type ChannelService interface {
	Open(ctx context.Context, name string, cfg ChannelConfig) (Channel, error)
}

// ObjectStore uploads binary objects (avatars) to a named bucket and
// returns their public URL.
type ObjectStore interface {
	Upload(ctx context.Context, bucket, path string, data []byte, contentType string) (string, error)
}
