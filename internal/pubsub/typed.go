package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
)

// Event[T] wraps a topic name and provides type-safe publish/subscribe.
type Event[T any] struct {
	topicName   string
	description string
}

// NewEvent creates a typed event. Events are defined at package level in
// each module's topics file, so the name doubles as documentation.
func NewEvent[T any](name string, description string) Event[T] {
	return Event[T]{
		topicName:   name,
		description: description,
	}
}

// Name returns the topic name.
func (e Event[T]) Name() string {
	return e.topicName
}

// Description returns the human-readable topic description.
func (e Event[T]) Description() string {
	return e.description
}

// Publish sends a typed event. The compiler ensures 'payload' matches 'T'.
// RoomID is carried in the message metadata so subscribers can filter.
func Publish[T any](ctx context.Context, p Publisher, event Event[T], roomID string, payload T) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", event.Name(), err)
	}

	return p.Publish(ctx, Message{
		Topic:   event.Name(),
		RoomID:  roomID,
		Payload: data,
	})
}

// SubscribeTyped listens for a typed event, unmarshaling each payload into T
// before invoking the handler. Malformed payloads are reported as handler
// errors and do not stop the subscription.
func SubscribeTyped[T any](ctx context.Context, s Subscriber, event Event[T], handler func(ctx context.Context, roomID string, payload T) error) error {
	return s.Subscribe(ctx, event.Name(), func(ctx context.Context, msg Message) error {
		var payload T
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return fmt.Errorf("unmarshal %s payload: %w", event.Name(), err)
		}
		return handler(ctx, msg.RoomID, payload)
	})
}
