package pubsub

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatermillBridge_PublishSubscribe(t *testing.T) {
	bridge := NewWatermillBridge()
	defer bridge.Close()

	var mu sync.Mutex
	var received []Message

	err := bridge.Subscribe(context.Background(), "test.topic", func(ctx context.Context, msg Message) error {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, msg)
		return nil
	})
	require.NoError(t, err)

	err = bridge.Publish(context.Background(), Message{
		Topic:    "test.topic",
		RoomID:   "room1",
		Payload:  []byte(`{"hello":"world"}`),
		Metadata: map[string]string{"source": "test"},
	})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	msg := received[0]
	assert.Equal(t, "test.topic", msg.Topic)
	assert.Equal(t, "room1", msg.RoomID)
	assert.JSONEq(t, `{"hello":"world"}`, string(msg.Payload))
	assert.Equal(t, "test", msg.Metadata["source"])
}

func TestWatermillBridge_TopicsAreIsolated(t *testing.T) {
	bridge := NewWatermillBridge()
	defer bridge.Close()

	var mu sync.Mutex
	var count int

	err := bridge.Subscribe(context.Background(), "topic.a", func(ctx context.Context, msg Message) error {
		mu.Lock()
		defer mu.Unlock()
		count++
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, bridge.Publish(context.Background(), Message{Topic: "topic.b", Payload: []byte("x")}))
	require.NoError(t, bridge.Publish(context.Background(), Message{Topic: "topic.a", Payload: []byte("y")}))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestTypedEvents_RoundTrip(t *testing.T) {
	bridge := NewWatermillBridge()
	defer bridge.Close()

	type viewUpdate struct {
		Text  string `json:"text"`
		Count int    `json:"count"`
	}
	event := NewEvent[viewUpdate]("test.view.updated", "test event")

	got := make(chan viewUpdate, 1)
	gotRoom := make(chan string, 1)
	err := SubscribeTyped(context.Background(), bridge, event,
		func(ctx context.Context, roomID string, payload viewUpdate) error {
			got <- payload
			gotRoom <- roomID
			return nil
		})
	require.NoError(t, err)

	err = Publish(context.Background(), bridge, event, "room1", viewUpdate{Text: "hi", Count: 3})
	require.NoError(t, err)

	select {
	case payload := <-got:
		assert.Equal(t, "hi", payload.Text)
		assert.Equal(t, 3, payload.Count)
		assert.Equal(t, "room1", <-gotRoom)
	case <-time.After(2 * time.Second):
		t.Fatal("typed event never arrived")
	}
}
