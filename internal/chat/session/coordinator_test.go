package session

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCoordinator(h *testHarness) *Coordinator {
	return NewCoordinator(func(roomID string) *Controller {
		return NewController(h.deps(), roomID, self)
	})
}

func TestCoordinator_Activate(t *testing.T) {
	h := newHarness()
	co := newTestCoordinator(h)

	ctl, err := co.Activate(context.Background(), "room1")
	require.NoError(t, err)
	assert.Equal(t, Active, ctl.State())
	assert.Same(t, ctl, co.Active())
}

func TestCoordinator_SwitchTearsDownBeforeOpening(t *testing.T) {
	h := newHarness()
	co := newTestCoordinator(h)

	first, err := co.Activate(context.Background(), "room1")
	require.NoError(t, err)

	second, err := co.Activate(context.Background(), "room2")
	require.NoError(t, err)

	assert.Equal(t, Idle, first.State())
	assert.Equal(t, Active, second.State())

	// room1's presence must be withdrawn and its channel closed strictly
	// before room2's channel opens.
	log := h.log.get()
	var relevant []string
	for _, e := range log {
		switch e {
		case "channel.untrack:room:room1", "channel.close:room:room1",
			"rows.close", "channel.open:room:room2", "channel.track:room:room2":
			relevant = append(relevant, e)
		}
	}
	assert.Equal(t, []string{
		"channel.untrack:room:room1",
		"channel.close:room:room1",
		"rows.close",
		"channel.open:room:room2",
		"channel.track:room:room2",
	}, relevant)
}

func TestCoordinator_ReactivateSameRoomRecovers(t *testing.T) {
	h := newHarness()
	co := newTestCoordinator(h)

	first, err := co.Activate(context.Background(), "room1")
	require.NoError(t, err)

	// Degrade the row stream, then re-activate the same room.
	h.rows.query.OnError(errors.New("stream lost"))
	second, err := co.Activate(context.Background(), "room1")
	require.NoError(t, err)

	assert.NotSame(t, first, second, "recovery gets a fresh session, never a patched one")
	rows, channel := second.Degraded()
	assert.False(t, rows)
	assert.False(t, channel)
}

func TestCoordinator_OpenFailureLeavesNoActiveSession(t *testing.T) {
	h := newHarness()
	h.channels.openErr = errors.New("realtime down")
	co := newTestCoordinator(h)

	_, err := co.Activate(context.Background(), "room1")
	require.Error(t, err)
	assert.Nil(t, co.Active())
}

func TestCoordinator_SendMessageWithoutActiveSession(t *testing.T) {
	h := newHarness()
	co := newTestCoordinator(h)

	err := co.SendMessage(context.Background(), "hi")
	assert.ErrorIs(t, err, ErrNoActiveSession)
}

func TestCoordinator_KeystrokeWithoutActiveSessionIsNoOp(t *testing.T) {
	h := newHarness()
	co := newTestCoordinator(h)

	co.Keystroke() // must not panic
	assert.Empty(t, h.log.get())
}

func TestCoordinator_Close(t *testing.T) {
	h := newHarness()
	co := newTestCoordinator(h)

	ctl, err := co.Activate(context.Background(), "room1")
	require.NoError(t, err)

	require.NoError(t, co.Close(context.Background()))
	assert.Nil(t, co.Active())
	assert.Equal(t, Idle, ctl.State())

	// Closing with nothing active is fine.
	require.NoError(t, co.Close(context.Background()))
}
