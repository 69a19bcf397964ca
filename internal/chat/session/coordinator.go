package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrNoActiveSession is returned by coordinator actions when no room is
// active.
var ErrNoActiveSession = errors.New("session: no active session")

// Factory builds a fresh controller for a room. A controller is never
// reused across rooms; every activation gets its own.
type Factory func(roomID string) *Controller

// Coordinator owns at most one live room session. Switching rooms tears
// the old session down completely before the new one starts opening, so
// two tracked presences or duplicated subscriptions can never leak into
// one view.
type Coordinator struct {
	mu      sync.Mutex
	factory Factory
	current *Controller
	logger  *slog.Logger
}

// NewCoordinator creates a coordinator with no active session.
func NewCoordinator(factory Factory) *Coordinator {
	return &Coordinator{
		factory: factory,
		logger:  slog.Default().With("component", "coordinator"),
	}
}

// Activate switches the active room. The previous session's teardown
// (bounded per its close timeout) is sequenced strictly before the new
// session opens. Re-activating the current room is the recovery path for a
// degraded session and also goes through a full teardown.
func (co *Coordinator) Activate(ctx context.Context, roomID string) (*Controller, error) {
	co.mu.Lock()
	defer co.mu.Unlock()

	if co.current != nil {
		if err := co.current.Close(ctx); err != nil {
			co.logger.Warn("Previous session teardown reported error",
				"room_id", co.current.RoomID(), "error", err)
		}
		co.current = nil
	}

	ctl := co.factory(roomID)
	if err := ctl.Open(ctx); err != nil {
		return nil, err
	}

	co.current = ctl
	co.logger.Info("Room activated", "room_id", roomID)
	return ctl, nil
}

// Active returns the live controller, or nil when no room is active.
func (co *Coordinator) Active() *Controller {
	co.mu.Lock()
	defer co.mu.Unlock()
	return co.current
}

// Close tears down the active session, e.g. on logout.
func (co *Coordinator) Close(ctx context.Context) error {
	co.mu.Lock()
	defer co.mu.Unlock()

	if co.current == nil {
		return nil
	}
	err := co.current.Close(ctx)
	co.current = nil
	return err
}

// SendMessage delegates to the active session.
func (co *Coordinator) SendMessage(ctx context.Context, text string) error {
	ctl := co.Active()
	if ctl == nil {
		return ErrNoActiveSession
	}
	return ctl.SendMessage(ctx, text)
}

// Keystroke delegates to the active session; a no-op when none is active.
func (co *Coordinator) Keystroke() {
	if ctl := co.Active(); ctl != nil {
		ctl.Keystroke()
	}
}
