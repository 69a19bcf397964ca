// Package typing implements the two-state typing-indicator protocol: a
// debounced emitter on the sending side and a tracker on the receiving
// side.
package typing

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultIdle is how long after the last keystroke a participant is
// considered to have stopped typing.
const DefaultIdle = 1500 * time.Millisecond

// SendFunc broadcasts one typing signal on the room channel. Emission is
// best effort; failures are logged by the emitter and never retried.
type SendFunc func(typing bool) error

// Emitter turns raw keystroke events into started/stopped broadcasts with
// idle-timeout flushing. The single idle timer is owned by the currently
// active session only.
type Emitter struct {
	mu     sync.Mutex
	idle   time.Duration
	timer  *time.Timer
	gen    uint64 // invalidates timer fires that lost a race with reset/cancel
	send   SendFunc
	logger *slog.Logger
}

// EmitterOption configures an Emitter.
type EmitterOption func(*Emitter)

// WithIdle overrides the idle flush interval.
func WithIdle(d time.Duration) EmitterOption {
	return func(e *Emitter) {
		if d > 0 {
			e.idle = d
		}
	}
}

// NewEmitter creates an emitter broadcasting through send. A nil send makes
// every operation a no-op, which covers the no-active-session case.
func NewEmitter(send SendFunc, opts ...EmitterOption) *Emitter {
	e := &Emitter{
		idle:   DefaultIdle,
		send:   send,
		logger: slog.Default().With("component", "typing"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// OnKeystroke is called on every input change. The first keystroke after
// idle emits started and arms the timer; subsequent keystrokes only reset
// the timer.
func (e *Emitter) OnKeystroke() {
	if e == nil || e.send == nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.timer != nil {
		e.armLocked()
		return
	}

	e.emitLocked(true)
	e.armLocked()
}

// OnSubmit cancels any pending timer and emits stopped synchronously, so a
// sent message is never preceded by a stale "still typing" signal.
func (e *Emitter) OnSubmit() {
	if e == nil || e.send == nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.cancelLocked()
	e.emitLocked(false)
}

// Stop cancels the pending timer without emitting. Used on session
// teardown, where the channel carrying the signal is closing anyway.
func (e *Emitter) Stop() {
	if e == nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.cancelLocked()
}

// armLocked schedules (or reschedules) the idle flush.
func (e *Emitter) armLocked() {
	e.gen++
	gen := e.gen
	if e.timer != nil {
		e.timer.Stop()
	}
	e.timer = time.AfterFunc(e.idle, func() { e.flush(gen) })
}

// cancelLocked stops the pending flush and invalidates in-flight fires.
func (e *Emitter) cancelLocked() {
	e.gen++
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

// flush fires when the idle timer elapses. A fire that lost a race with a
// reset or cancel sees a stale generation and does nothing.
func (e *Emitter) flush(gen uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if gen != e.gen {
		return
	}
	e.timer = nil
	e.emitLocked(false)
}

func (e *Emitter) emitLocked(typing bool) {
	if err := e.send(typing); err != nil {
		// Typing state is soft; the receiving end self-corrects on the
		// next signal.
		e.logger.Warn("Failed to broadcast typing signal", "typing", typing, "error", err)
	}
}
