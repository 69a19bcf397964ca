package typing

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// signalRecorder captures emitted typing signals in order
type signalRecorder struct {
	mu      sync.Mutex
	signals []bool
}

func (r *signalRecorder) send(typing bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signals = append(r.signals, typing)
	return nil
}

func (r *signalRecorder) get() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]bool, len(r.signals))
	copy(out, r.signals)
	return out
}

func TestEmitter_FirstKeystrokeEmitsStarted(t *testing.T) {
	rec := &signalRecorder{}
	e := NewEmitter(rec.send, WithIdle(time.Hour))

	e.OnKeystroke()

	assert.Equal(t, []bool{true}, rec.get())
}

func TestEmitter_SubsequentKeystrokesOnlyResetTimer(t *testing.T) {
	rec := &signalRecorder{}
	e := NewEmitter(rec.send, WithIdle(time.Hour))

	e.OnKeystroke()
	e.OnKeystroke()
	e.OnKeystroke()

	assert.Equal(t, []bool{true}, rec.get(), "a burst of keystrokes emits exactly one started")
}

func TestEmitter_IdleFlushEmitsStopped(t *testing.T) {
	rec := &signalRecorder{}
	e := NewEmitter(rec.send, WithIdle(20*time.Millisecond))

	e.OnKeystroke()

	assert.Eventually(t, func() bool {
		got := rec.get()
		return len(got) == 2 && !got[1]
	}, time.Second, 5*time.Millisecond)
}

func TestEmitter_KeystrokeAfterIdleStartsNewCycle(t *testing.T) {
	rec := &signalRecorder{}
	e := NewEmitter(rec.send, WithIdle(20*time.Millisecond))

	e.OnKeystroke()
	require.Eventually(t, func() bool {
		return len(rec.get()) == 2
	}, time.Second, 5*time.Millisecond)

	e.OnKeystroke()

	assert.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]bool{true, false, true, false}, rec.get())
	}, time.Second, 5*time.Millisecond)
}

func TestEmitter_OnSubmitStopsSynchronously(t *testing.T) {
	rec := &signalRecorder{}
	e := NewEmitter(rec.send, WithIdle(30*time.Millisecond))

	e.OnKeystroke()
	e.OnSubmit()

	// The stop is already emitted when OnSubmit returns, and the cancelled
	// idle timer must not produce a second one.
	assert.Equal(t, []bool{true, false}, rec.get())
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, []bool{true, false}, rec.get())
}

func TestEmitter_StopCancelsWithoutEmitting(t *testing.T) {
	rec := &signalRecorder{}
	e := NewEmitter(rec.send, WithIdle(30*time.Millisecond))

	e.OnKeystroke()
	e.Stop()

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, []bool{true}, rec.get(), "teardown must not broadcast on a closing channel")
}

func TestEmitter_NilSendIsNoOp(t *testing.T) {
	e := NewEmitter(nil)

	// Must not panic.
	e.OnKeystroke()
	e.OnSubmit()
	e.Stop()
}
