package typing

import (
	"sort"
	"sync"

	"github.com/nfrund/storge/internal/domain"
	"github.com/nfrund/storge/internal/transport"
)

// Tracker holds the transient typing map for one room, keyed by
// participant ID.
//
// Entries are only removed by an explicit stop signal or by Clear on room
// teardown. Remote participants are trusted to send the stop signal; a
// sender that dies mid-typing leaves its indicator behind until then.
type Tracker struct {
	mu       sync.RWMutex
	states   map[string]domain.TypingState
	onChange func(names []string)
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithTrackerOnChange registers a callback invoked with the sorted display
// names of currently typing participants after every change.
func WithTrackerOnChange(fn func(names []string)) TrackerOption {
	return func(t *Tracker) {
		t.onChange = fn
	}
}

// NewTracker creates an empty tracker.
func NewTracker(opts ...TrackerOption) *Tracker {
	t := &Tracker{
		states: make(map[string]domain.TypingState),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Apply folds one normalized typing event into the map. Start and stop
// signals for a given participant are applied in delivery order.
func (t *Tracker) Apply(ev transport.TypingEvent) {
	t.mu.Lock()
	changed := false
	if ev.Typing {
		if _, ok := t.states[ev.ParticipantID]; !ok {
			changed = true
		}
		t.states[ev.ParticipantID] = domain.TypingState{
			ParticipantID: ev.ParticipantID,
			DisplayName:   ev.DisplayName,
		}
	} else {
		if _, ok := t.states[ev.ParticipantID]; ok {
			delete(t.states, ev.ParticipantID)
			changed = true
		}
	}
	names := t.namesLocked()
	t.mu.Unlock()

	if changed && t.onChange != nil {
		t.onChange(names)
	}
}

// Names returns the sorted display names of currently typing participants.
func (t *Tracker) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.namesLocked()
}

// Clear empties the map on room teardown.
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.states = make(map[string]domain.TypingState)
}

func (t *Tracker) namesLocked() []string {
	out := make([]string, 0, len(t.states))
	for _, st := range t.states {
		name := st.DisplayName
		if name == "" {
			name = st.ParticipantID
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
