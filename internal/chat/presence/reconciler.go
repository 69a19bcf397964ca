// Package presence reconciles the participant-id -> presence record map
// for one room from the channel's sync/join/leave events.
package presence

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/nfrund/storge/internal/domain"
)

// Reconciler maintains the presence map for one room. It is owned by
// exactly one room session and rebuilt on every activation.
//
// Reconciliation trusts the transport's leave signal: there is no local
// TTL expiry, so a participant whose process dies without a leave event
// stays listed until the next authoritative sync.
type Reconciler struct {
	mu       sync.RWMutex
	records  map[string]domain.PresenceRecord
	onChange func(online []string)
	logger   *slog.Logger
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithOnChange registers a callback invoked with the online participant IDs
// after every state change.
func WithOnChange(fn func(online []string)) Option {
	return func(r *Reconciler) {
		r.onChange = fn
	}
}

// New creates an empty reconciler.
func New(opts ...Option) *Reconciler {
	r := &Reconciler{
		records: make(map[string]domain.PresenceRecord),
		logger:  slog.Default().With("component", "presence"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ApplySync replaces the entire local map with the authoritative state.
// When the backend reports multiple device records for one participant,
// the first record wins.
func (r *Reconciler) ApplySync(state map[string][]domain.PresenceRecord) {
	r.mu.Lock()
	r.records = make(map[string]domain.PresenceRecord, len(state))
	for id, recs := range state {
		if len(recs) == 0 {
			continue
		}
		r.records[id] = recs[0]
	}
	online := r.onlineLocked()
	r.mu.Unlock()

	r.logger.Debug("Presence synced", "online", len(online))
	r.notify(online)
}

// ApplyJoin adds or overwrites one participant without touching others.
// Duplicate joins for the same participant are idempotent.
func (r *Reconciler) ApplyJoin(participantID string, recs []domain.PresenceRecord) {
	if len(recs) == 0 {
		return
	}

	r.mu.Lock()
	r.records[participantID] = recs[0]
	online := r.onlineLocked()
	r.mu.Unlock()

	r.notify(online)
}

// ApplyLeave removes one participant. Removing an absent participant is a
// no-op, not an error.
func (r *Reconciler) ApplyLeave(participantID string) {
	r.mu.Lock()
	_, present := r.records[participantID]
	if present {
		delete(r.records, participantID)
	}
	online := r.onlineLocked()
	r.mu.Unlock()

	if present {
		r.notify(online)
	}
}

// IsOnline reports whether the participant has a live presence record.
func (r *Reconciler) IsOnline(participantID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.records[participantID]
	return ok
}

// Get returns the presence record for a participant.
func (r *Reconciler) Get(participantID string) (domain.PresenceRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[participantID]
	return rec, ok
}

// Online returns the sorted IDs of all present participants.
func (r *Reconciler) Online() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.onlineLocked()
}

// Len returns the number of present participants.
func (r *Reconciler) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// Clear empties the map on session teardown.
func (r *Reconciler) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = make(map[string]domain.PresenceRecord)
}

func (r *Reconciler) onlineLocked() []string {
	out := make([]string, 0, len(r.records))
	for id := range r.records {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (r *Reconciler) notify(online []string) {
	if r.onChange != nil {
		r.onChange(online)
	}
}
