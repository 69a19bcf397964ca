// Package timeline maintains the ordered, deduplicated message history for
// one room, merged from the initial bulk fetch and the live insert stream.
package timeline

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/nfrund/storge/internal/domain"
)

// Resolver looks up the display info for a message author. Implemented by
// the profiles service.
type Resolver interface {
	Resolve(ctx context.Context, authorID string) (domain.AuthorDisplay, error)
}

// Timeline is an ordered, deduplicated collection of messages for one room.
// Ordering is non-decreasing created_at; ties keep first-seen position.
// A Timeline is owned by exactly one room session.
type Timeline struct {
	mu       sync.RWMutex
	roomID   string
	ctx      context.Context
	cancel   context.CancelFunc
	msgs     []domain.Message
	seen     map[string]struct{}
	resolver Resolver
	onAppend func(domain.Message)
	logger   *slog.Logger
}

// Option configures a Timeline.
type Option func(*Timeline)

// WithOnAppend registers a callback invoked once per message that becomes
// visible. Duplicates never trigger it.
func WithOnAppend(fn func(domain.Message)) Option {
	return func(t *Timeline) {
		t.onAppend = fn
	}
}

// New creates an empty timeline. Bind must be called before messages for a
// room are fed in.
func New(resolver Resolver, opts ...Option) *Timeline {
	t := &Timeline{
		resolver: resolver,
		seen:     make(map[string]struct{}),
		logger:   slog.Default().With("component", "timeline"),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Bind scopes the timeline to a room. In-flight author lookups started
// before Bind are tied to the previous scope and cannot mutate this one.
func (t *Timeline) Bind(ctx context.Context, roomID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cancel != nil {
		t.cancel()
	}
	t.ctx, t.cancel = context.WithCancel(ctx)
	t.roomID = roomID
	t.msgs = nil
	t.seen = make(map[string]struct{})
}

// LoadInitial replaces the timeline contents with the bulk history fetch,
// sorted ascending by created_at. Used once per room activation.
func (t *Timeline) LoadInitial(msgs []domain.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.msgs = make([]domain.Message, 0, len(msgs))
	t.seen = make(map[string]struct{}, len(msgs))
	for _, m := range msgs {
		if _, dup := t.seen[m.ID]; dup {
			continue
		}
		t.seen[m.ID] = struct{}{}
		t.msgs = append(t.msgs, m)
	}
	sort.SliceStable(t.msgs, func(i, j int) bool {
		return t.msgs[i].CreatedAt.Before(t.msgs[j].CreatedAt)
	})
}

// AppendRealtime merges one live insert into the timeline. Duplicate IDs
// are silently ignored. A message without author display info becomes
// visible only after a single profile lookup; lookup failure degrades to
// the placeholder author rather than dropping the message.
func (t *Timeline) AppendRealtime(msg domain.Message) {
	t.mu.Lock()

	if t.ctx == nil || t.roomID != msg.RoomID {
		t.mu.Unlock()
		t.logger.Debug("Discarding message for unbound or stale room",
			"message_id", msg.ID, "room_id", msg.RoomID)
		return
	}
	if _, dup := t.seen[msg.ID]; dup {
		t.mu.Unlock()
		return
	}
	// Mark before any suspension so the echo of an in-flight resolve is
	// also deduplicated.
	t.seen[msg.ID] = struct{}{}

	if msg.HasAuthorDisplay() || t.resolver == nil {
		t.insertLocked(msg)
		t.mu.Unlock()
		t.notify(msg)
		return
	}

	ctx := t.ctx
	t.mu.Unlock()

	go t.resolveAndInsert(ctx, msg)
}

// resolveAndInsert performs the one profile lookup for a message arriving
// without author info, then inserts it unless the room scope was torn down
// in the meantime.
func (t *Timeline) resolveAndInsert(ctx context.Context, msg domain.Message) {
	display, err := t.resolver.Resolve(ctx, msg.AuthorID)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		t.logger.Error("Profile lookup for message author failed, using placeholder",
			"author_id", msg.AuthorID, "message_id", msg.ID, "error", err)
		display = domain.UnknownAuthor
	}
	msg.Author = display

	t.mu.Lock()
	// The lookup may resolve after a room switch; results tagged with a
	// stale scope must not mutate the current timeline.
	if ctx.Err() != nil || t.roomID != msg.RoomID {
		t.mu.Unlock()
		return
	}
	t.insertLocked(msg)
	t.mu.Unlock()
	t.notify(msg)
}

// insertLocked places msg at the position preserving non-decreasing
// created_at order. Monotonic timestamps append in amortized O(1); a
// late-arriving older timestamp inserts in place.
func (t *Timeline) insertLocked(msg domain.Message) {
	idx := sort.Search(len(t.msgs), func(i int) bool {
		return t.msgs[i].CreatedAt.After(msg.CreatedAt)
	})
	t.msgs = append(t.msgs, domain.Message{})
	copy(t.msgs[idx+1:], t.msgs[idx:])
	t.msgs[idx] = msg
}

func (t *Timeline) notify(msg domain.Message) {
	if t.onAppend != nil {
		t.onAppend(msg)
	}
}

// All returns the messages in timeline order.
func (t *Timeline) All() []domain.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]domain.Message, len(t.msgs))
	copy(out, t.msgs)
	return out
}

// Len returns the number of visible messages.
func (t *Timeline) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.msgs)
}

// Clear empties the timeline and cancels any in-flight author lookups for
// the old room. Used on room switch and teardown.
func (t *Timeline) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	t.ctx = nil
	t.roomID = ""
	t.msgs = nil
	t.seen = make(map[string]struct{})
}
