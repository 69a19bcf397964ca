package timeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/storge/internal/domain"
)

// mockResolver implements Resolver for testing
type mockResolver struct {
	mu      sync.Mutex
	display domain.AuthorDisplay
	err     error
	block   chan struct{} // when set, Resolve waits on it
	calls   int
}

func (m *mockResolver) Resolve(ctx context.Context, authorID string) (domain.AuthorDisplay, error) {
	m.mu.Lock()
	m.calls++
	block := m.block
	display, err := m.display, m.err
	m.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return domain.AuthorDisplay{}, ctx.Err()
		}
	}
	return display, err
}

func (m *mockResolver) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func msgAt(id, roomID string, sec int) domain.Message {
	return domain.Message{
		ID:        id,
		RoomID:    roomID,
		AuthorID:  "author-" + id,
		Text:      "text " + id,
		CreatedAt: time.Date(2026, 3, 1, 12, 0, sec, 0, time.UTC),
		Author:    domain.AuthorDisplay{Name: "resolved"},
	}
}

func TestTimeline_AppendRealtime_Deduplicates(t *testing.T) {
	var appended []string
	tl := New(nil, WithOnAppend(func(m domain.Message) {
		appended = append(appended, m.ID)
	}))
	tl.Bind(context.Background(), "room1")

	msg := msgAt("m1", "room1", 1)
	tl.AppendRealtime(msg)
	tl.AppendRealtime(msg) // realtime echo of the insert response

	assert.Equal(t, 1, tl.Len())
	assert.Equal(t, []string{"m1"}, appended, "duplicates must not re-trigger the append callback")
}

func TestTimeline_LateArrival_KeepsChronologicalOrder(t *testing.T) {
	tl := New(nil)
	tl.Bind(context.Background(), "room1")
	tl.LoadInitial([]domain.Message{
		msgAt("m1", "room1", 1),
		msgAt("m3", "room1", 3),
	})

	// m2 is delivered after m3 but carries an earlier timestamp.
	tl.AppendRealtime(msgAt("m2", "room1", 2))

	got := tl.All()
	require.Len(t, got, 3)
	assert.Equal(t, "m1", got[0].ID)
	assert.Equal(t, "m2", got[1].ID)
	assert.Equal(t, "m3", got[2].ID)
}

func TestTimeline_EqualTimestamps_KeepFirstSeenOrder(t *testing.T) {
	tl := New(nil)
	tl.Bind(context.Background(), "room1")

	a := msgAt("a", "room1", 5)
	b := msgAt("b", "room1", 5)
	tl.AppendRealtime(a)
	tl.AppendRealtime(b)

	got := tl.All()
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "b", got[1].ID)
}

func TestTimeline_LoadInitial_DeduplicatesAndSorts(t *testing.T) {
	tl := New(nil)
	tl.Bind(context.Background(), "room1")
	tl.LoadInitial([]domain.Message{
		msgAt("m2", "room1", 2),
		msgAt("m1", "room1", 1),
		msgAt("m2", "room1", 2),
	})

	got := tl.All()
	require.Len(t, got, 2)
	assert.Equal(t, "m1", got[0].ID)
	assert.Equal(t, "m2", got[1].ID)
}

func TestTimeline_ResolvesMissingAuthor(t *testing.T) {
	resolver := &mockResolver{display: domain.AuthorDisplay{Name: "alice"}}
	visible := make(chan domain.Message, 1)
	tl := New(resolver, WithOnAppend(func(m domain.Message) {
		visible <- m
	}))
	tl.Bind(context.Background(), "room1")

	msg := msgAt("m1", "room1", 1)
	msg.Author = domain.AuthorDisplay{}
	tl.AppendRealtime(msg)

	select {
	case got := <-visible:
		assert.Equal(t, "alice", got.Author.Name)
	case <-time.After(2 * time.Second):
		t.Fatal("message never became visible")
	}
	assert.Equal(t, 1, resolver.callCount())
}

func TestTimeline_ResolverFailure_FallsBackToPlaceholder(t *testing.T) {
	resolver := &mockResolver{err: errors.New("profile missing")}
	visible := make(chan domain.Message, 1)
	tl := New(resolver, WithOnAppend(func(m domain.Message) {
		visible <- m
	}))
	tl.Bind(context.Background(), "room1")

	msg := msgAt("m1", "room1", 1)
	msg.Author = domain.AuthorDisplay{}
	tl.AppendRealtime(msg)

	select {
	case got := <-visible:
		assert.Equal(t, "Unknown", got.Author.Name, "lookup failure must not drop the message")
	case <-time.After(2 * time.Second):
		t.Fatal("message never became visible")
	}
}

func TestTimeline_Clear_DiscardsInFlightLookup(t *testing.T) {
	block := make(chan struct{})
	resolver := &mockResolver{
		display: domain.AuthorDisplay{Name: "alice"},
		block:   block,
	}
	var mu sync.Mutex
	var appended int
	tl := New(resolver, WithOnAppend(func(domain.Message) {
		mu.Lock()
		appended++
		mu.Unlock()
	}))
	tl.Bind(context.Background(), "room1")

	msg := msgAt("m1", "room1", 1)
	msg.Author = domain.AuthorDisplay{}
	tl.AppendRealtime(msg)

	// Room switch while the lookup is still pending.
	tl.Clear()
	close(block)

	// The resolve goroutine either observed the cancelled context or the
	// cleared room scope; in both cases nothing becomes visible.
	assert.Eventually(t, func() bool {
		return tl.Len() == 0
	}, time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, appended)
}

func TestTimeline_DiscardsMessageForDifferentRoom(t *testing.T) {
	tl := New(nil)
	tl.Bind(context.Background(), "room1")

	tl.AppendRealtime(msgAt("m1", "room2", 1))

	assert.Zero(t, tl.Len())
}

func TestTimeline_UnboundTimelineDropsMessages(t *testing.T) {
	tl := New(nil)

	tl.AppendRealtime(msgAt("m1", "room1", 1))

	assert.Zero(t, tl.Len())
}
