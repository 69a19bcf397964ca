package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nfrund/storge/internal/chat/notify"
	"github.com/nfrund/storge/internal/domain"
	"github.com/nfrund/storge/internal/pubsub"
	"github.com/nfrund/storge/internal/transport"
)

// eventLog records cross-fake call ordering
type eventLog struct {
	mu      sync.Mutex
	entries []string
}

func (l *eventLog) add(entry string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
}

func (l *eventLog) get() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.entries))
	copy(out, l.entries)
	return out
}

// fakeQuerier implements transport.Querier for testing
type fakeQuerier struct {
	mu         sync.Mutex
	log        *eventLog
	selectRecs []transport.Record
	selectErr  error
	insertErr  error
	inserted   []transport.Record
	nextID     int
}

func (q *fakeQuerier) Select(ctx context.Context, collection string, filter map[string]any, order transport.Order) ([]transport.Record, error) {
	if q.log != nil {
		q.log.add("select:" + collection)
	}
	if q.selectErr != nil {
		return nil, q.selectErr
	}
	return q.selectRecs, nil
}

func (q *fakeQuerier) Insert(ctx context.Context, collection string, record transport.Record) (transport.Record, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.log != nil {
		q.log.add("insert:" + collection)
	}
	if q.insertErr != nil {
		return nil, q.insertErr
	}
	q.nextID++
	rec := transport.Record{
		"id":         fmt.Sprintf("msg-%d", q.nextID),
		"room_id":    record["room_id"],
		"author_id":  record["author_id"],
		"text":       record["text"],
		"created_at": fmt.Sprintf("2026-03-01T12:00:%02dZ", q.nextID),
	}
	q.inserted = append(q.inserted, rec)
	return rec, nil
}

func (q *fakeQuerier) Update(ctx context.Context, collection string, filter map[string]any, patch transport.Record) (transport.Record, error) {
	return patch, nil
}

// fakeRowSub implements transport.RowSubscription
type fakeRowSub struct {
	log    *eventLog
	closed bool
	mu     sync.Mutex
}

func (s *fakeRowSub) ID() string { return "sub-1" }

func (s *fakeRowSub) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.log != nil {
		s.log.add("rows.close")
	}
	return nil
}

// fakeRowStream implements transport.RowStream and captures the query
type fakeRowStream struct {
	mu           sync.Mutex
	log          *eventLog
	subscribeErr error
	query        transport.RowQuery
	sub          *fakeRowSub
}

func (s *fakeRowStream) Subscribe(ctx context.Context, q transport.RowQuery) (transport.RowSubscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.log != nil {
		s.log.add("rows.subscribe")
	}
	if s.subscribeErr != nil {
		return nil, s.subscribeErr
	}
	s.query = q
	s.sub = &fakeRowSub{log: s.log}
	return s.sub, nil
}

// deliverRow pushes one row-change event through the captured handler.
func (s *fakeRowStream) deliverRow(action transport.RowAction, rec transport.Record) {
	s.mu.Lock()
	handler := s.query.Handler
	s.mu.Unlock()
	handler(context.Background(), action, rec)
}

// fakeChannel implements transport.Channel
type fakeChannel struct {
	mu         sync.Mutex
	log        *eventLog
	name       string
	cfg        transport.ChannelConfig
	trackErr   error
	broadcasts map[string]transport.BroadcastHandler
	onPresence transport.PresenceHandler
	onError    func(error)
	sent       []transport.TypingEvent
	tracked    []transport.PresencePayload
	untracked  bool
	closed     bool
}

func (c *fakeChannel) Name() string { return c.name }

func (c *fakeChannel) OnBroadcast(event string, h transport.BroadcastHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.broadcasts == nil {
		c.broadcasts = make(map[string]transport.BroadcastHandler)
	}
	c.broadcasts[event] = h
}

func (c *fakeChannel) OnPresence(h transport.PresenceHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onPresence = h
}

func (c *fakeChannel) OnError(h func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = h
}

func (c *fakeChannel) Send(ctx context.Context, event string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ev, ok := payload.(transport.TypingEvent); ok {
		c.sent = append(c.sent, ev)
		if c.log != nil {
			c.log.add(fmt.Sprintf("send.typing:%v", ev.Typing))
		}
	}
	return nil
}

func (c *fakeChannel) Track(ctx context.Context, payload transport.PresencePayload) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.log != nil {
		c.log.add("channel.track:" + c.name)
	}
	if c.trackErr != nil {
		return c.trackErr
	}
	c.tracked = append(c.tracked, payload)
	return nil
}

func (c *fakeChannel) Untrack(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.untracked = true
	if c.log != nil {
		c.log.add("channel.untrack:" + c.name)
	}
	return nil
}

func (c *fakeChannel) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.log != nil {
		c.log.add("channel.close:" + c.name)
	}
	return nil
}

// deliverTyping pushes one typing broadcast through the captured handler.
func (c *fakeChannel) deliverTyping(ev transport.TypingEvent) {
	c.mu.Lock()
	h := c.broadcasts[transport.TypingEventName]
	c.mu.Unlock()
	payload, _ := json.Marshal(ev)
	h(context.Background(), payload)
}

// deliverPresence pushes one presence event through the captured handler.
func (c *fakeChannel) deliverPresence(ev transport.PresenceEvent) {
	c.mu.Lock()
	h := c.onPresence
	c.mu.Unlock()
	h(context.Background(), ev)
}

// fakeChannelService implements transport.ChannelService
type fakeChannelService struct {
	mu       sync.Mutex
	log      *eventLog
	openErr  error
	trackErr error
	channels []*fakeChannel
}

func (s *fakeChannelService) Open(ctx context.Context, name string, cfg transport.ChannelConfig) (transport.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.log != nil {
		s.log.add("channel.open:" + name)
	}
	if s.openErr != nil {
		return nil, s.openErr
	}
	ch := &fakeChannel{log: s.log, name: name, cfg: cfg, trackErr: s.trackErr}
	s.channels = append(s.channels, ch)
	return ch, nil
}

func (s *fakeChannelService) last() *fakeChannel {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.channels) == 0 {
		return nil
	}
	return s.channels[len(s.channels)-1]
}

// fakeNotifier implements notify.Notifier
type fakeNotifier struct {
	mu         sync.Mutex
	permission notify.Permission
	shown      []notify.Notification
}

func (n *fakeNotifier) RequestPermission(ctx context.Context) (notify.Permission, error) {
	return n.permission, nil
}

func (n *fakeNotifier) Show(ctx context.Context, notification notify.Notification, onActivate func(string)) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.shown = append(n.shown, notification)
	return nil
}

func (n *fakeNotifier) shownCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.shown)
}

// fakeVisibility implements notify.Visibility
type fakeVisibility struct {
	mu     sync.Mutex
	hidden bool
}

func (v *fakeVisibility) Hidden() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.hidden
}

// mockPublisher implements pubsub.Publisher for testing
type mockPublisher struct {
	mu       sync.Mutex
	messages []pubsub.Message
}

func (m *mockPublisher) Publish(ctx context.Context, msg pubsub.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return nil
}

func (m *mockPublisher) Close() error { return nil }

func (m *mockPublisher) topics() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.messages))
	for _, msg := range m.messages {
		out = append(out, msg.Topic)
	}
	return out
}

// staticResolver resolves every author to the same display
type staticResolver struct {
	display domain.AuthorDisplay
}

func (r *staticResolver) Resolve(ctx context.Context, authorID string) (domain.AuthorDisplay, error) {
	return r.display, nil
}

// testHarness bundles the fakes behind one Deps value
type testHarness struct {
	log      *eventLog
	querier  *fakeQuerier
	rows     *fakeRowStream
	channels *fakeChannelService
	notifier *fakeNotifier
	visible  *fakeVisibility
	bus      *mockPublisher
}

func newHarness() *testHarness {
	log := &eventLog{}
	return &testHarness{
		log:      log,
		querier:  &fakeQuerier{log: log},
		rows:     &fakeRowStream{log: log},
		channels: &fakeChannelService{log: log},
		notifier: &fakeNotifier{permission: notify.PermissionGranted},
		visible:  &fakeVisibility{},
		bus:      &mockPublisher{},
	}
}

func (h *testHarness) deps() Deps {
	return Deps{
		Querier:    h.querier,
		Rows:       h.rows,
		Channels:   h.channels,
		Resolver:   &staticResolver{display: domain.AuthorDisplay{Name: "resolved"}},
		Notifier:   h.notifier,
		Visibility: h.visible,
		Publisher:  h.bus,
	}
}

func historyRecord(id, roomID, authorID, text, createdAt string) transport.Record {
	return transport.Record{
		"id":         id,
		"room_id":    roomID,
		"author_id":  authorID,
		"text":       text,
		"created_at": createdAt,
		"author_display": map[string]any{
			"name": "Author " + authorID,
		},
	}
}
