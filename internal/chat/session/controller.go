// Package session orchestrates one active room: it owns the room's
// timeline, presence and typing state, the two remote subscriptions that
// feed them, and the outbound send/typing actions.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nfrund/storge/internal/chat/events"
	"github.com/nfrund/storge/internal/chat/notify"
	"github.com/nfrund/storge/internal/chat/presence"
	"github.com/nfrund/storge/internal/chat/timeline"
	"github.com/nfrund/storge/internal/chat/topics"
	"github.com/nfrund/storge/internal/chat/typing"
	"github.com/nfrund/storge/internal/domain"
	"github.com/nfrund/storge/internal/pubsub"
	"github.com/nfrund/storge/internal/transport"
)

// State is the controller's lifecycle phase.
type State int

const (
	Idle State = iota
	Opening
	Active
	Closing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Opening:
		return "opening"
	case Active:
		return "active"
	case Closing:
		return "closing"
	default:
		return "unknown"
	}
}

var (
	// ErrNotActive is returned by outbound actions when the session is
	// not in the Active state.
	ErrNotActive = errors.New("session: not active")

	// ErrAlreadyOpen is returned by Open on a session past Idle.
	ErrAlreadyOpen = errors.New("session: already open")
)

// Collection names on the remote query service.
const (
	CollectionMessages = "messages"
	CollectionProfiles = "profiles"
	CollectionRooms    = "rooms"
)

// Participant identifies the local authenticated participant.
type Participant struct {
	ID          string
	DisplayName string
}

// Deps holds the collaborators a controller needs. All of them are shared
// across sessions; everything the controller creates itself is owned by
// exactly one session.
type Deps struct {
	Querier    transport.Querier
	Rows       transport.RowStream
	Channels   transport.ChannelService
	Resolver   timeline.Resolver
	Notifier   notify.Notifier
	Visibility notify.Visibility
	Publisher  pubsub.Publisher

	// TypingIdle overrides the typing emitter's idle flush interval.
	TypingIdle time.Duration
	// CloseTimeout bounds how long teardown waits for close
	// acknowledgements before discarding the handles.
	CloseTimeout time.Duration
}

// Controller manages the full lifecycle of one room session:
// Idle -> Opening -> Active -> Closing -> Idle.
type Controller struct {
	deps   Deps
	roomID string
	self   Participant
	logger *slog.Logger

	mu    sync.Mutex
	state State
	// ctx scopes every async operation issued for this room; cancelled on
	// teardown so stale results are discarded instead of mutating the
	// next room's view.
	ctx    context.Context
	cancel context.CancelFunc

	rowSub  transport.RowSubscription
	channel transport.Channel

	degradedRows    bool
	degradedChannel bool

	permission notify.Permission

	timeline *timeline.Timeline
	presence *presence.Reconciler
	tracker  *typing.Tracker
	emitter  *typing.Emitter
	gate     *notify.Gate
}

// NewController creates a session for one room. Open must be called before
// the session is usable.
func NewController(deps Deps, roomID string, self Participant) *Controller {
	if deps.CloseTimeout <= 0 {
		deps.CloseTimeout = 3 * time.Second
	}

	c := &Controller{
		deps:       deps,
		roomID:     roomID,
		self:       self,
		state:      Idle,
		gate:       notify.NewGate(),
		permission: notify.PermissionDefault,
		logger:     slog.Default().With("component", "session", "room_id", roomID),
	}

	c.timeline = timeline.New(deps.Resolver, timeline.WithOnAppend(c.onMessageVisible))
	c.presence = presence.New(presence.WithOnChange(c.onPresenceChange))
	c.tracker = typing.NewTracker(typing.WithTrackerOnChange(c.onTypingChange))

	var emitterOpts []typing.EmitterOption
	if deps.TypingIdle > 0 {
		emitterOpts = append(emitterOpts, typing.WithIdle(deps.TypingIdle))
	}
	c.emitter = typing.NewEmitter(c.sendTyping, emitterOpts...)

	return c
}

// RoomID returns the room this session is bound to.
func (c *Controller) RoomID() string {
	return c.roomID
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Degraded reports the independent degraded flags for the row-change
// stream and the presence/broadcast channel.
func (c *Controller) Degraded() (rows, channel bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.degradedRows, c.degradedChannel
}

// Open activates the session: bulk history fetch, row-change subscription,
// presence+broadcast channel, then local presence tracking. On error every
// partially opened resource is released and the session returns to Idle.
func (c *Controller) Open(ctx context.Context) error {
	c.mu.Lock()
	if c.state != Idle {
		c.mu.Unlock()
		return ErrAlreadyOpen
	}
	c.state = Opening
	c.ctx, c.cancel = context.WithCancel(context.Background())
	roomCtx := c.ctx
	c.mu.Unlock()

	c.logger.Info("Opening room session", "participant", c.self.ID)

	c.timeline.Bind(roomCtx, c.roomID)

	if c.deps.Notifier != nil {
		perm, err := c.deps.Notifier.RequestPermission(ctx)
		if err != nil {
			c.logger.Warn("Notification permission request failed", "error", err)
			perm = notify.PermissionDefault
		}
		c.mu.Lock()
		c.permission = perm
		c.mu.Unlock()
	}

	if err := c.loadHistory(ctx); err != nil {
		c.abortOpen()
		return fmt.Errorf("open room %s: %w", c.roomID, err)
	}

	rowSub, err := c.deps.Rows.Subscribe(ctx, transport.RowQuery{
		Collection: CollectionMessages,
		Filter:     map[string]any{"room_id": c.roomID},
		Handler:    c.handleRow,
		OnError:    func(err error) { c.reportDegraded("rows", err) },
	})
	if err != nil {
		c.abortOpen()
		return fmt.Errorf("open room %s: subscribe row changes: %w", c.roomID, err)
	}
	c.mu.Lock()
	c.rowSub = rowSub
	c.mu.Unlock()

	ch, err := c.deps.Channels.Open(ctx, "room:"+c.roomID, transport.ChannelConfig{
		Presence:      true,
		BroadcastSelf: false,
	})
	if err != nil {
		c.abortOpen()
		return fmt.Errorf("open room %s: open channel: %w", c.roomID, err)
	}
	ch.OnBroadcast(transport.TypingEventName, c.handleTypingBroadcast)
	ch.OnPresence(c.handlePresence)
	ch.OnError(func(err error) { c.reportDegraded("channel", err) })

	// Track-on-subscribe: the local participant always tracks itself once
	// the channel is up.
	if err := ch.Track(ctx, transport.PresencePayload{
		ParticipantID: c.self.ID,
		DisplayName:   c.self.DisplayName,
		Since:         time.Now().UTC(),
	}); err != nil {
		ch.Close(ctx)
		c.abortOpen()
		return fmt.Errorf("open room %s: track presence: %w", c.roomID, err)
	}

	c.mu.Lock()
	c.channel = ch
	c.state = Active
	c.mu.Unlock()

	c.logger.Info("Room session active")
	return nil
}

// loadHistory performs the bulk fetch feeding Timeline.LoadInitial.
func (c *Controller) loadHistory(ctx context.Context) error {
	recs, err := c.deps.Querier.Select(ctx, CollectionMessages,
		map[string]any{"room_id": c.roomID},
		transport.Order{Field: "created_at", Ascending: true})
	if err != nil {
		return fmt.Errorf("fetch history: %w", err)
	}

	msgs := make([]domain.Message, 0, len(recs))
	for _, rec := range recs {
		msg, err := transport.ParseMessage(rec)
		if err != nil {
			c.logger.Warn("Skipping malformed history row", "error", err)
			continue
		}
		if !msg.HasAuthorDisplay() {
			msg.Author = domain.UnknownAuthor
		}
		msgs = append(msgs, msg)
	}
	c.timeline.LoadInitial(msgs)
	return nil
}

// abortOpen releases partially opened resources after a failed Open.
func (c *Controller) abortOpen() {
	c.mu.Lock()
	rowSub := c.rowSub
	c.rowSub = nil
	cancel := c.cancel
	c.state = Idle
	c.mu.Unlock()

	if rowSub != nil {
		closeCtx, done := context.WithTimeout(context.Background(), c.deps.CloseTimeout)
		if err := rowSub.Close(closeCtx); err != nil {
			c.logger.Warn("Failed to close row subscription during abort", "error", err)
		}
		done()
	}
	if cancel != nil {
		cancel()
	}
	c.timeline.Clear()
}

// Close tears the session down: untrack presence, close both
// subscriptions, cancel timers, clear state. Close calls that never
// acknowledge are abandoned after the bounded wait; resources are
// considered released regardless.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.state == Idle || c.state == Closing {
		c.mu.Unlock()
		return nil
	}
	c.state = Closing
	rowSub := c.rowSub
	ch := c.channel
	cancel := c.cancel
	c.rowSub = nil
	c.channel = nil
	c.mu.Unlock()

	c.logger.Info("Closing room session")

	c.emitter.Stop()

	closeCtx, done := context.WithTimeout(context.Background(), c.deps.CloseTimeout)
	defer done()

	if ch != nil {
		if err := ch.Untrack(closeCtx); err != nil {
			c.logger.Warn("Failed to untrack presence", "error", err)
		}
		if err := ch.Close(closeCtx); err != nil {
			c.logger.Warn("Failed to close channel", "error", err)
		}
	}
	if rowSub != nil {
		if err := rowSub.Close(closeCtx); err != nil {
			c.logger.Warn("Failed to close row subscription", "error", err)
		}
	}

	// Cancelling the room context discards the eventual result of any
	// pending fetch, profile lookup or send issued for this room.
	if cancel != nil {
		cancel()
	}

	c.timeline.Clear()
	c.presence.Clear()
	c.tracker.Clear()

	c.mu.Lock()
	c.state = Idle
	c.mu.Unlock()

	c.logger.Info("Room session closed")
	return nil
}

// SendMessage stops the typing signal, then inserts the message. Errors
// are surfaced synchronously so the caller can keep the input for retry.
func (c *Controller) SendMessage(ctx context.Context, text string) error {
	if c.State() != Active {
		return ErrNotActive
	}

	// A sent message must never be preceded by a stale typing signal.
	c.emitter.OnSubmit()

	rec, err := c.deps.Querier.Insert(ctx, CollectionMessages, transport.Record{
		"text":      text,
		"author_id": c.self.ID,
		"room_id":   c.roomID,
	})
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}

	// The insert response and the realtime echo both carry the message;
	// the timeline's dedupe keeps exactly one.
	if msg, perr := transport.ParseMessage(rec); perr == nil {
		if !msg.HasAuthorDisplay() {
			msg.Author = domain.AuthorDisplay{Name: c.self.DisplayName}
		}
		c.timeline.AppendRealtime(msg)
	}

	return nil
}

// Keystroke feeds one input change into the typing emitter. A no-op unless
// the session is active.
func (c *Controller) Keystroke() {
	if c.State() != Active {
		return
	}
	c.emitter.OnKeystroke()
}

// sendTyping broadcasts one typing signal. Emitting is a no-op when the
// session is not active or the channel is gone.
func (c *Controller) sendTyping(isTyping bool) error {
	c.mu.Lock()
	ch := c.channel
	st := c.state
	roomCtx := c.ctx
	c.mu.Unlock()

	if st != Active || ch == nil || c.self.ID == "" {
		return nil
	}

	return ch.Send(roomCtx, transport.TypingEventName, transport.TypingEvent{
		ParticipantID: c.self.ID,
		DisplayName:   c.self.DisplayName,
		Typing:        isTyping,
	})
}

// Messages returns the current timeline contents.
func (c *Controller) Messages() []domain.Message {
	return c.timeline.All()
}

// Online returns the sorted online participant IDs.
func (c *Controller) Online() []string {
	return c.presence.Online()
}

// IsOnline reports presence for one participant.
func (c *Controller) IsOnline(participantID string) bool {
	return c.presence.IsOnline(participantID)
}

// TypingNames returns the display names currently typing.
func (c *Controller) TypingNames() []string {
	return c.tracker.Names()
}

// handleRow receives row-change events for the messages collection in
// delivery order.
func (c *Controller) handleRow(ctx context.Context, action transport.RowAction, rec transport.Record) {
	if action != transport.RowCreate {
		return
	}
	if st := c.State(); st != Active && st != Opening {
		return
	}

	msg, err := transport.ParseMessage(rec)
	if err != nil {
		c.logger.Warn("Dropping malformed row-change event", "error", err)
		return
	}
	if msg.RoomID != c.roomID {
		return
	}

	c.timeline.AppendRealtime(msg)
}

// handlePresence routes normalized presence events to the reconciler.
func (c *Controller) handlePresence(ctx context.Context, ev transport.PresenceEvent) {
	if st := c.State(); st != Active && st != Opening {
		return
	}

	switch e := ev.(type) {
	case transport.PresenceSync:
		c.presence.ApplySync(e.State)
	case transport.PresenceJoin:
		c.presence.ApplyJoin(e.ParticipantID, e.Records)
	case transport.PresenceLeave:
		c.presence.ApplyLeave(e.ParticipantID)
	default:
		c.logger.Warn("Unknown presence event", "type", fmt.Sprintf("%T", ev))
	}
}

// handleTypingBroadcast folds typing broadcasts into the tracker.
func (c *Controller) handleTypingBroadcast(ctx context.Context, payload json.RawMessage) {
	if c.State() != Active {
		return
	}

	ev, err := transport.ParseTyping(payload)
	if err != nil {
		c.logger.Warn("Dropping malformed typing event", "error", err)
		return
	}
	// The channel excludes self echoes, but a misconfigured backend must
	// not show the local participant as typing to themselves.
	if ev.ParticipantID == c.self.ID {
		return
	}

	c.tracker.Apply(ev)
}

// onMessageVisible runs once per message that becomes visible: publish the
// view update, then evaluate the notification gate.
func (c *Controller) onMessageVisible(msg domain.Message) {
	publish(c, topics.TimelineUpdated, events.TimelineUpdated{
		RoomID:    c.roomID,
		MessageID: msg.ID,
		Author:    msg.Author.Name,
		Text:      msg.Text,
		Count:     c.timeline.Len(),
	})

	hidden := false
	if c.deps.Visibility != nil {
		hidden = c.deps.Visibility.Hidden()
	}

	c.mu.Lock()
	perm := c.permission
	c.mu.Unlock()

	decision := c.gate.Evaluate(msg, notify.Input{
		TabHidden:  hidden,
		Permission: perm,
		SelfID:     c.self.ID,
	})
	if !decision.Fire || c.deps.Notifier == nil {
		return
	}

	n := notify.Notification{
		Title: msg.Author.Name,
		Body:  msg.Text,
		Tag:   decision.Tag,
	}
	if err := c.deps.Notifier.Show(context.Background(), n, nil); err != nil {
		return
	}
	publish(c, topics.NotificationFired, events.NotificationFired{
		RoomID: c.roomID,
		Title:  n.Title,
	})
}

func (c *Controller) onPresenceChange(online []string) {
	publish(c, topics.PresenceUpdated, events.PresenceUpdated{
		RoomID: c.roomID,
		Online: online,
	})
}

func (c *Controller) onTypingChange(names []string) {
	publish(c, topics.TypingUpdated, events.TypingUpdated{
		RoomID: c.roomID,
		Names:  names,
	})
}

// reportDegraded surfaces a mid-session subscription failure without
// tearing the session down. Cached state remains visible; the next
// explicit activation recovers.
func (c *Controller) reportDegraded(source string, err error) {
	c.mu.Lock()
	switch source {
	case "rows":
		c.degradedRows = true
	case "channel":
		c.degradedChannel = true
	}
	c.mu.Unlock()

	c.logger.Error("Room subscription degraded", "source", source, "error", err)
	publish(c, topics.SessionDegraded, events.SessionDegraded{
		RoomID: c.roomID,
		Source: source,
		Reason: err.Error(),
	})
}

// publish is a best-effort typed emit on the internal bus.
func publish[T any](c *Controller, event pubsub.Event[T], payload T) {
	if c.deps.Publisher == nil {
		return
	}

	if err := pubsub.Publish(context.Background(), c.deps.Publisher, event, c.roomID, payload); err != nil {
		c.logger.Warn("Failed to publish view event", "topic", event.Name(), "error", err)
	}
}
