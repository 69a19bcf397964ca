package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nfrund/storge/internal/domain"
	"github.com/nfrund/storge/internal/transport"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	maxFrameSize = 64 * 1024
)

// frame is the wire envelope for every message on a channel connection.
type frame struct {
	Type    string          `json:"type"`
	Topic   string          `json:"topic"`
	Event   string          `json:"event,omitempty"`
	Key     string          `json:"key,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

const (
	frameJoin          = "join"
	frameLeave         = "leave"
	frameBroadcast     = "broadcast"
	frameTrack         = "track"
	frameUntrack       = "untrack"
	framePresenceSync  = "presence_sync"
	framePresenceJoin  = "presence_join"
	framePresenceLeave = "presence_leave"
)

// joinConfig rides the join frame payload.
type joinConfig struct {
	Presence      bool `json:"presence"`
	BroadcastSelf bool `json:"broadcast_self"`
}

type channel struct {
	name   string
	cfg    transport.ChannelConfig
	conn   *websocket.Conn
	logger *slog.Logger

	// writeMu serializes writes; gorilla connections allow one writer.
	writeMu sync.Mutex

	mu         sync.RWMutex
	broadcasts map[string]transport.BroadcastHandler
	onPresence transport.PresenceHandler
	onError    func(error)

	closed    atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

func newChannel(conn *websocket.Conn, name string, cfg transport.ChannelConfig, logger *slog.Logger) *channel {
	return &channel{
		name:       name,
		cfg:        cfg,
		conn:       conn,
		logger:     logger.With("channel", name),
		broadcasts: make(map[string]transport.BroadcastHandler),
		done:       make(chan struct{}),
	}
}

func (c *channel) Name() string {
	return c.name
}

func (c *channel) OnBroadcast(event string, h transport.BroadcastHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.broadcasts[event] = h
}

func (c *channel) OnPresence(h transport.PresenceHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onPresence = h
}

func (c *channel) OnError(h func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = h
}

// Send broadcasts a named event. Fire-and-forget: delivery is not
// acknowledged and the payload is never persisted.
func (c *channel) Send(ctx context.Context, event string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode broadcast payload: %w", err)
	}
	return c.writeFrame(frame{Type: frameBroadcast, Topic: c.name, Event: event, Payload: raw})
}

func (c *channel) Track(ctx context.Context, payload transport.PresencePayload) error {
	if !c.cfg.Presence {
		return fmt.Errorf("channel %s opened without presence", c.name)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode presence payload: %w", err)
	}
	return c.writeFrame(frame{Type: frameTrack, Topic: c.name, Key: payload.ParticipantID, Payload: raw})
}

func (c *channel) Untrack(ctx context.Context) error {
	return c.writeFrame(frame{Type: frameUntrack, Topic: c.name})
}

// Close sends the leave frame and tears the connection down. It waits for
// the read pump to drain until the context deadline, after which the
// handle is considered released regardless.
func (c *channel) Close(ctx context.Context) error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)

		if writeErr := c.writeFrame(frame{Type: frameLeave, Topic: c.name}); writeErr != nil {
			err = fmt.Errorf("send leave frame: %w", writeErr)
		}
		c.conn.Close()

		select {
		case <-c.done:
		case <-ctx.Done():
			c.logger.Warn("Channel close timed out waiting for read pump")
		}
		c.logger.Info("Channel closed")
	})
	return err
}

func (c *channel) join(ctx context.Context) error {
	raw, err := json.Marshal(joinConfig{
		Presence:      c.cfg.Presence,
		BroadcastSelf: c.cfg.BroadcastSelf,
	})
	if err != nil {
		return fmt.Errorf("encode join config: %w", err)
	}
	return c.writeFrame(frame{Type: frameJoin, Topic: c.name, Payload: raw})
}

func (c *channel) writeFrame(f frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(f); err != nil {
		return fmt.Errorf("write %s frame: %w", f.Type, err)
	}
	return nil
}

// readPump receives frames until the connection dies. Handler panics are
// contained so a bad payload cannot take the connection down.
func (c *channel) readPump() {
	defer close(c.done)

	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var f frame
		if err := c.conn.ReadJSON(&f); err != nil {
			if c.closed.Load() {
				return
			}
			c.logger.Error("Channel read failed", "error", err)
			c.reportError(fmt.Errorf("channel %s: %w", c.name, err))
			return
		}
		c.dispatch(f)
	}
}

func (c *channel) dispatch(f frame) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Channel handler panicked", "frame", f.Type, "panic", r)
		}
	}()

	switch f.Type {
	case frameBroadcast:
		c.mu.RLock()
		h := c.broadcasts[f.Event]
		c.mu.RUnlock()
		if h == nil {
			return
		}
		h(context.Background(), f.Payload)

	case framePresenceSync, framePresenceJoin, framePresenceLeave:
		ev, err := decodePresence(f)
		if err != nil {
			c.logger.Warn("Discarding malformed presence frame", "frame", f.Type, "error", err)
			return
		}
		c.mu.RLock()
		h := c.onPresence
		c.mu.RUnlock()
		if h == nil {
			return
		}
		h(context.Background(), ev)

	default:
		c.logger.Debug("Ignoring unknown frame", "frame", f.Type)
	}
}

// decodePresence normalizes presence frames into the tagged union.
func decodePresence(f frame) (transport.PresenceEvent, error) {
	switch f.Type {
	case framePresenceSync:
		var state map[string][]domain.PresenceRecord
		if err := json.Unmarshal(f.Payload, &state); err != nil {
			return nil, fmt.Errorf("decode presence state: %w", err)
		}
		return transport.PresenceSync{State: state}, nil

	case framePresenceJoin:
		if f.Key == "" {
			return nil, fmt.Errorf("presence join without participant key")
		}
		var recs []domain.PresenceRecord
		if err := json.Unmarshal(f.Payload, &recs); err != nil {
			return nil, fmt.Errorf("decode join records: %w", err)
		}
		return transport.PresenceJoin{ParticipantID: f.Key, Records: recs}, nil

	case framePresenceLeave:
		if f.Key == "" {
			return nil, fmt.Errorf("presence leave without participant key")
		}
		return transport.PresenceLeave{ParticipantID: f.Key}, nil
	}
	return nil, fmt.Errorf("not a presence frame: %s", f.Type)
}

func (c *channel) reportError(err error) {
	c.mu.RLock()
	h := c.onError
	c.mu.RUnlock()
	if h != nil {
		h(err)
	}
}

// pingLoop keeps the connection alive; the server answers with pongs that
// extend the read deadline.
func (c *channel) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				if !c.closed.Load() {
					c.logger.Warn("Channel ping failed", "error", err)
				}
				return
			}
		}
	}
}
