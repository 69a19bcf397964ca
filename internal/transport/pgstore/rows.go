package pgstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nfrund/storge/internal/transport"
)

// notifyPayload is what the backend triggers put on the NOTIFY channel.
type notifyPayload struct {
	Action string           `json:"action"`
	Record transport.Record `json:"record"`
}

// Subscribe implements transport.RowStream. A dedicated connection is
// acquired for the lifetime of the subscription to run LISTEN and block
// on notifications; filters are applied client side because NOTIFY
// payloads are channel-wide.
func (s *Store) Subscribe(ctx context.Context, q transport.RowQuery) (transport.RowSubscription, error) {
	if q.Handler == nil {
		return nil, fmt.Errorf("row query for %s has no handler", q.Collection)
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire listen connection: %w", err)
	}

	channel := "storge_" + q.Collection
	if _, err := conn.Exec(ctx, "LISTEN "+channel); err != nil {
		conn.Release()
		return nil, fmt.Errorf("listen on %s: %w", channel, err)
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	sub := &listener{
		id:      uuid.NewString(),
		store:   s,
		query:   q,
		conn:    conn,
		channel: channel,
		cancel:  cancel,
	}

	go sub.listen(streamCtx)

	s.logger.Info("Row stream started", "collection", q.Collection, "channel", channel)
	return sub, nil
}

type listener struct {
	id      string
	store   *Store
	query   transport.RowQuery
	conn    *pgxpool.Conn
	channel string
	cancel  context.CancelFunc

	closed    atomic.Bool
	closeOnce sync.Once
}

// ID implements transport.RowSubscription.
func (l *listener) ID() string {
	return l.id
}

func (l *listener) listen(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			l.store.logger.Error("Row stream handler panicked",
				"collection", l.query.Collection, "panic", r)
		}
	}()

	for {
		notification, err := l.conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil || l.closed.Load() {
				return
			}
			l.store.logger.Error("Row stream receive failed",
				"collection", l.query.Collection, "error", err)
			if l.query.OnError != nil {
				l.query.OnError(fmt.Errorf("row stream for %s: %w", l.query.Collection, err))
			}
			return
		}

		var payload notifyPayload
		if err := json.Unmarshal([]byte(notification.Payload), &payload); err != nil {
			l.store.logger.Warn("Discarding malformed row notification",
				"collection", l.query.Collection, "error", err)
			continue
		}
		if !l.matches(payload.Record) {
			continue
		}

		l.query.Handler(ctx, toAction(payload.Action), payload.Record)
	}
}

// matches applies the query's equality filter client side.
func (l *listener) matches(rec transport.Record) bool {
	for k, want := range l.query.Filter {
		got, ok := rec[k]
		if !ok || fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

// Close implements transport.RowSubscription.
func (l *listener) Close(ctx context.Context) error {
	var err error
	l.closeOnce.Do(func() {
		l.closed.Store(true)
		l.cancel()

		// UNLISTEN on the dedicated connection before returning it to
		// the pool so a future borrower does not inherit the channel.
		if _, execErr := l.conn.Exec(ctx, "UNLISTEN "+l.channel); execErr != nil {
			err = fmt.Errorf("unlisten %s: %w", l.channel, execErr)
		}
		l.conn.Release()

		l.store.logger.Info("Row stream stopped", "collection", l.query.Collection)
	})
	return err
}

func toAction(action string) transport.RowAction {
	switch action {
	case "INSERT", "CREATE":
		return transport.RowCreate
	case "UPDATE":
		return transport.RowUpdate
	case "DELETE":
		return transport.RowDelete
	default:
		return transport.RowUpdate
	}
}
