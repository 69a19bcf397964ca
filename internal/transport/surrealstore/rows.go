package surrealstore

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/surrealdb/surrealdb.go"
	"github.com/surrealdb/surrealdb.go/pkg/connection"
	"github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/nfrund/storge/internal/transport"
)

// rowSubscription is one live query bound to a collection and filter.
type rowSubscription struct {
	id          string
	store       *Store
	liveQueryID string
	cancel      context.CancelFunc
	closed      atomic.Bool
	closeOnce   sync.Once
}

// Subscribe implements transport.RowStream using a SurrealDB live query.
func (s *Store) Subscribe(ctx context.Context, q transport.RowQuery) (transport.RowSubscription, error) {
	if q.Handler == nil {
		return nil, fmt.Errorf("subscribe %s: handler cannot be nil", q.Collection)
	}

	query := fmt.Sprintf("LIVE SELECT * FROM %s", q.Collection)
	var params map[string]any
	if where, whereParams := buildWhere(q.Filter); where != "" {
		query += " WHERE " + where
		params = whereParams
	}

	s.logger.Info("Creating live query subscription", "collection", q.Collection)

	results, err := surrealdb.Query[any](ctx, s.db, query, params)
	if err != nil {
		return nil, fmt.Errorf("execute live query: %w", err)
	}
	if results == nil || len(*results) == 0 {
		return nil, fmt.Errorf("live query returned no results")
	}

	result := (*results)[0]
	if result.Status != "OK" {
		return nil, fmt.Errorf("live query failed with status: %s", result.Status)
	}

	liveQueryID, err := extractLiveQueryID(result.Result)
	if err != nil {
		return nil, err
	}

	notificationChan, err := s.db.LiveNotifications(liveQueryID)
	if err != nil {
		return nil, fmt.Errorf("get notification channel: %w", err)
	}

	subCtx, cancel := context.WithCancel(context.Background())
	sub := &rowSubscription{
		id:          uuid.New().String(),
		store:       s,
		liveQueryID: liveQueryID,
		cancel:      cancel,
	}

	go sub.listen(subCtx, q, notificationChan)

	s.logger.Info("Live query established", "sub_id", sub.id, "live_query_id", liveQueryID)
	return sub, nil
}

// extractLiveQueryID pulls the live query UUID out of the statement
// result, which the driver may deliver in several shapes.
func extractLiveQueryID(result any) (string, error) {
	switch v := result.(type) {
	case string:
		return v, nil
	case models.UUID:
		return v.String(), nil
	case map[string]any:
		if id, ok := v["id"].(string); ok {
			return id, nil
		}
		if id, ok := v["id"].(models.UUID); ok {
			return id.String(), nil
		}
		return "", fmt.Errorf("live query result map has no usable 'id' field: %+v", v)
	default:
		return "", fmt.Errorf("unexpected live query result type: %T", result)
	}
}

// listen forwards live notifications to the row handler until the
// subscription closes. An unexpected channel close reports through OnError
// without tearing anything down.
func (sub *rowSubscription) listen(ctx context.Context, q transport.RowQuery, ch <-chan connection.Notification) {
	logger := sub.store.logger.With("sub_id", sub.id)

	for {
		select {
		case <-ctx.Done():
			logger.Debug("Live query listener stopped")
			return

		case notification, ok := <-ch:
			if !ok {
				if !sub.closed.Load() && q.OnError != nil {
					q.OnError(fmt.Errorf("live query notification channel closed"))
				}
				return
			}

			var action transport.RowAction
			switch notification.Action {
			case connection.CreateAction:
				action = transport.RowCreate
			case connection.UpdateAction:
				action = transport.RowUpdate
			case connection.DeleteAction:
				action = transport.RowDelete
			default:
				logger.Warn("Unknown notification action", "action", notification.Action)
				continue
			}

			rec, err := toRecord(notification.Result)
			if err != nil {
				logger.Warn("Dropping undecodable live notification", "error", err)
				continue
			}

			func() {
				defer func() {
					if r := recover(); r != nil {
						logger.Error("Panic in row-change handler", "panic", r)
					}
				}()
				q.Handler(ctx, action, rec)
			}()
		}
	}
}

// toRecord converts a live notification payload into a transport.Record.
func toRecord(result any) (transport.Record, error) {
	switch v := result.(type) {
	case map[string]any:
		return normalizeRecord(transport.Record(v)), nil
	case map[any]any:
		rec := make(transport.Record, len(v))
		for k, val := range v {
			key, ok := k.(string)
			if !ok {
				continue
			}
			rec[key] = val
		}
		return normalizeRecord(rec), nil
	default:
		return nil, fmt.Errorf("unexpected notification payload type: %T", result)
	}
}

// ID implements transport.RowSubscription.
func (sub *rowSubscription) ID() string {
	return sub.id
}

// Close kills the live query. The wait is bounded by ctx; after that the
// resource is considered released regardless.
func (sub *rowSubscription) Close(ctx context.Context) error {
	var err error
	sub.closeOnce.Do(func() {
		sub.closed.Store(true)
		sub.cancel()

		if cerr := sub.store.db.CloseLiveNotifications(sub.liveQueryID); cerr != nil {
			sub.store.logger.Warn("Failed to close live notifications",
				"live_query_id", sub.liveQueryID, "error", cerr)
		}

		// Give the channel a moment to drain before killing server-side.
		time.Sleep(50 * time.Millisecond)

		killParams := map[string]any{"liveQueryID": sub.liveQueryID}
		if _, kerr := surrealdb.Query[any](ctx, sub.store.db, "KILL $liveQueryID", killParams); kerr != nil {
			err = fmt.Errorf("kill live query: %w", kerr)
		}
	})
	return err
}
