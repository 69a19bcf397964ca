// Package realtime implements the channel service over a websocket
// connection. Each opened channel holds its own connection; the wire
// protocol is JSON frames tagged with a type (join, leave, broadcast,
// track, untrack, presence_*, heartbeat).
package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/nfrund/storge/internal/transport"
)

// Service opens websocket-backed channels against the realtime endpoint.
type Service struct {
	url    string
	header http.Header
	logger *slog.Logger
}

// Option configures the service.
type Option func(*Service)

// WithHeader sets a header sent on every dial, e.g. Authorization.
func WithHeader(key, value string) Option {
	return func(s *Service) {
		s.header.Set(key, value)
	}
}

// NewService creates a channel service dialing the given websocket URL.
func NewService(url string, opts ...Option) *Service {
	s := &Service{
		url:    url,
		header: http.Header{},
		logger: slog.Default().With("component", "realtime"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open implements transport.ChannelService. It dials the endpoint, sends
// the join frame and starts the read and ping pumps. The returned channel
// delivers no events until handlers are registered.
func (s *Service) Open(ctx context.Context, name string, cfg transport.ChannelConfig) (transport.Channel, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, s.header)
	if err != nil {
		return nil, fmt.Errorf("dial realtime endpoint: %w", err)
	}

	ch := newChannel(conn, name, cfg, s.logger)
	if err := ch.join(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("join channel %s: %w", name, err)
	}

	go ch.readPump()
	go ch.pingLoop()

	s.logger.Info("Channel opened", "channel", name, "presence", cfg.Presence)
	return ch, nil
}
