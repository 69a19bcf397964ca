// Package app wires the application together: configuration, logging, the
// internal event bus, the backend adapters selected by the configured
// driver, and the chat services built on top of them.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/samber/do/v2"
	"github.com/spf13/afero"

	"github.com/nfrund/storge/internal/auth"
	"github.com/nfrund/storge/internal/chat/notify"
	"github.com/nfrund/storge/internal/chat/session"
	"github.com/nfrund/storge/internal/config"
	"github.com/nfrund/storge/internal/profiles"
	"github.com/nfrund/storge/internal/pubsub"
	"github.com/nfrund/storge/internal/rooms"
	"github.com/nfrund/storge/internal/storage"
	"github.com/nfrund/storge/internal/transport"
	"github.com/nfrund/storge/internal/transport/pgstore"
	"github.com/nfrund/storge/internal/transport/realtime"
	"github.com/nfrund/storge/internal/transport/surrealstore"
)

// App is the assembled application.
type App struct {
	injector *do.RootScope

	Config      config.Provider
	Bus         *pubsub.WatermillBridge
	Auth        *auth.Client
	Profiles    *profiles.Service
	Rooms       *rooms.Service
	Coordinator *session.Coordinator
	Visibility  *notify.ManualVisibility
}

// New builds the application for the given participant. The participant is
// known only after login, so the container is assembled per run, not per
// process start.
func New(ctx context.Context, cfg config.Provider, self session.Participant) (*App, error) {
	injector := do.New()

	do.ProvideValue(injector, cfg)

	do.Provide(injector, func(i do.Injector) (*pubsub.WatermillBridge, error) {
		return pubsub.NewWatermillBridge(), nil
	})

	do.Provide(injector, func(i do.Injector) (transport.Querier, error) {
		return newBackend(ctx, cfg)
	})

	// The row stream is the same adapter object as the querier; both
	// drivers implement both contracts.
	do.Provide(injector, func(i do.Injector) (transport.RowStream, error) {
		q := do.MustInvoke[transport.Querier](i)
		rs, ok := q.(transport.RowStream)
		if !ok {
			return nil, fmt.Errorf("backend %T does not stream row changes", q)
		}
		return rs, nil
	})

	do.Provide(injector, func(i do.Injector) (transport.ChannelService, error) {
		return realtime.NewService(cfg.RealtimeURL()), nil
	})

	do.Provide(injector, func(i do.Injector) (transport.ObjectStore, error) {
		return storage.NewAferoStore(afero.NewOsFs(), cfg.StorageURL()), nil
	})

	do.Provide(injector, func(i do.Injector) (*profiles.Service, error) {
		return profiles.NewService(profiles.Dependencies{
			Querier: do.MustInvoke[transport.Querier](i),
			Objects: do.MustInvoke[transport.ObjectStore](i),
			Logger:  slog.Default(),
		}), nil
	})

	do.Provide(injector, func(i do.Injector) (*rooms.Service, error) {
		return rooms.NewService(do.MustInvoke[transport.Querier](i), slog.Default()), nil
	})

	do.Provide(injector, func(i do.Injector) (*auth.Client, error) {
		return auth.NewClient(cfg.LoginURL(), slog.Default()), nil
	})

	do.ProvideValue(injector, notify.NewManualVisibility())

	do.Provide(injector, func(i do.Injector) (notify.Notifier, error) {
		return notify.NewDesktopNotifier("storge"), nil
	})

	do.Provide(injector, func(i do.Injector) (*session.Coordinator, error) {
		deps := session.Deps{
			Querier:      do.MustInvoke[transport.Querier](i),
			Rows:         do.MustInvoke[transport.RowStream](i),
			Channels:     do.MustInvoke[transport.ChannelService](i),
			Resolver:     do.MustInvoke[*profiles.Service](i),
			Notifier:     do.MustInvoke[notify.Notifier](i),
			Visibility:   do.MustInvoke[*notify.ManualVisibility](i),
			Publisher:    do.MustInvoke[*pubsub.WatermillBridge](i),
			TypingIdle:   cfg.TypingIdle(),
			CloseTimeout: cfg.SessionCloseTimeout(),
		}
		factory := func(roomID string) *session.Controller {
			return session.NewController(deps, roomID, self)
		}
		return session.NewCoordinator(factory), nil
	})

	app := &App{
		injector:    injector,
		Config:      cfg,
		Bus:         do.MustInvoke[*pubsub.WatermillBridge](injector),
		Auth:        do.MustInvoke[*auth.Client](injector),
		Profiles:    do.MustInvoke[*profiles.Service](injector),
		Rooms:       do.MustInvoke[*rooms.Service](injector),
		Coordinator: do.MustInvoke[*session.Coordinator](injector),
		Visibility:  do.MustInvoke[*notify.ManualVisibility](injector),
	}
	return app, nil
}

// newBackend builds the driver-selected query/stream adapter.
func newBackend(ctx context.Context, cfg config.Provider) (transport.Querier, error) {
	switch cfg.RemoteDriver() {
	case config.DriverSurreal:
		return surrealstore.Connect(ctx, cfg)
	case config.DriverPostgres:
		return pgstore.Connect(ctx, cfg.PostgresURL())
	default:
		return nil, fmt.Errorf("unknown remote driver %q", cfg.RemoteDriver())
	}
}

// Shutdown tears the container down, closing any active session first.
func (a *App) Shutdown(ctx context.Context) error {
	if err := a.Coordinator.Close(ctx); err != nil {
		slog.Warn("Closing active session during shutdown failed", "error", err)
	}
	a.injector.Shutdown()
	return a.Bus.Close()
}
