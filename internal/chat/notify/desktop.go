package notify

import (
	"context"
	"log/slog"
	"sync"

	"github.com/gen2brain/beeep"
)

// DesktopNotifier shows alerts through the OS notification daemon.
type DesktopNotifier struct {
	appName string
	logger  *slog.Logger
}

// NewDesktopNotifier creates a notifier for the given application name.
func NewDesktopNotifier(appName string) *DesktopNotifier {
	return &DesktopNotifier{
		appName: appName,
		logger:  slog.Default().With("component", "notifier"),
	}
}

// RequestPermission reports granted: desktop notification daemons have no
// user-facing permission prompt comparable to the browser's.
func (d *DesktopNotifier) RequestPermission(ctx context.Context) (Permission, error) {
	return PermissionGranted, nil
}

// Show displays one alert. The desktop surface has no activation callback,
// so onActivate is accepted but never invoked; collapsing by tag is left
// to the daemon.
func (d *DesktopNotifier) Show(ctx context.Context, n Notification, onActivate func(tag string)) error {
	beeep.AppName = d.appName
	if err := beeep.Notify(n.Title, n.Body, ""); err != nil {
		d.logger.Warn("Failed to show desktop notification", "tag", n.Tag, "error", err)
		return err
	}
	return nil
}

// ManualVisibility is a Visibility source toggled by the surrounding
// application, e.g. when the chat loop is backgrounded.
type ManualVisibility struct {
	mu     sync.RWMutex
	hidden bool
}

// NewManualVisibility starts visible.
func NewManualVisibility() *ManualVisibility {
	return &ManualVisibility{}
}

// Set updates the hidden state.
func (v *ManualVisibility) Set(hidden bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.hidden = hidden
}

// Hidden reports the current state.
func (v *ManualVisibility) Hidden() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.hidden
}
