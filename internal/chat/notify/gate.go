// Package notify decides when an out-of-focus alert fires for an incoming
// message and abstracts the platform notification surface.
package notify

import (
	"context"

	"github.com/nfrund/storge/internal/domain"
)

// Permission is the platform notification permission state.
type Permission string

const (
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
	PermissionDefault Permission = "default"
)

// Visibility reports whether the consuming surface is currently hidden
// from the user.
type Visibility interface {
	Hidden() bool
}

// Notification is one alert handed to the platform surface. Tag carries
// the room ID so the surface can collapse alerts for the same room, and so
// activation can report which room was targeted.
type Notification struct {
	Title string
	Body  string
	Tag   string
}

// Notifier is the platform notification surface.
type Notifier interface {
	RequestPermission(ctx context.Context) (Permission, error)
	// Show displays one alert. onActivate, when supported by the
	// platform, reports the tag of the activated alert; the decision to
	// switch rooms stays with the caller.
	Show(ctx context.Context, n Notification, onActivate func(tag string)) error
}

// Input is the evaluation context for one incoming message.
type Input struct {
	TabHidden  bool
	Permission Permission
	SelfID     string
}

// Decision is the gate's verdict for one message.
type Decision struct {
	Fire bool
	// Tag is the room ID the alert should carry when firing.
	Tag string
}

// Gate decides, per incoming message, whether a user-visible alert fires.
type Gate struct{}

// NewGate creates a Gate.
func NewGate() *Gate {
	return &Gate{}
}

// Evaluate fires iff the surface is hidden, permission is granted and the
// message is not self-authored. Callers invoke it exactly once per message
// that becomes visible, so each qualifying message yields one alert.
func (g *Gate) Evaluate(msg domain.Message, in Input) Decision {
	if !in.TabHidden {
		return Decision{}
	}
	if in.Permission != PermissionGranted {
		return Decision{}
	}
	if msg.AuthorID == in.SelfID {
		return Decision{}
	}
	return Decision{Fire: true, Tag: msg.RoomID}
}
