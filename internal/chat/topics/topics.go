// Package topics declares the internal bus topics for the chat view.
package topics

import (
	"github.com/nfrund/storge/internal/chat/events"
	"github.com/nfrund/storge/internal/pubsub"
)

var (
	// TimelineUpdated fires once per message that becomes visible.
	TimelineUpdated = pubsub.NewEvent[events.TimelineUpdated](
		"chat.timeline.updated",
		"A message became visible in the active room's timeline")

	// PresenceUpdated fires after every presence reconciliation change.
	PresenceUpdated = pubsub.NewEvent[events.PresenceUpdated](
		"chat.presence.updated",
		"The active room's online participant set changed")

	// TypingUpdated fires after every typing map change.
	TypingUpdated = pubsub.NewEvent[events.TypingUpdated](
		"chat.typing.updated",
		"The active room's set of typing participants changed")

	// SessionDegraded fires when a subscription errors mid-session.
	SessionDegraded = pubsub.NewEvent[events.SessionDegraded](
		"chat.session.degraded",
		"A room subscription entered an error state; cached view remains usable")

	// NotificationFired fires when the notification gate shows an alert.
	NotificationFired = pubsub.NewEvent[events.NotificationFired](
		"chat.notification.fired",
		"An out-of-focus alert was shown for a room")
)
