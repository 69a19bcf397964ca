// Package events defines the derived-view payloads the room session
// publishes on the internal bus.
package events

// TimelineUpdated reports that a message became visible in a room.
type TimelineUpdated struct {
	RoomID    string `json:"room_id"`
	MessageID string `json:"message_id"`
	Author    string `json:"author"`
	Text      string `json:"text"`
	Count     int    `json:"count"`
}

// PresenceUpdated reports the current online participant IDs of a room.
type PresenceUpdated struct {
	RoomID string   `json:"room_id"`
	Online []string `json:"online"`
}

// TypingUpdated reports the display names currently typing in a room.
type TypingUpdated struct {
	RoomID string   `json:"room_id"`
	Names  []string `json:"names"`
}

// SessionDegraded reports a subscription error observed mid-session.
// Row-change and channel failures are reported independently; the session
// stays up and recovery is the next explicit activation.
type SessionDegraded struct {
	RoomID string `json:"room_id"`
	Source string `json:"source"` // "rows" or "channel"
	Reason string `json:"reason"`
}

// NotificationFired reports that the gate fired an alert for a room.
type NotificationFired struct {
	RoomID string `json:"room_id"`
	Title  string `json:"title"`
}
