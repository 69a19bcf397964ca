package domain

import "time"

// PresenceRecord is one participant's tracked "connected to this room"
// record. It is reconstructed from the channel's sync/join/leave events on
// every room activation and never persisted.
type PresenceRecord struct {
	ParticipantID string    `json:"participant_id"`
	DisplayName   string    `json:"display_name"`
	Since         time.Time `json:"since"`
}

// TypingState is a transient "participant is typing" entry, keyed by
// participant ID in a room's typing map.
type TypingState struct {
	ParticipantID string `json:"participant_id"`
	DisplayName   string `json:"display_name"`
}
