package transport

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/nfrund/storge/internal/domain"
)

// Inbound events are normalized into tagged variants exactly once, here at
// the boundary. The core only ever sees these types, never the loosely
// shaped wire payloads.

var validate = validator.New()

// PresencePayload is the record a participant tracks on a channel.
type PresencePayload struct {
	ParticipantID string    `json:"participant_id" validate:"required"`
	DisplayName   string    `json:"display_name"`
	Since         time.Time `json:"since"`
}

// PresenceEvent is the tagged union of presence changes delivered by a
// channel: PresenceSync, PresenceJoin or PresenceLeave.
type PresenceEvent interface {
	presenceEvent()
}

// PresenceSync is the authoritative full presence state of a channel. The
// backend may report multiple device records per participant.
type PresenceSync struct {
	State map[string][]domain.PresenceRecord
}

// PresenceJoin reports one participant joining (or re-asserting) presence.
type PresenceJoin struct {
	ParticipantID string
	Records       []domain.PresenceRecord
}

// PresenceLeave reports one participant withdrawing presence.
type PresenceLeave struct {
	ParticipantID string
}

func (PresenceSync) presenceEvent()  {}
func (PresenceJoin) presenceEvent()  {}
func (PresenceLeave) presenceEvent() {}

// TypingEvent is a normalized typing broadcast from another participant.
type TypingEvent struct {
	ParticipantID string `json:"participant_id" validate:"required"`
	DisplayName   string `json:"display_name"`
	Typing        bool   `json:"typing"`
}

// TypingEventName is the broadcast event name carrying typing signals.
const TypingEventName = "typing"

// ParseTyping normalizes a raw typing broadcast payload.
func ParseTyping(payload json.RawMessage) (TypingEvent, error) {
	var ev TypingEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return TypingEvent{}, fmt.Errorf("malformed typing event: %w", err)
	}
	if err := validate.Struct(ev); err != nil {
		return TypingEvent{}, fmt.Errorf("invalid typing event: %w", err)
	}
	return ev, nil
}

// rowMessage mirrors the messages collection row shape for validation.
type rowMessage struct {
	ID        string `json:"id" validate:"required"`
	RoomID    string `json:"room_id" validate:"required"`
	AuthorID  string `json:"author_id" validate:"required"`
	Text      string `json:"text"`
	CreatedAt string `json:"created_at" validate:"required"`

	AuthorDisplay struct {
		Name   string `json:"name"`
		Avatar string `json:"avatar"`
	} `json:"author_display"`
}

// ParseMessage normalizes one row of the messages collection into a domain
// message. Author display info is optional; a missing display marks the
// message for a profile lookup downstream.
func ParseMessage(rec Record) (domain.Message, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return domain.Message{}, fmt.Errorf("re-encode message row: %w", err)
	}

	var row rowMessage
	if err := json.Unmarshal(raw, &row); err != nil {
		return domain.Message{}, fmt.Errorf("malformed message row: %w", err)
	}
	if err := validate.Struct(row); err != nil {
		return domain.Message{}, fmt.Errorf("invalid message row: %w", err)
	}

	createdAt, err := parseTimestamp(row.CreatedAt)
	if err != nil {
		return domain.Message{}, fmt.Errorf("invalid message timestamp %q: %w", row.CreatedAt, err)
	}

	return domain.Message{
		ID:        row.ID,
		RoomID:    row.RoomID,
		AuthorID:  row.AuthorID,
		Text:      row.Text,
		CreatedAt: createdAt,
		Author: domain.AuthorDisplay{
			Name:   row.AuthorDisplay.Name,
			Avatar: row.AuthorDisplay.Avatar,
		},
	}, nil
}

// parseTimestamp accepts the timestamp formats the backends emit.
func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05.999999-07"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp format")
}
