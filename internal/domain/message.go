package domain

import "time"

// AuthorDisplay is the denormalized author info attached to a message for
// rendering. Avatar may be empty.
type AuthorDisplay struct {
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

// UnknownAuthor is the placeholder display used when a profile lookup for a
// message author fails. The message is still shown.
var UnknownAuthor = AuthorDisplay{Name: "Unknown"}

// Message is a single chat message. Messages are immutable once created;
// ID is unique within a room.
type Message struct {
	ID        string        `json:"id"`
	RoomID    string        `json:"room_id"`
	AuthorID  string        `json:"author_id"`
	Text      string        `json:"text"`
	CreatedAt time.Time     `json:"created_at"`
	Author    AuthorDisplay `json:"author_display"`
}

// HasAuthorDisplay reports whether the message already carries resolved
// author info, or needs a profile lookup before it is shown.
func (m Message) HasAuthorDisplay() bool {
	return m.Author.Name != ""
}
