package domain

import "time"

// RoomType distinguishes group conversations from direct ones.
type RoomType string

const (
	RoomTypeGroup  RoomType = "group"
	RoomTypeDirect RoomType = "direct"
)

// Room is a scoped conversation owning its own messages, presence set and
// typing set.
type Room struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	Type      RoomType  `json:"type"`
	CreatedBy string    `json:"created_by"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// DisplayName returns the name to render for the room. Unnamed groups fall
// back to a generic label; unnamed direct chats to a short ID prefix.
func (r Room) DisplayName() string {
	if r.Name != "" {
		return r.Name
	}
	if r.Type == RoomTypeGroup {
		return "Unnamed Group"
	}
	id := r.ID
	if len(id) > 4 {
		id = id[:4]
	}
	return "Chat " + id
}
