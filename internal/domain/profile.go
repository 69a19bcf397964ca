package domain

import "time"

// Profile is a participant's stored profile record.
type Profile struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	Bio           string    `json:"bio,omitempty"`
	StatusMessage string    `json:"status_message,omitempty"`
	AvatarURL     string    `json:"avatar_url,omitempty"`
	UpdatedAt     time.Time `json:"updated_at,omitempty"`
}

// Display returns the author display info derived from the profile.
func (p Profile) Display() AuthorDisplay {
	return AuthorDisplay{Name: p.Username, Avatar: p.AvatarURL}
}
