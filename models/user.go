package models

import "time"

// User is one Telegram account known to the service. Identity is the
// external tg_id; display fields are whatever the first /start carried
// (first write wins, later contacts never overwrite them).
type User struct {
	ID        string    `gorm:"primaryKey;type:uuid" json:"id"`
	TgID      int64     `gorm:"uniqueIndex;not null" json:"tg_id"`
	Username  *string   `json:"username,omitempty"`
	FirstName *string   `json:"first_name,omitempty"`
	LastName  *string   `json:"last_name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// DisplayName picks the best human-readable label for admin views:
// username, then first name, then empty (callers fall back to tg_id).
func (u *User) DisplayName() string {
	if u.Username != nil && *u.Username != "" {
		return *u.Username
	}
	if u.FirstName != nil && *u.FirstName != "" {
		return *u.FirstName
	}
	return ""
}
