package models

import "time"

// RewardRequestStatus is the review state of a reward claim.
type RewardRequestStatus string

const (
	RewardStatusPending  RewardRequestStatus = "pending"
	RewardStatusApproved RewardRequestStatus = "approved"
	RewardStatusRejected RewardRequestStatus = "rejected"
)

// RewardRequest is a user's claim for compensation, reviewed by an admin.
// A partial unique index on (user_id) WHERE status='pending' (see
// AutoMigrate) enforces at most one open claim per user; approved/rejected
// rows are terminal history and never block a fresh submission.
type RewardRequest struct {
	ID        string              `gorm:"primaryKey;type:uuid" json:"id"`
	UserID    string              `gorm:"index;not null" json:"user_id"`
	BankKey   string              `gorm:"not null" json:"bank_key"`
	Phone     string              `gorm:"not null" json:"phone"`
	FirstName string              `gorm:"not null" json:"first_name"`
	LastName  string              `gorm:"not null" json:"last_name"`
	Status    RewardRequestStatus `gorm:"not null;default:'pending'" json:"status"`
	CreatedAt time.Time           `json:"created_at"`
}

// RewardRequestWithUser joins the submitter's identity for admin review
// screens (pending queue and resolved history).
type RewardRequestWithUser struct {
	ID          string              `json:"id"`
	UserID      string              `json:"user_id"`
	BankKey     string              `json:"bank_key"`
	Phone       string              `json:"phone"`
	FirstName   string              `json:"first_name"`
	LastName    string              `json:"last_name"`
	Status      RewardRequestStatus `json:"status"`
	CreatedAt   time.Time           `json:"created_at"`
	TgID        int64               `json:"tg_id"`
	TgUsername  *string             `json:"tg_username,omitempty"`
	TgFirstName *string             `json:"tg_first_name,omitempty"`
	TgLastName  *string             `json:"tg_last_name,omitempty"`
}
