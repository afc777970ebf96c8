package models

import "time"

// Referral is a directed edge "referrer invited referred" through one bank's
// link. ReferredID carries the unique index that makes the first valid invite
// win: a user can be on the referred side of at most one edge, ever.
// BankKey is a historical tag — deleting the bank keeps the edge intact.
type Referral struct {
	ID         string    `gorm:"primaryKey;type:uuid" json:"id"`
	ReferrerID string    `gorm:"index;not null" json:"referrer_id"`
	ReferredID string    `gorm:"uniqueIndex;not null" json:"referred_id"`
	BankKey    string    `gorm:"not null" json:"bank_key"`
	CreatedAt  time.Time `json:"created_at"`
}
