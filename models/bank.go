package models

import "fmt"

// Bank is a partner program a user can be referred into. Key doubles as the
// primary identifier in deep-link payloads and referral tags.
type Bank struct {
	Key     string `gorm:"primaryKey" json:"key"`
	BaseURL string `gorm:"not null" json:"base_url"`
}

// DefaultBanks are seeded on first boot (insert-or-ignore).
var DefaultBanks = []Bank{
	{Key: "alfa", BaseURL: "https://example.com/alfa"},
	{Key: "tbank", BaseURL: "https://example.com/tbank"},
	{Key: "gazprom", BaseURL: "https://example.com/gazprom"},
}

// ReferralLink builds the personalized invite link handed to a user.
func (b *Bank) ReferralLink(tgID int64) string {
	return fmt.Sprintf("%s?ref=%d", b.BaseURL, tgID)
}
