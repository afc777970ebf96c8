package models

// Setting is a single admin-mutable key/value pair (last write wins).
type Setting struct {
	Key   string `gorm:"primaryKey" json:"key"`
	Value string `gorm:"not null" json:"value"`
}

const SettingWelcomeText = "welcome_text"

// DefaultWelcomeText is seeded once; admins overwrite it through settings.
const DefaultWelcomeText = "Привет! Это реферальный бот. Выберите банк ниже, чтобы получить свою ссылку."
