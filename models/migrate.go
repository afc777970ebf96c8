package models

import (
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AutoMigrate creates the schema plus the constraints GORM tags cannot
// express. The partial unique index is the storage-level guard for the
// one-pending-claim-per-user rule; application code only pre-checks.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&User{},
		&Bank{},
		&Referral{},
		&Setting{},
		&RewardRequest{},
	); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}

	// Valid on both Postgres and SQLite, so tests exercise the same guard.
	if err := db.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_reward_requests_one_pending
		 ON reward_requests (user_id) WHERE status = 'pending'`,
	).Error; err != nil {
		return fmt.Errorf("create pending index: %w", err)
	}

	return nil
}

// Seed inserts the default banks and welcome text, ignoring rows that
// already exist. Safe to run on every boot.
func Seed(db *gorm.DB) error {
	for _, bank := range DefaultBanks {
		if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&bank).Error; err != nil {
			return fmt.Errorf("seed bank %s: %w", bank.Key, err)
		}
	}

	welcome := Setting{Key: SettingWelcomeText, Value: DefaultWelcomeText}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&welcome).Error; err != nil {
		return fmt.Errorf("seed welcome text: %w", err)
	}

	return nil
}
