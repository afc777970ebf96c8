// services/bank_service.go
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"referral-tracking-system/models"
	"referral-tracking-system/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gosimple/slug"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	banksCacheKey   = "referral:banks"
	welcomeCacheKey = "referral:welcome_text"
	bankCacheTTL    = 10 * time.Minute
)

// BankService owns bank CRUD and the welcome-text setting. Bank list and
// welcome text are read on every /start, so they go through a Redis cache;
// every admin mutation refreshes the cache synchronously before returning.
// Cache is nil when Redis is not configured — then every read hits Postgres.
type BankService struct {
	DB    *gorm.DB
	Cache *redis.Client
}

func NewBankService(db *gorm.DB, cache *redis.Client) *BankService {
	return &BankService{DB: db, Cache: cache}
}

// List returns all banks ordered by key.
func (s *BankService) List() ([]models.Bank, error) {
	ctx := context.Background()

	if s.Cache != nil {
		var cached []models.Bank
		if hit, err := utils.GetCache(ctx, s.Cache, banksCacheKey, &cached); err == nil && hit {
			return cached, nil
		} else if err != nil {
			logrus.Warnf("[BANK_CACHE] read failed, falling back to DB: %v", err)
		}
	}

	var banks []models.Bank
	if err := s.DB.Order("key").Find(&banks).Error; err != nil {
		return nil, err
	}

	if s.Cache != nil {
		if err := utils.SetCache(ctx, s.Cache, banksCacheKey, banks, bankCacheTTL); err != nil {
			logrus.Warnf("[BANK_CACHE] write failed: %v", err)
		}
	}
	return banks, nil
}

// KnownKeys returns the current bank key set, for payload validation.
func (s *BankService) KnownKeys() (map[string]struct{}, error) {
	banks, err := s.List()
	if err != nil {
		return nil, err
	}
	keys := make(map[string]struct{}, len(banks))
	for _, b := range banks {
		keys[b.Key] = struct{}{}
	}
	return keys, nil
}

// Add creates a bank. Keys are slugified so deep-link payloads stay
// URL- and underscore-safe (payload tokens are split on "_").
func (s *BankService) Add(key, baseURL string) (*models.Bank, error) {
	key = slug.Make(strings.TrimSpace(key))
	if key == "" || strings.TrimSpace(baseURL) == "" {
		return nil, ErrInvalidBank
	}

	bank := models.Bank{Key: key, BaseURL: strings.TrimSpace(baseURL)}
	res := s.DB.Clauses(clause.OnConflict{DoNothing: true}).Create(&bank)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrBankExists
	}

	s.invalidate()
	return &bank, nil
}

// UpdateURL changes a bank's link target.
func (s *BankService) UpdateURL(key, baseURL string) error {
	res := s.DB.Model(&models.Bank{}).Where("key = ?", key).Update("base_url", strings.TrimSpace(baseURL))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrBankNotFound
	}
	s.invalidate()
	return nil
}

// Delete removes a bank. Referral rows tagged with the key are untouched —
// the tag is historical.
func (s *BankService) Delete(key string) error {
	res := s.DB.Delete(&models.Bank{Key: key})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrBankNotFound
	}
	s.invalidate()
	return nil
}

// WelcomeText returns the configured greeting, falling back to the default.
func (s *BankService) WelcomeText() (string, error) {
	ctx := context.Background()

	if s.Cache != nil {
		var cached string
		if hit, err := utils.GetCache(ctx, s.Cache, welcomeCacheKey, &cached); err == nil && hit {
			return cached, nil
		}
	}

	var setting models.Setting
	err := s.DB.First(&setting, "key = ?", models.SettingWelcomeText).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.DefaultWelcomeText, nil
	}
	if err != nil {
		return "", err
	}

	if s.Cache != nil {
		if err := utils.SetCache(ctx, s.Cache, welcomeCacheKey, setting.Value, bankCacheTTL); err != nil {
			logrus.Warnf("[BANK_CACHE] write failed: %v", err)
		}
	}
	return setting.Value, nil
}

// SetWelcomeText upserts the greeting (last write wins).
func (s *BankService) SetWelcomeText(value string) error {
	setting := models.Setting{Key: models.SettingWelcomeText, Value: value}
	err := s.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&setting).Error
	if err != nil {
		return err
	}
	s.invalidate()
	return nil
}

// invalidate drops cached copies so the next read sees the mutation.
// Runs synchronously inside the mutating call.
func (s *BankService) invalidate() {
	if s.Cache == nil {
		return
	}
	if err := utils.DeleteCache(context.Background(), s.Cache, banksCacheKey, welcomeCacheKey); err != nil {
		logrus.Warnf("[BANK_CACHE] invalidate failed: %v", err)
	}
}

// RefreshCache re-warms the cache from Postgres. Used by the background
// refresh worker; a no-op without Redis.
func (s *BankService) RefreshCache(ctx context.Context) error {
	if s.Cache == nil {
		return nil
	}

	var banks []models.Bank
	if err := s.DB.Order("key").Find(&banks).Error; err != nil {
		return err
	}
	if err := utils.SetCache(ctx, s.Cache, banksCacheKey, banks, bankCacheTTL); err != nil {
		return err
	}

	var setting models.Setting
	err := s.DB.First(&setting, "key = ?", models.SettingWelcomeText).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return utils.SetCache(ctx, s.Cache, welcomeCacheKey, setting.Value, bankCacheTTL)
}

// --- Admin Handlers ---

// HandleList returns all banks (admin view includes base URLs).
func (s *BankService) HandleList(c *fiber.Ctx) error {
	banks, err := s.List()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to list banks"})
	}
	return c.JSON(banks)
}

// HandleAdd creates a bank from {key, base_url}.
func (s *BankService) HandleAdd(c *fiber.Ctx) error {
	var req struct {
		Key     string `json:"key"`
		BaseURL string `json:"base_url"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.Key == "" || req.BaseURL == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "key and base_url are required"})
	}

	bank, err := s.Add(req.Key, req.BaseURL)
	if errors.Is(err, ErrBankExists) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "bank key already exists"})
	}
	if err != nil {
		logrus.Errorf("[BANK] add failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to add bank"})
	}
	return c.Status(fiber.StatusCreated).JSON(bank)
}

// HandleUpdate changes a bank's base URL.
func (s *BankService) HandleUpdate(c *fiber.Ctx) error {
	key := c.Params("key")
	var req struct {
		BaseURL string `json:"base_url"`
	}
	if err := c.BodyParser(&req); err != nil || req.BaseURL == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "base_url is required"})
	}

	err := s.UpdateURL(key, req.BaseURL)
	if errors.Is(err, ErrBankNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "bank not found"})
	}
	if err != nil {
		logrus.Errorf("[BANK] update failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to update bank"})
	}
	return c.JSON(fiber.Map{"key": key, "base_url": req.BaseURL})
}

// HandleDelete removes a bank by key.
func (s *BankService) HandleDelete(c *fiber.Ctx) error {
	err := s.Delete(c.Params("key"))
	if errors.Is(err, ErrBankNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "bank not found"})
	}
	if err != nil {
		logrus.Errorf("[BANK] delete failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to delete bank"})
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// HandleSetWelcome updates the welcome text shown on /start.
func (s *BankService) HandleSetWelcome(c *fiber.Ctx) error {
	var req struct {
		Text string `json:"text"`
	}
	if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "text is required"})
	}
	if err := s.SetWelcomeText(req.Text); err != nil {
		logrus.Errorf("[SETTINGS] welcome update failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to update welcome text"})
	}
	return c.JSON(fiber.Map{"text": req.Text})
}
