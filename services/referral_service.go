// services/referral_service.go
package services

import (
	"errors"
	"strconv"
	"strings"

	"referral-tracking-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const payloadMarker = "ref"

// AttributionResult reports whether an entry event produced a referral edge.
// Attributed is false for every skip reason (bad payload, unknown referrer,
// self-referral, already referred, unknown bank, lost insert race) — the
// distinctions are logged but never surfaced to the user.
type AttributionResult struct {
	Attributed bool   `json:"attributed"`
	BankKey    string `json:"bank_key,omitempty"`
}

// ReferralService registers users and decides referral attribution.
type ReferralService struct {
	DB    *gorm.DB
	Banks *BankService
}

func NewReferralService(db *gorm.DB, banks *BankService) *ReferralService {
	return &ReferralService{DB: db, Banks: banks}
}

// ParsePayload splits a deep-link payload of the form ref_{tg_id}_{bank_key}.
// Any deviation — wrong arity, wrong marker, non-numeric id — is a parse
// failure; attribution is best effort and malformed payloads are dropped.
func ParsePayload(payload string) (referrerTgID int64, bankKey string, ok bool) {
	if payload == "" {
		return 0, "", false
	}
	parts := strings.Split(payload, "_")
	if len(parts) != 3 || parts[0] != payloadMarker {
		return 0, "", false
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || id < 0 {
		return 0, "", false
	}
	return id, parts[2], true
}

// UpsertUser registers a tg account, returning the existing row untouched
// when it is already known. The insert races safely on the tg_id unique
// index; the re-select returns whichever row won.
func (s *ReferralService) UpsertUser(tgID int64, username, firstName, lastName *string) (*models.User, error) {
	user := models.User{
		ID:        uuid.NewString(),
		TgID:      tgID,
		Username:  username,
		FirstName: firstName,
		LastName:  lastName,
	}
	if err := s.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tg_id"}},
		DoNothing: true,
	}).Create(&user).Error; err != nil {
		return nil, err
	}

	var stored models.User
	if err := s.DB.First(&stored, "tg_id = ?", tgID).Error; err != nil {
		return nil, err
	}
	return &stored, nil
}

// LookupUserID resolves a tg id to the internal user id.
func (s *ReferralService) LookupUserID(tgID int64) (string, bool, error) {
	var user models.User
	err := s.DB.Select("id").First(&user, "tg_id = ?", tgID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return user.ID, true, nil
}

// UserHasReferral reports whether the user is already on the referred side
// of an edge.
func (s *ReferralService) UserHasReferral(userID string) (bool, error) {
	var count int64
	err := s.DB.Model(&models.Referral{}).Where("referred_id = ?", userID).Count(&count).Error
	return count > 0, err
}

// RecordReferral inserts the edge, reporting whether this call created it.
// The unique index on referred_id turns a lost race into RowsAffected == 0,
// not an error — two simultaneous first contacts yield exactly one edge.
func (s *ReferralService) RecordReferral(referrerID, referredID, bankKey string) (bool, error) {
	ref := models.Referral{
		ID:         uuid.NewString(),
		ReferrerID: referrerID,
		ReferredID: referredID,
		BankKey:    bankKey,
	}
	res := s.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "referred_id"}},
		DoNothing: true,
	}).Create(&ref)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Attribute handles an entry event: the user is always registered, then the
// payload may attribute a referral. The pre-checks (known referrer, not
// self, not already referred, known bank) only produce a fast negative; the
// unique index behind RecordReferral is the source of truth under
// concurrency.
func (s *ReferralService) Attribute(payload string, tgID int64, username, firstName, lastName *string) (*models.User, AttributionResult, error) {
	user, err := s.UpsertUser(tgID, username, firstName, lastName)
	if err != nil {
		return nil, AttributionResult{}, err
	}

	referrerTgID, bankKey, ok := ParsePayload(payload)
	if !ok {
		return user, AttributionResult{}, nil
	}

	referrerID, found, err := s.LookupUserID(referrerTgID)
	if err != nil {
		return nil, AttributionResult{}, err
	}
	if !found || referrerID == user.ID {
		return user, AttributionResult{}, nil
	}

	if has, err := s.UserHasReferral(user.ID); err != nil {
		return nil, AttributionResult{}, err
	} else if has {
		return user, AttributionResult{}, nil
	}

	keys, err := s.Banks.KnownKeys()
	if err != nil {
		return nil, AttributionResult{}, err
	}
	if _, known := keys[bankKey]; !known {
		logrus.Debugf("[REFERRAL] dropping payload with unknown bank key %q", bankKey)
		return user, AttributionResult{}, nil
	}

	inserted, err := s.RecordReferral(referrerID, user.ID, bankKey)
	if err != nil {
		return nil, AttributionResult{}, err
	}
	if !inserted {
		// Lost the race to a concurrent first contact — normal outcome.
		return user, AttributionResult{}, nil
	}
	return user, AttributionResult{Attributed: true, BankKey: bankKey}, nil
}

// --- Handlers ---

// HandleStart processes an entry event forwarded by the bot frontend:
// registers the user, runs attribution, and returns the welcome text plus
// the personalized link per bank.
func (s *ReferralService) HandleStart(c *fiber.Ctx) error {
	var req struct {
		TgID      int64   `json:"tg_id"`
		Username  *string `json:"username"`
		FirstName *string `json:"first_name"`
		LastName  *string `json:"last_name"`
		Payload   string  `json:"payload"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.TgID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "tg_id is required"})
	}

	user, result, err := s.Attribute(req.Payload, req.TgID, req.Username, req.FirstName, req.LastName)
	if err != nil {
		logrus.Errorf("[REFERRAL] attribution failed for tg_id=%d: %v", req.TgID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to process start event"})
	}

	banks, err := s.Banks.List()
	if err != nil {
		logrus.Errorf("[REFERRAL] bank list failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load banks"})
	}
	welcome, err := s.Banks.WelcomeText()
	if err != nil {
		logrus.Errorf("[REFERRAL] welcome text failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load welcome text"})
	}

	type bankLink struct {
		BankKey string `json:"bank_key"`
		URL     string `json:"url"`
	}
	links := make([]bankLink, len(banks))
	for i, b := range banks {
		links[i] = bankLink{BankKey: b.Key, URL: b.ReferralLink(user.TgID)}
	}

	return c.JSON(fiber.Map{
		"user_id":     user.ID,
		"tg_id":       user.TgID,
		"attribution": result,
		"welcome":     welcome,
		"links":       links,
	})
}
