// services/reward_service.go
package services

import (
	"errors"
	"strings"

	"referral-tracking-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	phoneMinDigits = 8
	phoneMaxDigits = 15
)

// RewardService owns the reward-request lifecycle: the multi-step
// submission conversation, the pending → approved/rejected transitions, and
// the admin review queries.
type RewardService struct {
	DB       *gorm.DB
	Banks    *BankService
	Sessions *SessionStore
}

func NewRewardService(db *gorm.DB, banks *BankService) *RewardService {
	return &RewardService{DB: db, Banks: banks, Sessions: NewSessionStore()}
}

// ValidatePhone accepts telephone-shaped input: a leading +, then digits
// only. Not a full E.164 validator on purpose — the admin calls the number
// back anyway.
func ValidatePhone(phone string) error {
	phone = strings.TrimSpace(phone)
	if !strings.HasPrefix(phone, "+") {
		return errors.New("phone must start with +")
	}
	digits := phone[1:]
	if len(digits) < phoneMinDigits || len(digits) > phoneMaxDigits {
		return errors.New("phone has wrong length")
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return errors.New("phone must contain digits only")
		}
	}
	return nil
}

// ValidateName trims and rejects empty input.
func ValidateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("name must not be empty")
	}
	return name, nil
}

// Submit creates a pending reward request. The partial unique index on
// (user_id) WHERE status='pending' makes the insert race-safe: a concurrent
// duplicate submission conflicts and reports ErrAlreadyPending instead of a
// second open claim.
func (s *RewardService) Submit(userID, bankKey, phone, firstName, lastName string) (*models.RewardRequest, error) {
	if err := ValidatePhone(phone); err != nil {
		return nil, err
	}
	firstName, err := ValidateName(firstName)
	if err != nil {
		return nil, err
	}
	lastName, err = ValidateName(lastName)
	if err != nil {
		return nil, err
	}

	keys, err := s.Banks.KnownKeys()
	if err != nil {
		return nil, err
	}
	if _, known := keys[bankKey]; !known {
		return nil, ErrBankNotFound
	}

	req := models.RewardRequest{
		ID:        uuid.NewString(),
		UserID:    userID,
		BankKey:   bankKey,
		Phone:     strings.TrimSpace(phone),
		FirstName: firstName,
		LastName:  lastName,
		Status:    models.RewardStatusPending,
	}
	// The predicate must be a literal: conflict-target inference matches it
	// textually against the partial index, a bound parameter never matches.
	res := s.DB.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		TargetWhere: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "status = 'pending'"},
		}},
		DoNothing: true,
	}).Create(&req)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrAlreadyPending
	}
	return &req, nil
}

// HasPending reports whether the user has an open request. Advisory only —
// Submit re-checks atomically.
func (s *RewardService) HasPending(userID string) (bool, error) {
	var count int64
	err := s.DB.Model(&models.RewardRequest{}).
		Where("user_id = ? AND status = ?", userID, models.RewardStatusPending).
		Count(&count).Error
	return count > 0, err
}

// Resolve moves a pending request to approved or rejected. The transition
// is terminal: the guarded UPDATE only matches pending rows, so resolving a
// resolved request reports ErrAlreadyResolved and changes nothing.
func (s *RewardService) Resolve(requestID string, decision models.RewardRequestStatus) error {
	if decision != models.RewardStatusApproved && decision != models.RewardStatusRejected {
		return ErrInvalidDecision
	}

	res := s.DB.Model(&models.RewardRequest{}).
		Where("id = ? AND status = ?", requestID, models.RewardStatusPending).
		Update("status", decision)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var existing models.RewardRequest
		err := s.DB.First(&existing, "id = ?", requestID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrRequestNotFound
		}
		if err != nil {
			return err
		}
		return ErrAlreadyResolved
	}
	return nil
}

// ListPending returns the open review queue, newest first.
func (s *RewardService) ListPending() ([]models.RewardRequestWithUser, error) {
	return s.listWithUsers(s.DB.Where("reward_requests.status = ?", models.RewardStatusPending))
}

// ListHistory returns resolved requests, newest first.
func (s *RewardService) ListHistory() ([]models.RewardRequestWithUser, error) {
	return s.listWithUsers(s.DB.Where("reward_requests.status IN ?",
		[]models.RewardRequestStatus{models.RewardStatusApproved, models.RewardStatusRejected}))
}

func (s *RewardService) listWithUsers(tx *gorm.DB) ([]models.RewardRequestWithUser, error) {
	var out []models.RewardRequestWithUser
	err := tx.Table("reward_requests").
		Select(`reward_requests.id, reward_requests.user_id, reward_requests.bank_key,
			reward_requests.phone, reward_requests.first_name, reward_requests.last_name,
			reward_requests.status, reward_requests.created_at,
			users.tg_id, users.username AS tg_username,
			users.first_name AS tg_first_name, users.last_name AS tg_last_name`).
		Joins("JOIN users ON users.id = reward_requests.user_id").
		Order("reward_requests.created_at DESC").
		Scan(&out).Error
	return out, err
}

// StepResult is what the conversation returns to the frontend after each
// input: the next prompt, a re-prompt with a reason, or the created request.
type StepResult struct {
	Done    bool                  `json:"done"`
	Step    RewardStep            `json:"step,omitempty"`
	Retry   bool                  `json:"retry,omitempty"`
	Reason  string                `json:"reason,omitempty"`
	Request *models.RewardRequest `json:"request,omitempty"`
}

// StartSubmission opens a submission conversation for a registered user.
// An open pending request short-circuits with ErrAlreadyPending.
func (s *RewardService) StartSubmission(tgID int64) (*StepResult, error) {
	var user models.User
	err := s.DB.First(&user, "tg_id = ?", tgID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}

	if pending, err := s.HasPending(user.ID); err != nil {
		return nil, err
	} else if pending {
		return nil, ErrAlreadyPending
	}

	s.Sessions.Begin(tgID)
	return &StepResult{Step: StepBank}, nil
}

// Advance feeds one user message into the conversation. Invalid input keeps
// the step and sets Retry; the last valid input submits the request and
// drops the draft.
func (s *RewardService) Advance(tgID int64, input string) (*StepResult, error) {
	draft, ok := s.Sessions.Get(tgID)
	if !ok {
		return nil, ErrNoSession
	}

	switch draft.Step {
	case StepBank:
		key := strings.TrimSpace(input)
		keys, err := s.Banks.KnownKeys()
		if err != nil {
			return nil, err
		}
		if _, known := keys[key]; !known {
			return &StepResult{Step: StepBank, Retry: true, Reason: "unknown bank"}, nil
		}
		draft.BankKey = key
		draft.Step = StepPhone

	case StepPhone:
		if err := ValidatePhone(input); err != nil {
			return &StepResult{Step: StepPhone, Retry: true, Reason: err.Error()}, nil
		}
		draft.Phone = strings.TrimSpace(input)
		draft.Step = StepFirstName

	case StepFirstName:
		name, err := ValidateName(input)
		if err != nil {
			return &StepResult{Step: StepFirstName, Retry: true, Reason: err.Error()}, nil
		}
		draft.FirstName = name
		draft.Step = StepLastName

	case StepLastName:
		lastName, err := ValidateName(input)
		if err != nil {
			return &StepResult{Step: StepLastName, Retry: true, Reason: err.Error()}, nil
		}

		var user models.User
		if err := s.DB.First(&user, "tg_id = ?", tgID).Error; err != nil {
			return nil, err
		}

		req, err := s.Submit(user.ID, draft.BankKey, draft.Phone, draft.FirstName, lastName)
		if errors.Is(err, ErrBankNotFound) {
			// Bank deleted mid-conversation: back to bank selection, the
			// rest of the draft survives.
			draft.Step = StepBank
			s.Sessions.Set(tgID, draft)
			return &StepResult{Step: StepBank, Retry: true, Reason: "unknown bank"}, nil
		}
		if errors.Is(err, ErrAlreadyPending) {
			s.Sessions.Cancel(tgID)
			return nil, err
		}
		if err != nil {
			// Storage failure: keep the draft so the user can retry the
			// last input instead of losing the conversation.
			return nil, err
		}
		s.Sessions.Cancel(tgID)
		return &StepResult{Done: true, Request: req}, nil

	default:
		s.Sessions.Cancel(tgID)
		return nil, ErrNoSession
	}

	s.Sessions.Set(tgID, draft)
	return &StepResult{Step: draft.Step}, nil
}

// CancelSubmission drops the draft without persisting anything.
func (s *RewardService) CancelSubmission(tgID int64) error {
	if !s.Sessions.Cancel(tgID) {
		return ErrNoSession
	}
	return nil
}

// --- Handlers ---

// HandleStartSubmission opens the conversation for {tg_id}.
func (s *RewardService) HandleStartSubmission(c *fiber.Ctx) error {
	var req struct {
		TgID int64 `json:"tg_id"`
	}
	if err := c.BodyParser(&req); err != nil || req.TgID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "tg_id is required"})
	}

	result, err := s.StartSubmission(req.TgID)
	switch {
	case errors.Is(err, ErrUserNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "unknown user"})
	case errors.Is(err, ErrAlreadyPending):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "reward request already pending"})
	case err != nil:
		logrus.Errorf("[REWARD] start submission failed for tg_id=%d: %v", req.TgID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to start submission"})
	}

	banks, err := s.Banks.List()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load banks"})
	}
	keys := make([]string, len(banks))
	for i, b := range banks {
		keys[i] = b.Key
	}
	return c.JSON(fiber.Map{"step": result.Step, "banks": keys})
}

// HandleAdvanceSubmission feeds one input message into the conversation.
func (s *RewardService) HandleAdvanceSubmission(c *fiber.Ctx) error {
	var req struct {
		TgID  int64  `json:"tg_id"`
		Input string `json:"input"`
	}
	if err := c.BodyParser(&req); err != nil || req.TgID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "tg_id is required"})
	}

	result, err := s.Advance(req.TgID, req.Input)
	switch {
	case errors.Is(err, ErrNoSession):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no active reward submission"})
	case errors.Is(err, ErrAlreadyPending):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "reward request already pending"})
	case err != nil:
		logrus.Errorf("[REWARD] advance failed for tg_id=%d: %v", req.TgID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to process input"})
	}
	return c.JSON(result)
}

// HandleCancelSubmission discards the in-flight conversation.
func (s *RewardService) HandleCancelSubmission(c *fiber.Ctx) error {
	var req struct {
		TgID int64 `json:"tg_id"`
	}
	if err := c.BodyParser(&req); err != nil || req.TgID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "tg_id is required"})
	}
	if err := s.CancelSubmission(req.TgID); errors.Is(err, ErrNoSession) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no active reward submission"})
	}
	return c.JSON(fiber.Map{"cancelled": true})
}

// --- Admin Handlers ---

// HandleListPending returns the open review queue.
func (s *RewardService) HandleListPending(c *fiber.Ctx) error {
	requests, err := s.ListPending()
	if err != nil {
		logrus.Errorf("[REWARD] pending list failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to list pending requests"})
	}
	return c.JSON(requests)
}

// HandleListHistory returns resolved requests.
func (s *RewardService) HandleListHistory(c *fiber.Ctx) error {
	requests, err := s.ListHistory()
	if err != nil {
		logrus.Errorf("[REWARD] history list failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to list history"})
	}
	return c.JSON(requests)
}

// HandleResolve applies an admin decision {decision: approved|rejected}.
func (s *RewardService) HandleResolve(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request id"})
	}

	var req struct {
		Decision models.RewardRequestStatus `json:"decision"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	err := s.Resolve(id, req.Decision)
	switch {
	case errors.Is(err, ErrInvalidDecision):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "decision must be approved or rejected"})
	case errors.Is(err, ErrRequestNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "reward request not found"})
	case errors.Is(err, ErrAlreadyResolved):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "reward request already resolved"})
	case err != nil:
		logrus.Errorf("[REWARD] resolve failed for id=%s: %v", id, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to resolve request"})
	}
	return c.JSON(fiber.Map{"id": id, "status": req.Decision})
}
