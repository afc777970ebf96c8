package services

import (
	"sync"
	"testing"

	"referral-tracking-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRewardService(t *testing.T) (*RewardService, *ReferralService) {
	t.Helper()
	db := setupTestDB(t)
	banks := NewBankService(db, nil)
	return NewRewardService(db, banks), NewReferralService(db, banks)
}

func TestValidatePhone(t *testing.T) {
	assert.NoError(t, ValidatePhone("+79991234567"))
	assert.Error(t, ValidatePhone("89991234567"), "missing leading +")
	assert.Error(t, ValidatePhone("+7"), "too short")
	assert.Error(t, ValidatePhone("+7999abc4567"), "non-digits")
	assert.Error(t, ValidatePhone(""))
	assert.Error(t, ValidatePhone("+79991234567999999999"), "too long")
}

func TestValidateName(t *testing.T) {
	name, err := ValidateName("  Ivan ")
	require.NoError(t, err)
	assert.Equal(t, "Ivan", name)

	_, err = ValidateName("   ")
	assert.Error(t, err)
}

func TestSubmitLifecycle(t *testing.T) {
	rewards, referrals := newRewardService(t)
	user, err := referrals.UpsertUser(10, nil, nil, nil)
	require.NoError(t, err)

	req, err := rewards.Submit(user.ID, "alfa", "+79991234567", "Ivan", "Petrov")
	require.NoError(t, err)
	assert.Equal(t, models.RewardStatusPending, req.Status)

	// Second submission while the first is open.
	_, err = rewards.Submit(user.ID, "tbank", "+79991234567", "Ivan", "Petrov")
	assert.ErrorIs(t, err, ErrAlreadyPending)

	require.NoError(t, rewards.Resolve(req.ID, models.RewardStatusApproved))

	// Resolution is terminal — a fresh submission opens a new row.
	second, err := rewards.Submit(user.ID, "tbank", "+79991234567", "Ivan", "Petrov")
	require.NoError(t, err)
	assert.NotEqual(t, req.ID, second.ID)

	var count int64
	require.NoError(t, rewards.DB.Model(&models.RewardRequest{}).Where("user_id = ?", user.ID).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestSubmitValidation(t *testing.T) {
	rewards, referrals := newRewardService(t)
	user, err := referrals.UpsertUser(11, nil, nil, nil)
	require.NoError(t, err)

	_, err = rewards.Submit(user.ID, "alfa", "89991234567", "Ivan", "Petrov")
	assert.Error(t, err)

	_, err = rewards.Submit(user.ID, "alfa", "+79991234567", "  ", "Petrov")
	assert.Error(t, err)

	_, err = rewards.Submit(user.ID, "nosuchbank", "+79991234567", "Ivan", "Petrov")
	assert.ErrorIs(t, err, ErrBankNotFound)

	// Nothing persisted by failed submissions.
	var count int64
	require.NoError(t, rewards.DB.Model(&models.RewardRequest{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestResolveGuards(t *testing.T) {
	rewards, referrals := newRewardService(t)
	user, err := referrals.UpsertUser(12, nil, nil, nil)
	require.NoError(t, err)

	req, err := rewards.Submit(user.ID, "alfa", "+79991234567", "Ivan", "Petrov")
	require.NoError(t, err)

	assert.ErrorIs(t, rewards.Resolve(req.ID, "cancelled"), ErrInvalidDecision)
	assert.ErrorIs(t, rewards.Resolve("00000000-0000-0000-0000-000000000000", models.RewardStatusApproved), ErrRequestNotFound)

	require.NoError(t, rewards.Resolve(req.ID, models.RewardStatusRejected))
	assert.ErrorIs(t, rewards.Resolve(req.ID, models.RewardStatusApproved), ErrAlreadyResolved)

	var stored models.RewardRequest
	require.NoError(t, rewards.DB.First(&stored, "id = ?", req.ID).Error)
	assert.Equal(t, models.RewardStatusRejected, stored.Status)
}

func TestConcurrentSubmit(t *testing.T) {
	rewards, referrals := newRewardService(t)
	user, err := referrals.UpsertUser(13, nil, nil, nil)
	require.NoError(t, err)

	const attempts = 8
	errs := make([]error, attempts)

	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = rewards.Submit(user.ID, "alfa", "+79991234567", "Ivan", "Petrov")
		}(i)
	}
	wg.Wait()

	created := 0
	for _, err := range errs {
		if err == nil {
			created++
		} else {
			assert.ErrorIs(t, err, ErrAlreadyPending)
		}
	}
	assert.Equal(t, 1, created)

	var count int64
	require.NoError(t, rewards.DB.Model(&models.RewardRequest{}).
		Where("user_id = ? AND status = ?", user.ID, models.RewardStatusPending).
		Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestListPendingAndHistory(t *testing.T) {
	rewards, referrals := newRewardService(t)
	alice, err := referrals.UpsertUser(20, strPtr("alice"), nil, nil)
	require.NoError(t, err)
	bob, err := referrals.UpsertUser(21, strPtr("bob"), nil, nil)
	require.NoError(t, err)

	first, err := rewards.Submit(alice.ID, "alfa", "+79991234567", "Alice", "A")
	require.NoError(t, err)
	_, err = rewards.Submit(bob.ID, "tbank", "+79991234568", "Bob", "B")
	require.NoError(t, err)

	pending, err := rewards.ListPending()
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.NotNil(t, pending[0].TgUsername)

	require.NoError(t, rewards.Resolve(first.ID, models.RewardStatusApproved))

	pending, err = rewards.ListPending()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, int64(21), pending[0].TgID)

	history, err := rewards.ListHistory()
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.RewardStatusApproved, history[0].Status)
}

func TestSubmissionConversation(t *testing.T) {
	rewards, referrals := newRewardService(t)
	_, err := referrals.UpsertUser(30, nil, nil, nil)
	require.NoError(t, err)

	result, err := rewards.StartSubmission(30)
	require.NoError(t, err)
	assert.Equal(t, StepBank, result.Step)

	// Invalid input re-prompts at the same step.
	result, err = rewards.Advance(30, "nosuchbank")
	require.NoError(t, err)
	assert.True(t, result.Retry)
	assert.Equal(t, StepBank, result.Step)

	result, err = rewards.Advance(30, "alfa")
	require.NoError(t, err)
	assert.Equal(t, StepPhone, result.Step)

	result, err = rewards.Advance(30, "89991234567")
	require.NoError(t, err)
	assert.True(t, result.Retry)
	assert.Equal(t, StepPhone, result.Step)

	result, err = rewards.Advance(30, "+79991234567")
	require.NoError(t, err)
	assert.Equal(t, StepFirstName, result.Step)

	result, err = rewards.Advance(30, "Ivan")
	require.NoError(t, err)
	assert.Equal(t, StepLastName, result.Step)

	result, err = rewards.Advance(30, "Petrov")
	require.NoError(t, err)
	assert.True(t, result.Done)
	require.NotNil(t, result.Request)
	assert.Equal(t, "alfa", result.Request.BankKey)
	assert.Equal(t, "+79991234567", result.Request.Phone)

	// Conversation is gone after completion.
	_, err = rewards.Advance(30, "anything")
	assert.ErrorIs(t, err, ErrNoSession)

	// And a new one is refused while the request is pending.
	_, err = rewards.StartSubmission(30)
	assert.ErrorIs(t, err, ErrAlreadyPending)
}

func TestSubmissionBankDeletedMidway(t *testing.T) {
	rewards, referrals := newRewardService(t)
	_, err := referrals.UpsertUser(32, nil, nil, nil)
	require.NoError(t, err)

	_, err = rewards.StartSubmission(32)
	require.NoError(t, err)
	_, err = rewards.Advance(32, "alfa")
	require.NoError(t, err)
	_, err = rewards.Advance(32, "+79991234567")
	require.NoError(t, err)
	_, err = rewards.Advance(32, "Ivan")
	require.NoError(t, err)

	// The chosen bank disappears before the final input.
	require.NoError(t, rewards.Banks.Delete("alfa"))

	result, err := rewards.Advance(32, "Petrov")
	require.NoError(t, err)
	assert.True(t, result.Retry)
	assert.Equal(t, StepBank, result.Step)

	var count int64
	require.NoError(t, rewards.DB.Model(&models.RewardRequest{}).Count(&count).Error)
	assert.Zero(t, count)

	// The conversation survives: re-select a bank and finish.
	result, err = rewards.Advance(32, "tbank")
	require.NoError(t, err)
	assert.Equal(t, StepPhone, result.Step)
	_, err = rewards.Advance(32, "+79991234567")
	require.NoError(t, err)
	_, err = rewards.Advance(32, "Ivan")
	require.NoError(t, err)
	result, err = rewards.Advance(32, "Petrov")
	require.NoError(t, err)
	assert.True(t, result.Done)
	require.NotNil(t, result.Request)
	assert.Equal(t, "tbank", result.Request.BankKey)
}

func TestSubmissionCancel(t *testing.T) {
	rewards, referrals := newRewardService(t)
	_, err := referrals.UpsertUser(31, nil, nil, nil)
	require.NoError(t, err)

	_, err = rewards.StartSubmission(31)
	require.NoError(t, err)
	_, err = rewards.Advance(31, "alfa")
	require.NoError(t, err)

	require.NoError(t, rewards.CancelSubmission(31))
	assert.ErrorIs(t, rewards.CancelSubmission(31), ErrNoSession)

	// Cancelling persisted nothing.
	var count int64
	require.NoError(t, rewards.DB.Model(&models.RewardRequest{}).Count(&count).Error)
	assert.Zero(t, count)

	_, err = rewards.Advance(31, "+79991234567")
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestStartSubmissionUnknownUser(t *testing.T) {
	rewards, _ := newRewardService(t)
	_, err := rewards.StartSubmission(404)
	assert.ErrorIs(t, err, ErrUserNotFound)
}
