package services

import (
	"testing"

	"referral-tracking-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBankService(t *testing.T) *BankService {
	t.Helper()
	return NewBankService(setupTestDB(t), nil)
}

func TestBankListSeeded(t *testing.T) {
	s := newBankService(t)

	banks, err := s.List()
	require.NoError(t, err)
	require.Len(t, banks, 3)
	// Ordered by key.
	assert.Equal(t, "alfa", banks[0].Key)
	assert.Equal(t, "gazprom", banks[1].Key)
	assert.Equal(t, "tbank", banks[2].Key)
}

func TestBankAdd(t *testing.T) {
	s := newBankService(t)

	bank, err := s.Add("Sber Bank", "https://example.com/sber")
	require.NoError(t, err)
	assert.Equal(t, "sber-bank", bank.Key, "keys are slugified")

	_, err = s.Add("sber-bank", "https://example.com/other")
	assert.ErrorIs(t, err, ErrBankExists)

	_, err = s.Add("  ", "https://example.com/x")
	assert.ErrorIs(t, err, ErrInvalidBank)

	keys, err := s.KnownKeys()
	require.NoError(t, err)
	assert.Contains(t, keys, "sber-bank")
}

func TestBankUpdateAndDelete(t *testing.T) {
	s := newBankService(t)

	require.NoError(t, s.UpdateURL("alfa", "https://example.com/alfa-new"))
	assert.ErrorIs(t, s.UpdateURL("nosuchbank", "https://example.com/x"), ErrBankNotFound)

	var bank models.Bank
	require.NoError(t, s.DB.First(&bank, "key = ?", "alfa").Error)
	assert.Equal(t, "https://example.com/alfa-new", bank.BaseURL)

	require.NoError(t, s.Delete("alfa"))
	assert.ErrorIs(t, s.Delete("alfa"), ErrBankNotFound)

	keys, err := s.KnownKeys()
	require.NoError(t, err)
	assert.NotContains(t, keys, "alfa")
}

func TestWelcomeText(t *testing.T) {
	s := newBankService(t)

	text, err := s.WelcomeText()
	require.NoError(t, err)
	assert.Equal(t, models.DefaultWelcomeText, text)

	require.NoError(t, s.SetWelcomeText("Hello there"))
	text, err = s.WelcomeText()
	require.NoError(t, err)
	assert.Equal(t, "Hello there", text)

	// Last write wins.
	require.NoError(t, s.SetWelcomeText("Updated"))
	text, err = s.WelcomeText()
	require.NoError(t, err)
	assert.Equal(t, "Updated", text)
}

func TestReferralLink(t *testing.T) {
	bank := models.Bank{Key: "alfa", BaseURL: "https://example.com/alfa"}
	assert.Equal(t, "https://example.com/alfa?ref=12345", bank.ReferralLink(12345))
}
