package services

import (
	"fmt"
	"sync"
	"testing"

	"referral-tracking-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newReferralService(t *testing.T) *ReferralService {
	t.Helper()
	db := setupTestDB(t)
	return NewReferralService(db, NewBankService(db, nil))
}

func TestParsePayload(t *testing.T) {
	tests := []struct {
		payload  string
		wantID   int64
		wantBank string
		wantOK   bool
	}{
		{"ref_12345_alfa", 12345, "alfa", true},
		{"ref_1_tbank", 1, "tbank", true},
		{"ref_12345", 0, "", false},
		{"ref_12345_alfa_extra", 0, "", false},
		{"invite_12345_alfa", 0, "", false},
		{"ref_abc_alfa", 0, "", false},
		{"", 0, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.payload, func(t *testing.T) {
			id, bank, ok := ParsePayload(tt.payload)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.wantID, id)
				assert.Equal(t, tt.wantBank, bank)
			}
		})
	}
}

func TestUpsertUserFirstWriteWins(t *testing.T) {
	s := newReferralService(t)

	first, err := s.UpsertUser(100, strPtr("alice"), strPtr("Alice"), nil)
	require.NoError(t, err)

	second, err := s.UpsertUser(100, strPtr("renamed"), strPtr("Someone"), strPtr("Else"))
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	require.NotNil(t, second.Username)
	assert.Equal(t, "alice", *second.Username)
	assert.Nil(t, second.LastName)
}

func TestAttributeFirstContactWins(t *testing.T) {
	s := newReferralService(t)

	referrer, err := s.UpsertUser(1, strPtr("referrer"), nil, nil)
	require.NoError(t, err)

	user, result, err := s.Attribute("ref_1_alfa", 2, nil, nil, nil)
	require.NoError(t, err)
	assert.True(t, result.Attributed)
	assert.Equal(t, "alfa", result.BankKey)

	// A later invite for the same user is inert, same or different bank.
	_, result, err = s.Attribute("ref_1_tbank", 2, nil, nil, nil)
	require.NoError(t, err)
	assert.False(t, result.Attributed)

	var refs []models.Referral
	require.NoError(t, s.DB.Find(&refs).Error)
	require.Len(t, refs, 1)
	assert.Equal(t, referrer.ID, refs[0].ReferrerID)
	assert.Equal(t, user.ID, refs[0].ReferredID)
	assert.Equal(t, "alfa", refs[0].BankKey)
}

func TestAttributeParseFailureStillRegisters(t *testing.T) {
	s := newReferralService(t)

	user, result, err := s.Attribute("garbage", 5, strPtr("bob"), nil, nil)
	require.NoError(t, err)
	assert.False(t, result.Attributed)
	require.NotNil(t, user)

	id, found, err := s.LookupUserID(5)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, user.ID, id)
}

func TestAttributeSelfReferral(t *testing.T) {
	s := newReferralService(t)

	_, _, err := s.Attribute("", 7, nil, nil, nil)
	require.NoError(t, err)

	_, result, err := s.Attribute("ref_7_alfa", 7, nil, nil, nil)
	require.NoError(t, err)
	assert.False(t, result.Attributed)

	var count int64
	require.NoError(t, s.DB.Model(&models.Referral{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestAttributeUnknownReferrer(t *testing.T) {
	s := newReferralService(t)

	// Referrer id 999 never hit /start — the invite is dropped, not queued.
	_, result, err := s.Attribute("ref_999_alfa", 3, nil, nil, nil)
	require.NoError(t, err)
	assert.False(t, result.Attributed)
}

func TestAttributeUnknownBank(t *testing.T) {
	s := newReferralService(t)

	_, _, err := s.Attribute("", 1, nil, nil, nil)
	require.NoError(t, err)

	_, result, err := s.Attribute("ref_1_nosuchbank", 4, nil, nil, nil)
	require.NoError(t, err)
	assert.False(t, result.Attributed)
}

func TestRecordReferralIdempotent(t *testing.T) {
	s := newReferralService(t)

	referrer, err := s.UpsertUser(1, nil, nil, nil)
	require.NoError(t, err)
	other, err := s.UpsertUser(2, nil, nil, nil)
	require.NoError(t, err)
	referred, err := s.UpsertUser(3, nil, nil, nil)
	require.NoError(t, err)

	inserted, err := s.RecordReferral(referrer.ID, referred.ID, "alfa")
	require.NoError(t, err)
	assert.True(t, inserted)

	// Same referred user through a different referrer and bank: no-op, no error.
	inserted, err = s.RecordReferral(other.ID, referred.ID, "tbank")
	require.NoError(t, err)
	assert.False(t, inserted)

	var ref models.Referral
	require.NoError(t, s.DB.First(&ref, "referred_id = ?", referred.ID).Error)
	assert.Equal(t, referrer.ID, ref.ReferrerID)
	assert.Equal(t, "alfa", ref.BankKey)
}

func TestConcurrentAttribution(t *testing.T) {
	s := newReferralService(t)

	_, _, err := s.Attribute("", 1, nil, nil, nil)
	require.NoError(t, err)

	const attempts = 10
	results := make([]AttributionResult, attempts)
	errs := make([]error, attempts)

	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i], errs[i] = s.Attribute("ref_1_alfa", 42, nil, nil, nil)
		}(i)
	}
	wg.Wait()

	attributed := 0
	for i := 0; i < attempts; i++ {
		require.NoError(t, errs[i], fmt.Sprintf("attempt %d", i))
		if results[i].Attributed {
			attributed++
		}
	}
	assert.Equal(t, 1, attributed)

	var count int64
	require.NoError(t, s.DB.Model(&models.Referral{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
