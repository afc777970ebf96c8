// services/session.go
package services

import "sync"

// RewardStep is the current prompt of a multi-step reward submission.
type RewardStep string

const (
	StepBank      RewardStep = "bank"
	StepPhone     RewardStep = "phone"
	StepFirstName RewardStep = "first_name"
	StepLastName  RewardStep = "last_name"
)

// rewardDraft is the partial record collected so far. Nothing is persisted
// until the final step completes; cancelling just drops the draft.
type rewardDraft struct {
	Step      RewardStep
	BankKey   string
	Phone     string
	FirstName string
}

// SessionStore holds in-flight reward submissions keyed by tg id. A user's
// conversation is strictly sequential (the bot frontend delivers one message
// at a time), so a plain mutex-guarded map is enough; the map never outlives
// the process and holds no committed state.
type SessionStore struct {
	mu     sync.Mutex
	drafts map[int64]*rewardDraft
}

func NewSessionStore() *SessionStore {
	return &SessionStore{drafts: make(map[int64]*rewardDraft)}
}

// Begin starts (or restarts) a submission at the bank-selection step.
func (s *SessionStore) Begin(tgID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drafts[tgID] = &rewardDraft{Step: StepBank}
}

// Get returns a copy of the user's draft.
func (s *SessionStore) Get(tgID int64) (rewardDraft, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drafts[tgID]
	if !ok {
		return rewardDraft{}, false
	}
	return *d, true
}

// Set stores the advanced draft.
func (s *SessionStore) Set(tgID int64, draft rewardDraft) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drafts[tgID] = &draft
}

// Cancel discards the draft, reporting whether one existed.
func (s *SessionStore) Cancel(tgID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.drafts[tgID]
	delete(s.drafts, tgID)
	return ok
}
