package service

import (
	"sync"
	"time"

	"github.com/spec-kit/helpdesk-bot/internal/domain"
	"github.com/spec-kit/helpdesk-bot/pkg/util/errorutil"
)

// ConversationStore holds at most one active wizard per user. Idle conversations expire lazily on read
// and eagerly through Sweep.
type ConversationStore struct {
	mu            sync.Mutex
	conversations map[string]*domain.Conversation
	idle          time.Duration
	now           func() time.Time
}

// NewConversationStore builds a store with the given idle window.
func NewConversationStore(idle time.Duration) *ConversationStore {
	if idle <= 0 {
		idle = 30 * time.Minute
	}
	return &ConversationStore{
		conversations: make(map[string]*domain.Conversation),
		idle:          idle,
		now:           time.Now,
	}
}

// SetClock overrides the time source.
func (s *ConversationStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Start opens a conversation at the BRANCH step. When a live one already exists it is returned
// unchanged and created is false.
func (s *ConversationStore) Start(userID, chatID, displayName string) (conv domain.Conversation, created bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if existing := s.liveLocked(userID, now); existing != nil {
		return existing.Clone(), false
	}
	c := &domain.Conversation{
		UserID:         userID,
		ChatID:         chatID,
		DisplayName:    displayName,
		Step:           domain.StepBranch,
		Fields:         map[string]string{},
		StartedAt:      now,
		LastActivityAt: now,
	}
	s.conversations[userID] = c
	return c.Clone(), true
}

// Get returns the live conversation for userID. An expired one is discarded.
func (s *ConversationStore) Get(userID string) (domain.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.liveLocked(userID, s.now())
	if c == nil {
		return domain.Conversation{}, false
	}
	return c.Clone(), true
}

// Advance stores value under field and moves the conversation to next.
func (s *ConversationStore) Advance(userID, field, value string, next domain.WizardStep) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	c := s.liveLocked(userID, now)
	if c == nil {
		return errorutil.NewNoActiveConversation(userID)
	}
	c.Fields[field] = value
	c.Step = next
	c.LastActivityAt = now
	return nil
}

// End removes the conversation and returns its collected fields.
func (s *ConversationStore) End(userID string) (map[string]string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.liveLocked(userID, s.now())
	if c == nil {
		return nil, false
	}
	delete(s.conversations, userID)
	return c.Clone().Fields, true
}

// Sweep discards every idle conversation and returns how many were removed.
func (s *ConversationStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	removed := 0
	for userID, c := range s.conversations {
		if s.expired(c, now) {
			delete(s.conversations, userID)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored conversations, expired or not.
func (s *ConversationStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conversations)
}

func (s *ConversationStore) liveLocked(userID string, now time.Time) *domain.Conversation {
	c, ok := s.conversations[userID]
	if !ok {
		return nil
	}
	if s.expired(c, now) {
		delete(s.conversations, userID)
		return nil
	}
	return c
}

func (s *ConversationStore) expired(c *domain.Conversation, now time.Time) bool {
	return now.Sub(c.LastActivityAt) >= s.idle
}
