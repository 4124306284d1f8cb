package connectors

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type TrackerKey interface{ ~int | ~int64 | ~string }

// SessionTracker maps an external chat identity (a Telegram chat ID, an IRC
// nick) to its open conversation. After lastMessageDuration of silence the
// binding expires and the next message opens a fresh conversation.
type SessionTracker[K TrackerKey] struct {
	mu                  sync.Mutex
	conversations       map[K]uuid.UUID
	lastMessageTime     map[K]time.Time
	lastMessageDuration time.Duration
}

func NewSessionTracker[K TrackerKey](lastMessageDuration time.Duration) *SessionTracker[K] {
	return &SessionTracker[K]{
		lastMessageDuration: lastMessageDuration,
		conversations:       map[K]uuid.UUID{},
		lastMessageTime:     map[K]time.Time{},
	}
}

// Get returns the key's open conversation, or nil when none exists or the
// last message is older than the idle window. Stale bindings for other keys
// are cleaned up on the way.
func (t *SessionTracker[K]) Get(key K) *uuid.UUID {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	for k, last := range t.lastMessageTime {
		if last.Add(t.lastMessageDuration).Before(now) {
			delete(t.conversations, k)
			delete(t.lastMessageTime, k)
		}
	}

	id, ok := t.conversations[key]
	if !ok {
		return nil
	}
	return &id
}

// Set binds the key to a conversation and refreshes the idle clock.
func (t *SessionTracker[K]) Set(key K, conversationID uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.conversations[key] = conversationID
	t.lastMessageTime[key] = time.Now()
}

// Touch refreshes the idle clock without changing the binding.
func (t *SessionTracker[K]) Touch(key K) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.conversations[key]; ok {
		t.lastMessageTime[key] = time.Now()
	}
}
