package infrastructure

import (
	"sync"
	"time"
)

const debounceWindow = 2 * time.Second

// UserSession tracks the in-flight advisory request for one chat.
type UserSession struct {
	ChatID       int64
	IsProcessing bool
	LastRequest  time.Time
	mu           sync.Mutex
}

// SessionManager manages chat sessions globally
type SessionManager struct {
	sessions map[int64]*UserSession
	mu       sync.Mutex
	now      func() time.Time
}

func NewSessionManager() *SessionManager {
	return &SessionManager{
		sessions: make(map[int64]*UserSession),
		now:      time.Now,
	}
}

// GetOrCreateSession returns or creates a chat session
func (sm *SessionManager) GetOrCreateSession(chatID int64) *UserSession {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	session, exists := sm.sessions[chatID]
	if !exists {
		session = &UserSession{ChatID: chatID}
		sm.sessions[chatID] = session
	}
	return session
}

// StartResult is the outcome of SessionManager.TryStart.
type StartResult int

const (
	Started StartResult = iota
	// Busy means a request for the chat is still being processed.
	Busy
	// TooSoon means the previous request started inside the debounce window.
	TooSoon
)

// TryStart claims the chat for a new request. Only a Started result must be paired with Finish.
func (sm *SessionManager) TryStart(chatID int64) StartResult {
	us := sm.GetOrCreateSession(chatID)
	now := sm.now()

	us.mu.Lock()
	defer us.mu.Unlock()
	if us.IsProcessing {
		return Busy
	}
	if now.Sub(us.LastRequest) < debounceWindow {
		return TooSoon
	}
	us.IsProcessing = true
	us.LastRequest = now
	return Started
}

// Finish releases the chat claimed by TryStart.
func (sm *SessionManager) Finish(chatID int64) {
	us := sm.GetOrCreateSession(chatID)
	us.mu.Lock()
	defer us.mu.Unlock()
	us.IsProcessing = false
}
