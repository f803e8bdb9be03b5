package telegram

import (
	"sync"
	"time"
)

// UserState represents the current state of a user's conversation
type UserState struct {
	State string
	Since time.Time
}

// StateManager manages user states for FSM
type StateManager struct {
	mu     sync.RWMutex
	states map[int64]*UserState
	ttl    time.Duration
	now    func() time.Time
}

// NewStateManager creates a new state manager. States older than ttl are ignored.
func NewStateManager(ttl time.Duration) *StateManager {
	return &StateManager{
		states: make(map[int64]*UserState),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Set sets a user's state
func (sm *StateManager) Set(userID int64, state string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sm.states[userID] = &UserState{
		State: state,
		Since: sm.now(),
	}
}

// Get returns a user's current state, nil if none or expired
func (sm *StateManager) Get(userID int64) *UserState {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	st := sm.states[userID]
	if st == nil || sm.now().Sub(st.Since) > sm.ttl {
		return nil
	}
	return st
}

// Clear removes a user's state
func (sm *StateManager) Clear(userID int64) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	delete(sm.states, userID)
}

// State constants
const (
	StateWaitBuyerAddress = "wait_buyer_address"
)
