package chatbridge

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store defines the contract for holding conversation sessions.
type Store interface {
	// GetOrCreate returns the session for key, creating it bound to v when
	// the key is new. An existing session keeps its original variant.
	GetOrCreate(key string, v Variant) *Session

	// Clear empties the history of the session for key, if any.
	Clear(key string)
}

// ConversationStore is the in-memory Store. Sessions live for the process
// lifetime; there is no expiry and no persistence.
//
// The map is guarded by an RWMutex for insert-if-absent. Each Session has
// its own lock, which handlers hold for the duration of one request.
type ConversationStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	now      func() time.Time
}

// NewConversationStore creates an empty store.
func NewConversationStore() *ConversationStore {
	return &ConversationStore{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// GetOrCreate implements Store.
func (s *ConversationStore) GetOrCreate(key string, v Variant) *Session {
	s.mu.RLock()
	sess, ok := s.sessions[key]
	s.mu.RUnlock()
	if ok {
		return sess
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Another request may have created it between the two locks.
	if sess, ok := s.sessions[key]; ok {
		return sess
	}
	sess = &Session{
		ID:        uuid.New().String(),
		Key:       key,
		Variant:   v,
		CreatedAt: s.now(),
	}
	s.sessions[key] = sess
	return sess
}

// Clear implements Store.
func (s *ConversationStore) Clear(key string) {
	s.mu.RLock()
	sess, ok := s.sessions[key]
	s.mu.RUnlock()
	if !ok {
		return
	}

	sess.Lock()
	sess.Reset()
	sess.Unlock()
}

// Len returns the number of sessions held.
func (s *ConversationStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Ensure ConversationStore implements Store at compile time.
var _ Store = (*ConversationStore)(nil)
