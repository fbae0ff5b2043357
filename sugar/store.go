package sugar

import "sync"

// TokenStore persists tokens across client lifetimes, keyed by client_id.
// Retrieve returns (nil, nil) when nothing is stored for clientID.
type TokenStore interface {
	Retrieve(clientID string) (*Token, error)
	Persist(token *Token, clientID string) error
}

// MemoryStore is an in-process TokenStore. A single MemoryStore can be
// shared by several clients.
type MemoryStore struct {
	mu     sync.RWMutex
	tokens map[string]*Token
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tokens: make(map[string]*Token)}
}

// Retrieve returns a copy of the token stored for clientID.
func (s *MemoryStore) Retrieve(clientID string) (*Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.tokens[clientID].clone(), nil
}

// Persist stores a copy of token under clientID, replacing any prior value.
func (s *MemoryStore) Persist(token *Token, clientID string) error {
	s.mu.Lock()
	s.tokens[clientID] = token.clone()
	s.mu.Unlock()

	return nil
}

// Delete removes the token stored for clientID.
func (s *MemoryStore) Delete(clientID string) {
	s.mu.Lock()
	delete(s.tokens, clientID)
	s.mu.Unlock()
}
