package store

import (
	"context"
	"sync"
	"time"
)

// SessionStore persists the bcrypt hash of each user's active session
// token. RedisStore implements it with TTL-backed keys; MemorySessionStore
// covers development without Redis.
type SessionStore interface {
	SaveSession(ctx context.Context, userID, tokenHash string, ttl time.Duration) error
	GetSessionHash(ctx context.Context, userID string) (string, error)
	DeleteSession(ctx context.Context, userID string) error
}

type memorySession struct {
	hash      string
	expiresAt time.Time
}

// MemorySessionStore is an in-process SessionStore.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]memorySession
}

// NewMemorySessionStore creates an empty MemorySessionStore.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]memorySession)}
}

func (m *MemorySessionStore) SaveSession(ctx context.Context, userID, tokenHash string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[userID] = memorySession{hash: tokenHash, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (m *MemorySessionStore) GetSessionHash(ctx context.Context, userID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[userID]
	if !ok || time.Now().After(session.expiresAt) {
		delete(m.sessions, userID)
		return "", nil
	}
	return session.hash, nil
}

func (m *MemorySessionStore) DeleteSession(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userID)
	return nil
}
