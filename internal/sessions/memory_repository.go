package sessions

import (
	"context"
	"sync"
	"time"
)

// MemoryRepository is an in-process Repository for local development and
// tests. Sessions do not survive a restart and are not shared between
// gateway instances.
type MemoryRepository struct {
	mu    sync.RWMutex
	store map[string]*Session
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{store: make(map[string]*Session)}
}

func (m *MemoryRepository) Create(ctx context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.store[s.ID] = &cp
	return nil
}

// Get returns nil when no session has the id or it has expired.
func (m *MemoryRepository) Get(ctx context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.store[id]
	if !ok {
		return nil, nil
	}
	if s.Expired(time.Now().UTC()) {
		delete(m.store, id)
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryRepository) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.store, id)
	return nil
}
