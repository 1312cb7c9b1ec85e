package profile

import (
	"context"
	"sync"
	"time"

	"chatrelay/internal/identity"
	"chatrelay/internal/presence"
)

// MemoryStore 仅在 dev 与测试中使用，进程重启后资料丢失。
type MemoryStore struct {
	mu       sync.RWMutex
	profiles map[string]Profile
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{profiles: make(map[string]Profile)}
}

func (m *MemoryStore) Upsert(_ context.Context, id identity.Identity) (*Profile, error) {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id.Subject]
	if !ok {
		p = newProfile(id, now)
	}
	p.Status = presence.StatusOnline
	p.LastLogin = now
	m.profiles[id.Subject] = p
	return &p, nil
}

func (m *MemoryStore) Get(_ context.Context, subject string) (*Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[subject]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (m *MemoryStore) SetStatus(_ context.Context, subject string, status presence.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[subject]
	if !ok {
		return ErrNotFound
	}
	p.Status = status
	m.profiles[subject] = p
	return nil
}
