package revocation

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a process-local Store. It only provides cross-request
// visibility inside one process and is meant for tests and local runs.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]time.Time
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]time.Time), now: time.Now}
}

// WithClock replaces the store's time source.
func (m *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	m.now = now
	return m
}

func (m *MemoryStore) MarkRevoked(ctx context.Context, jti string, ttl time.Duration) error {
	if err := validate(jti, ttl); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[jti] = now.Add(ttl)
	m.cleanupLocked(now)
	return nil
}

func (m *MemoryStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if jti == "" {
		return false, ErrEmptyTokenID
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	expires, ok := m.entries[jti]
	if !ok {
		return false, nil
	}
	return m.now().Before(expires), nil
}

// Len counts entries including ones that expired but were not swept yet.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *MemoryStore) cleanupLocked(now time.Time) {
	for jti, expires := range m.entries {
		if !now.Before(expires) {
			delete(m.entries, jti)
		}
	}
}
