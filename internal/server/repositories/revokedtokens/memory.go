package revokedtokens

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/server/models"
)

// MemoryRepository keeps the revocation list in process memory. It suits
// single-instance deployments and tests.
type MemoryRepository struct {
	mu      sync.RWMutex
	entries map[string]models.RevokedToken
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{entries: make(map[string]models.RevokedToken)}
}

func (m *MemoryRepository) Add(_ context.Context, jti string, expiresAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[jti]; ok {
		return false, nil
	}
	m.entries[jti] = models.RevokedToken{JTI: jti, ExpiresAt: expiresAt, RevokedAt: time.Now()}
	return true, nil
}

func (m *MemoryRepository) Contains(_ context.Context, jti string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.entries[jti]
	return ok, nil
}

func (m *MemoryRepository) Prune(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for jti, e := range m.entries {
		if e.ExpiresAt.Before(now) {
			delete(m.entries, jti)
			n++
		}
	}
	return n, nil
}
