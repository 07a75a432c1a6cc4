package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lanstar128/jjds-auth-service/internal/device"
	"github.com/lanstar128/jjds-auth-service/internal/session/domain"
)

// MemoryStore keeps sessions in process memory. Used in tests and
// single-node development; sessions do not survive a restart.
type MemoryStore struct {
	mu    sync.RWMutex
	byID  map[string]*domain.Session
	byKey map[string]string // (user, class) -> session id

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex // per-(user, class) upsert serialization

	now func() time.Time
}

// NewMemoryStore returns an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:  make(map[string]*domain.Session),
		byKey: make(map[string]string),
		locks: make(map[string]*sync.Mutex),
		now:   time.Now,
	}
}

func pairKey(userID int64, class device.Class) string {
	return fmt.Sprintf("%d/%s", userID, class)
}

// pairLock returns the mutex serializing upserts for one (user, class) pair.
// Lock entries are never removed; the table stays small (one entry per pair
// ever seen) and removal would race with holders.
func (m *MemoryStore) pairLock(key string) *sync.Mutex {
	m.lockMu.Lock()
	defer m.lockMu.Unlock()
	l, ok := m.locks[key]
	if !ok {
		l = &sync.Mutex{}
		m.locks[key] = l
	}
	return l
}

func (m *MemoryStore) Upsert(ctx context.Context, s *domain.Session) (string, error) {
	key := pairKey(s.UserID, s.DeviceClass)
	l := m.pairLock(key)
	l.Lock()
	defer l.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	evicted := m.byKey[key]
	if evicted != "" {
		delete(m.byID, evicted)
	}
	cp := *s
	m.byID[s.ID] = &cp
	m.byKey[key] = s.ID
	return evicted, nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*domain.Session, error) {
	m.mu.RLock()
	s, ok := m.byID[id]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	if s.Expired(m.now()) {
		// Lazy expiry: drop the dead session on first observation.
		_ = m.Revoke(ctx, id)
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryStore) IsValid(ctx context.Context, id string) (bool, error) {
	s, err := m.Get(ctx, id)
	return s != nil, err
}

func (m *MemoryStore) Revoke(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	if !ok {
		return nil
	}
	delete(m.byID, id)
	key := pairKey(s.UserID, s.DeviceClass)
	if m.byKey[key] == id {
		delete(m.byKey, key)
	}
	return nil
}

func (m *MemoryStore) UpdateRefreshToken(ctx context.Context, id, refreshTokenHash string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	s.RefreshTokenHash = refreshTokenHash
	s.RefreshExpiresAt = expiresAt
	return nil
}

func (m *MemoryStore) UpdateLastSeen(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.byID[id]; ok {
		t := at
		s.LastSeenAt = &t
	}
	return nil
}
