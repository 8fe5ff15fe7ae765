package session

import (
	"context"
	"sync"

	"github.com/diagnosis/palms-parking/internal/domain"
)

// Store persists one session record per client. Get returns nil and no error
// when the client has no record.
type Store interface {
	Get(ctx context.Context, clientID string) (*domain.Session, error)
	Put(ctx context.Context, clientID string, s domain.Session) error
	Delete(ctx context.Context, clientID string) error
}

func storageKey(clientID string) string {
	return domain.SessionKey + ":" + clientID
}

type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]domain.Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]domain.Session)}
}

func (m *MemoryStore) Get(_ context.Context, clientID string) (*domain.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.records[storageKey(clientID)]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *MemoryStore) Put(_ context.Context, clientID string, s domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[storageKey(clientID)] = s
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, clientID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, storageKey(clientID))
	return nil
}

var _ Store = (*MemoryStore)(nil)
