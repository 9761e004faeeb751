package storage

import (
	"context"
	"sync"
)

type MemoryStore struct {
	mu    sync.RWMutex
	slots map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{slots: make(map[string][]byte)}
}

func (m *MemoryStore) Slot(owner string) Slot {
	return keyed{backend: m, owner: owner}
}

// Put seeds a raw payload, bypassing any encoding.
func (m *MemoryStore) Put(owner string, payload []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slots[owner] = append([]byte(nil), payload...)
}

// Get returns the raw payload stored for owner.
func (m *MemoryStore) Get(owner string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.slots[owner]
	return p, ok
}

func (m *MemoryStore) load(_ context.Context, owner string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.slots[owner]
	if !ok {
		return nil, ErrSlotEmpty
	}
	return append([]byte(nil), p...), nil
}

func (m *MemoryStore) save(_ context.Context, owner string, payload []byte) error {
	m.Put(owner, payload)
	return nil
}

func (m *MemoryStore) discard(_ context.Context, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.slots, owner)
	return nil
}
