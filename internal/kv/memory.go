package kv

import (
	"context"
	"sync"
)

// Memory is an in-memory Store for tests and ephemeral nodes.
type Memory struct {
	mu    sync.RWMutex
	slots map[string][]byte
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{slots: make(map[string][]byte)}
}

func (m *Memory) Get(_ context.Context, slot string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.slots[slot]
	if !ok {
		return nil, notFound(slot)
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (m *Memory) Put(_ context.Context, slot string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	v := make([]byte, len(value))
	copy(v, value)
	m.slots[slot] = v
	return nil
}

func (m *Memory) Delete(_ context.Context, slot string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.slots, slot)
	return nil
}

func (m *Memory) Close() error {
	return nil
}
