package store

import (
	"context"
	"sync"

	"github.com/SuperReturn/Oracle/pkg/server/aggregator"
)

// MemoryStore keeps state in process memory. State is lost on restart.
type MemoryStore struct {
	mu    sync.RWMutex
	state *aggregator.State
}

var _ aggregator.StateStore = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load returns the stored state or aggregator.ErrStateNotFound.
func (m *MemoryStore) Load(context.Context) (aggregator.State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state == nil {
		return aggregator.State{}, aggregator.ErrStateNotFound
	}
	return m.state.Clone(), nil
}

// Save replaces the stored state.
func (m *MemoryStore) Save(_ context.Context, state aggregator.State) error {
	c := state.Clone()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = &c
	return nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }
