package store

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"eris/internal/eris"
)

// Memory is an in-memory block store, primarily for tests and
// ephemeral tooling.
type Memory struct {
	mu     sync.RWMutex
	blocks map[eris.Reference][]byte
}

var (
	_ eris.Store = (*Memory)(nil)
	_ Lister     = (*Memory)(nil)
)

func NewMemory() *Memory {
	return &Memory{blocks: map[eris.Reference][]byte{}}
}

func (m *Memory) Get(ctx context.Context, ref eris.Reference) ([]byte, error) {
	m.mu.RLock()
	block, ok := m.blocks[ref]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s: %w", ref, eris.ErrBlockNotFound)
	}
	return slices.Clone(block), nil
}

func (m *Memory) Put(ctx context.Context, ref eris.Reference, block []byte) error {
	m.mu.Lock()
	m.blocks[ref] = slices.Clone(block)
	m.mu.Unlock()
	return nil
}

// Len returns the number of blocks held.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blocks)
}

func (m *Memory) List(ctx context.Context, fn func(ref eris.Reference, block []byte) error) error {
	m.mu.RLock()
	refs := make([]eris.Reference, 0, len(m.blocks))
	for ref := range m.blocks {
		refs = append(refs, ref)
	}
	m.mu.RUnlock()
	for _, ref := range refs {
		block, err := m.Get(ctx, ref)
		if err != nil {
			continue // removed concurrently
		}
		if err := fn(ref, block); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) Close() error { return nil }
