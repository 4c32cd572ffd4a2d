package processor

import (
	"context"
	"sync"
)

// MemoryCheckpoints keeps checkpoints for the lifetime of the process
type MemoryCheckpoints struct {
	mu     sync.Mutex
	blocks map[string]uint64
}

func NewMemoryCheckpoints() *MemoryCheckpoints {
	return &MemoryCheckpoints{blocks: make(map[string]uint64)}
}

func (m *MemoryCheckpoints) Checkpoint(_ context.Context, name string) (uint64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.blocks[name]
	return b, ok, nil
}

func (m *MemoryCheckpoints) SetCheckpoint(_ context.Context, name string, block uint64) error {
	m.mu.Lock()
	m.blocks[name] = block
	m.mu.Unlock()
	return nil
}
