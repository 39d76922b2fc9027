// Package longterm provides write-back targets for hippocampal
// consolidation: an in-memory store for tests and development, and a
// PostgreSQL store for durable long-term memory.
package longterm

import (
	"context"
	"sync"

	"github.com/nidhogg/neuroworld/internal/hippocampus"
)

// Memory keeps consolidated snapshots in process. Safe for concurrent use.
type Memory struct {
	mu        sync.Mutex
	snapshots []*hippocampus.Snapshot
}

// NewMemory creates an empty in-memory long-term store.
func NewMemory() *Memory {
	return &Memory{}
}

// WriteSnapshot implements hippocampus.LongTermStore.
func (m *Memory) WriteSnapshot(_ context.Context, snap *hippocampus.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots = append(m.snapshots, snap)
	return nil
}

// Snapshots returns the consolidated snapshots in arrival order.
func (m *Memory) Snapshots() []*hippocampus.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*hippocampus.Snapshot, len(m.snapshots))
	copy(out, m.snapshots)
	return out
}

// Len returns the number of consolidated snapshots.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.snapshots)
}
