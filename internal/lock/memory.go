// Package lock provides the per-account leases sweep workers take before
// purging an account.
package lock

import (
	"context"
	"sync"
	"time"

	"reaper-go/internal/reaper"
)

// MemoryLocker hands out leases within a single process. Leases expire after
// ttl so a worker that never releases cannot block an account forever.
type MemoryLocker struct {
	mu     sync.Mutex
	ttl    time.Duration
	clock  reaper.Clock
	leases map[string]lease
	seq    uint64
}

type lease struct {
	expires time.Time
	seq     uint64
}

// NewMemoryLocker creates a MemoryLocker.
func NewMemoryLocker(ttl time.Duration, clock reaper.Clock) *MemoryLocker {
	return &MemoryLocker{
		ttl:    ttl,
		clock:  clock,
		leases: make(map[string]lease),
	}
}

func (m *MemoryLocker) TryLock(_ context.Context, key string) (func(), bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	if held, ok := m.leases[key]; ok && now.Before(held.expires) {
		return nil, false, nil
	}

	m.seq++
	mine := lease{expires: now.Add(m.ttl), seq: m.seq}
	m.leases[key] = mine

	release := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		// Only drop the lease if it has not expired and been taken by someone else.
		if cur, ok := m.leases[key]; ok && cur.seq == mine.seq {
			delete(m.leases, key)
		}
	}
	return release, true, nil
}

var _ reaper.Locker = (*MemoryLocker)(nil)
