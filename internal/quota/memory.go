package quota

import (
	"context"
	"sync"
)

type bucketKey struct {
	ownerID int64
	day     Day
}

// MemoryTracker is an in-process tracker for tests and single-node runs.
type MemoryTracker struct {
	mu   sync.Mutex
	used map[bucketKey]int
}

// NewMemoryTracker creates a new in-memory quota tracker
func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{used: make(map[bucketKey]int)}
}

// TryReserve claims one slot under the lock.
func (t *MemoryTracker) TryReserve(ctx context.Context, ownerID int64, day Day, limit int) (bool, error) {
	if limit <= 0 {
		return false, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	key := bucketKey{ownerID: ownerID, day: day}
	if t.used[key] >= limit {
		return false, nil
	}
	t.used[key]++
	return true, nil
}

// Release returns one slot, flooring at zero.
func (t *MemoryTracker) Release(ctx context.Context, ownerID int64, day Day) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := bucketKey{ownerID: ownerID, day: day}
	if t.used[key] > 0 {
		t.used[key]--
	}
	return nil
}

// Usage reports the owner's spent slots for the day.
func (t *MemoryTracker) Usage(ctx context.Context, ownerID int64, day Day) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.used[bucketKey{ownerID: ownerID, day: day}], nil
}
