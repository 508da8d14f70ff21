package integrity

import (
	"context"
	"sync"
	"time"
)

// Locker serializes runs of the same check. TryLock never blocks: it reports
// false when another holder owns key. The returned release func is only valid
// when ok is true.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

// MemoryLocker is a process-local Locker.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]time.Time
	now  func() time.Time
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]time.Time), now: time.Now}
}

func (l *MemoryLocker) TryLock(_ context.Context, key string, ttl time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if until, ok := l.held[key]; ok && now.Before(until) {
		return nil, false, nil
	}
	until := now.Add(ttl)
	l.held[key] = until

	release := func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		// a holder whose ttl ran out must not drop the lock of the next one
		if l.held[key].Equal(until) {
			delete(l.held, key)
		}
	}
	return release, true, nil
}

var _ Locker = (*MemoryLocker)(nil)
