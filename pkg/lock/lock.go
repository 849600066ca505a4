// Package lock provides per-key mutual exclusion used to keep a workflow to one running execution.
package lock

import (
	"context"
	"errors"
	"sync"
)

// ErrLocked is returned by TryLock when another holder owns the key.
var ErrLocked = errors.New("lock is held")

// Unlock releases a lock obtained from TryLock.
type Unlock func(ctx context.Context) error

// Locker acquires a lock without waiting.
type Locker interface {
	TryLock(ctx context.Context, key string) (Unlock, error)
}

// MemoryLocker locks keys within a single process.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]struct{})}
}

func (l *MemoryLocker) TryLock(_ context.Context, key string) (Unlock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.held[key]; ok {
		return nil, ErrLocked
	}

	l.held[key] = struct{}{}

	var once sync.Once

	return func(context.Context) error {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})

		return nil
	}, nil
}
