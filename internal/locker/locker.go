// Package locker provides short leases used to keep periodic jobs from
// overlapping, either within one process or across replicas via Redis.
package locker

import (
	"context"
	"sync"
	"time"
)

// ReleaseFunc gives a held lease back.
type ReleaseFunc func(ctx context.Context) error

// Locker hands out named leases. TryAcquire never blocks: ok is false when
// another holder owns key.
type Locker interface {
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (release ReleaseFunc, ok bool, err error)
}

// LocalLocker serializes holders inside a single process.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]time.Time
	now  func() time.Time
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: map[string]time.Time{}, now: time.Now}
}

func (l *LocalLocker) TryAcquire(_ context.Context, key string, ttl time.Duration) (ReleaseFunc, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if until, ok := l.held[key]; ok && now.Before(until) {
		return nil, false, nil
	}
	until := now.Add(ttl)
	l.held[key] = until

	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.held[key].Equal(until) {
			delete(l.held, key)
		}
		return nil
	}, true, nil
}
