package lottery

import (
	"context"
	"sync"
)

type reentrancyKey struct{}

// markPayout returns a ctx that identifies calls made from inside a payout
func markPayout(ctx context.Context) context.Context {
	return context.WithValue(ctx, reentrancyKey{}, true)
}

// inPayout reports whether ctx was handed out by the engine to a Payer
func inPayout(ctx context.Context) bool {
	v, _ := ctx.Value(reentrancyKey{}).(bool)
	return v
}

// mutationLock serializes engine mutations: a process-local RWMutex, plus an
// optional distributed lock so several engine processes sharing one store
// never interleave their writes.
type mutationLock struct {
	mu      sync.RWMutex
	locker  Locker
	lockKey string
	logger  Logger
}

// lock takes the write lock and returns the function releasing it
func (l *mutationLock) lock(ctx context.Context) (func(), error) {
	if inPayout(ctx) {
		return nil, ErrReentrantCall
	}

	l.mu.Lock()
	if l.locker == nil {
		return l.mu.Unlock, nil
	}

	lockValue := generateLockValue()
	acquired, err := l.locker.AcquireLock(ctx, l.lockKey, lockValue)
	if err != nil {
		l.mu.Unlock()
		l.logger.Error("mutation lock acquisition error for key %s: %v", l.lockKey, err)
		return nil, err
	}
	if !acquired {
		l.mu.Unlock()
		l.logger.Error("failed to acquire mutation lock for key %s", l.lockKey)
		return nil, ErrLockAcquisitionFailed
	}

	return func() {
		// release even when the caller's ctx has been cancelled
		released, releaseErr := l.locker.ReleaseLock(context.WithoutCancel(ctx), l.lockKey, lockValue)
		if releaseErr != nil {
			l.logger.Error("Failed to release lock for key %s: %v", l.lockKey, releaseErr)
		} else if !released {
			l.logger.Debug("Lock for key %s was already released or expired", l.lockKey)
		}
		l.mu.Unlock()
	}, nil
}

// rlock takes the read lock; reads never touch the distributed lock
func (l *mutationLock) rlock() func() {
	l.mu.RLock()
	return l.mu.RUnlock
}
