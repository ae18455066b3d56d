package lottery

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// Distributed Lock Implementation Strategy:
// - Lock Acquisition: Use Redis SET NX for optimal performance (single network call)
// - Lock Release: Use Lua script for safety (ensures only lock owner can release)

// releaseLockScript ensures only the lock owner can release the lock, so a
// holder whose lock already expired cannot delete its successor's lock.
const releaseLockScript = `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		else
			return 0
		end
	`

// DistributedLockManager serializes engine mutations across processes with Redis locks
type DistributedLockManager struct {
	redisClient   *redis.Client
	expiration    time.Duration
	lockTimeout   time.Duration
	retryAttempts int
	retryInterval time.Duration

	performanceMonitor *PerformanceMonitor
}

// NewLockManager creates a new distributed lock manager
func NewLockManager(redisClient *redis.Client, cfg *LockConfig) *DistributedLockManager {
	if cfg == nil {
		cfg = NewDefaultLockConfig()
	}
	return &DistributedLockManager{
		redisClient:   redisClient,
		expiration:    DefaultLockExpiration,
		lockTimeout:   cfg.LockTimeout,
		retryAttempts: cfg.RetryAttempts,
		retryInterval: cfg.RetryInterval,
	}
}

// SetPerformanceMonitor 设置性能监控器
func (m *DistributedLockManager) SetPerformanceMonitor(monitor *PerformanceMonitor) {
	m.performanceMonitor = monitor
}

// SetExpiration overrides the lock TTL
func (m *DistributedLockManager) SetExpiration(expiration time.Duration) {
	if expiration > 0 {
		m.expiration = expiration
	}
}

// AcquireLock attempts to acquire a distributed lock using SET NX, retrying while it is held
func (m *DistributedLockManager) AcquireLock(ctx context.Context, lockKey, lockValue string) (bool, error) {
	if lockKey == "" || lockValue == "" {
		return false, ErrInvalidParameters
	}

	start := time.Now()
	fullLockKey := LockKeyPrefix + lockKey

	for attempt := 0; attempt <= m.retryAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		default:
		}

		acquired, err := m.redisClient.SetNX(ctx, fullLockKey, lockValue, m.expiration).Result()
		if err != nil {
			if attempt == m.retryAttempts {
				m.recordAcquisition(false, start)
				return false, ErrRedisConnectionFailed.WithCause(err)
			}
			if err := m.wait(ctx); err != nil {
				return false, err
			}
			continue
		}

		if acquired {
			m.recordAcquisition(true, start)
			return true, nil
		}

		if attempt < m.retryAttempts {
			if err := m.wait(ctx); err != nil {
				return false, err
			}
		}
	}

	m.recordAcquisition(false, start)
	return false, ErrLockAcquisitionFailed
}

// ReleaseLock releases the lock only if lockValue still owns it
func (m *DistributedLockManager) ReleaseLock(ctx context.Context, lockKey, lockValue string) (bool, error) {
	if lockKey == "" || lockValue == "" {
		return false, ErrInvalidParameters
	}

	fullLockKey := LockKeyPrefix + lockKey

	for attempt := 0; attempt <= m.retryAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		default:
		}

		result, err := m.redisClient.Eval(ctx, releaseLockScript, []string{fullLockKey}, lockValue).Result()
		if err != nil {
			if attempt == m.retryAttempts {
				return false, ErrRedisConnectionFailed.WithCause(err)
			}
			if err := m.wait(ctx); err != nil {
				return false, err
			}
			continue
		}

		if n, ok := result.(int64); ok && n == 1 {
			if m.performanceMonitor != nil {
				m.performanceMonitor.RecordLockRelease()
			}
			return true, nil
		}

		// Lock was not found or value didn't match - no need to retry
		return false, nil
	}

	return false, ErrRedisConnectionFailed
}

// TryAcquireLock attempts to acquire a lock without retries (single attempt)
func (m *DistributedLockManager) TryAcquireLock(ctx context.Context, lockKey, lockValue string) (bool, error) {
	if lockKey == "" || lockValue == "" {
		return false, ErrInvalidParameters
	}

	acquired, err := m.redisClient.SetNX(ctx, LockKeyPrefix+lockKey, lockValue, m.expiration).Result()
	if err != nil {
		return false, ErrRedisConnectionFailed.WithCause(err)
	}
	return acquired, nil
}

// AcquireLockWithTimeout keeps trying until the lock is acquired or timeout elapses
func (m *DistributedLockManager) AcquireLockWithTimeout(ctx context.Context, lockKey, lockValue string, timeout time.Duration) (bool, error) {
	if lockKey == "" || lockValue == "" {
		return false, ErrInvalidParameters
	}
	if timeout <= 0 {
		timeout = m.lockTimeout
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	fullLockKey := LockKeyPrefix + lockKey
	for {
		acquired, err := m.redisClient.SetNX(timeoutCtx, fullLockKey, lockValue, m.expiration).Result()
		if err == nil && acquired {
			return true, nil
		}
		if timeoutCtx.Err() != nil {
			return false, ErrLockTimeout
		}
		if err := m.wait(timeoutCtx); err != nil {
			return false, ErrLockTimeout
		}
	}
}

func (m *DistributedLockManager) wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(m.retryInterval):
		return nil
	}
}

func (m *DistributedLockManager) recordAcquisition(success bool, start time.Time) {
	if m.performanceMonitor != nil {
		m.performanceMonitor.RecordLockAcquisition(success, time.Since(start))
	}
}
