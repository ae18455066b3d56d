package lottery

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"
)

// CircuitBreakerStore 带熔断器的状态存储
//
// When the underlying store keeps failing, commits are rejected with
// ErrCircuitBreakerOpen without touching it, so the engine rolls back quickly
// instead of waiting on retries.
type CircuitBreakerStore struct {
	store Store

	mu      sync.RWMutex
	breaker *gobreaker.CircuitBreaker
	logger  Logger
	config  *CircuitBreakerConfig

	// 累计计数, gobreaker 的 Counts 在状态切换时会清零
	requests  atomic.Uint64
	successes atomic.Uint64
	failures  atomic.Uint64
	rejected  atomic.Uint64
}

// NewCircuitBreakerStore 创建带熔断器的状态存储
func NewCircuitBreakerStore(store Store, config *CircuitBreakerConfig, logger Logger) *CircuitBreakerStore {
	if config == nil {
		config = DefaultCircuitBreakerConfig()
	}
	if logger == nil {
		logger = NewSilentLogger()
	}

	c := &CircuitBreakerStore{
		store:  store,
		logger: logger,
		config: config,
	}
	if config.Enabled {
		c.breaker = newBreaker(config, logger)
	}
	return c
}

func newBreaker(config *CircuitBreakerConfig, logger Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// 当请求数达到最小要求且失败率超过阈值时触发熔断
			return counts.Requests >= config.MinRequests &&
				float64(counts.TotalFailures)/float64(counts.Requests) >= config.FailureRatio
		},
		IsSuccessful: isStoreSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			if config.OnStateChange {
				logger.Info("Circuit breaker '%s' state changed from %s to %s", name, from, to)
			}
		},
	})
}

// isStoreSuccess 业务侧的校验错误不计入失败
func isStoreSuccess(err error) bool {
	if err == nil {
		return true
	}
	var le *LotteryError
	if errors.As(err, &le) {
		return le.Code == ErrCodeSerializationFailed
	}
	return false
}

// executeWithBreaker 使用熔断器执行操作
func (c *CircuitBreakerStore) executeWithBreaker(operation func() (any, error)) (any, error) {
	c.mu.RLock()
	breaker := c.breaker
	c.mu.RUnlock()

	if breaker == nil {
		// 熔断器未启用，直接执行
		return operation()
	}

	result, err := breaker.Execute(operation)
	if errors.Is(err, gobreaker.ErrOpenState) {
		c.rejected.Add(1)
		return nil, ErrCircuitBreakerOpen.WithDetails("circuit breaker is open, store requests are being rejected")
	}
	if errors.Is(err, gobreaker.ErrTooManyRequests) {
		c.rejected.Add(1)
		return nil, ErrCircuitBreakerOpen.WithDetails("too many requests, circuit breaker is half-open")
	}

	c.requests.Add(1)
	if isStoreSuccess(err) {
		c.successes.Add(1)
	} else {
		c.failures.Add(1)
	}
	return result, err
}

// Commit 提交变更集
func (c *CircuitBreakerStore) Commit(ctx context.Context, cs *Snapshot) error {
	_, err := c.executeWithBreaker(func() (any, error) {
		return nil, c.store.Commit(ctx, cs)
	})
	return err
}

// Load 加载全部状态
func (c *CircuitBreakerStore) Load(ctx context.Context) (*Snapshot, error) {
	result, err := c.executeWithBreaker(func() (any, error) {
		return c.store.Load(ctx)
	})
	if err != nil {
		return nil, err
	}

	snap, _ := result.(*Snapshot)
	return snap, nil
}

// GetCircuitBreakerState 获取熔断器状态
func (c *CircuitBreakerStore) GetCircuitBreakerState() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.breaker == nil {
		return "disabled"
	}

	switch c.breaker.State() {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// GetCircuitBreakerCounts 获取熔断器当前窗口的统计信息, 状态切换或重置后清零
func (c *CircuitBreakerStore) GetCircuitBreakerCounts() gobreaker.Counts {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.breaker == nil {
		return gobreaker.Counts{}
	}
	return c.breaker.Counts()
}

// ResetCircuitBreaker 重置熔断器 (gobreaker 没有 Reset 方法, 重新创建实例).
// 累计计数不受影响.
func (c *CircuitBreakerStore) ResetCircuitBreaker() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.breaker == nil {
		return
	}
	c.breaker = newBreaker(c.config, c.logger)
	c.logger.Info("Circuit breaker '%s' has been reset (recreated)", c.config.Name)
}

// Check 执行健康检查
func (c *CircuitBreakerStore) Check() map[string]any {
	result := map[string]any{
		"circuit_breaker_enabled": c.config.Enabled,
	}

	if !c.config.Enabled {
		result["state"] = "disabled"
		result["healthy"] = true
		return result
	}

	state := c.GetCircuitBreakerState()
	counts := c.GetCircuitBreakerCounts()

	result["state"] = state
	result["requests"] = counts.Requests
	result["total_successes"] = counts.TotalSuccesses
	result["total_failures"] = counts.TotalFailures
	result["consecutive_successes"] = counts.ConsecutiveSuccesses
	result["consecutive_failures"] = counts.ConsecutiveFailures

	if counts.Requests > 0 {
		result["success_rate"] = float64(counts.TotalSuccesses) / float64(counts.Requests)
		result["failure_rate"] = float64(counts.TotalFailures) / float64(counts.Requests)
	} else {
		result["success_rate"] = 0.0
		result["failure_rate"] = 0.0
	}

	healthy := true
	switch state {
	case "open":
		healthy = false
	case "half-open":
		// 半开状态下连续失败过多视为不健康
		if counts.ConsecutiveFailures > 2 {
			healthy = false
		}
	}
	result["healthy"] = healthy

	return result
}

// CollectMetrics 收集指标
func (c *CircuitBreakerStore) CollectMetrics() map[string]any {
	metrics := map[string]any{
		"circuit_breaker_enabled": c.config.Enabled,
		"timestamp":               time.Now().Unix(),
	}
	if !c.config.Enabled {
		return metrics
	}

	state := c.GetCircuitBreakerState()

	metrics["circuit_breaker_state"] = state
	metrics["circuit_breaker_state_numeric"] = stateToNumeric(state)
	metrics["circuit_breaker_requests_total"] = c.requests.Load()
	metrics["circuit_breaker_successes_total"] = c.successes.Load()
	metrics["circuit_breaker_failures_total"] = c.failures.Load()
	metrics["circuit_breaker_rejected_total"] = c.rejected.Load()
	metrics["circuit_breaker_max_requests"] = c.config.MaxRequests
	metrics["circuit_breaker_failure_ratio_threshold"] = c.config.FailureRatio
	metrics["circuit_breaker_min_requests"] = c.config.MinRequests
	metrics["circuit_breaker_timeout_seconds"] = c.config.Timeout.Seconds()

	return metrics
}

func stateToNumeric(state string) int {
	switch state {
	case "closed":
		return 0
	case "half-open":
		return 1
	case "open":
		return 2
	default:
		return -1
	}
}
