package lottery

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime"
	"strings"
	"time"
)

// ErrorCode 错误代码类型
type ErrorCode string

// 错误代码常量
const (
	// 系统级错误 (1000-1999)
	ErrCodeSystem             ErrorCode = "LOTTERY_1000"
	ErrCodeRedisConnection    ErrorCode = "LOTTERY_1001"
	ErrCodeRedisTimeout       ErrorCode = "LOTTERY_1002"
	ErrCodeConfigInvalid      ErrorCode = "LOTTERY_1004"
	ErrCodeServiceUnavailable ErrorCode = "LOTTERY_1005"
	ErrCodeTransferFailed     ErrorCode = "LOTTERY_1006"

	// 校验错误 (2000-2999)
	ErrCodeInvalidParameters    ErrorCode = "LOTTERY_2000"
	ErrCodeInvalidTicket        ErrorCode = "LOTTERY_2001"
	ErrCodeWrongPaymentAmount   ErrorCode = "LOTTERY_2002"
	ErrCodeEmptyBatch           ErrorCode = "LOTTERY_2003"
	ErrCodeBatchTooLarge        ErrorCode = "LOTTERY_2004"
	ErrCodeEmptyClaim           ErrorCode = "LOTTERY_2005"
	ErrCodeClaimBatchTooLarge   ErrorCode = "LOTTERY_2006"
	ErrCodeInvalidLockTimeout   ErrorCode = "LOTTERY_2010"
	ErrCodeInvalidRetryAttempts ErrorCode = "LOTTERY_2011"
	ErrCodeInvalidRetryInterval ErrorCode = "LOTTERY_2012"
	ErrCodeInvalidGameConfig    ErrorCode = "LOTTERY_2013"

	// 锁相关错误 (3000-3999)
	ErrCodeLockAcquisitionFailed ErrorCode = "LOTTERY_3000"
	ErrCodeLockTimeout           ErrorCode = "LOTTERY_3001"
	ErrCodeLockReleaseFailure    ErrorCode = "LOTTERY_3002"

	// 权限相关错误 (4000-4999)
	ErrCodeUnauthorized     ErrorCode = "LOTTERY_4000"
	ErrCodeNotInTestingMode ErrorCode = "LOTTERY_4001"

	// 熔断与重入 (5000-5999)
	ErrCodeCircuitBreakerOpen ErrorCode = "LOTTERY_5002"
	ErrCodeReentrantCall      ErrorCode = "LOTTERY_5003"

	// 持久化相关错误 (6000-6999)
	ErrCodeStateNotFound         ErrorCode = "LOTTERY_6000"
	ErrCodeStateSaveFailure      ErrorCode = "LOTTERY_6001"
	ErrCodeStateLoadFailure      ErrorCode = "LOTTERY_6002"
	ErrCodeStateCorrupted        ErrorCode = "LOTTERY_6003"
	ErrCodeSerializationFailed   ErrorCode = "LOTTERY_6004"
	ErrCodeDeserializationFailed ErrorCode = "LOTTERY_6005"

	// 状态前置条件错误 (7000-7999)
	ErrCodeEmergencyPaused  ErrorCode = "LOTTERY_7000"
	ErrCodeCannotExecuteYet ErrorCode = "LOTTERY_7001"
	ErrCodeAlreadyExecuted  ErrorCode = "LOTTERY_7002"
	ErrCodeDrawNotExecuted  ErrorCode = "LOTTERY_7003"
	ErrCodeNotTicketOwner   ErrorCode = "LOTTERY_7004"
	ErrCodeAlreadyClaimed   ErrorCode = "LOTTERY_7005"
	ErrCodeNoPrizesToClaim  ErrorCode = "LOTTERY_7006"
	ErrCodeTicketNotFound   ErrorCode = "LOTTERY_7007"
	ErrCodeDrawNotFound     ErrorCode = "LOTTERY_7008"

	// 不变量破坏 (8000-8999)
	ErrCodeArithmeticOverflow  ErrorCode = "LOTTERY_8000"
	ErrCodeArithmeticUnderflow ErrorCode = "LOTTERY_8001"
	ErrCodeInvariantViolation  ErrorCode = "LOTTERY_8002"
)

// ErrorSeverity 错误严重程度
type ErrorSeverity string

const (
	SeverityCritical ErrorSeverity = "critical"
	SeverityHigh     ErrorSeverity = "high"
	SeverityMedium   ErrorSeverity = "medium"
	SeverityLow      ErrorSeverity = "low"
	SeverityInfo     ErrorSeverity = "info"
)

// LotteryError 增强的错误类型
type LotteryError struct {
	Code       ErrorCode      `json:"code"`
	Message    string         `json:"message"`
	Details    string         `json:"details,omitempty"`
	Severity   ErrorSeverity  `json:"severity"`
	Timestamp  time.Time      `json:"timestamp"`
	Operation  string         `json:"operation,omitempty"`
	StackTrace string         `json:"stack_trace,omitempty"`
	Cause      error          `json:"-"`
	Retryable  bool           `json:"retryable"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Error 实现 error 接口
func (e *LotteryError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 实现 errors.Unwrap 接口
func (e *LotteryError) Unwrap() error {
	return e.Cause
}

// Is 实现 errors.Is 接口
func (e *LotteryError) Is(target error) bool {
	if t, ok := target.(*LotteryError); ok {
		return e.Code == t.Code
	}
	return false
}

// clone copies the error so the predefined instances are never mutated
func (e *LotteryError) clone() *LotteryError {
	c := *e
	c.Timestamp = time.Now()
	if e.Metadata != nil {
		c.Metadata = make(map[string]any, len(e.Metadata))
		for k, v := range e.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// WithCause 添加原因错误
func (e *LotteryError) WithCause(cause error) *LotteryError {
	c := e.clone()
	c.Cause = cause
	return c
}

// WithDetails 添加详细信息
func (e *LotteryError) WithDetails(details string) *LotteryError {
	c := e.clone()
	c.Details = details
	return c
}

// WithOperation 添加操作信息
func (e *LotteryError) WithOperation(operation string) *LotteryError {
	c := e.clone()
	c.Operation = operation
	return c
}

// WithMetadata 添加元数据
func (e *LotteryError) WithMetadata(key string, value any) *LotteryError {
	c := e.clone()
	if c.Metadata == nil {
		c.Metadata = make(map[string]any)
	}
	c.Metadata[key] = value
	return c
}

// WithStackTrace 添加堆栈跟踪
func (e *LotteryError) WithStackTrace() *LotteryError {
	c := e.clone()
	buf := make([]byte, 4096)
	n := runtime.Stack(buf, false)
	c.StackTrace = string(buf[:n])
	return c
}

// IsFatal reports whether the error signals a broken invariant rather than a usage error
func (e *LotteryError) IsFatal() bool {
	return e.Severity == SeverityCritical
}

// NewError 创建新的错误
func NewError(code ErrorCode, message string) *LotteryError {
	return &LotteryError{
		Code:      code,
		Message:   message,
		Severity:  SeverityMedium,
		Timestamp: time.Now(),
		Retryable: false,
	}
}

// NewRetryableError 创建可重试的错误
func NewRetryableError(code ErrorCode, message string) *LotteryError {
	return &LotteryError{
		Code:      code,
		Message:   message,
		Severity:  SeverityMedium,
		Timestamp: time.Now(),
		Retryable: true,
	}
}

// NewCriticalError 创建严重错误
func NewCriticalError(code ErrorCode, message string) *LotteryError {
	return &LotteryError{
		Code:      code,
		Message:   message,
		Severity:  SeverityCritical,
		Timestamp: time.Now(),
		Retryable: false,
	}
}

// 预定义的错误实例
var (
	// 系统级错误
	ErrSystemError           = NewCriticalError(ErrCodeSystem, "system error occurred")
	ErrRedisConnectionFailed = NewRetryableError(ErrCodeRedisConnection, "Redis connection failed")
	ErrRedisTimeout          = NewRetryableError(ErrCodeRedisTimeout, "Redis operation timeout")
	ErrConfigInvalid         = NewCriticalError(ErrCodeConfigInvalid, "configuration is invalid")
	ErrServiceUnavailable    = NewRetryableError(ErrCodeServiceUnavailable, "service temporarily unavailable")
	ErrTransferFailed        = NewError(ErrCodeTransferFailed, "funds transfer failed")

	// 校验错误
	ErrInvalidParameters    = NewError(ErrCodeInvalidParameters, "invalid parameters provided")
	ErrInvalidTicket        = NewError(ErrCodeInvalidTicket, "invalid ticket")
	ErrWrongPaymentAmount   = NewError(ErrCodeWrongPaymentAmount, "wrong payment amount")
	ErrEmptyBatch           = NewError(ErrCodeEmptyBatch, "ticket batch is empty")
	ErrBatchTooLarge        = NewError(ErrCodeBatchTooLarge, "ticket batch is too large")
	ErrEmptyClaim           = NewError(ErrCodeEmptyClaim, "claim batch is empty")
	ErrClaimBatchTooLarge   = NewError(ErrCodeClaimBatchTooLarge, "claim batch is too large")
	ErrInvalidLockTimeout   = NewError(ErrCodeInvalidLockTimeout, "invalid lock timeout: must be between 1s and 5m")
	ErrInvalidRetryAttempts = NewError(ErrCodeInvalidRetryAttempts, "invalid retry attempts: must be between 0 and 10")
	ErrInvalidRetryInterval = NewError(ErrCodeInvalidRetryInterval, "invalid retry interval: cannot be negative")
	ErrInvalidGameConfig    = NewError(ErrCodeInvalidGameConfig, "invalid game configuration")

	// 锁相关错误
	ErrLockAcquisitionFailed = NewRetryableError(ErrCodeLockAcquisitionFailed, "failed to acquire distributed lock")
	ErrLockTimeout           = NewRetryableError(ErrCodeLockTimeout, "lock acquisition timeout")
	ErrLockReleaseFailure    = NewError(ErrCodeLockReleaseFailure, "failed to release lock")

	// 权限相关错误
	ErrUnauthorized     = NewError(ErrCodeUnauthorized, "unauthorized caller")
	ErrNotInTestingMode = NewError(ErrCodeNotInTestingMode, "operation is only available in testing mode")

	// 熔断与重入
	ErrCircuitBreakerOpen = NewRetryableError(ErrCodeCircuitBreakerOpen, "circuit breaker is open")
	ErrReentrantCall      = NewError(ErrCodeReentrantCall, "reentrant call rejected")

	// 持久化相关错误
	ErrStateNotFound         = NewError(ErrCodeStateNotFound, "state not found")
	ErrStateSaveFailure      = NewRetryableError(ErrCodeStateSaveFailure, "failed to save state")
	ErrStateLoadFailure      = NewRetryableError(ErrCodeStateLoadFailure, "failed to load state")
	ErrStateCorrupted        = NewError(ErrCodeStateCorrupted, "state data is corrupted")
	ErrSerializationFailed   = NewError(ErrCodeSerializationFailed, "serialization failed")
	ErrDeserializationFailed = NewError(ErrCodeDeserializationFailed, "deserialization failed")

	// 状态前置条件错误
	ErrEmergencyPaused  = NewError(ErrCodeEmergencyPaused, "engine is paused")
	ErrCannotExecuteYet = NewError(ErrCodeCannotExecuteYet, "draw cannot be executed yet")
	ErrAlreadyExecuted  = NewError(ErrCodeAlreadyExecuted, "draw already executed")
	ErrDrawNotExecuted  = NewError(ErrCodeDrawNotExecuted, "draw not executed yet")
	ErrNotTicketOwner   = NewError(ErrCodeNotTicketOwner, "caller does not own ticket")
	ErrAlreadyClaimed   = NewError(ErrCodeAlreadyClaimed, "ticket already claimed")
	ErrNoPrizesToClaim  = NewError(ErrCodeNoPrizesToClaim, "no prizes to claim")
	ErrTicketNotFound   = NewError(ErrCodeTicketNotFound, "ticket not found")
	ErrDrawNotFound     = NewError(ErrCodeDrawNotFound, "draw not found")

	// 不变量破坏
	ErrArithmeticOverflow  = NewCriticalError(ErrCodeArithmeticOverflow, "arithmetic overflow")
	ErrArithmeticUnderflow = NewCriticalError(ErrCodeArithmeticUnderflow, "arithmetic underflow")
	ErrInvariantViolation  = NewCriticalError(ErrCodeInvariantViolation, "invariant violation")
)

// ErrorHandler 错误处理器接口
type ErrorHandler interface {
	HandleError(ctx context.Context, err error) error
	ShouldRetry(err error) bool
	GetRetryDelay(attempt int, err error) time.Duration
}

// DefaultErrorHandler 默认错误处理器
type DefaultErrorHandler struct {
	logger        Logger
	baseDelay     time.Duration
	maxDelay      time.Duration
	backoffFactor float64
}

// NewDefaultErrorHandler 创建默认错误处理器
func NewDefaultErrorHandler(logger Logger) *DefaultErrorHandler {
	return &DefaultErrorHandler{
		logger:        logger,
		baseDelay:     DefaultRetryInterval,
		maxDelay:      5 * time.Second,
		backoffFactor: 2.0,
	}
}

// NewErrorHandlerWithDelay 创建自定义基础延迟的错误处理器
func NewErrorHandlerWithDelay(logger Logger, baseDelay time.Duration) *DefaultErrorHandler {
	h := NewDefaultErrorHandler(logger)
	h.baseDelay = baseDelay
	return h
}

// HandleError 处理错误
func (h *DefaultErrorHandler) HandleError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}

	// 转换为 LotteryError
	var lotteryErr *LotteryError
	if !errors.As(err, &lotteryErr) {
		// 包装普通错误, 网络类错误保留可重试标记
		if IsRetryableError(err) {
			lotteryErr = NewRetryableError(ErrCodeSystem, err.Error()).WithCause(err)
		} else {
			lotteryErr = NewError(ErrCodeSystem, err.Error()).WithCause(err)
		}
	}

	h.logError(lotteryErr)
	return lotteryErr
}

// ShouldRetry 判断是否应该重试
func (h *DefaultErrorHandler) ShouldRetry(err error) bool {
	var lotteryErr *LotteryError
	if errors.As(err, &lotteryErr) {
		return lotteryErr.Retryable
	}

	return IsRetryableError(err)
}

// GetRetryDelay 获取重试延迟
func (h *DefaultErrorHandler) GetRetryDelay(attempt int, err error) time.Duration {
	if attempt <= 0 {
		return h.baseDelay
	}

	// 指数退避算法
	delay := time.Duration(float64(h.baseDelay) * pow(h.backoffFactor, float64(attempt-1)))

	// 添加抖动 (±25%)
	jitter := time.Duration(float64(delay) * 0.25 * (2*rand.Float64() - 1))
	delay += jitter

	if delay > h.maxDelay {
		delay = h.maxDelay
	}

	return delay
}

// logError 记录错误日志
func (h *DefaultErrorHandler) logError(err *LotteryError) {
	if h.logger == nil {
		return
	}

	switch err.Severity {
	case SeverityCritical:
		h.logger.Error("Critical error occurred: %s", err.Error())
	case SeverityHigh, SeverityMedium:
		h.logger.Error("Error occurred: code=%s retryable=%t: %s", err.Code, err.Retryable, err.Error())
	default:
		h.logger.Info("Low severity error: %s", err.Error())
	}
}

// IsRetryableError 检查是否为可重试错误
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())
	retryablePatterns := []string{
		"connection refused",
		"connection reset",
		"timeout",
		"network is unreachable",
		"temporary failure",
		"server closed",
		"broken pipe",
		"i/o timeout",
		"dial tcp",
		"read tcp",
		"write tcp",
		"connection timed out",
		"no route to host",
		"host is down",
		"connection aborted",
		"socket is not connected",
		"operation timed out",
		"redis: connection pool timeout",
		"redis: client is closed",
		"context deadline exceeded",
	}

	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// pow 计算幂次方 (简单实现)
func pow(base, exp float64) float64 {
	result := 1.0
	for i := 0; i < int(exp); i++ {
		result *= base
	}
	return result
}

// ErrorRecovery 错误恢复策略
type ErrorRecovery struct {
	handler    ErrorHandler
	maxRetries int
	logger     Logger
}

// NewErrorRecovery 创建错误恢复策略
func NewErrorRecovery(handler ErrorHandler, maxRetries int, logger Logger) *ErrorRecovery {
	return &ErrorRecovery{
		handler:    handler,
		maxRetries: maxRetries,
		logger:     logger,
	}
}

// ExecuteWithRetry 执行带重试的操作
func (r *ErrorRecovery) ExecuteWithRetry(ctx context.Context, operation func() error) error {
	var lastErr error

	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return NewError(ErrCodeSystem, "operation cancelled").WithCause(ctx.Err())
		default:
		}

		err := operation()
		if err == nil {
			if attempt > 0 {
				r.logger.Info("Operation succeeded after %d retries", attempt)
			}
			return nil
		}

		lastErr = r.handler.HandleError(ctx, err)

		if !r.handler.ShouldRetry(lastErr) {
			r.logger.Debug("Error is not retryable: %v", lastErr)
			return lastErr
		}

		if attempt < r.maxRetries {
			delay := r.handler.GetRetryDelay(attempt+1, lastErr)
			r.logger.Debug("Retrying operation in %v (attempt %d/%d)", delay, attempt+1, r.maxRetries)

			select {
			case <-ctx.Done():
				return NewError(ErrCodeSystem, "operation cancelled during retry").WithCause(ctx.Err())
			case <-time.After(delay):
			}
		}
	}

	return NewError(ErrCodeSystem, fmt.Sprintf("operation failed after %d attempts", r.maxRetries+1)).WithCause(lastErr)
}
