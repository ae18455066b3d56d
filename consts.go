package lottery

import "time"

const (
	// NumbersPerTicket is the number of distinct numbers on every ticket and in every winning set
	NumbersPerTicket = 5

	// TierCount is the number of prize tiers (K, K-1, K-2, K-3 matches)
	TierCount = NumbersPerTicket - 1

	// MinPrizeMatches is the smallest match count that earns a prize
	MinPrizeMatches = 2

	// BasisPoints is the denominator of every bps ratio
	BasisPoints = 10_000
)

const (
	DefaultMinNumber         = 1
	DefaultMaxNumber         = 49
	DefaultTicketPrice       = 10_000_000 // 0.1 unit at 8 decimals
	DefaultMaxBatch          = 50
	DefaultMaxClaimBatch     = 50
	DefaultProtocolFeeBps    = 500
	DefaultDrawInterval      = 24 * time.Hour
	DefaultMinSeqDelta       = 100
	DefaultExecutorRewardBps = 10
	DefaultMinExecutorReward = 1_000_000
	DefaultMaxExecutorReward = 100_000_000
	DefaultAmountDecimals    = 8
)

const (
	// DefaultGuardGrowthThreshold is the jackpot growth inside one window that trips the guard
	DefaultGuardGrowthThreshold = 1_000_000_000_000

	// DefaultGuardWindow is the length of the guard's growth window
	DefaultGuardWindow = 1 * time.Hour
)

const (
	// DefaultLockTimeout is the default timeout for acquiring distributed locks
	DefaultLockTimeout = 30 * time.Second

	// DefaultRetryAttempts is the default number of retry attempts
	DefaultRetryAttempts = 3

	// DefaultRetryInterval is the default interval between retry attempts
	DefaultRetryInterval = 100 * time.Millisecond

	// LockKeyPrefix is the prefix for Redis lock keys
	LockKeyPrefix = "lottery:lock:"

	// DefaultEngineLockKey is the lock key guarding engine mutations across processes
	DefaultEngineLockKey = "engine"

	// DefaultLockExpiration is the default expiration time for locks
	DefaultLockExpiration = 30 * time.Second

	// MaxRetryAttempts is the maximum number of retry attempts allowed
	MaxRetryAttempts = 10

	// MinLockTimeout is the minimum lock timeout allowed
	MinLockTimeout = 1 * time.Second

	// MaxLockTimeout is the maximum lock timeout allowed
	MaxLockTimeout = 5 * time.Minute
)

const (
	// DefaultCircuitBreakerName is the default name for Circuit Breaker
	DefaultCircuitBreakerName = "lottery-store"

	// DefaultCircuitBreakerMaxRequests is the default max requests
	DefaultCircuitBreakerMaxRequests = 3

	// DefaultCircuitBreakerInterval is the default interval
	DefaultCircuitBreakerInterval = 60 * time.Second

	// DefaultCircuitBreakerTimeout is the default timeout
	DefaultCircuitBreakerTimeout = 30 * time.Second

	// DefaultCircuitBreakerFailureRatio is the default failure ratio
	DefaultCircuitBreakerFailureRatio = 0.6

	// DefaultCircuitBreakerMinRequests is the default min requests
	DefaultCircuitBreakerMinRequests = 3

	// DefaultCircuitBreakerOnStateChange is the default on state change
	DefaultCircuitBreakerOnStateChange = true
)

const (
	DefaultRedisAddr         = "localhost:6379"
	DefaultRedisPassword     = ""
	DefaultRedisDB           = 0
	DefaultRedisPoolSize     = 50
	DefaultRedisMinIdleConns = 10
	DefaultRedisMaxRetries   = 3
	DefaultRedisDialTimeout  = 5 * time.Second
	DefaultRedisReadTimeout  = 3 * time.Second
	DefaultRedisWriteTimeout = 3 * time.Second
	DefaultRedisPoolTimeout  = 4 * time.Second
)

const (
	// DefaultMetricsNamespace is the prometheus namespace of engine metrics
	DefaultMetricsNamespace = "lottery"
)
