package lottery

import (
	"fmt"
	"time"
)

// GameConfig holds the rules of one deployment
type GameConfig struct {
	MinNumber         uint16            `mapstructure:"min_number" json:"min_number"`
	MaxNumber         uint16            `mapstructure:"max_number" json:"max_number"`
	TicketPrice       Amount            `mapstructure:"ticket_price" json:"ticket_price"`
	MaxBatch          int               `mapstructure:"max_batch" json:"max_batch"`
	MaxClaimBatch     int               `mapstructure:"max_claim_batch" json:"max_claim_batch"`
	ProtocolFeeBps    uint64            `mapstructure:"protocol_fee_bps" json:"protocol_fee_bps"`
	DrawInterval      time.Duration     `mapstructure:"draw_interval" json:"draw_interval"`
	MinSeqDelta       uint64            `mapstructure:"min_seq_delta" json:"min_seq_delta"`
	ExecutorRewardBps uint64            `mapstructure:"executor_reward_bps" json:"executor_reward_bps"`
	MinExecutorReward Amount            `mapstructure:"min_executor_reward" json:"min_executor_reward"`
	MaxExecutorReward Amount            `mapstructure:"max_executor_reward" json:"max_executor_reward"`
	TierShares        [TierCount]uint64 `mapstructure:"tier_shares" json:"tier_shares"` // bps, index 0 is the full match
	AmountDecimals    int32             `mapstructure:"amount_decimals" json:"amount_decimals"`
	Owner             Principal         `mapstructure:"owner" json:"owner"`
	TestingMode       bool              `mapstructure:"testing_mode" json:"testing_mode"`
	Guard             GuardConfig       `mapstructure:"-" json:"guard"`
}

// GuardConfig configures the emergency guard. A zero threshold disables it.
type GuardConfig struct {
	GrowthThreshold Amount        `mapstructure:"growth_threshold" json:"growth_threshold"`
	Window          time.Duration `mapstructure:"window" json:"window"`
}

// NewDefaultGameConfig returns the canonical game rules owned by owner
func NewDefaultGameConfig(owner Principal) *GameConfig {
	gc := &GameConfig{Owner: owner}
	gc.SetDefaults()
	return gc
}

// SetDefaults sets default values for zero fields
func (gc *GameConfig) SetDefaults() {
	if gc.MinNumber == 0 {
		gc.MinNumber = DefaultMinNumber
	}
	if gc.MaxNumber == 0 {
		gc.MaxNumber = DefaultMaxNumber
	}
	if gc.TicketPrice == 0 {
		gc.TicketPrice = DefaultTicketPrice
	}
	if gc.MaxBatch == 0 {
		gc.MaxBatch = DefaultMaxBatch
	}
	if gc.MaxClaimBatch == 0 {
		gc.MaxClaimBatch = DefaultMaxClaimBatch
	}
	if gc.ProtocolFeeBps == 0 {
		gc.ProtocolFeeBps = DefaultProtocolFeeBps
	}
	if gc.DrawInterval == 0 {
		gc.DrawInterval = DefaultDrawInterval
	}
	if gc.MinSeqDelta == 0 {
		gc.MinSeqDelta = DefaultMinSeqDelta
	}
	if gc.ExecutorRewardBps == 0 {
		gc.ExecutorRewardBps = DefaultExecutorRewardBps
	}
	if gc.MinExecutorReward == 0 {
		gc.MinExecutorReward = DefaultMinExecutorReward
	}
	if gc.MaxExecutorReward == 0 {
		gc.MaxExecutorReward = DefaultMaxExecutorReward
	}
	if gc.TierShares == ([TierCount]uint64{}) {
		gc.TierShares = DefaultPrizeTiers
	}
	if gc.AmountDecimals == 0 {
		gc.AmountDecimals = DefaultAmountDecimals
	}
	if gc.Guard.Window == 0 {
		gc.Guard.Window = DefaultGuardWindow
	}
}

// Validate validates the game configuration
func (gc *GameConfig) Validate() error {
	invalid := func(format string, args ...any) error {
		return ErrInvalidGameConfig.WithDetails(fmt.Sprintf(format, args...))
	}

	if gc.Owner == "" {
		return invalid("owner is required")
	}
	if gc.MinNumber > gc.MaxNumber {
		return invalid("min_number %d > max_number %d", gc.MinNumber, gc.MaxNumber)
	}
	if int(gc.MaxNumber-gc.MinNumber)+1 < NumbersPerTicket {
		return invalid("range [%d, %d] holds fewer than %d numbers", gc.MinNumber, gc.MaxNumber, NumbersPerTicket)
	}
	if gc.TicketPrice == 0 {
		return invalid("ticket_price must be positive")
	}
	if gc.MaxBatch <= 0 || gc.MaxClaimBatch <= 0 {
		return invalid("batch limits must be positive")
	}
	if _, err := mulAmount(gc.TicketPrice, uint64(gc.MaxBatch)); err != nil {
		return invalid("ticket_price * max_batch overflows")
	}
	if gc.ProtocolFeeBps > BasisPoints {
		return invalid("protocol_fee_bps %d exceeds %d", gc.ProtocolFeeBps, BasisPoints)
	}
	if gc.ExecutorRewardBps > BasisPoints {
		return invalid("executor_reward_bps %d exceeds %d", gc.ExecutorRewardBps, BasisPoints)
	}
	if gc.MinExecutorReward > gc.MaxExecutorReward {
		return invalid("min_executor_reward > max_executor_reward")
	}
	if gc.DrawInterval < time.Second {
		return invalid("draw_interval must be at least 1s")
	}

	var shares uint64
	for _, s := range gc.TierShares {
		shares += s
	}
	if shares > BasisPoints {
		return invalid("tier shares sum to %d bps", shares)
	}
	if gc.Guard.GrowthThreshold > 0 && gc.Guard.Window <= 0 {
		return invalid("guard window must be positive")
	}
	return nil
}

// IntervalSeconds returns the draw interval in whole seconds
func (gc GameConfig) IntervalSeconds() uint64 {
	return uint64(gc.DrawInterval / time.Second)
}

// ExpectedPayment returns the exact payment for n tickets
func (gc GameConfig) ExpectedPayment(n int) (Amount, error) {
	return mulAmount(gc.TicketPrice, uint64(n))
}

// LockConfig holds the distributed lock settings
type LockConfig struct {
	LockTimeout   time.Duration `mapstructure:"lock_timeout" json:"lock_timeout"`
	RetryAttempts int           `mapstructure:"retry_attempts" json:"retry_attempts"`
	RetryInterval time.Duration `mapstructure:"retry_interval" json:"retry_interval"`
	LockKey       string        `mapstructure:"lock_key" json:"lock_key"`
}

// NewDefaultLockConfig creates a lock configuration with default values
func NewDefaultLockConfig() *LockConfig {
	return &LockConfig{
		LockTimeout:   DefaultLockTimeout,
		RetryAttempts: DefaultRetryAttempts,
		RetryInterval: DefaultRetryInterval,
		LockKey:       DefaultEngineLockKey,
	}
}

// Validate validates the lock configuration
func (lc *LockConfig) Validate() error {
	if lc.LockTimeout < MinLockTimeout || lc.LockTimeout > MaxLockTimeout {
		return ErrInvalidLockTimeout
	}
	if lc.RetryAttempts < 0 || lc.RetryAttempts > MaxRetryAttempts {
		return ErrInvalidRetryAttempts
	}
	if lc.RetryInterval < 0 {
		return ErrInvalidRetryInterval
	}
	return nil
}

// SetDefaults sets default values for the configuration
func (lc *LockConfig) SetDefaults() {
	if lc.LockTimeout == 0 {
		lc.LockTimeout = DefaultLockTimeout
	}
	if lc.RetryAttempts == 0 {
		lc.RetryAttempts = DefaultRetryAttempts
	}
	if lc.RetryInterval == 0 {
		lc.RetryInterval = DefaultRetryInterval
	}
	if lc.LockKey == "" {
		lc.LockKey = DefaultEngineLockKey
	}
}
