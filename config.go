package lottery

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-redis/redis/v8"
	"github.com/spf13/viper"
)

// Config 生产环境配置结构
type Config struct {
	// 游戏规则
	Game *GameConfig `mapstructure:"game"`

	// 紧急熔断 (奖池增长阈值)
	Guard *GuardConfig `mapstructure:"guard"`

	// 分布式锁配置
	Lock *LockConfig `mapstructure:"engine"`

	// Redis 配置
	Redis *RedisConfig `mapstructure:"redis"`

	// 熔断器配置
	CircuitBreaker *CircuitBreakerConfig `mapstructure:"circuit_breaker"`

	// 指标配置
	Metrics *MetricsConfig `mapstructure:"metrics"`
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Game == nil || c.Lock == nil || c.Redis == nil || c.CircuitBreaker == nil {
		return ErrConfigInvalid.WithDetails("game, engine, redis and circuit_breaker sections are required")
	}
	if c.Guard != nil {
		c.Game.Guard = *c.Guard
	}
	if err := c.Game.Validate(); err != nil {
		return err
	}
	if err := c.Lock.Validate(); err != nil {
		return err
	}

	// 验证 Redis 配置
	if c.Redis.Addr == "" {
		return ErrConfigInvalid.WithDetails("redis address is required")
	}
	if c.Redis.PoolSize <= 0 {
		return ErrConfigInvalid.WithDetails("redis pool size must be positive")
	}

	if c.CircuitBreaker.Enabled && (c.CircuitBreaker.FailureRatio <= 0 || c.CircuitBreaker.FailureRatio > 1) {
		return ErrConfigInvalid.WithDetails(fmt.Sprintf("circuit breaker failure ratio %v out of (0, 1]", c.CircuitBreaker.FailureRatio))
	}

	return nil
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 连接配置
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`

	// 连接池配置
	PoolSize     int `mapstructure:"pool_size"`
	MinIdleConns int `mapstructure:"min_idle_conns"`
	MaxRetries   int `mapstructure:"max_retries"`

	// 超时配置
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PoolTimeout  time.Duration `mapstructure:"pool_timeout"`

	// 状态键前缀
	KeyPrefix string `mapstructure:"key_prefix"`
}

// CircuitBreakerConfig 熔断器配置
type CircuitBreakerConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Name          string        `mapstructure:"name"`
	MaxRequests   uint32        `mapstructure:"max_requests"`
	Interval      time.Duration `mapstructure:"interval"`
	Timeout       time.Duration `mapstructure:"timeout"`
	FailureRatio  float64       `mapstructure:"failure_ratio"`
	MinRequests   uint32        `mapstructure:"min_requests"`
	OnStateChange bool          `mapstructure:"on_state_change"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
}

// DefaultCircuitBreakerConfig 返回默认熔断器配置
func DefaultCircuitBreakerConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		Enabled:       true,
		Name:          DefaultCircuitBreakerName,
		MaxRequests:   DefaultCircuitBreakerMaxRequests,
		Interval:      DefaultCircuitBreakerInterval,
		Timeout:       DefaultCircuitBreakerTimeout,
		FailureRatio:  DefaultCircuitBreakerFailureRatio,
		MinRequests:   DefaultCircuitBreakerMinRequests,
		OnStateChange: DefaultCircuitBreakerOnStateChange,
	}
}

// ConfigManager 配置管理器
type ConfigManager struct {
	viper *viper.Viper

	mu     sync.RWMutex
	config *Config
}

// NewConfigManager 创建配置管理器
func NewConfigManager() *ConfigManager {
	v := viper.New()

	// 设置配置文件名和路径
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/lottery")
	v.AddConfigPath("$HOME/.lottery")

	// 设置环境变量前缀, 例如 LOTTERY_GAME_OWNER
	v.SetEnvPrefix("LOTTERY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &ConfigManager{
		viper: v,
	}
}

// NewConfigManagerWithFile 创建读取指定配置文件的配置管理器
func NewConfigManagerWithFile(path string) *ConfigManager {
	cm := NewConfigManager()
	cm.viper.SetConfigFile(path)
	return cm
}

// LoadConfig 加载配置
func (cm *ConfigManager) LoadConfig() (*Config, error) {
	// 设置默认值
	cm.setDefaults()

	// 读取配置文件
	if err := cm.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// 配置文件不存在时使用默认配置
	}

	config, err := cm.decode()
	if err != nil {
		return nil, err
	}

	cm.mu.Lock()
	cm.config = config
	cm.mu.Unlock()
	return config, nil
}

func (cm *ConfigManager) decode() (*Config, error) {
	config := &Config{}
	if err := cm.viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return config, nil
}

// setDefaults 设置默认配置值
func (cm *ConfigManager) setDefaults() {
	// 游戏规则默认配置 (owner 必须显式配置)
	cm.viper.SetDefault("game.owner", "")
	cm.viper.SetDefault("game.min_number", DefaultMinNumber)
	cm.viper.SetDefault("game.max_number", DefaultMaxNumber)
	cm.viper.SetDefault("game.ticket_price", DefaultTicketPrice)
	cm.viper.SetDefault("game.max_batch", DefaultMaxBatch)
	cm.viper.SetDefault("game.max_claim_batch", DefaultMaxClaimBatch)
	cm.viper.SetDefault("game.protocol_fee_bps", DefaultProtocolFeeBps)
	cm.viper.SetDefault("game.draw_interval", "24h")
	cm.viper.SetDefault("game.min_seq_delta", DefaultMinSeqDelta)
	cm.viper.SetDefault("game.executor_reward_bps", DefaultExecutorRewardBps)
	cm.viper.SetDefault("game.min_executor_reward", DefaultMinExecutorReward)
	cm.viper.SetDefault("game.max_executor_reward", DefaultMaxExecutorReward)
	cm.viper.SetDefault("game.tier_shares", DefaultPrizeTiers[:])
	cm.viper.SetDefault("game.amount_decimals", DefaultAmountDecimals)
	cm.viper.SetDefault("game.testing_mode", false)

	cm.viper.SetDefault("guard.growth_threshold", DefaultGuardGrowthThreshold)
	cm.viper.SetDefault("guard.window", "1h")

	// 分布式锁默认配置
	cm.viper.SetDefault("engine.lock_timeout", "30s")
	cm.viper.SetDefault("engine.retry_attempts", 3)
	cm.viper.SetDefault("engine.retry_interval", "100ms")
	cm.viper.SetDefault("engine.lock_key", DefaultEngineLockKey)

	// Redis 默认配置
	cm.viper.SetDefault("redis.addr", DefaultRedisAddr)
	cm.viper.SetDefault("redis.password", DefaultRedisPassword)
	cm.viper.SetDefault("redis.db", DefaultRedisDB)
	cm.viper.SetDefault("redis.pool_size", DefaultRedisPoolSize)
	cm.viper.SetDefault("redis.min_idle_conns", DefaultRedisMinIdleConns)
	cm.viper.SetDefault("redis.max_retries", DefaultRedisMaxRetries)
	cm.viper.SetDefault("redis.dial_timeout", "5s")
	cm.viper.SetDefault("redis.read_timeout", "3s")
	cm.viper.SetDefault("redis.write_timeout", "3s")
	cm.viper.SetDefault("redis.pool_timeout", "4s")
	cm.viper.SetDefault("redis.key_prefix", StateKeyPrefix)

	// 熔断器默认配置
	cm.viper.SetDefault("circuit_breaker.enabled", true)
	cm.viper.SetDefault("circuit_breaker.name", DefaultCircuitBreakerName)
	cm.viper.SetDefault("circuit_breaker.max_requests", DefaultCircuitBreakerMaxRequests)
	cm.viper.SetDefault("circuit_breaker.interval", "60s")
	cm.viper.SetDefault("circuit_breaker.timeout", "30s")
	cm.viper.SetDefault("circuit_breaker.failure_ratio", DefaultCircuitBreakerFailureRatio)
	cm.viper.SetDefault("circuit_breaker.min_requests", DefaultCircuitBreakerMinRequests)
	cm.viper.SetDefault("circuit_breaker.on_state_change", DefaultCircuitBreakerOnStateChange)

	cm.viper.SetDefault("metrics.enabled", true)
	cm.viper.SetDefault("metrics.namespace", DefaultMetricsNamespace)
}

// WatchConfig 监听配置变化
//
// Only the lock, circuit breaker and metrics sections can be hot-reloaded by
// the caller; game rules are fixed for the lifetime of an engine.
func (cm *ConfigManager) WatchConfig(callback func(*Config)) error {
	cm.viper.OnConfigChange(func(e fsnotify.Event) {
		config, err := cm.decode()
		if err != nil {
			// 记录错误但不中断服务
			return
		}

		cm.mu.Lock()
		cm.config = config
		cm.mu.Unlock()
		if callback != nil {
			callback(config)
		}
	})
	cm.viper.WatchConfig()

	return nil
}

// GetConfig 获取当前配置
func (cm *ConfigManager) GetConfig() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}

// ReloadConfig 重新加载配置
func (cm *ConfigManager) ReloadConfig() (*Config, error) { return cm.LoadConfig() }

// DefaultRedisConfig 返回默认的Redis配置
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:         DefaultRedisAddr,
		Password:     DefaultRedisPassword,
		DB:           DefaultRedisDB,
		PoolSize:     DefaultRedisPoolSize,
		MinIdleConns: DefaultRedisMinIdleConns,
		MaxRetries:   DefaultRedisMaxRetries,
		DialTimeout:  DefaultRedisDialTimeout,
		ReadTimeout:  DefaultRedisReadTimeout,
		WriteTimeout: DefaultRedisWriteTimeout,
		PoolTimeout:  DefaultRedisPoolTimeout,
		KeyPrefix:    StateKeyPrefix,
	}
}

// NewRedisClientFromConfig 从配置创建Redis客户端
func NewRedisClientFromConfig(config *RedisConfig) *redis.Client {
	if config == nil {
		config = DefaultRedisConfig()
	}

	return redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		MaxRetries:   config.MaxRetries,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		PoolTimeout:  config.PoolTimeout,
	})
}

// NewDefaultConfig 返回完整的默认配置
func NewDefaultConfig(owner Principal) *Config {
	guard := GuardConfig{GrowthThreshold: DefaultGuardGrowthThreshold, Window: DefaultGuardWindow}
	game := NewDefaultGameConfig(owner)
	game.Guard = guard

	return &Config{
		Game:           game,
		Guard:          &guard,
		Lock:           NewDefaultLockConfig(),
		Redis:          DefaultRedisConfig(),
		CircuitBreaker: DefaultCircuitBreakerConfig(),
		Metrics:        &MetricsConfig{Enabled: true, Namespace: DefaultMetricsNamespace},
	}
}

// NewDefaultConfigManager 创建默认的配置管理器
func NewDefaultConfigManager(owner Principal) *ConfigManager {
	cm := NewConfigManager()
	cm.setDefaults()
	cm.config = NewDefaultConfig(owner)
	return cm
}
