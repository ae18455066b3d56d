package lottery

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PerformanceMetrics 性能指标快照
type PerformanceMetrics struct {
	// 操作统计
	TotalOperations      int64 `json:"total_operations"`
	SuccessfulOperations int64 `json:"successful_operations"`
	FailedOperations     int64 `json:"failed_operations"`
	TotalOperationTime   int64 `json:"total_operation_time"` // 纳秒

	// 锁操作统计
	LockAcquisitions    int64 `json:"lock_acquisitions"`
	LockAcquisitionTime int64 `json:"lock_acquisition_time"` // 纳秒
	LockReleases        int64 `json:"lock_releases"`
	LockFailures        int64 `json:"lock_failures"`

	// 存储统计
	StoreErrors int64 `json:"store_errors"`

	StartTime      int64 `json:"start_time"`
	LastUpdateTime int64 `json:"last_update_time"`
}

// GetSuccessRate 获取成功率
func (pm *PerformanceMetrics) GetSuccessRate() float64 {
	if pm.TotalOperations == 0 {
		return 0.0
	}
	return float64(pm.SuccessfulOperations) / float64(pm.TotalOperations) * 100.0
}

// GetAverageLockTime 获取平均锁获取时间
func (pm *PerformanceMetrics) GetAverageLockTime() time.Duration {
	if pm.LockAcquisitions == 0 {
		return 0
	}
	return time.Duration(pm.LockAcquisitionTime / pm.LockAcquisitions)
}

// GetAverageOperationTime 获取平均操作耗时
func (pm *PerformanceMetrics) GetAverageOperationTime() time.Duration {
	if pm.TotalOperations == 0 {
		return 0
	}
	return time.Duration(pm.TotalOperationTime / pm.TotalOperations)
}

// ================================================================================

// PerformanceMonitor 性能监控器, 同时导出 Prometheus 指标
type PerformanceMonitor struct {
	registry *prometheus.Registry

	operations     *prometheus.CounterVec
	operationTime  *prometheus.HistogramVec
	lockAttempts   *prometheus.CounterVec
	storeErrors    prometheus.Counter
	ticketsSold    prometheus.Counter
	prizesPaid     prometheus.Counter
	guardTrips     prometheus.Counter
	jackpot        prometheus.Gauge
	feeBalance     prometheus.Gauge
	reservedPrizes prometheus.Gauge
	paused         prometheus.Gauge
	currentDraw    prometheus.Gauge

	totalOps       int64
	successfulOps  int64
	failedOps      int64
	totalOpTime    int64
	lockAcq        int64
	lockAcqTime    int64
	lockReleases   int64
	lockFailures   int64
	storeErrCount  int64
	startTime      int64
	lastUpdateTime int64

	mu      sync.RWMutex
	enabled bool
}

// NewPerformanceMonitor 创建新的性能监控器, 指标注册到独立的 registry
func NewPerformanceMonitor(namespace string) *PerformanceMonitor {
	if namespace == "" {
		namespace = DefaultMetricsNamespace
	}

	pm := &PerformanceMonitor{
		registry: prometheus.NewRegistry(),
		enabled:  true,
	}

	pm.operations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "operations_total",
			Help:      "Engine entry point invocations by operation and result code",
		},
		[]string{"operation", "result"},
	)
	pm.operationTime = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "operation_duration_seconds",
			Help:      "Time spent inside engine entry points",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14), // 100us to ~1.6s
		},
		[]string{"operation"},
	)
	pm.lockAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lock",
			Name:      "acquisitions_total",
			Help:      "Distributed lock acquisition attempts by result",
		},
		[]string{"result"},
	)
	pm.storeErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "errors_total",
		Help:      "Failed state store commits and loads",
	})
	pm.ticketsSold = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tickets_sold_total",
		Help:      "Tickets sold",
	})
	pm.prizesPaid = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "prizes_paid_base_units_total",
		Help:      "Prize funds transferred to winners in base units",
	})
	pm.guardTrips = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "guard",
		Name:      "trips_total",
		Help:      "Emergency guard trips",
	})
	pm.jackpot = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "treasury",
		Name:      "jackpot_base_units",
		Help:      "Accumulated jackpot",
	})
	pm.feeBalance = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "treasury",
		Name:      "protocol_fee_base_units",
		Help:      "Protocol fee balance",
	})
	pm.reservedPrizes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "treasury",
		Name:      "reserved_prizes_base_units",
		Help:      "Settled prizes not claimed yet",
	})
	pm.paused = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "paused",
		Help:      "1 while the engine is paused",
	})
	pm.currentDraw = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "current_draw_id",
		Help:      "Id of the draw currently selling tickets",
	})

	pm.registry.MustRegister(
		pm.operations, pm.operationTime, pm.lockAttempts, pm.storeErrors,
		pm.ticketsSold, pm.prizesPaid, pm.guardTrips,
		pm.jackpot, pm.feeBalance, pm.reservedPrizes, pm.paused, pm.currentDraw,
	)

	pm.ResetMetrics()
	return pm
}

// Registry returns the registry holding the engine metrics
func (pm *PerformanceMonitor) Registry() *prometheus.Registry { return pm.registry }

// Enable 启用性能监控
func (pm *PerformanceMonitor) Enable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.enabled = true
}

// Disable 禁用性能监控
func (pm *PerformanceMonitor) Disable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.enabled = false
}

// IsEnabled 检查是否启用了性能监控
func (pm *PerformanceMonitor) IsEnabled() bool {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	return pm.enabled
}

// RecordOperation 记录一次引擎操作
func (pm *PerformanceMonitor) RecordOperation(operation string, err error, duration time.Duration) {
	if !pm.IsEnabled() {
		return
	}

	atomic.AddInt64(&pm.totalOps, 1)
	atomic.AddInt64(&pm.totalOpTime, int64(duration))
	if err == nil {
		atomic.AddInt64(&pm.successfulOps, 1)
	} else {
		atomic.AddInt64(&pm.failedOps, 1)
	}

	pm.operations.WithLabelValues(operation, resultLabel(err)).Inc()
	pm.operationTime.WithLabelValues(operation).Observe(duration.Seconds())
	atomic.StoreInt64(&pm.lastUpdateTime, time.Now().UnixNano())
}

// RecordLockAcquisition 记录锁获取操作
func (pm *PerformanceMonitor) RecordLockAcquisition(success bool, duration time.Duration) {
	if !pm.IsEnabled() {
		return
	}

	if success {
		atomic.AddInt64(&pm.lockAcq, 1)
		atomic.AddInt64(&pm.lockAcqTime, int64(duration))
		pm.lockAttempts.WithLabelValues("acquired").Inc()
	} else {
		atomic.AddInt64(&pm.lockFailures, 1)
		pm.lockAttempts.WithLabelValues("failed").Inc()
	}
	atomic.StoreInt64(&pm.lastUpdateTime, time.Now().UnixNano())
}

// RecordLockRelease 记录锁释放操作
func (pm *PerformanceMonitor) RecordLockRelease() {
	if !pm.IsEnabled() {
		return
	}

	atomic.AddInt64(&pm.lockReleases, 1)
	atomic.StoreInt64(&pm.lastUpdateTime, time.Now().UnixNano())
}

// RecordStoreError 记录存储错误
func (pm *PerformanceMonitor) RecordStoreError() {
	if !pm.IsEnabled() {
		return
	}

	atomic.AddInt64(&pm.storeErrCount, 1)
	pm.storeErrors.Inc()
	atomic.StoreInt64(&pm.lastUpdateTime, time.Now().UnixNano())
}

// RecordTicketsSold 记录售出的彩票数量
func (pm *PerformanceMonitor) RecordTicketsSold(n int) {
	if !pm.IsEnabled() {
		return
	}
	pm.ticketsSold.Add(float64(n))
}

// RecordPrizesPaid 记录派奖金额
func (pm *PerformanceMonitor) RecordPrizesPaid(amount Amount) {
	if !pm.IsEnabled() {
		return
	}
	pm.prizesPaid.Add(float64(amount))
}

// RecordGuardTrip 记录熔断触发
func (pm *PerformanceMonitor) RecordGuardTrip() {
	if !pm.IsEnabled() {
		return
	}
	pm.guardTrips.Inc()
}

// ObserveState 同步资金与引擎状态的 gauge
func (pm *PerformanceMonitor) ObserveState(t Treasury, paused bool, currentDrawID uint64) {
	if !pm.IsEnabled() {
		return
	}

	pm.jackpot.Set(float64(t.AccumulatedJackpot))
	pm.feeBalance.Set(float64(t.ProtocolFeeBalance))
	pm.reservedPrizes.Set(float64(t.ReservedPrizes))
	pm.currentDraw.Set(float64(currentDrawID))
	if paused {
		pm.paused.Set(1)
	} else {
		pm.paused.Set(0)
	}
}

// GetMetrics 获取性能指标的副本
func (pm *PerformanceMonitor) GetMetrics() PerformanceMetrics {
	return PerformanceMetrics{
		TotalOperations:      atomic.LoadInt64(&pm.totalOps),
		SuccessfulOperations: atomic.LoadInt64(&pm.successfulOps),
		FailedOperations:     atomic.LoadInt64(&pm.failedOps),
		TotalOperationTime:   atomic.LoadInt64(&pm.totalOpTime),
		LockAcquisitions:     atomic.LoadInt64(&pm.lockAcq),
		LockAcquisitionTime:  atomic.LoadInt64(&pm.lockAcqTime),
		LockReleases:         atomic.LoadInt64(&pm.lockReleases),
		LockFailures:         atomic.LoadInt64(&pm.lockFailures),
		StoreErrors:          atomic.LoadInt64(&pm.storeErrCount),
		StartTime:            atomic.LoadInt64(&pm.startTime),
		LastUpdateTime:       atomic.LoadInt64(&pm.lastUpdateTime),
	}
}

// ResetMetrics 重置快照计数器, Prometheus 计数器保持单调
func (pm *PerformanceMonitor) ResetMetrics() {
	atomic.StoreInt64(&pm.totalOps, 0)
	atomic.StoreInt64(&pm.successfulOps, 0)
	atomic.StoreInt64(&pm.failedOps, 0)
	atomic.StoreInt64(&pm.totalOpTime, 0)
	atomic.StoreInt64(&pm.lockAcq, 0)
	atomic.StoreInt64(&pm.lockAcqTime, 0)
	atomic.StoreInt64(&pm.lockReleases, 0)
	atomic.StoreInt64(&pm.lockFailures, 0)
	atomic.StoreInt64(&pm.storeErrCount, 0)
	atomic.StoreInt64(&pm.startTime, time.Now().UnixNano())
	atomic.StoreInt64(&pm.lastUpdateTime, time.Now().UnixNano())
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	var le *LotteryError
	if errors.As(err, &le) {
		return string(le.Code)
	}
	return "error"
}
