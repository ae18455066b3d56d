package lottery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPerformanceMonitor_Record(t *testing.T) {
	pm := NewPerformanceMonitor("")
	assert.True(t, pm.IsEnabled())

	pm.RecordOperation("purchase_tickets", nil, time.Millisecond)
	pm.RecordOperation("purchase_tickets", ErrWrongPaymentAmount, time.Millisecond)
	pm.RecordOperation("purchase_tickets", errors.New("plain"), time.Millisecond)
	pm.RecordLockAcquisition(true, time.Millisecond)
	pm.RecordLockAcquisition(false, time.Millisecond)
	pm.RecordStoreError()

	assert.Equal(t, 1.0, testutil.ToFloat64(pm.operations.WithLabelValues("purchase_tickets", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.operations.WithLabelValues("purchase_tickets", string(ErrCodeWrongPaymentAmount))))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.operations.WithLabelValues("purchase_tickets", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.lockAttempts.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.storeErrors))

	m := pm.GetMetrics()
	assert.Equal(t, int64(3), m.TotalOperations)
	assert.Equal(t, int64(1), m.SuccessfulOperations)
	assert.Equal(t, int64(2), m.FailedOperations)
	assert.InDelta(t, 100.0/3.0, m.GetSuccessRate(), 1e-9)
	assert.Equal(t, time.Millisecond, m.GetAverageLockTime())

	pm.ResetMetrics()
	assert.Equal(t, int64(0), pm.GetMetrics().TotalOperations)
	// prometheus 计数器不随快照重置
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.storeErrors))
}

func TestPerformanceMonitor_Disabled(t *testing.T) {
	pm := NewPerformanceMonitor("disabled_test")
	pm.Disable()
	assert.False(t, pm.IsEnabled())

	pm.RecordOperation("execute_draw", nil, time.Millisecond)
	pm.RecordTicketsSold(10)
	pm.ObserveState(Treasury{AccumulatedJackpot: 5}, true, 3)

	assert.Equal(t, int64(0), pm.GetMetrics().TotalOperations)
	assert.Equal(t, 0.0, testutil.ToFloat64(pm.ticketsSold))
	assert.Equal(t, 0.0, testutil.ToFloat64(pm.jackpot))

	pm.Enable()
	pm.RecordTicketsSold(10)
	assert.Equal(t, 10.0, testutil.ToFloat64(pm.ticketsSold))
}

func TestPerformanceMonitor_Engine(t *testing.T) {
	ctx := context.Background()
	pm := NewPerformanceMonitor("engine_test")
	e, chain := newTestEngine(t, testRules(false), WithPerformanceMonitor(pm), WithPayer(&recordingPayer{}))

	buy(t, e, "alice", []uint16{1, 2, 3, 4, 5}, []uint16{6, 7, 8, 9, 10})
	_, err := e.PurchaseTickets(ctx, "alice", [][]uint16{{1, 2, 3, 4, 5}}, 1)
	require.Error(t, err)

	tr := e.Treasury()
	assert.Equal(t, 2.0, testutil.ToFloat64(pm.ticketsSold))
	assert.Equal(t, float64(tr.AccumulatedJackpot), testutil.ToFloat64(pm.jackpot))
	assert.Equal(t, float64(tr.ProtocolFeeBalance), testutil.ToFloat64(pm.feeBalance))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.currentDraw))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.operations.WithLabelValues("purchase_tickets", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.operations.WithLabelValues("purchase_tickets", string(ErrCodeWrongPaymentAmount))))

	chain.Advance(e.Rules().IntervalSeconds(), e.Rules().MinSeqDelta)
	_, err = e.ExecuteDraw(ctx, "keeper")
	require.NoError(t, err)
	assert.Equal(t, 2.0, testutil.ToFloat64(pm.currentDraw))
	assert.Equal(t, float64(e.Treasury().ReservedPrizes), testutil.ToFloat64(pm.reservedPrizes))

	require.NoError(t, e.Pause(ctx, testOwner))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.paused))

	count, err := testutil.GatherAndCount(pm.Registry(), "engine_test_engine_operations_total")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, count, 3)
}
