package lottery

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTreasury_RecordSale(t *testing.T) {
	tests := []struct {
		name        string
		amount      Amount
		feeBps      uint64
		wantFee     Amount
		wantJackpot Amount
	}{
		{"默认费率", 10_000_000, 500, 500_000, 9_500_000},
		{"零费率", 1_000, 0, 0, 1_000},
		{"全部手续费", 1_000, BasisPoints, 1_000, 0},
		{"向下取整", 199, 500, 9, 190},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var tr Treasury
			fee, jackpot, err := tr.RecordSale(tt.amount, tt.feeBps)
			require.NoError(t, err)
			assert.Equal(t, tt.wantFee, fee)
			assert.Equal(t, tt.wantJackpot, jackpot)
			assert.Equal(t, tt.amount, fee+jackpot)
			assert.Equal(t, tt.amount, tr.TotalInflows)
			require.NoError(t, tr.CheckConservation())
		})
	}
}

func TestTreasury_RecordSaleOverflow(t *testing.T) {
	tr := Treasury{AccumulatedJackpot: math.MaxUint64 - 10, TotalInflows: math.MaxUint64 - 10}
	_, _, err := tr.RecordSale(1_000, 0)
	assert.ErrorIs(t, err, ErrArithmeticOverflow)
	// 失败时不修改任何余额
	assert.Equal(t, Amount(math.MaxUint64-10), tr.AccumulatedJackpot)
}

func TestTreasury_Lifecycle(t *testing.T) {
	var tr Treasury
	_, _, err := tr.RecordSale(10_000, 1_000)
	require.NoError(t, err)
	assert.Equal(t, Amount(9_000), tr.AccumulatedJackpot)

	require.NoError(t, tr.PayExecutorReward(500))
	pool := tr.TakePool()
	assert.Equal(t, Amount(8_500), pool)
	assert.Equal(t, Amount(0), tr.AccumulatedJackpot)

	require.NoError(t, tr.ReservePrizes(6_000))
	require.NoError(t, tr.Rollover(2_500))
	require.NoError(t, tr.CheckConservation())

	require.NoError(t, tr.PayPrize(4_000))
	assert.Equal(t, Amount(2_000), tr.ReservedPrizes)
	assert.Equal(t, Amount(4_000), tr.TotalPrizesPaid)

	fees, err := tr.WithdrawFees()
	require.NoError(t, err)
	assert.Equal(t, Amount(1_000), fees)

	again, err := tr.WithdrawFees()
	require.NoError(t, err)
	assert.Equal(t, Amount(0), again)
	require.NoError(t, tr.CheckConservation())

	held, err := tr.Held()
	require.NoError(t, err)
	out, err := tr.PaidOut()
	require.NoError(t, err)
	assert.Equal(t, tr.TotalInflows, held+out)
}

func TestTreasury_Refunds(t *testing.T) {
	var tr Treasury
	_, _, err := tr.RecordSale(10_000, 1_000)
	require.NoError(t, err)
	require.NoError(t, tr.PayExecutorReward(100))
	require.NoError(t, tr.ReservePrizes(tr.TakePool()))
	snapshot := tr

	require.NoError(t, tr.PayPrize(300))
	require.NoError(t, tr.refundPrize(300))

	require.NoError(t, tr.refundExecutorReward(100))
	assert.Equal(t, Amount(100), tr.AccumulatedJackpot)
	require.NoError(t, tr.PayExecutorReward(100))

	fees, err := tr.WithdrawFees()
	require.NoError(t, err)
	require.NoError(t, tr.refundFees(fees))

	assert.Equal(t, snapshot, tr)
	require.NoError(t, tr.CheckConservation())
}

func TestTreasury_Underflow(t *testing.T) {
	var tr Treasury
	assert.ErrorIs(t, tr.PayPrize(1), ErrArithmeticUnderflow)
	assert.ErrorIs(t, tr.PayExecutorReward(1), ErrArithmeticUnderflow)
	assert.ErrorIs(t, tr.refundFees(1), ErrArithmeticUnderflow)
}

func TestTreasury_CheckConservation(t *testing.T) {
	tr := Treasury{AccumulatedJackpot: 10, TotalInflows: 11}
	err := tr.CheckConservation()
	require.ErrorIs(t, err, ErrInvariantViolation)

	var le *LotteryError
	require.ErrorAs(t, err, &le)
	assert.True(t, le.IsFatal())
	assert.Contains(t, tr.String(), "jackpot=10")
}
