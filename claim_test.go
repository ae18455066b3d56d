package lottery

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// settledEngine returns an engine whose first draw was forced to [1,2,3,4,5].
// alice owns ticket 1 (5 matches), 2 (3 matches) and 3 (no prize), bob owns ticket 4 (4 matches).
func settledEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()

	e, _ := newTestEngine(t, testRules(true), opts...)
	buy(t, e, "alice",
		[]uint16{1, 2, 3, 4, 5},
		[]uint16{1, 2, 3, 40, 41},
		[]uint16{30, 31, 32, 33, 34},
	)
	buy(t, e, "bob", []uint16{1, 2, 3, 4, 49})

	winning := Numbers{1, 2, 3, 4, 5}
	_, err := e.ForceExecuteDraw(context.Background(), testOwner, &winning)
	require.NoError(t, err)
	return e
}

func TestClaimPrizes_Validation(t *testing.T) {
	ctx := context.Background()
	e := settledEngine(t)

	tests := []struct {
		name    string
		caller  Principal
		ids     []uint64
		wantErr error
	}{
		{"空批次", "alice", nil, ErrEmptyClaim},
		{"批次过大", "alice", make([]uint64, e.Rules().MaxClaimBatch+1), ErrClaimBatchTooLarge},
		{"票不存在", "alice", []uint64{99}, ErrTicketNotFound},
		{"不是持有人", "alice", []uint64{4}, ErrNotTicketOwner},
		{"全部未中奖", "alice", []uint64{3}, ErrNoPrizesToClaim},
		{"批次内重复", "alice", []uint64{1, 1}, ErrAlreadyClaimed},
		{"任一失败整体失败", "alice", []uint64{1, 4}, ErrNotTicketOwner},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.ClaimPrizes(ctx, tt.caller, tt.ids)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	// 失败的兑奖没有任何副作用
	for _, id := range []uint64{1, 2, 3, 4} {
		v, err := e.Ticket(id)
		require.NoError(t, err)
		assert.False(t, v.Claimed, "ticket %d", id)
	}
	assert.Equal(t, Amount(0), e.Treasury().TotalPrizesPaid)
	requireConserved(t, e)
}

func TestClaimPrizes_DrawNotExecuted(t *testing.T) {
	e := settledEngine(t)
	ids := buy(t, e, "alice", []uint16{1, 2, 3, 4, 5})

	_, err := e.ClaimPrizes(context.Background(), "alice", ids)
	assert.ErrorIs(t, err, ErrDrawNotExecuted)
}

// TestClaimPrizes_MixedBatch 中奖与未中奖混合, 只支付中奖票
func TestClaimPrizes_MixedBatch(t *testing.T) {
	ctx := context.Background()
	payer := &recordingPayer{}
	e := settledEngine(t, WithPayer(payer))

	first, _ := e.Ticket(1)
	second, _ := e.Ticket(2)
	require.Equal(t, 3, second.Matches)

	reservedBefore := e.Treasury().ReservedPrizes
	total, err := e.ClaimPrizes(ctx, "alice", []uint64{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, first.Prize+second.Prize, total)
	assert.Equal(t, total, payer.total("alice"))
	assert.Equal(t, reservedBefore-total, e.Treasury().ReservedPrizes)

	v, _ := e.Ticket(1)
	assert.True(t, v.Claimed)
	v, _ = e.Ticket(3)
	assert.False(t, v.Claimed, "losing ticket stays unclaimed")

	stats, ok := e.PlayerStats("alice")
	require.True(t, ok)
	assert.Equal(t, total, stats.TotalWinnings)
	assert.Equal(t, uint64(2), stats.WinCount)
	assert.Equal(t, []uint64{1, 2, 3}, e.PlayerTickets("alice"))

	// 未中奖票仍然报 NoPrizesToClaim 而不是 AlreadyClaimed
	_, err = e.ClaimPrizes(ctx, "alice", []uint64{3})
	assert.ErrorIs(t, err, ErrNoPrizesToClaim)

	groups, err := e.Winners(1)
	require.NoError(t, err)
	assert.True(t, groups[0].Winners[0].Claimed)
	assert.False(t, groups[1].Winners[0].Claimed)
	requireConserved(t, e)
}

// TestClaimPrizes_ReentrantTransfer 转账回调重入引擎被拒绝, 且回调时已记账
func TestClaimPrizes_ReentrantTransfer(t *testing.T) {
	ctx := context.Background()
	payer := &recordingPayer{}
	e := settledEngine(t, WithPayer(payer))

	var reentryErrs []error
	var claimedDuringTransfer bool
	payer.onTransfer = func(ctx context.Context, to Principal, amount Amount) {
		v, err := e.Ticket(1)
		if err == nil {
			claimedDuringTransfer = v.Claimed
		}

		_, err = e.ClaimPrizes(ctx, to, []uint64{1})
		reentryErrs = append(reentryErrs, err)
		_, err = e.PurchaseTickets(ctx, to, [][]uint16{{1, 2, 3, 4, 5}}, e.Rules().TicketPrice)
		reentryErrs = append(reentryErrs, err)
		_, err = e.ExecuteDraw(ctx, to)
		reentryErrs = append(reentryErrs, err)
	}

	paid, err := e.ClaimPrizes(ctx, "alice", []uint64{1})
	require.NoError(t, err)
	assert.True(t, claimedDuringTransfer)

	require.Len(t, reentryErrs, 3)
	for _, rerr := range reentryErrs {
		assert.ErrorIs(t, rerr, ErrReentrantCall)
	}
	assert.Equal(t, paid, payer.total("alice"))
	assert.Equal(t, paid, e.Treasury().TotalPrizesPaid)
	requireConserved(t, e)
}

// TestClaimPrizes_TransferFailure 转账失败后记账被补偿回滚, 可以再次兑奖
func TestClaimPrizes_TransferFailure(t *testing.T) {
	ctx := context.Background()
	payer := &recordingPayer{}
	e := settledEngine(t, WithPayer(payer))
	before := e.Treasury()

	payer.fail = errors.New("insufficient liquidity")
	_, err := e.ClaimPrizes(ctx, "bob", []uint64{4})
	require.ErrorIs(t, err, ErrTransferFailed)

	v, _ := e.Ticket(4)
	assert.False(t, v.Claimed)
	assert.Equal(t, before.Treasury, e.Treasury().Treasury)
	stats, _ := e.PlayerStats("bob")
	assert.Equal(t, Amount(0), stats.TotalWinnings)
	assert.Equal(t, uint64(0), stats.WinCount)
	requireConserved(t, e)

	payer.fail = nil
	paid, err := e.ClaimPrizes(ctx, "bob", []uint64{4})
	require.NoError(t, err)
	assert.Equal(t, v.Prize, paid)
	assert.Equal(t, paid, payer.total("bob"))
}

// TestExecuteDraw_RewardTransferFailure 奖励转账失败时开奖仍生效, 返回结果并发布事件
func TestExecuteDraw_RewardTransferFailure(t *testing.T) {
	ctx := context.Background()
	payer := &recordingPayer{fail: errors.New("executor account frozen")}
	sink := NewChannelSink(8)
	e, chain := newTestEngine(t, testRules(false), WithPayer(payer), WithEventSink(sink))

	buy(t, e, "alice", []uint16{1, 2, 3, 4, 5})
	chain.Advance(e.Rules().IntervalSeconds(), e.Rules().MinSeqDelta)

	settled, err := e.ExecuteDraw(ctx, "keeper")
	require.ErrorIs(t, err, ErrTransferFailed)
	require.NotNil(t, settled)
	assert.Equal(t, uint64(1), settled.ID)
	assert.True(t, settled.Executed)
	assert.NotNil(t, settled.WinningNumbers)
	assert.Equal(t, Amount(0), settled.ExecutorReward)

	var executed []Event
	for _, ev := range drain(sink) {
		if ev.Type == EventDrawExecuted {
			executed = append(executed, ev)
		}
	}
	require.Len(t, executed, 1)
	assert.Equal(t, uint64(1), executed[0].DrawID)
	assert.Equal(t, Principal("keeper"), executed[0].Actor)

	// 开奖已生效, 奖励退回奖池
	d, err := e.Draw(1)
	require.NoError(t, err)
	assert.True(t, d.Executed)
	assert.Equal(t, Amount(0), d.ExecutorReward)
	assert.Equal(t, uint64(2), e.CurrentDrawID())
	assert.Equal(t, Amount(0), e.Treasury().TotalExecutorRewards)
	assert.Equal(t, d.RolledOver+e.Rules().MinExecutorReward, e.Treasury().AccumulatedJackpot)
	requireConserved(t, e)
}

func TestWithdrawProtocolFees_TransferFailure(t *testing.T) {
	ctx := context.Background()
	payer := &recordingPayer{fail: errors.New("timeout")}
	e, _ := newTestEngine(t, testRules(false), WithPayer(payer))
	buy(t, e, "alice", []uint16{1, 2, 3, 4, 5})
	fee := e.Treasury().ProtocolFeeBalance

	_, err := e.WithdrawProtocolFees(ctx, testOwner)
	require.ErrorIs(t, err, ErrTransferFailed)
	assert.Equal(t, fee, e.Treasury().ProtocolFeeBalance)
	assert.Equal(t, Amount(0), e.Treasury().TotalFeesWithdrawn)
	requireConserved(t, e)
}

// TestClaimPrizes_AtMostOnce 每张票最多支付一次
func TestClaimPrizes_AtMostOnce(t *testing.T) {
	ctx := context.Background()
	payer := &recordingPayer{}
	e := settledEngine(t, WithPayer(payer))

	v, _ := e.Ticket(1)
	for i := 0; i < 5; i++ {
		_, _ = e.ClaimPrizes(ctx, "alice", []uint64{1})
	}
	assert.Equal(t, v.Prize, payer.total("alice"))
	// executor reward plus a single prize transfer
	assert.Equal(t, 2, payer.calls)
}
