package lottery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ticketsFor(numbers ...Numbers) []*Ticket {
	out := make([]*Ticket, len(numbers))
	for i, n := range numbers {
		out[i] = &Ticket{ID: uint64(i + 1), Owner: "p", Numbers: n}
	}
	return out
}

func TestMatchCountAndTiers(t *testing.T) {
	winning := Numbers{1, 2, 3, 4, 5}
	assert.Equal(t, 5, MatchCount(Numbers{5, 4, 3, 2, 1}, winning))
	assert.Equal(t, 2, MatchCount(Numbers{1, 5, 30, 31, 32}, winning))
	assert.Equal(t, 0, MatchCount(Numbers{10, 11, 12, 13, 14}, winning))

	tests := []struct {
		matches int
		tier    int
		ok      bool
	}{
		{5, 0, true},
		{4, 1, true},
		{3, 2, true},
		{2, 3, true},
		{1, 0, false},
		{0, 0, false},
		{6, 0, false},
	}
	for _, tt := range tests {
		tier, ok := TierForMatches(tt.matches)
		assert.Equal(t, tt.ok, ok, "matches=%d", tt.matches)
		if ok {
			assert.Equal(t, tt.tier, tier)
			assert.Equal(t, tt.matches, MatchesForTier(tier))
		}
	}
}

func TestNewPrizeCalculator(t *testing.T) {
	pc, err := NewPrizeCalculator(DefaultPrizeTiers)
	require.NoError(t, err)
	assert.Equal(t, DefaultPrizeTiers, pc.Shares())

	_, err = NewPrizeCalculator([TierCount]uint64{6000, 3000, 1000, 1})
	assert.ErrorIs(t, err, ErrInvalidGameConfig)
}

func TestPrizeCalculator_Settle(t *testing.T) {
	pc, err := NewPrizeCalculator(DefaultPrizeTiers)
	require.NoError(t, err)
	winning := Numbers{1, 2, 3, 4, 5}

	t.Run("两个全中一个中四", func(t *testing.T) {
		tickets := ticketsFor(
			Numbers{1, 2, 3, 4, 5},
			Numbers{1, 2, 3, 4, 5},
			Numbers{1, 2, 3, 4, 9},
			Numbers{10, 11, 12, 13, 14},
		)
		res, err := pc.Settle(100, winning, tickets)
		require.NoError(t, err)
		require.NoError(t, res.Validate())

		assert.Equal(t, [TierCount]uint64{2, 1, 0, 0}, res.TierWinnerCounts)
		assert.Equal(t, [TierCount]Amount{50, 25, 15, 10}, res.TierShares)
		assert.Equal(t, [TierCount]Amount{25, 25, 0, 0}, res.TierPrizeAmounts)
		assert.Equal(t, Amount(75), res.TotalReserved)
		assert.Equal(t, Amount(25), res.RolledOver)
		require.Len(t, res.Winners, 3)
		assert.Equal(t, uint64(1), res.Winners[0].TicketID)
		assert.Equal(t, Amount(25), res.Winners[2].Prize)
		assert.Equal(t, 4, res.Winners[2].Matches)
	})

	t.Run("舍入余数滚存", func(t *testing.T) {
		tickets := ticketsFor(
			Numbers{1, 2, 3, 4, 5},
			Numbers{1, 2, 3, 4, 5},
			Numbers{1, 2, 3, 4, 9},
		)
		res, err := pc.Settle(101, winning, tickets)
		require.NoError(t, err)
		assert.Equal(t, Amount(75), res.TotalReserved)
		assert.Equal(t, Amount(26), res.RolledOver)
	})

	t.Run("三人平分头奖", func(t *testing.T) {
		tickets := ticketsFor(
			Numbers{1, 2, 3, 4, 5},
			Numbers{1, 2, 3, 4, 5},
			Numbers{1, 2, 3, 4, 5},
		)
		res, err := pc.Settle(100, winning, tickets)
		require.NoError(t, err)
		assert.Equal(t, Amount(16), res.TierPrizeAmounts[0])
		assert.Equal(t, Amount(48), res.TotalReserved)
		assert.Equal(t, Amount(52), res.RolledOver)
	})

	t.Run("无人中奖全部滚存", func(t *testing.T) {
		res, err := pc.Settle(1_000, winning, ticketsFor(Numbers{10, 11, 12, 13, 14}))
		require.NoError(t, err)
		assert.Equal(t, Amount(0), res.TotalReserved)
		assert.Equal(t, Amount(1_000), res.RolledOver)
		assert.Empty(t, res.Winners)
	})

	t.Run("空池", func(t *testing.T) {
		res, err := pc.Settle(0, winning, ticketsFor(Numbers{1, 2, 3, 4, 5}))
		require.NoError(t, err)
		assert.Equal(t, uint64(1), res.TierWinnerCounts[0])
		assert.Equal(t, Amount(0), res.TierPrizeAmounts[0])
		assert.Equal(t, Amount(0), res.RolledOver)
	})
}

func TestExecutorReward(t *testing.T) {
	const (
		bps = DefaultExecutorRewardBps
		lo  = DefaultMinExecutorReward
		hi  = DefaultMaxExecutorReward
	)

	tests := []struct {
		name    string
		jackpot Amount
		want    Amount
	}{
		{"空奖池", 0, 0},
		{"不足最低奖励时全部给出", 500_000, 500_000},
		{"抬到最低奖励", 100_000_000, lo},
		{"按比例", 5_000_000_000, 5_000_000},
		{"封顶", 1_000_000_000_000, hi},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExecutorReward(tt.jackpot, bps, lo, hi)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.LessOrEqual(t, got, tt.jackpot)
		})
	}
}
