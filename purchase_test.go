package lottery

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPurchaseTickets(t *testing.T) {
	ctx := context.Background()
	sink := NewChannelSink(8)
	e, chain := newTestEngine(t, testRules(false), WithEventSink(sink))
	price := e.Rules().TicketPrice

	ids, err := e.PurchaseTickets(ctx, "alice", [][]uint16{{5, 4, 3, 2, 1}, {49, 10, 20, 30, 40}}, 2*price)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2}, ids)

	// 号码以升序保存
	v, err := e.Ticket(2)
	require.NoError(t, err)
	assert.Equal(t, Numbers{10, 20, 30, 40, 49}, v.Numbers)
	assert.Equal(t, uint64(1), v.DrawID)
	assert.Equal(t, chain.Now(), v.PurchaseTime)
	assert.Equal(t, chain.Height(), v.PurchaseSeq)
	assert.False(t, v.DrawExecuted)
	assert.Equal(t, -1, v.Tier)

	chain.Advance(10, 1)
	more := buy(t, e, "alice", []uint16{7, 8, 9, 10, 11})
	assert.Equal(t, []uint64{3}, more)
	buy(t, e, "bob", []uint16{7, 8, 9, 10, 11})

	stats, ok := e.PlayerStats("alice")
	require.True(t, ok)
	assert.Equal(t, uint64(3), stats.TotalTickets)
	assert.Equal(t, 3*price, stats.TotalSpent)
	assert.Equal(t, []uint64{1, 2, 3}, stats.TicketIDs)

	global := e.Stats()
	assert.Equal(t, uint64(2), global.UniquePlayers)
	assert.Equal(t, uint64(4), global.TotalTicketsSold)

	d, err := e.Draw(1)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), d.TotalTickets)

	tr := e.Treasury()
	fee := price * e.Rules().ProtocolFeeBps / BasisPoints
	assert.Equal(t, 4*price, tr.TotalInflows)
	assert.Equal(t, 4*fee, tr.ProtocolFeeBalance)
	assert.Equal(t, 4*(price-fee), tr.AccumulatedJackpot)
	requireConserved(t, e)

	ev := <-sink.Events()
	assert.Equal(t, EventTicketsPurchased, ev.Type)
	assert.Equal(t, Principal("alice"), ev.Actor)
	assert.Equal(t, []uint64{1, 2}, ev.TicketIDs)
	assert.Equal(t, 2*price, ev.Amount)
	assert.NotEmpty(t, ev.ID)
}

func TestPurchaseTickets_Rejections(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t, testRules(false))
	price := e.Rules().TicketPrice
	valid := []uint16{1, 2, 3, 4, 5}

	tooMany := make([][]uint16, e.Rules().MaxBatch+1)
	for i := range tooMany {
		tooMany[i] = valid
	}

	tests := []struct {
		name       string
		owner      Principal
		tickets    [][]uint16
		payment    Amount
		wantErr    error
		wantReason InvalidTicketReason
	}{
		{name: "空批次", owner: "alice", tickets: nil, payment: 0, wantErr: ErrEmptyBatch},
		{name: "批次过大", owner: "alice", tickets: tooMany, payment: price * Amount(len(tooMany)), wantErr: ErrBatchTooLarge},
		{name: "缺少购买人", owner: "", tickets: [][]uint16{valid}, payment: price, wantErr: ErrInvalidParameters},
		{name: "号码个数不对", owner: "alice", tickets: [][]uint16{{1, 2, 3, 4}}, payment: price, wantErr: ErrInvalidTicket, wantReason: ReasonWrongLength},
		{name: "号码过小", owner: "alice", tickets: [][]uint16{{0, 2, 3, 4, 5}}, payment: price, wantErr: ErrInvalidTicket, wantReason: ReasonOutOfRange},
		{name: "号码过大", owner: "alice", tickets: [][]uint16{{1, 2, 3, 4, 50}}, payment: price, wantErr: ErrInvalidTicket, wantReason: ReasonOutOfRange},
		{name: "号码重复", owner: "alice", tickets: [][]uint16{{1, 1, 2, 3, 4}}, payment: price, wantErr: ErrInvalidTicket, wantReason: ReasonDuplicate},
		{name: "少付", owner: "alice", tickets: [][]uint16{valid}, payment: price - 1, wantErr: ErrWrongPaymentAmount},
		{name: "多付", owner: "alice", tickets: [][]uint16{valid}, payment: price + 1, wantErr: ErrWrongPaymentAmount},
		{name: "批次中一张非法", owner: "alice", tickets: [][]uint16{valid, {1, 2, 3, 4, 4}}, payment: 2 * price, wantErr: ErrInvalidTicket, wantReason: ReasonDuplicate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.PurchaseTickets(ctx, tt.owner, tt.tickets, tt.payment)
			require.ErrorIs(t, err, tt.wantErr)
			if tt.wantReason != "" {
				reason, ok := InvalidTicketReasonOf(err)
				require.True(t, ok)
				assert.Equal(t, tt.wantReason, reason)
			}
		})
	}

	// 没有任何部分购买
	assert.Equal(t, uint64(0), e.Stats().TotalTicketsSold)
	assert.Equal(t, Treasury{}, e.Treasury().Treasury)
	assert.Nil(t, e.PlayerTickets("alice"))
}

func TestPurchaseTickets_ErrorMetadata(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t, testRules(false))
	price := e.Rules().TicketPrice

	_, err := e.PurchaseTickets(ctx, "alice", [][]uint16{{1, 2, 3, 4, 5}}, price+7)
	var le *LotteryError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, price, le.Metadata[MetaExpected])
	assert.Equal(t, price+7, le.Metadata[MetaActual])

	_, err = e.PurchaseTickets(ctx, "alice", [][]uint16{{1, 2, 3, 4, 5}, {6, 7, 8, 9, 10}, {1, 2, 3, 4, 99}}, 3*price)
	require.True(t, errors.As(err, &le))
	assert.Equal(t, 2, le.Metadata[MetaTicketIndex])
	assert.Equal(t, ReasonOutOfRange, le.Metadata[MetaReason])
}

func TestPurchaseTickets_MaxBatch(t *testing.T) {
	e, _ := newTestEngine(t, testRules(false))

	batch := make([][]uint16, e.Rules().MaxBatch)
	for i := range batch {
		pick, err := QuickPick(e.rules)
		require.NoError(t, err)
		batch[i] = pick
	}
	ids := buy(t, e, "whale", batch...)
	assert.Len(t, ids, e.Rules().MaxBatch)
	assert.Equal(t, uint64(e.Rules().MaxBatch), ids[len(ids)-1])
	requireConserved(t, e)
}
