package lottery

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(sink *ChannelSink) []Event {
	var out []Event
	for {
		select {
		case ev := <-sink.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestChannelSink(t *testing.T) {
	sink := NewChannelSink(2)
	chain := NewManualChain(10, 20)

	sink.Publish(newEvent(EventPaused, "a", 1, 0, chain))
	sink.Publish(newEvent(EventUnpaused, "a", 1, 0, chain))
	// 缓冲区满时丢弃, 不阻塞
	sink.Publish(newEvent(EventPaused, "a", 1, 0, chain))

	events := drain(sink)
	require.Len(t, events, 2)
	assert.Equal(t, EventPaused, events[0].Type)
	assert.Equal(t, EventUnpaused, events[1].Type)
	assert.Equal(t, uint64(10), events[0].ChainTime)
	assert.Equal(t, uint64(20), events[0].ChainSeq)
	assert.NotEqual(t, events[0].ID, events[1].ID)
}

func TestEngine_Events(t *testing.T) {
	ctx := context.Background()
	sink := NewChannelSink(32)
	var buf bytes.Buffer
	e, _ := newTestEngine(t, testRules(true),
		WithEventSink(sink),
		WithEventSink(NewLogSink(NewLoggerWithWriter(&buf, zerolog.InfoLevel))),
		WithPayer(&recordingPayer{}),
	)

	buy(t, e, "alice", []uint16{1, 2, 3, 4, 5})
	winning := Numbers{1, 2, 3, 4, 5}
	_, err := e.ForceExecuteDraw(ctx, testOwner, &winning)
	require.NoError(t, err)
	paid, err := e.ClaimPrizes(ctx, "alice", []uint64{1})
	require.NoError(t, err)
	_, err = e.WithdrawProtocolFees(ctx, testOwner)
	require.NoError(t, err)
	require.NoError(t, e.Pause(ctx, testOwner))
	require.NoError(t, e.Pause(ctx, testOwner)) // 重复暂停没有事件
	require.NoError(t, e.Unpause(ctx, testOwner))
	require.NoError(t, e.SetTestingOverride(ctx, testOwner, true, 60))

	events := drain(sink)
	var types []EventType
	for _, ev := range events {
		types = append(types, ev.Type)
	}
	assert.Equal(t, []EventType{
		EventTicketsPurchased,
		EventDrawExecuted,
		EventPrizesClaimed,
		EventFeesWithdrawn,
		EventPaused,
		EventUnpaused,
		EventOverrideChanged,
	}, types)

	assert.Equal(t, []uint64{1}, events[2].TicketIDs)
	assert.Equal(t, paid, events[2].Amount)
	assert.Equal(t, Amount(60), events[6].Amount)

	// 失败的操作不产生事件
	_, err = e.ClaimPrizes(ctx, "bob", []uint64{1})
	require.Error(t, err)
	assert.Empty(t, drain(sink))

	assert.Contains(t, buf.String(), string(EventDrawExecuted))
}
