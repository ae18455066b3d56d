package lottery

import (
	"time"

	"github.com/google/uuid"
)

// EventType names an engine event
type EventType string

const (
	EventTicketsPurchased EventType = "tickets_purchased"
	EventDrawExecuted     EventType = "draw_executed"
	EventPrizesClaimed    EventType = "prizes_claimed"
	EventFeesWithdrawn    EventType = "fees_withdrawn"
	EventPaused           EventType = "paused"
	EventUnpaused         EventType = "unpaused"
	EventGuardTripped     EventType = "guard_tripped"
	EventOverrideChanged  EventType = "testing_override_changed"
)

// Event is emitted after an operation commits
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Actor     Principal `json:"actor,omitempty"`
	DrawID    uint64    `json:"draw_id"`
	TicketIDs []uint64  `json:"ticket_ids,omitempty"`
	Amount    Amount    `json:"amount"`
	ChainTime uint64    `json:"chain_time"`
	ChainSeq  uint64    `json:"chain_seq"`
	EmittedAt time.Time `json:"emitted_at"`
}

func newEvent(typ EventType, actor Principal, drawID uint64, amount Amount, chain Chain) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      typ,
		Actor:     actor,
		DrawID:    drawID,
		Amount:    amount,
		ChainTime: chain.Now(),
		ChainSeq:  chain.Height(),
		EmittedAt: time.Now(),
	}
}

// ChannelSink delivers events to a buffered channel, dropping them when the buffer is full
type ChannelSink struct {
	ch chan Event
}

// NewChannelSink creates a sink with the given buffer size
func NewChannelSink(size int) *ChannelSink {
	return &ChannelSink{ch: make(chan Event, size)}
}

// Publish implements EventSink
func (s *ChannelSink) Publish(event Event) {
	select {
	case s.ch <- event:
	default:
	}
}

// Events returns the receiving side of the sink
func (s *ChannelSink) Events() <-chan Event {
	return s.ch
}

// LogSink writes every event to a Logger
type LogSink struct {
	logger Logger
}

// NewLogSink creates a sink logging through logger
func NewLogSink(logger Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Publish implements EventSink
func (s *LogSink) Publish(event Event) {
	s.logger.Info("event: id=%s type=%s actor=%s draw_id=%d amount=%d tickets=%d",
		event.ID, event.Type, event.Actor, event.DrawID, event.Amount, len(event.TicketIDs))
}

type multiSink []EventSink

func (m multiSink) Publish(event Event) {
	for _, s := range m {
		s.Publish(event)
	}
}
