package lottery

import "fmt"

// SchedulerState records when the previous draw ran
type SchedulerState struct {
	LastDrawTime uint64 `json:"last_draw_time"`
	LastDrawSeq  uint64 `json:"last_draw_seq"`
}

// Gate is the outcome of evaluating the draw gate
type Gate struct {
	Ready           bool   `json:"ready"`
	TimeRemaining   uint64 `json:"time_remaining"`   // seconds
	BlocksRemaining uint64 `json:"blocks_remaining"` // sequence units
	HasTickets      bool   `json:"has_tickets"`
}

// Scheduler gates draw execution on elapsed time AND elapsed sequence counter.
// Both axes must be satisfied so a single manipulated clock cannot open the gate.
type Scheduler struct {
	interval    uint64
	minSeqDelta uint64
	testingMode bool
}

// NewScheduler creates a scheduler for the given rules
func NewScheduler(rules *GameConfig) *Scheduler {
	return &Scheduler{
		interval:    rules.IntervalSeconds(),
		minSeqDelta: rules.MinSeqDelta,
		testingMode: rules.TestingMode,
	}
}

// Interval returns the draw interval in seconds with the override applied
func (s *Scheduler) Interval(override *uint64) uint64 {
	if s.testingMode && override != nil && *override < s.interval {
		return *override
	}
	return s.interval
}

// MinSeqDelta returns the minimum sequence delta between draws
func (s *Scheduler) MinSeqDelta() uint64 {
	return s.minSeqDelta
}

// CanExecute evaluates the gate at (now, seq) for a draw with ticketsSold tickets
func (s *Scheduler) CanExecute(st SchedulerState, override *uint64, now, seq, ticketsSold uint64) Gate {
	elapsed := saturatingSub(now, st.LastDrawTime)
	blocks := saturatingSub(seq, st.LastDrawSeq)

	g := Gate{
		TimeRemaining:   saturatingSub(s.Interval(override), elapsed),
		BlocksRemaining: saturatingSub(s.minSeqDelta, blocks),
		HasTickets:      ticketsSold > 0,
	}
	g.Ready = g.HasTickets && g.TimeRemaining == 0 && g.BlocksRemaining == 0
	return g
}

// ValidateOverride checks a testing override request and returns the value to store
func (s *Scheduler) ValidateOverride(enabled bool, seconds uint64) (*uint64, error) {
	if !s.testingMode {
		return nil, ErrNotInTestingMode
	}
	if !enabled {
		return nil, nil
	}
	if seconds > s.interval {
		return nil, ErrInvalidParameters.WithDetails(fmt.Sprintf("override %ds exceeds draw interval %ds", seconds, s.interval))
	}
	return &seconds, nil
}

// SchedulerSnapshot is the read view of the draw gate
type SchedulerSnapshot struct {
	DrawID          uint64 `json:"draw_id"`
	CanExecute      bool   `json:"can_execute"`
	TimeRemaining   uint64 `json:"time_remaining"`
	BlocksRemaining uint64 `json:"blocks_remaining"`
	TicketsSold     uint64 `json:"tickets_sold"`
	LastDrawTime    uint64 `json:"last_draw_time"`
	LastDrawSeq     uint64 `json:"last_draw_seq"`
	Interval        uint64 `json:"interval"`
	MinSeqDelta     uint64 `json:"min_seq_delta"`
	OverrideActive  bool   `json:"override_active"`
}
