package lottery

import (
	"slices"
)

// Numbers is one ticket's (or one draw's) set of picked numbers
type Numbers [NumbersPerTicket]uint16

// Sorted returns the numbers in ascending order
func (n Numbers) Sorted() Numbers {
	out := n
	slices.Sort(out[:])
	return out
}

// Contains reports whether v is one of the numbers
func (n Numbers) Contains(v uint16) bool {
	return slices.Contains(n[:], v)
}

// Ticket represents one purchased ticket
type Ticket struct {
	ID           uint64    `json:"id"`
	Owner        Principal `json:"owner"`
	Numbers      Numbers   `json:"numbers"` // sorted, unique
	DrawID       uint64    `json:"draw_id"`
	Claimed      bool      `json:"claimed"`
	PurchaseTime uint64    `json:"purchase_time"`
	PurchaseSeq  uint64    `json:"purchase_seq"`
}

// Draw is one cycle of ticket sales settled by a single winning-number set
type Draw struct {
	ID               uint64            `json:"id"`
	WinningNumbers   *Numbers          `json:"winning_numbers,omitempty"` // set iff Executed
	ExecutedAtTime   uint64            `json:"executed_at_time"`
	ExecutedAtSeq    uint64            `json:"executed_at_seq"`
	TotalPrizePool   Amount            `json:"total_prize_pool"`
	JackpotAmount    Amount            `json:"jackpot_amount"` // the full-match tier share
	TotalTickets     uint64            `json:"total_tickets"`
	Executed         bool              `json:"executed"`
	Executor         Principal         `json:"executor,omitempty"`
	ExecutorReward   Amount            `json:"executor_reward"`
	RolledOver       Amount            `json:"rolled_over"`
	Forced           bool              `json:"forced,omitempty"`
	TierWinnerCounts [TierCount]uint64 `json:"tier_winner_counts"`
	TierPrizeAmounts [TierCount]Amount `json:"tier_prize_amounts"` // per winner
}

// Validate checks the draw's internal invariants
func (d *Draw) Validate() error {
	if d.Executed != (d.WinningNumbers != nil) {
		return newInvariantError("draw %d: executed=%t but winning numbers set=%t", d.ID, d.Executed, d.WinningNumbers != nil)
	}

	var winners uint64
	for _, c := range d.TierWinnerCounts {
		winners += c
	}
	if winners > d.TotalTickets {
		return newInvariantError("draw %d: %d winners recorded for %d tickets", d.ID, winners, d.TotalTickets)
	}

	if d.WinningNumbers != nil {
		seen := make(map[uint16]struct{}, NumbersPerTicket)
		for _, v := range d.WinningNumbers {
			if _, dup := seen[v]; dup {
				return newInvariantError("draw %d: duplicate winning number %d", d.ID, v)
			}
			seen[v] = struct{}{}
		}
	}
	return nil
}

// PrizeFor returns the settled per-winner amount for a ticket with the given match count
func (d *Draw) PrizeFor(matches int) Amount {
	tier, ok := TierForMatches(matches)
	if !ok || !d.Executed {
		return 0
	}
	return d.TierPrizeAmounts[tier]
}

func (d *Draw) clone() *Draw {
	c := *d
	if d.WinningNumbers != nil {
		w := *d.WinningNumbers
		c.WinningNumbers = &w
	}
	return &c
}

// PlayerStats aggregates a player's activity
type PlayerStats struct {
	TotalTickets  uint64   `json:"total_tickets"`
	TotalSpent    Amount   `json:"total_spent"`
	TotalWinnings Amount   `json:"total_winnings"`
	WinCount      uint64   `json:"win_count"`
	TicketIDs     []uint64 `json:"ticket_ids"` // ascending, each id once
}

func (p *PlayerStats) clone() *PlayerStats {
	c := *p
	c.TicketIDs = slices.Clone(p.TicketIDs)
	return &c
}

// EngineState is the process-wide engine metadata
type EngineState struct {
	CurrentDrawID           uint64  `json:"current_draw_id"`
	Paused                  bool    `json:"paused"`
	TestingOverrideInterval *uint64 `json:"testing_override_interval,omitempty"`
	NextTicketID            uint64  `json:"next_ticket_id"`
	UniquePlayers           uint64  `json:"unique_players"`
	TotalTicketsSold        uint64  `json:"total_tickets_sold"`
	DrawsExecuted           uint64  `json:"draws_executed"`
}

func (s EngineState) clone() EngineState {
	c := s
	if s.TestingOverrideInterval != nil {
		v := *s.TestingOverrideInterval
		c.TestingOverrideInterval = &v
	}
	return c
}

// PlayerRecord pairs a player with their stats for persistence
type PlayerRecord struct {
	Player Principal   `json:"player"`
	Stats  PlayerStats `json:"stats"`
}

// Snapshot is the persisted form of engine state. A change set is a Snapshot
// holding only the records an operation touched plus every singleton.
type Snapshot struct {
	Meta      EngineState    `json:"meta"`
	Scheduler SchedulerState `json:"scheduler"`
	Treasury  Treasury       `json:"treasury"`
	Guard     GuardState     `json:"guard"`
	Draws     []Draw         `json:"draws,omitempty"`
	Tickets   []Ticket       `json:"tickets,omitempty"`
	Players   []PlayerRecord `json:"players,omitempty"`
}
