package lottery

// Winner is one winning ticket of an executed draw
type Winner struct {
	TicketID uint64    `json:"ticket_id"`
	Owner    Principal `json:"owner"`
	Matches  int       `json:"matches"`
	Tier     int       `json:"tier"`
	Prize    Amount    `json:"prize"`
	Claimed  bool      `json:"claimed"`
}

// SettlementResult is the outcome of splitting a prize pool for one draw
type SettlementResult struct {
	Pool             Amount            `json:"pool"`
	WinningNumbers   Numbers           `json:"winning_numbers"`
	TotalTickets     uint64            `json:"total_tickets"`
	TierShares       [TierCount]Amount `json:"tier_shares"`
	TierWinnerCounts [TierCount]uint64 `json:"tier_winner_counts"`
	TierPrizeAmounts [TierCount]Amount `json:"tier_prize_amounts"`
	TotalReserved    Amount            `json:"total_reserved"` // owed to winners
	RolledOver       Amount            `json:"rolled_over"`    // back to the jackpot
	Winners          []Winner          `json:"winners,omitempty"`
}

// Validate checks that the pool was fully accounted for
func (r *SettlementResult) Validate() error {
	total, err := addAmount(r.TotalReserved, r.RolledOver)
	if err != nil {
		return err
	}
	if total != r.Pool {
		return newInvariantError("settlement reserved=%d rolled=%d does not cover pool=%d", r.TotalReserved, r.RolledOver, r.Pool)
	}

	var winners uint64
	for _, c := range r.TierWinnerCounts {
		winners += c
	}
	if winners > r.TotalTickets || winners != uint64(len(r.Winners)) {
		return newInvariantError("settlement lists %d winners for %d tickets", winners, r.TotalTickets)
	}
	return nil
}

// TierWinners groups the winners of one tier
type TierWinners struct {
	Tier      int      `json:"tier"`
	Matches   int      `json:"matches"`
	PrizeEach Amount   `json:"prize_each"`
	Winners   []Winner `json:"winners"`
}
