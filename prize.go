package lottery

import "fmt"

// DefaultPrizeTiers is the share of the prize pool per tier in basis points.
// Tier 0 pays a full match, tier 3 pays MinPrizeMatches.
var DefaultPrizeTiers = [TierCount]uint64{5000, 2500, 1500, 1000}

// MatchCount returns the size of the intersection of a ticket and the winning numbers
func MatchCount(ticket, winning Numbers) int {
	matches := 0
	for _, v := range ticket {
		if winning.Contains(v) {
			matches++
		}
	}
	return matches
}

// TierForMatches maps a match count to its prize tier.
// ok is false when the match count earns nothing.
func TierForMatches(matches int) (tier int, ok bool) {
	if matches < MinPrizeMatches || matches > NumbersPerTicket {
		return 0, false
	}
	return NumbersPerTicket - matches, true
}

// MatchesForTier is the inverse of TierForMatches
func MatchesForTier(tier int) int {
	return NumbersPerTicket - tier
}

// PrizeCalculator splits a prize pool between tiers and winners
type PrizeCalculator struct {
	shares [TierCount]uint64
}

// NewPrizeCalculator creates a calculator for the given tier shares in bps
func NewPrizeCalculator(shares [TierCount]uint64) (*PrizeCalculator, error) {
	var total uint64
	for _, s := range shares {
		total += s
	}
	if total > BasisPoints {
		return nil, ErrInvalidGameConfig.WithDetails(fmt.Sprintf("tier shares sum to %d bps", total))
	}
	return &PrizeCalculator{shares: shares}, nil
}

// Shares returns the tier table in bps
func (pc *PrizeCalculator) Shares() [TierCount]uint64 {
	return pc.shares
}

// Settle computes the per-tier winner counts and per-winner amounts for a draw.
//
// Each tier's share is floor(pool*bps/10000); a winner receives floor(share/winners).
// Whatever is not owed to a winner (zero-winner shares, division remainders and
// any pool left outside the tier table) is reported as RolledOver.
func (pc *PrizeCalculator) Settle(pool Amount, winning Numbers, tickets []*Ticket) (*SettlementResult, error) {
	res := &SettlementResult{
		Pool:           pool,
		WinningNumbers: winning,
		TotalTickets:   uint64(len(tickets)),
	}

	for _, t := range tickets {
		matches := MatchCount(t.Numbers, winning)
		tier, ok := TierForMatches(matches)
		if !ok {
			continue
		}
		res.TierWinnerCounts[tier]++
		res.Winners = append(res.Winners, Winner{
			TicketID: t.ID,
			Owner:    t.Owner,
			Matches:  matches,
			Tier:     tier,
		})
	}

	var winners uint64
	for _, c := range res.TierWinnerCounts {
		winners += c
	}
	if winners > res.TotalTickets {
		return nil, newInvariantError("%d winners for %d tickets", winners, res.TotalTickets)
	}

	var allocated Amount
	for tier, bps := range pc.shares {
		share, err := bpsOf(pool, bps)
		if err != nil {
			return nil, err
		}
		res.TierShares[tier] = share

		if allocated, err = addAmount(allocated, share); err != nil {
			return nil, err
		}

		count := res.TierWinnerCounts[tier]
		if count == 0 {
			continue
		}

		per := share / count
		owed, err := mulAmount(per, count)
		if err != nil {
			return nil, err
		}
		res.TierPrizeAmounts[tier] = per
		if res.TotalReserved, err = addAmount(res.TotalReserved, owed); err != nil {
			return nil, err
		}
	}
	if allocated > pool {
		return nil, newInvariantError("tier shares %d exceed pool %d", allocated, pool)
	}

	rolled, err := subAmount(pool, res.TotalReserved)
	if err != nil {
		return nil, err
	}
	res.RolledOver = rolled

	for i := range res.Winners {
		res.Winners[i].Prize = res.TierPrizeAmounts[res.Winners[i].Tier]
	}
	return res, nil
}

// ExecutorReward returns clamp(jackpot*bps/10000, min, max), never more than the jackpot itself
func ExecutorReward(jackpot Amount, bps uint64, minReward, maxReward Amount) (Amount, error) {
	raw, err := bpsOf(jackpot, bps)
	if err != nil {
		return 0, err
	}
	return min(clampAmount(raw, minReward, maxReward), jackpot), nil
}
