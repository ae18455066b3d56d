package lottery

import (
	"context"
	"fmt"
	"time"
)

// ClaimPrizes pays the caller the settled prizes of the given tickets in one transfer.
//
// Any failing id aborts the whole call. Tickets that won nothing are skipped;
// ErrNoPrizesToClaim is returned only when every ticket was skipped. Claims
// stay available while the engine is paused.
func (e *Engine) ClaimPrizes(ctx context.Context, caller Principal, ticketIDs []uint64) (total Amount, err error) {
	start := time.Now()
	defer func() { e.record("claim_prizes", err, start) }()

	e.logger.Debug("ClaimPrizes called: caller=%s ids=%v", caller, ticketIDs)

	type claimed struct {
		id    uint64
		prize Amount
	}
	var paid []claimed

	tx, err := e.mutate(ctx, func(tx *txn) error {
		if len(ticketIDs) == 0 {
			return ErrEmptyClaim
		}
		if len(ticketIDs) > e.rules.MaxClaimBatch {
			return ErrClaimBatchTooLarge.WithDetails(fmt.Sprintf("%d tickets, max %d", len(ticketIDs), e.rules.MaxClaimBatch))
		}

		for _, id := range ticketIDs {
			t, ok := e.tickets.Get(id)
			if !ok {
				return ErrTicketNotFound.WithMetadata(MetaTicketID, id)
			}
			if t.Owner != caller {
				return ErrNotTicketOwner.WithMetadata(MetaTicketID, id)
			}
			draw, ok := e.draws[t.DrawID]
			if !ok || !draw.Executed {
				return ErrDrawNotExecuted.WithMetadata(MetaTicketID, id).WithMetadata(MetaDrawID, t.DrawID)
			}
			if t.Claimed {
				return ErrAlreadyClaimed.WithMetadata(MetaTicketID, id)
			}

			prize := draw.PrizeFor(MatchCount(t.Numbers, *draw.WinningNumbers))
			if prize == 0 {
				continue
			}

			// 先记账, 再转账
			live, _ := tx.touchTicket(id)
			live.Claimed = true

			sum, err := addAmount(total, prize)
			if err != nil {
				return err
			}
			total = sum
			paid = append(paid, claimed{id: id, prize: prize})
		}

		if total == 0 {
			return ErrNoPrizesToClaim
		}

		tx.touchPlayer(caller)
		stats, ok := e.tickets.Player(caller)
		if !ok {
			return newInvariantError("ticket owner %s has no stats", caller)
		}
		winnings, err := addAmount(stats.TotalWinnings, total)
		if err != nil {
			return err
		}
		stats.TotalWinnings = winnings
		stats.WinCount += uint64(len(paid))

		if err := e.treasury.PayPrize(total); err != nil {
			return err
		}

		ev := newEvent(EventPrizesClaimed, caller, 0, total, e.chain)
		for _, c := range paid {
			ev.TicketIDs = append(ev.TicketIDs, c.id)
		}
		tx.emit(ev)
		return nil
	})
	if err != nil {
		e.logger.Error("ClaimPrizes rejected: caller=%s ids=%v: %v", caller, ticketIDs, err)
		return 0, err
	}

	err = e.payout(ctx, caller, total, func(tx *txn) error {
		for _, c := range paid {
			t, ok := tx.touchTicket(c.id)
			if !ok {
				return newInvariantError("claimed ticket %d missing", c.id)
			}
			t.Claimed = false
		}
		tx.touchPlayer(caller)
		if stats, ok := e.tickets.Player(caller); ok {
			stats.TotalWinnings = saturatingSub(stats.TotalWinnings, total)
			stats.WinCount = saturatingSub(stats.WinCount, uint64(len(paid)))
		}
		return e.treasury.refundPrize(total)
	})
	if err != nil {
		return 0, err
	}

	if e.monitor != nil {
		e.monitor.RecordPrizesPaid(total)
	}
	e.publish(tx.events)
	e.logger.Info("ClaimPrizes successful: caller=%s winning_tickets=%d total=%s", caller, len(paid), FormatAmount(total, e.rules.AmountDecimals))
	return total, nil
}
