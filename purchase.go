package lottery

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// PurchaseTickets buys a batch of tickets for the open draw.
//
// The whole batch is validated before anything is written and payment must
// equal len(tickets) * TicketPrice exactly. Ticket ids are assigned in batch
// order. Returns the new ticket ids.
func (e *Engine) PurchaseTickets(ctx context.Context, owner Principal, tickets [][]uint16, payment Amount) (ids []uint64, err error) {
	start := time.Now()
	defer func() { e.record("purchase_tickets", err, start) }()

	e.logger.Debug("PurchaseTickets called: owner=%s count=%d payment=%d", owner, len(tickets), payment)

	var tripped bool
	tx, err := e.mutate(ctx, func(tx *txn) error {
		if e.meta.Paused {
			return ErrEmergencyPaused
		}
		if owner == "" {
			return ErrInvalidParameters.WithDetails("owner is required")
		}

		numbers, err := e.validateBatch(tickets)
		if err != nil {
			return err
		}

		expected, err := e.rules.ExpectedPayment(len(numbers))
		if err != nil {
			return err
		}
		if payment != expected {
			return newWrongPaymentError(expected, payment)
		}

		draw, ok := tx.touchDraw(e.meta.CurrentDrawID)
		if !ok {
			return newInvariantError("open draw %d missing", e.meta.CurrentDrawID)
		}

		now, seq := e.chain.Now(), e.chain.Height()
		ids = make([]uint64, 0, len(numbers))
		for _, n := range numbers {
			t := &Ticket{
				ID:           e.meta.NextTicketID,
				Owner:        owner,
				Numbers:      n,
				DrawID:       draw.ID,
				PurchaseTime: now,
				PurchaseSeq:  seq,
			}
			firstPurchase, err := tx.insertTicket(t, e.rules.TicketPrice)
			if err != nil {
				return err
			}
			if firstPurchase {
				e.meta.UniquePlayers++
			}
			ids = append(ids, t.ID)
			e.meta.NextTicketID++
			e.meta.TotalTicketsSold++
			draw.TotalTickets++
		}

		jackpotBefore := e.treasury.AccumulatedJackpot
		if _, _, err := e.treasury.RecordSale(payment, e.rules.ProtocolFeeBps); err != nil {
			return err
		}

		ev := newEvent(EventTicketsPurchased, owner, draw.ID, payment, e.chain)
		ev.TicketIDs = ids
		tx.emit(ev)

		// the purchase that trips the guard still completes
		if e.guard.CheckAndMaybeTrip(&e.guardState, now, jackpotBefore, e.treasury.AccumulatedJackpot) {
			e.meta.Paused = true
			tripped = true
			tx.emit(newEvent(EventGuardTripped, owner, draw.ID, e.guardState.WindowGrowth, e.chain))
		}
		return nil
	})
	if err != nil {
		e.logger.Error("PurchaseTickets rejected: owner=%s count=%d: %v", owner, len(tickets), err)
		return nil, err
	}

	if e.monitor != nil {
		e.monitor.RecordTicketsSold(len(ids))
		if tripped {
			e.monitor.RecordGuardTrip()
		}
	}
	e.publish(tx.events)

	if tripped {
		e.logger.Error("PurchaseTickets: emergency guard tripped, engine paused")
	}
	e.logger.Info("PurchaseTickets successful: owner=%s ids=%v payment=%s", owner, ids, FormatAmount(payment, e.rules.AmountDecimals))
	return ids, nil
}

// validateBatch checks batch size and every ticket before any state is touched
func (e *Engine) validateBatch(tickets [][]uint16) ([]Numbers, error) {
	if len(tickets) == 0 {
		return nil, ErrEmptyBatch
	}
	if len(tickets) > e.rules.MaxBatch {
		return nil, ErrBatchTooLarge.WithDetails(fmt.Sprintf("%d tickets, max %d", len(tickets), e.rules.MaxBatch))
	}

	out := make([]Numbers, len(tickets))
	for i, raw := range tickets {
		n, err := ParseNumbers(e.rules, raw)
		if err != nil {
			var le *LotteryError
			if errors.As(err, &le) {
				return nil, le.WithMetadata(MetaTicketIndex, i)
			}
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}
