package lottery

import "fmt"

// Treasury tracks every unit of funds the engine has received.
//
// Conservation: AccumulatedJackpot + ProtocolFeeBalance + ReservedPrizes +
// TotalPrizesPaid + TotalExecutorRewards + TotalFeesWithdrawn == TotalInflows.
// ReservedPrizes holds winnings that were settled but not claimed yet.
type Treasury struct {
	AccumulatedJackpot   Amount `json:"accumulated_jackpot"`
	ProtocolFeeBalance   Amount `json:"protocol_fee_balance"`
	ReservedPrizes       Amount `json:"reserved_prizes"`
	TotalInflows         Amount `json:"total_inflows"`
	TotalPrizesPaid      Amount `json:"total_prizes_paid"`
	TotalExecutorRewards Amount `json:"total_executor_rewards"`
	TotalFeesWithdrawn   Amount `json:"total_fees_withdrawn"`
}

// RecordSale splits a ticket payment into the protocol fee and the jackpot contribution
func (t *Treasury) RecordSale(amount Amount, feeBps uint64) (fee, jackpot Amount, err error) {
	fee, err = bpsOf(amount, feeBps)
	if err != nil {
		return 0, 0, err
	}
	jackpot = amount - fee

	inflows, err := addAmount(t.TotalInflows, amount)
	if err != nil {
		return 0, 0, err
	}
	feeBalance, err := addAmount(t.ProtocolFeeBalance, fee)
	if err != nil {
		return 0, 0, err
	}
	pot, err := addAmount(t.AccumulatedJackpot, jackpot)
	if err != nil {
		return 0, 0, err
	}

	t.TotalInflows = inflows
	t.ProtocolFeeBalance = feeBalance
	t.AccumulatedJackpot = pot
	return fee, jackpot, nil
}

// WithdrawFees zeroes the protocol fee balance and returns what it held
func (t *Treasury) WithdrawFees() (Amount, error) {
	amount := t.ProtocolFeeBalance
	withdrawn, err := addAmount(t.TotalFeesWithdrawn, amount)
	if err != nil {
		return 0, err
	}
	t.ProtocolFeeBalance = 0
	t.TotalFeesWithdrawn = withdrawn
	return amount, nil
}

// Rollover returns an unclaimed tier share to the jackpot
func (t *Treasury) Rollover(amount Amount) error {
	pot, err := addAmount(t.AccumulatedJackpot, amount)
	if err != nil {
		return err
	}
	t.AccumulatedJackpot = pot
	return nil
}

// TakePool removes the whole jackpot for settlement and returns it
func (t *Treasury) TakePool() Amount {
	pool := t.AccumulatedJackpot
	t.AccumulatedJackpot = 0
	return pool
}

// ReservePrizes moves settled winnings into the reserved liability
func (t *Treasury) ReservePrizes(amount Amount) error {
	reserved, err := addAmount(t.ReservedPrizes, amount)
	if err != nil {
		return err
	}
	t.ReservedPrizes = reserved
	return nil
}

// PayPrize releases reserved winnings to a claimant
func (t *Treasury) PayPrize(amount Amount) error {
	reserved, err := subAmount(t.ReservedPrizes, amount)
	if err != nil {
		return err
	}
	paid, err := addAmount(t.TotalPrizesPaid, amount)
	if err != nil {
		return err
	}
	t.ReservedPrizes = reserved
	t.TotalPrizesPaid = paid
	return nil
}

// PayExecutorReward debits the executor reward from the jackpot
func (t *Treasury) PayExecutorReward(amount Amount) error {
	pot, err := subAmount(t.AccumulatedJackpot, amount)
	if err != nil {
		return err
	}
	rewards, err := addAmount(t.TotalExecutorRewards, amount)
	if err != nil {
		return err
	}
	t.AccumulatedJackpot = pot
	t.TotalExecutorRewards = rewards
	return nil
}

// refundPrize reverses PayPrize after a failed transfer
func (t *Treasury) refundPrize(amount Amount) error {
	paid, err := subAmount(t.TotalPrizesPaid, amount)
	if err != nil {
		return err
	}
	reserved, err := addAmount(t.ReservedPrizes, amount)
	if err != nil {
		return err
	}
	t.TotalPrizesPaid = paid
	t.ReservedPrizes = reserved
	return nil
}

// refundExecutorReward returns an untransferred executor reward to the jackpot
func (t *Treasury) refundExecutorReward(amount Amount) error {
	rewards, err := subAmount(t.TotalExecutorRewards, amount)
	if err != nil {
		return err
	}
	pot, err := addAmount(t.AccumulatedJackpot, amount)
	if err != nil {
		return err
	}
	t.TotalExecutorRewards = rewards
	t.AccumulatedJackpot = pot
	return nil
}

// refundFees reverses WithdrawFees after a failed transfer
func (t *Treasury) refundFees(amount Amount) error {
	withdrawn, err := subAmount(t.TotalFeesWithdrawn, amount)
	if err != nil {
		return err
	}
	balance, err := addAmount(t.ProtocolFeeBalance, amount)
	if err != nil {
		return err
	}
	t.TotalFeesWithdrawn = withdrawn
	t.ProtocolFeeBalance = balance
	return nil
}

// Held returns the funds currently held by the engine
func (t *Treasury) Held() (Amount, error) {
	held, err := addAmount(t.AccumulatedJackpot, t.ProtocolFeeBalance)
	if err != nil {
		return 0, err
	}
	return addAmount(held, t.ReservedPrizes)
}

// PaidOut returns the funds that have left the engine
func (t *Treasury) PaidOut() (Amount, error) {
	out, err := addAmount(t.TotalPrizesPaid, t.TotalExecutorRewards)
	if err != nil {
		return 0, err
	}
	return addAmount(out, t.TotalFeesWithdrawn)
}

// CheckConservation verifies that held plus paid out equals everything received
func (t *Treasury) CheckConservation() error {
	held, err := t.Held()
	if err != nil {
		return err
	}
	out, err := t.PaidOut()
	if err != nil {
		return err
	}
	total, err := addAmount(held, out)
	if err != nil {
		return err
	}
	if total != t.TotalInflows {
		return newInvariantError("funds not conserved: held=%d paid_out=%d inflows=%d", held, out, t.TotalInflows)
	}
	return nil
}

func (t *Treasury) String() string {
	return fmt.Sprintf("jackpot=%d fees=%d reserved=%d inflows=%d", t.AccumulatedJackpot, t.ProtocolFeeBalance, t.ReservedPrizes, t.TotalInflows)
}
