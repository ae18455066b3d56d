package lottery

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ExecuteDraw settles the open draw once the gate allows it and opens the next one.
// Anyone may call it; the caller receives the executor reward.
//
// If the reward transfer fails the draw stays executed: the settled draw is
// returned with ExecutorReward 0 together with ErrTransferFailed.
func (e *Engine) ExecuteDraw(ctx context.Context, caller Principal) (*Draw, error) {
	return e.executeDraw(ctx, "execute_draw", caller, 0, false, nil)
}

// ExecuteDrawByID is ExecuteDraw for a specific draw id. A draw that already
// ran fails with ErrAlreadyExecuted, so two keepers racing on the same draw
// cannot settle the following one by accident.
func (e *Engine) ExecuteDrawByID(ctx context.Context, caller Principal, drawID uint64) (*Draw, error) {
	return e.executeDraw(ctx, "execute_draw", caller, drawID, false, nil)
}

// ForceExecuteDraw settles the open draw without consulting the gate and
// optionally with fixed winning numbers. Testing deployments only, owner only.
func (e *Engine) ForceExecuteDraw(ctx context.Context, caller Principal, winning *Numbers) (*Draw, error) {
	return e.executeDraw(ctx, "force_execute_draw", caller, 0, true, winning)
}

func (e *Engine) executeDraw(ctx context.Context, op string, caller Principal, drawID uint64, forced bool, winning *Numbers) (result *Draw, err error) {
	start := time.Now()
	defer func() { e.record(op, err, start) }()

	e.logger.Debug("%s called: caller=%s draw_id=%d forced=%t", op, caller, drawID, forced)

	var reward Amount
	var settled *Draw
	tx, err := e.mutate(ctx, func(tx *txn) error {
		if forced {
			if !e.rules.TestingMode {
				return ErrNotInTestingMode
			}
			if err := e.requireOwner(caller); err != nil {
				return err
			}
		}
		if e.meta.Paused {
			return ErrEmergencyPaused
		}

		current := e.meta.CurrentDrawID
		if drawID != 0 && drawID != current {
			if d, ok := e.draws[drawID]; ok && d.Executed {
				return ErrAlreadyExecuted.WithMetadata(MetaDrawID, drawID)
			}
			return ErrDrawNotFound.WithMetadata(MetaDrawID, drawID)
		}

		draw, ok := tx.touchDraw(current)
		if !ok {
			return newInvariantError("open draw %d missing", current)
		}
		if draw.Executed {
			return ErrAlreadyExecuted.WithMetadata(MetaDrawID, current)
		}

		tickets := e.tickets.TicketsForDraw(current)
		if uint64(len(tickets)) != draw.TotalTickets {
			return newInvariantError("draw %d counts %d tickets, store holds %d", current, draw.TotalTickets, len(tickets))
		}

		now, seq := e.chain.Now(), e.chain.Height()
		if !forced {
			gate := e.scheduler.CanExecute(e.sched, e.meta.TestingOverrideInterval, now, seq, draw.TotalTickets)
			if !gate.Ready {
				return newCannotExecuteError(gate).WithMetadata(MetaDrawID, current)
			}
		}

		numbers, err := e.winningNumbers(current, draw.TotalTickets, winning)
		if err != nil {
			return err
		}

		// the executor reward comes out of the jackpot before the pool is split
		jackpotBefore := e.treasury.AccumulatedJackpot
		reward, err = ExecutorReward(jackpotBefore, e.rules.ExecutorRewardBps, e.rules.MinExecutorReward, e.rules.MaxExecutorReward)
		if err != nil {
			return err
		}
		if err := e.treasury.PayExecutorReward(reward); err != nil {
			return err
		}
		pool := e.treasury.TakePool()

		res, err := e.calc.Settle(pool, numbers, tickets)
		if err != nil {
			return err
		}
		if err := res.Validate(); err != nil {
			return err
		}
		if err := e.treasury.ReservePrizes(res.TotalReserved); err != nil {
			return err
		}
		if err := e.treasury.Rollover(res.RolledOver); err != nil {
			return err
		}

		winningCopy := numbers
		draw.WinningNumbers = &winningCopy
		draw.Executed = true
		draw.ExecutedAtTime = now
		draw.ExecutedAtSeq = seq
		draw.TotalPrizePool = pool
		draw.JackpotAmount = res.TierShares[0]
		draw.Executor = caller
		draw.ExecutorReward = reward
		draw.RolledOver = res.RolledOver
		draw.Forced = forced
		draw.TierWinnerCounts = res.TierWinnerCounts
		draw.TierPrizeAmounts = res.TierPrizeAmounts
		if err := draw.Validate(); err != nil {
			return err
		}

		e.sched = SchedulerState{LastDrawTime: now, LastDrawSeq: seq}
		e.meta.CurrentDrawID = current + 1
		e.meta.DrawsExecuted++
		tx.createDraw(current + 1)

		tx.emit(newEvent(EventDrawExecuted, caller, current, pool, e.chain))
		settled = draw.clone()
		return nil
	})
	if err != nil {
		e.logger.Error("%s rejected: caller=%s: %v", op, caller, err)
		return nil, err
	}

	err = e.payout(ctx, caller, reward, func(tx *txn) error {
		d, ok := tx.touchDraw(settled.ID)
		if !ok {
			return newInvariantError("settled draw %d missing", settled.ID)
		}
		d.ExecutorReward = 0
		return e.treasury.refundExecutorReward(reward)
	})
	// 开奖已提交, 奖励转账失败也要发布事件并返回结果
	e.publish(tx.events)
	if err != nil {
		if errors.Is(err, ErrTransferFailed) {
			settled.ExecutorReward = 0
		}
		e.logger.Error("%s executed without reward: draw_id=%d executor=%s: %v", op, settled.ID, caller, err)
		return settled, err
	}

	e.logger.Info("%s successful: draw_id=%d winning=%v pool=%s rolled_over=%s executor=%s reward=%s",
		op, settled.ID, *settled.WinningNumbers,
		FormatAmount(settled.TotalPrizePool, e.rules.AmountDecimals),
		FormatAmount(settled.RolledOver, e.rules.AmountDecimals),
		caller, FormatAmount(reward, e.rules.AmountDecimals))
	return settled, nil
}

// winningNumbers derives the draw's numbers from chain entropy unless fixed ones are given
func (e *Engine) winningNumbers(drawID, totalTickets uint64, fixed *Numbers) (Numbers, error) {
	if fixed != nil {
		n, err := ParseNumbers(e.rules, fixed[:])
		if err != nil {
			return Numbers{}, err
		}
		return n, nil
	}

	src := DrawEntropy{Seed: e.chain.Seed(), DrawID: drawID, TotalTickets: totalTickets}
	n, err := DrawNumbers(src, e.rules.MinNumber, e.rules.MaxNumber)
	if err != nil {
		return Numbers{}, fmt.Errorf("derive winning numbers for draw %d: %w", drawID, err)
	}
	return n, nil
}
