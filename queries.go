package lottery

import "slices"

// TicketView is a ticket together with its outcome once its draw has run
type TicketView struct {
	Ticket
	DrawExecuted bool   `json:"draw_executed"`
	Matches      int    `json:"matches"`
	Tier         int    `json:"tier"` // -1 when the ticket won nothing
	Prize        Amount `json:"prize"`
}

// TreasurySnapshot is the read view of the treasury
type TreasurySnapshot struct {
	Treasury
	Paused bool `json:"paused"`
}

// EngineStats are the global counters
type EngineStats struct {
	CurrentDrawID    uint64 `json:"current_draw_id"`
	UniquePlayers    uint64 `json:"unique_players"`
	TotalTicketsSold uint64 `json:"total_tickets_sold"`
	DrawsExecuted    uint64 `json:"draws_executed"`
	TotalPrizesPaid  Amount `json:"total_prizes_paid"`
}

// CurrentDrawID returns the id of the draw currently selling tickets
func (e *Engine) CurrentDrawID() uint64 {
	defer e.lock.rlock()()
	return e.meta.CurrentDrawID
}

// Paused reports whether purchases and draws are frozen
func (e *Engine) Paused() bool {
	defer e.lock.rlock()()
	return e.meta.Paused
}

// Draw returns a copy of a draw
func (e *Engine) Draw(id uint64) (*Draw, error) {
	defer e.lock.rlock()()

	d, ok := e.draws[id]
	if !ok {
		return nil, ErrDrawNotFound.WithMetadata(MetaDrawID, id)
	}
	return d.clone(), nil
}

// Ticket returns a ticket with its match count and prize
func (e *Engine) Ticket(id uint64) (*TicketView, error) {
	defer e.lock.rlock()()

	t, ok := e.tickets.Get(id)
	if !ok {
		return nil, ErrTicketNotFound.WithMetadata(MetaTicketID, id)
	}
	return e.ticketView(t), nil
}

func (e *Engine) ticketView(t *Ticket) *TicketView {
	v := &TicketView{Ticket: *t, Tier: -1}
	d, ok := e.draws[t.DrawID]
	if !ok || !d.Executed {
		return v
	}

	v.DrawExecuted = true
	v.Matches = MatchCount(t.Numbers, *d.WinningNumbers)
	if tier, ok := TierForMatches(v.Matches); ok {
		v.Tier = tier
		v.Prize = d.TierPrizeAmounts[tier]
	}
	return v
}

// PlayerTickets returns a player's ticket ids in ascending order
func (e *Engine) PlayerTickets(p Principal) []uint64 {
	defer e.lock.rlock()()

	st, ok := e.tickets.Player(p)
	if !ok {
		return nil
	}
	return slices.Clone(st.TicketIDs)
}

// PlayerStats returns a player's aggregate stats
func (e *Engine) PlayerStats(p Principal) (PlayerStats, bool) {
	defer e.lock.rlock()()

	st, ok := e.tickets.Player(p)
	if !ok {
		return PlayerStats{}, false
	}
	return *st.clone(), true
}

// Winners lists the winning tickets of an executed draw grouped by tier, full match first
func (e *Engine) Winners(drawID uint64) ([]TierWinners, error) {
	defer e.lock.rlock()()

	d, ok := e.draws[drawID]
	if !ok {
		return nil, ErrDrawNotFound.WithMetadata(MetaDrawID, drawID)
	}
	if !d.Executed {
		return nil, ErrDrawNotExecuted.WithMetadata(MetaDrawID, drawID)
	}

	groups := make([]TierWinners, TierCount)
	for tier := range groups {
		groups[tier] = TierWinners{
			Tier:      tier,
			Matches:   MatchesForTier(tier),
			PrizeEach: d.TierPrizeAmounts[tier],
		}
	}
	for _, t := range e.tickets.TicketsForDraw(drawID) {
		v := e.ticketView(t)
		if v.Tier < 0 {
			continue
		}
		groups[v.Tier].Winners = append(groups[v.Tier].Winners, Winner{
			TicketID: t.ID,
			Owner:    t.Owner,
			Matches:  v.Matches,
			Tier:     v.Tier,
			Prize:    v.Prize,
			Claimed:  t.Claimed,
		})
	}
	return groups, nil
}

// Treasury returns the treasury balances and the pause flag
func (e *Engine) Treasury() TreasurySnapshot {
	defer e.lock.rlock()()
	return TreasurySnapshot{Treasury: e.treasury, Paused: e.meta.Paused}
}

// Scheduler evaluates the draw gate at the chain's current time and height
func (e *Engine) Scheduler() SchedulerSnapshot {
	defer e.lock.rlock()()

	d := e.draws[e.meta.CurrentDrawID]
	override := e.meta.TestingOverrideInterval
	gate := e.scheduler.CanExecute(e.sched, override, e.chain.Now(), e.chain.Height(), d.TotalTickets)
	return SchedulerSnapshot{
		DrawID:          d.ID,
		CanExecute:      gate.Ready,
		TimeRemaining:   gate.TimeRemaining,
		BlocksRemaining: gate.BlocksRemaining,
		TicketsSold:     d.TotalTickets,
		LastDrawTime:    e.sched.LastDrawTime,
		LastDrawSeq:     e.sched.LastDrawSeq,
		Interval:        e.scheduler.Interval(override),
		MinSeqDelta:     e.scheduler.MinSeqDelta(),
		OverrideActive:  override != nil,
	}
}

// Stats returns the global counters
func (e *Engine) Stats() EngineStats {
	defer e.lock.rlock()()
	return EngineStats{
		CurrentDrawID:    e.meta.CurrentDrawID,
		UniquePlayers:    e.meta.UniquePlayers,
		TotalTicketsSold: e.meta.TotalTicketsSold,
		DrawsExecuted:    e.meta.DrawsExecuted,
		TotalPrizesPaid:  e.treasury.TotalPrizesPaid,
	}
}
