package lottery

import (
	"cmp"
	"slices"
)

// txn records the before-image of every record an operation touches so the
// operation can be undone as a whole. It is only used under the write lock.
type txn struct {
	e *Engine

	meta     EngineState
	sched    SchedulerState
	treasury Treasury
	guard    GuardState

	// nil before-image means the record was created inside the txn
	draws   map[uint64]*Draw
	tickets map[uint64]*Ticket
	players map[Principal]*PlayerStats

	newTickets []uint64
	events     []Event
}

func (e *Engine) begin() *txn {
	return &txn{
		e:        e,
		meta:     e.meta.clone(),
		sched:    e.sched,
		treasury: e.treasury,
		guard:    e.guardState,
		draws:    make(map[uint64]*Draw),
		tickets:  make(map[uint64]*Ticket),
		players:  make(map[Principal]*PlayerStats),
	}
}

// touchDraw returns the live draw after saving its before-image
func (tx *txn) touchDraw(id uint64) (*Draw, bool) {
	d, ok := tx.e.draws[id]
	if !ok {
		return nil, false
	}
	if _, seen := tx.draws[id]; !seen {
		tx.draws[id] = d.clone()
	}
	return d, true
}

func (tx *txn) createDraw(id uint64) *Draw {
	d := &Draw{ID: id}
	tx.e.draws[id] = d
	tx.draws[id] = nil
	return d
}

// touchTicket returns the live ticket after saving its before-image
func (tx *txn) touchTicket(id uint64) (*Ticket, bool) {
	t, ok := tx.e.tickets.Get(id)
	if !ok {
		return nil, false
	}
	if _, seen := tx.tickets[id]; !seen {
		before := *t
		tx.tickets[id] = &before
	}
	return t, true
}

// touchPlayer saves the before-image of a player's stats, which may not exist yet
func (tx *txn) touchPlayer(p Principal) {
	if _, seen := tx.players[p]; seen {
		return
	}
	if st, ok := tx.e.tickets.Player(p); ok {
		tx.players[p] = st.clone()
	} else {
		tx.players[p] = nil
	}
}

func (tx *txn) insertTicket(t *Ticket, price Amount) (bool, error) {
	tx.touchPlayer(t.Owner)
	firstPurchase, err := tx.e.tickets.insert(t, price)
	if err != nil {
		return false, err
	}
	tx.tickets[t.ID] = nil
	tx.newTickets = append(tx.newTickets, t.ID)
	return firstPurchase, nil
}

func (tx *txn) emit(ev Event) {
	tx.events = append(tx.events, ev)
}

// rollback restores every before-image
func (tx *txn) rollback() {
	e := tx.e

	for i := len(tx.newTickets) - 1; i >= 0; i-- {
		e.tickets.remove(tx.newTickets[i])
	}
	for id, before := range tx.tickets {
		if before == nil {
			continue
		}
		if live, ok := e.tickets.Get(id); ok {
			*live = *before
		}
	}
	for p, before := range tx.players {
		if before == nil {
			delete(e.tickets.players, p)
			continue
		}
		e.tickets.players[p] = before
	}
	for id, before := range tx.draws {
		if before == nil {
			delete(e.draws, id)
			continue
		}
		e.draws[id] = before
	}

	e.meta = tx.meta
	e.sched = tx.sched
	e.treasury = tx.treasury
	e.guardState = tx.guard
	tx.events = nil
}

// changeset returns the records the txn touched in their current state plus every singleton
func (tx *txn) changeset() *Snapshot {
	e := tx.e
	cs := &Snapshot{
		Meta:      e.meta.clone(),
		Scheduler: e.sched,
		Treasury:  e.treasury,
		Guard:     e.guardState,
	}

	for id := range tx.draws {
		if d, ok := e.draws[id]; ok {
			cs.Draws = append(cs.Draws, *d.clone())
		}
	}
	// the open draw is always written so a store never lacks it
	if _, touched := tx.draws[e.meta.CurrentDrawID]; !touched {
		if d, ok := e.draws[e.meta.CurrentDrawID]; ok {
			cs.Draws = append(cs.Draws, *d.clone())
		}
	}
	for id := range tx.tickets {
		if t, ok := e.tickets.Get(id); ok {
			cs.Tickets = append(cs.Tickets, *t)
		}
	}
	for p := range tx.players {
		if st, ok := e.tickets.Player(p); ok {
			cs.Players = append(cs.Players, PlayerRecord{Player: p, Stats: *st.clone()})
		}
	}

	slices.SortFunc(cs.Draws, func(a, b Draw) int { return cmp.Compare(a.ID, b.ID) })
	slices.SortFunc(cs.Tickets, func(a, b Ticket) int { return cmp.Compare(a.ID, b.ID) })
	slices.SortFunc(cs.Players, func(a, b PlayerRecord) int { return cmp.Compare(a.Player, b.Player) })
	return cs
}
