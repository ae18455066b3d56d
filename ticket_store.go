package lottery

import (
	"fmt"
	"slices"
)

// ValidateTicket checks a candidate ticket's length, range and uniqueness
func ValidateTicket(rules *GameConfig, numbers []uint16) error {
	if len(numbers) != NumbersPerTicket {
		return newInvalidTicketError(ReasonWrongLength, fmt.Sprintf("got %d numbers, want %d", len(numbers), NumbersPerTicket))
	}

	var seen [NumbersPerTicket]uint16
	for i, v := range numbers {
		if v < rules.MinNumber || v > rules.MaxNumber {
			return newInvalidTicketError(ReasonOutOfRange, fmt.Sprintf("%d not in [%d, %d]", v, rules.MinNumber, rules.MaxNumber))
		}
		if slices.Contains(seen[:i], v) {
			return newInvalidTicketError(ReasonDuplicate, fmt.Sprintf("%d appears more than once", v))
		}
		seen[i] = v
	}
	return nil
}

// ParseNumbers validates a ticket and returns its canonical sorted form
func ParseNumbers(rules *GameConfig, numbers []uint16) (Numbers, error) {
	if err := ValidateTicket(rules, numbers); err != nil {
		return Numbers{}, err
	}
	var n Numbers
	copy(n[:], numbers)
	return n.Sorted(), nil
}

// TicketStore owns tickets and the per-draw and per-player indexes
type TicketStore struct {
	tickets map[uint64]*Ticket
	byDraw  map[uint64][]uint64
	players map[Principal]*PlayerStats
}

// NewTicketStore creates an empty ticket store
func NewTicketStore() *TicketStore {
	return &TicketStore{
		tickets: make(map[uint64]*Ticket),
		byDraw:  make(map[uint64][]uint64),
		players: make(map[Principal]*PlayerStats),
	}
}

// Get returns a ticket by id
func (s *TicketStore) Get(id uint64) (*Ticket, bool) {
	t, ok := s.tickets[id]
	return t, ok
}

// Player returns a player's stats
func (s *TicketStore) Player(p Principal) (*PlayerStats, bool) {
	st, ok := s.players[p]
	return st, ok
}

// TicketIDsForDraw returns the ids of every ticket sold for a draw, ascending
func (s *TicketStore) TicketIDsForDraw(drawID uint64) []uint64 {
	return s.byDraw[drawID]
}

// TicketsForDraw returns every ticket sold for a draw in id order
func (s *TicketStore) TicketsForDraw(drawID uint64) []*Ticket {
	ids := s.byDraw[drawID]
	out := make([]*Ticket, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.tickets[id])
	}
	return out
}

// CountForDraw returns the number of tickets linked to a draw
func (s *TicketStore) CountForDraw(drawID uint64) uint64 {
	return uint64(len(s.byDraw[drawID]))
}

// insert stores a new ticket and links it to its draw and owner.
// It reports whether the owner is a first-time player.
func (s *TicketStore) insert(t *Ticket, price Amount) (bool, error) {
	if _, exists := s.tickets[t.ID]; exists {
		return false, newInvariantError("ticket id %d assigned twice", t.ID)
	}

	stats, known := s.players[t.Owner]
	if !known {
		stats = &PlayerStats{}
		s.players[t.Owner] = stats
	}

	spent, err := addAmount(stats.TotalSpent, price)
	if err != nil {
		return false, err
	}

	s.tickets[t.ID] = t
	s.byDraw[t.DrawID] = append(s.byDraw[t.DrawID], t.ID)
	stats.TotalTickets++
	stats.TotalSpent = spent
	stats.TicketIDs = append(stats.TicketIDs, t.ID)
	return !known, nil
}

// remove undoes insert for a ticket created by a rolled back operation
func (s *TicketStore) remove(id uint64) {
	t, ok := s.tickets[id]
	if !ok {
		return
	}
	delete(s.tickets, id)
	ids := s.byDraw[t.DrawID]
	if i := slices.Index(ids, id); i >= 0 {
		s.byDraw[t.DrawID] = slices.Delete(ids, i, i+1)
	}
	if len(s.byDraw[t.DrawID]) == 0 {
		delete(s.byDraw, t.DrawID)
	}
}

// restore loads a persisted ticket, rebuilding the draw index
func (s *TicketStore) restore(t Ticket) {
	tc := t
	s.tickets[t.ID] = &tc
	s.byDraw[t.DrawID] = append(s.byDraw[t.DrawID], t.ID)
}

func (s *TicketStore) sortIndexes() {
	for _, ids := range s.byDraw {
		slices.Sort(ids)
	}
}
