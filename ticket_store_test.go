package lottery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateTicket(t *testing.T) {
	rules := testRules(false)

	tests := []struct {
		name    string
		numbers []uint16
		reason  InvalidTicketReason
	}{
		{"合法", []uint16{1, 2, 3, 4, 49}, ""},
		{"乱序合法", []uint16{49, 7, 1, 30, 2}, ""},
		{"太少", []uint16{1, 2, 3, 4}, ReasonWrongLength},
		{"太多", []uint16{1, 2, 3, 4, 5, 6}, ReasonWrongLength},
		{"空", nil, ReasonWrongLength},
		{"零", []uint16{0, 2, 3, 4, 5}, ReasonOutOfRange},
		{"超出上限", []uint16{1, 2, 3, 4, 50}, ReasonOutOfRange},
		{"重复", []uint16{7, 8, 9, 7, 10}, ReasonDuplicate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTicket(rules, tt.numbers)
			if tt.reason == "" {
				assert.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrInvalidTicket)
			reason, ok := InvalidTicketReasonOf(err)
			require.True(t, ok)
			assert.Equal(t, tt.reason, reason)
		})
	}
}

func TestParseNumbers(t *testing.T) {
	rules := testRules(false)

	n, err := ParseNumbers(rules, []uint16{40, 3, 22, 9, 15})
	require.NoError(t, err)
	assert.Equal(t, Numbers{3, 9, 15, 22, 40}, n)

	_, err = ParseNumbers(rules, []uint16{1, 1, 2, 3, 4})
	assert.ErrorIs(t, err, ErrInvalidTicket)
}

func TestTicketStore(t *testing.T) {
	s := NewTicketStore()

	first, err := s.insert(&Ticket{ID: 1, Owner: "alice", DrawID: 1}, 10)
	require.NoError(t, err)
	assert.True(t, first)

	first, err = s.insert(&Ticket{ID: 2, Owner: "alice", DrawID: 1}, 10)
	require.NoError(t, err)
	assert.False(t, first)

	_, err = s.insert(&Ticket{ID: 3, Owner: "bob", DrawID: 2}, 10)
	require.NoError(t, err)

	_, err = s.insert(&Ticket{ID: 2, Owner: "bob", DrawID: 2}, 10)
	assert.ErrorIs(t, err, ErrInvariantViolation)

	assert.Equal(t, uint64(2), s.CountForDraw(1))
	assert.Equal(t, []uint64{1, 2}, s.TicketIDsForDraw(1))
	assert.Equal(t, uint64(1), s.CountForDraw(2))

	stats, ok := s.Player("alice")
	require.True(t, ok)
	assert.Equal(t, uint64(2), stats.TotalTickets)
	assert.Equal(t, Amount(20), stats.TotalSpent)
	assert.Equal(t, []uint64{1, 2}, stats.TicketIDs)

	s.remove(3)
	_, ok = s.Get(3)
	assert.False(t, ok)
	assert.Equal(t, uint64(0), s.CountForDraw(2))

	// 删除不存在的票是空操作
	s.remove(99)
	assert.Len(t, s.TicketsForDraw(1), 2)
}

func TestTicketStore_Restore(t *testing.T) {
	s := NewTicketStore()
	for _, id := range []uint64{5, 2, 9} {
		s.restore(Ticket{ID: id, Owner: "alice", DrawID: 3})
	}
	s.sortIndexes()

	assert.Equal(t, []uint64{2, 5, 9}, s.TicketIDsForDraw(3))
	tickets := s.TicketsForDraw(3)
	require.Len(t, tickets, 3)
	assert.Equal(t, uint64(2), tickets[0].ID)

	// restore 保存的是副本
	orig := Ticket{ID: 11, DrawID: 3}
	s.restore(orig)
	orig.Claimed = true
	got, ok := s.Get(11)
	require.True(t, ok)
	assert.False(t, got.Claimed)
}
