package lottery

import (
	"encoding/binary"
	"fmt"
	"slices"

	"golang.org/x/crypto/blake2b"
)

// DrawEntropy derives draw entropy from the chain seed, the draw id and the
// number of tickets sold, so two draws never share an input.
//
// The result is only as unpredictable as Seed. Whoever controls the seed
// controls the winning numbers.
type DrawEntropy struct {
	Seed         [32]byte
	DrawID       uint64
	TotalTickets uint64
}

// Entropy implements EntropySource
func (e DrawEntropy) Entropy() [32]byte {
	buf := make([]byte, 0, len("lottery_draw")+32+16)
	buf = append(buf, "lottery_draw"...)
	buf = append(buf, e.Seed[:]...)
	buf = binary.BigEndian.AppendUint64(buf, e.DrawID)
	buf = binary.BigEndian.AppendUint64(buf, e.TotalTickets)
	return blake2b.Sum256(buf)
}

// FixedEntropy is an EntropySource returning a constant value
type FixedEntropy [32]byte

// Entropy implements EntropySource
func (f FixedEntropy) Entropy() [32]byte { return f }

// DrawNumbers derives NumbersPerTicket distinct values in [lo, hi] from src.
//
// Candidate i is lo + u64(blake2b(entropy || i)[0:8]) mod (hi-lo+1); a candidate
// already drawn is rejected and the next attempt index is tried. The same
// entropy always yields the same numbers. The result is sorted ascending.
func DrawNumbers(src EntropySource, lo, hi uint16) (Numbers, error) {
	if lo > hi || int(hi-lo)+1 < NumbersPerTicket {
		return Numbers{}, ErrInvalidParameters.WithDetails(fmt.Sprintf("cannot draw %d distinct numbers from [%d, %d]", NumbersPerTicket, lo, hi))
	}

	entropy := src.Entropy()
	span := uint64(hi-lo) + 1

	var out Numbers
	picked := 0
	buf := make([]byte, 0, len(entropy)+8)
	for attempt := uint64(0); picked < NumbersPerTicket; attempt++ {
		buf = append(buf[:0], entropy[:]...)
		buf = binary.BigEndian.AppendUint64(buf, attempt)
		sum := blake2b.Sum256(buf)

		candidate := lo + uint16(binary.BigEndian.Uint64(sum[:8])%span)
		if slices.Contains(out[:picked], candidate) {
			continue
		}
		out[picked] = candidate
		picked++
	}
	return out.Sorted(), nil
}
