package lottery

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"math/bits"
	"time"

	"github.com/shopspring/decimal"
)

// Amount is a quantity of funds in base units
type Amount = uint64

// Principal identifies a player, executor or owner
type Principal string

// addAmount adds with overflow detection
func addAmount(a, b Amount) (Amount, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, ErrArithmeticOverflow.WithDetails(fmt.Sprintf("%d + %d", a, b)).WithStackTrace()
	}
	return sum, nil
}

// subAmount subtracts with underflow detection
func subAmount(a, b Amount) (Amount, error) {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0, ErrArithmeticUnderflow.WithDetails(fmt.Sprintf("%d - %d", a, b)).WithStackTrace()
	}
	return diff, nil
}

// mulAmount multiplies with overflow detection
func mulAmount(a, b uint64) (Amount, error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, ErrArithmeticOverflow.WithDetails(fmt.Sprintf("%d * %d", a, b)).WithStackTrace()
	}
	return lo, nil
}

// bpsOf returns amount*bps/10000 rounded down, using a 128-bit intermediate
func bpsOf(amount Amount, bps uint64) (Amount, error) {
	hi, lo := bits.Mul64(amount, bps)
	if hi >= BasisPoints {
		return 0, ErrArithmeticOverflow.WithDetails(fmt.Sprintf("%d * %d / %d", amount, bps, BasisPoints)).WithStackTrace()
	}
	quo, _ := bits.Div64(hi, lo, BasisPoints)
	return quo, nil
}

// clampAmount bounds v to [lo, hi]
func clampAmount(v, lo, hi Amount) Amount {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// saturatingSub returns a-b, or 0 when b > a
func saturatingSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}

// FormatAmount renders base units as a decimal string with the given number of decimals
func FormatAmount(a Amount, decimals int32) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(a), -decimals).String()
}

// generateLockValue generates a unique lock value using crypto/rand
func generateLockValue() string {
	bytes := make([]byte, 16)
	_, err := rand.Read(bytes)
	if err != nil {
		// Fallback to timestamp-based value if crypto/rand fails
		return fmt.Sprintf("lock_%d", time.Now().UnixNano())
	}

	const hexChars = "0123456789abcdef"
	result := make([]byte, 32)
	for i, b := range bytes {
		result[i*2] = hexChars[b>>4]
		result[i*2+1] = hexChars[b&0x0f]
	}

	return string(result)
}
