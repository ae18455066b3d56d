package lottery

import (
	"crypto/rand"
	"math/big"
)

// SecureRandomGenerator implements secure random number generation using crypto/rand
type SecureRandomGenerator struct{}

// NewSecureRandomGenerator creates a new secure random generator
func NewSecureRandomGenerator() *SecureRandomGenerator {
	return &SecureRandomGenerator{}
}

// GenerateInRange generates a secure random number within the specified range [min, max] (inclusive)
func (g *SecureRandomGenerator) GenerateInRange(min, max int) (int, error) {
	if min > max {
		return 0, ErrInvalidParameters.WithDetails("min > max")
	}

	// Handle edge case where min == max
	if min == max {
		return min, nil
	}

	randomBig, err := rand.Int(rand.Reader, big.NewInt(int64(max-min+1)))
	if err != nil {
		return 0, err
	}
	return int(randomBig.Int64()) + min, nil
}

// QuickPick returns a random valid ticket for the given rules, sorted ascending
func (g *SecureRandomGenerator) QuickPick(rules *GameConfig) ([]uint16, error) {
	if int(rules.MaxNumber-rules.MinNumber)+1 < NumbersPerTicket {
		return nil, ErrInvalidGameConfig.WithDetails("number range too small for a ticket")
	}

	// 无放回抽样
	picked := make(map[int]struct{}, NumbersPerTicket)
	var n Numbers
	for i := 0; i < NumbersPerTicket; {
		v, err := g.GenerateInRange(int(rules.MinNumber), int(rules.MaxNumber))
		if err != nil {
			return nil, err
		}
		if _, dup := picked[v]; dup {
			continue
		}
		picked[v] = struct{}{}
		n[i] = uint16(v)
		i++
	}

	sorted := n.Sorted()
	return sorted[:], nil
}

// QuickPick is a standalone helper producing one random ticket
func QuickPick(rules *GameConfig) ([]uint16, error) {
	return NewSecureRandomGenerator().QuickPick(rules)
}
