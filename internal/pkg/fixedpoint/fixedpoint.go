// Package fixedpoint implements exact scaled-integer amounts for market
// fields. Amounts are integers at a fixed scale of 1e6 and are only ever
// formatted as decimal strings at the serialization boundary, so no
// floating-point arithmetic touches a financial value.
package fixedpoint

import (
	"errors"
	"fmt"
	"math/big"
)

// Scale is the fixed-point denominator: one whole unit equals 1e6.
const Scale = 1_000_000

var (
	ErrInvalidAmount = errors.New("invalid scaled amount")

	scaleInt = big.NewInt(Scale)
)

// Amount is a scaled integer. The zero value is 0.
type Amount struct {
	v *big.Int
}

// Zero returns a zero amount.
func Zero() Amount {
	return Amount{v: new(big.Int)}
}

// FromInt64 builds an Amount from an already-scaled int64.
func FromInt64(scaled int64) Amount {
	return Amount{v: big.NewInt(scaled)}
}

// FromUnits builds an Amount representing `units` whole units.
func FromUnits(units int64) Amount {
	return Amount{v: new(big.Int).Mul(big.NewInt(units), scaleInt)}
}

// Parse parses a string-encoded scaled integer (optional leading sign,
// decimal digits only). Anything else is rejected.
func Parse(s string) (Amount, error) {
	if s == "" {
		return Amount{}, ErrInvalidAmount
	}
	body := s
	if body[0] == '+' || body[0] == '-' {
		body = body[1:]
	}
	if body == "" {
		return Amount{}, ErrInvalidAmount
	}
	for i := 0; i < len(body); i++ {
		if body[i] < '0' || body[i] > '9' {
			return Amount{}, ErrInvalidAmount
		}
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Amount{}, ErrInvalidAmount
	}
	return Amount{v: v}, nil
}

// MustParse parses s and panics on failure. Test helper.
func MustParse(s string) Amount {
	a, err := Parse(s)
	if err != nil {
		panic(fmt.Sprintf("fixedpoint: %q: %v", s, err))
	}
	return a
}

func (a Amount) big() *big.Int {
	if a.v == nil {
		return new(big.Int)
	}
	return a.v
}

// String returns the canonical decimal encoding of the scaled integer.
func (a Amount) String() string {
	return a.big().String()
}

// Add returns a + b.
func (a Amount) Add(b Amount) Amount {
	return Amount{v: new(big.Int).Add(a.big(), b.big())}
}

// Sub returns a - b.
func (a Amount) Sub(b Amount) Amount {
	return Amount{v: new(big.Int).Sub(a.big(), b.big())}
}

// Neg returns -a.
func (a Amount) Neg() Amount {
	return Amount{v: new(big.Int).Neg(a.big())}
}

// MulRaw returns a * b as raw integers (no rescaling). Callers that multiply
// two scaled values must divide by Scale themselves.
func (a Amount) MulRaw(b Amount) Amount {
	return Amount{v: new(big.Int).Mul(a.big(), b.big())}
}

// DivRaw returns a / b truncated toward zero. b must be non-zero.
func (a Amount) DivRaw(b Amount) Amount {
	return Amount{v: new(big.Int).Quo(a.big(), b.big())}
}

// DivScale returns a / Scale truncated toward zero.
func (a Amount) DivScale() Amount {
	return Amount{v: new(big.Int).Quo(a.big(), scaleInt)}
}

// Cmp returns -1, 0, or 1 comparing a to b.
func (a Amount) Cmp(b Amount) int {
	return a.big().Cmp(b.big())
}

// Sign returns -1, 0, or 1.
func (a Amount) Sign() int {
	return a.big().Sign()
}

// IsZero reports whether a == 0.
func (a Amount) IsZero() bool {
	return a.big().Sign() == 0
}
