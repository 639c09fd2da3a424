package fixedpoint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRoundTrip(t *testing.T) {
	for _, s := range []string{"0", "1", "-1", "1000000", "-2500000", "123456789012345678901234567890"} {
		a, err := Parse(s)
		require.NoError(t, err)
		assert.Equal(t, s, a.String())
	}
}

// Leading "+" parses but canonicalizes without the sign.
func TestParsePlusSign(t *testing.T) {
	a, err := Parse("+42")
	require.NoError(t, err)
	assert.Equal(t, "42", a.String())
}

func TestParseRejectsNonInteger(t *testing.T) {
	for _, s := range []string{"", "+", "-", "1.5", "1e6", "abc", "1 000", "0x10"} {
		_, err := Parse(s)
		assert.ErrorIs(t, err, ErrInvalidAmount, "input %q", s)
	}
}

func TestArithmetic(t *testing.T) {
	a := FromUnits(3)
	b := FromInt64(500_000) // 0.5
	assert.Equal(t, "3500000", a.Add(b).String())
	assert.Equal(t, "2500000", a.Sub(b).String())
	assert.Equal(t, "-3000000", a.Neg().String())
	assert.Equal(t, 1, a.Cmp(b))
	assert.True(t, Zero().IsZero())
}

// Zero-value Amount behaves as 0 without allocation surprises.
func TestZeroValue(t *testing.T) {
	var a Amount
	assert.Equal(t, "0", a.String())
	assert.True(t, a.IsZero())
	assert.Equal(t, "7", a.Add(FromInt64(7)).String())
}

func TestDivScaleTruncates(t *testing.T) {
	a := FromInt64(2_500_001)
	assert.Equal(t, "2", a.DivScale().String())
	assert.Equal(t, "-2", a.Neg().DivScale().String())
}
