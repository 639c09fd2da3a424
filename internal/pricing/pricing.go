// Package pricing defines the market's pricing contract and the default
// curve. An Engine must be deterministic (same inputs, same quote) and
// monotonic (a larger buy never lowers the per-unit cost); the market engine
// depends on nothing else about the curve.
package pricing

import (
	"agora-backend/internal/pkg/fixedpoint"
)

// Quote is the result of pricing a trade against a security's aggregate
// position.
type Quote struct {
	Cost       fixedpoint.Amount
	PriceAfter fixedpoint.Amount
}

// Engine prices a trade of size delta against the current aggregate
// position of one security. PriceAfter is a pure function of
// position+delta.
type Engine interface {
	Quote(position, delta fixedpoint.Amount) (Quote, error)
}

// LinearCurve is the default engine: marginal price p(q) = Base + Slope*q,
// cost = ∫ p over the trade, both evaluated with exact scaled-integer
// arithmetic (truncating division, applied once per term).
type LinearCurve struct {
	Base  fixedpoint.Amount
	Slope fixedpoint.Amount
}

// Default returns the deployment default curve: base price 1.0, slope 0.01
// per share.
func Default() LinearCurve {
	return LinearCurve{
		Base:  fixedpoint.FromUnits(1),
		Slope: fixedpoint.FromInt64(fixedpoint.Scale / 100),
	}
}

var twoScaleSq = fixedpoint.FromInt64(2 * int64(fixedpoint.Scale) * int64(fixedpoint.Scale))

// Quote evaluates cost and post-trade price.
//
//	priceAfter = Base + Slope*(q+Δ)/S
//	cost       = Base*Δ/S + Slope*Δ*(2q+Δ)/(2S²)
func (c LinearCurve) Quote(position, delta fixedpoint.Amount) (Quote, error) {
	after := position.Add(delta)
	priceAfter := c.Base.Add(c.Slope.MulRaw(after).DivScale())

	term1 := c.Base.MulRaw(delta).DivScale()
	term2 := c.Slope.MulRaw(delta).MulRaw(position.Add(after)).DivRaw(twoScaleSq)
	return Quote{Cost: term1.Add(term2), PriceAfter: priceAfter}, nil
}
