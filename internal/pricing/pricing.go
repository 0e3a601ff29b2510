// Package pricing implements the integral pricing curve for range markets.
//
// Buying x units of a bin holding q, in a market with total supply T, costs
//
//	∫₀ˣ (q+t)/(T+t) dt  =  x + (q-T)·ln((T+x)/T)
//
// and liquidating x units yields
//
//	∫₀ˣ (q-t)/(T-t) dt  =  x + (q-T)·ln(T/(T-x))
//
// All three entry points are pure, deterministic and side-effect free; state
// lives in internal/market and every amount is an 18-decimal fixed-point
// value (internal/fixedpoint).
package pricing

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"RangeMarket/internal/fixedpoint"
)

// maxIterations caps the binary search in XForCost. The quantity that matches
// a budget has no closed form (the cost formula contains a logarithm), so it
// is found by bisection with Cost as the oracle. The cap is shared between
// the bound-growing phase and the bisection phase and is generous: 256 halving
// steps collapse any 256-bit interval to a single unit.
const maxIterations = 256

var (
	// ErrQuantityExceedsTotal rejects q > T. Normal operation never produces
	// a bin holding more than the market total, so a sell against such a
	// state is treated as corruption rather than priced at a premium.
	ErrQuantityExceedsTotal = errors.New("pricing: bin quantity exceeds market total")

	// ErrAmountExceedsBin rejects selling more units than the bin holds.
	ErrAmountExceedsBin = errors.New("pricing: sell amount exceeds bin quantity")
)

// Cost returns the collateral required to acquire x units in a bin holding q
// when the market total is T.
//
// Special cases: x = 0 costs nothing; the first position in an empty market
// (T = 0) costs exactly x; a bin at par (q = T) trades exactly at face value.
// When q < T the logarithmic discount could, through rounding, nudge the
// result below zero; it is clamped to zero instead.
func Cost(x, q, t *uint256.Int) (*uint256.Int, error) {
	if x.IsZero() {
		return new(uint256.Int), nil
	}
	if t.IsZero() || q.Eq(t) {
		return new(uint256.Int).Set(x), nil
	}

	tPlusX, err := fixedpoint.Add(t, x)
	if err != nil {
		return nil, err
	}
	ratio, err := fixedpoint.Div(tPlusX, t)
	if err != nil {
		return nil, err
	}
	logTerm, err := fixedpoint.Ln(ratio)
	if err != nil {
		return nil, fmt.Errorf("log of supply ratio: %w", err)
	}

	if q.Gt(t) {
		// Premium: x + (q-T)·ln((T+x)/T).
		premium, err := fixedpoint.Mul(new(uint256.Int).Sub(q, t), logTerm)
		if err != nil {
			return nil, err
		}
		return fixedpoint.Add(x, premium)
	}

	// Discount: x - (T-q)·ln((T+x)/T), clamped at zero.
	discount, err := fixedpoint.Mul(new(uint256.Int).Sub(t, q), logTerm)
	if err != nil {
		return nil, err
	}
	if x.Lt(discount) {
		return new(uint256.Int), nil
	}
	return new(uint256.Int).Sub(x, discount), nil
}

// XForCost returns the quantity purchasable for the given budget, the numeric
// inverse of Cost at fixed (q, T).
//
// The search interval starts at [0, budget] for an empty bin and
// [0, T·budget/q] otherwise; cost >= x·q/T for q <= T makes the latter a
// valid upper bound. Because truncation in the seed can leave the bound
// short of the budget at extreme q/T ratios, the bound is doubled until
// Cost no longer falls below the budget before bisection begins.
//
// When the interval collapses to adjacent units, whichever endpoint prices
// closer to the budget is returned.
func XForCost(budget, q, t *uint256.Int) (*uint256.Int, error) {
	if budget.IsZero() {
		return new(uint256.Int), nil
	}
	if t.IsZero() || q.Eq(t) {
		// Cost is the identity here; so is its inverse.
		return new(uint256.Int).Set(budget), nil
	}

	hi := new(uint256.Int)
	if q.IsZero() {
		hi.Set(budget)
	} else {
		b, err := fixedpoint.MulDiv(t, budget, q)
		if err != nil {
			return nil, err
		}
		hi.Set(b)
	}
	if hi.IsZero() {
		hi.SetUint64(1)
	}

	iter := 0

	// Grow the seed until it brackets the budget.
	for ; iter < maxIterations; iter++ {
		c, err := Cost(hi, q, t)
		if err != nil {
			return nil, err
		}
		if !c.Lt(budget) {
			break
		}
		grown, err := fixedpoint.Add(hi, hi)
		if err != nil {
			return nil, err
		}
		hi = grown
	}

	lo := new(uint256.Int)
	one := uint256.NewInt(1)

	for ; iter < maxIterations; iter++ {
		gap := new(uint256.Int).Sub(hi, lo)
		if !gap.Gt(one) {
			break
		}
		mid := new(uint256.Int).Add(lo, hi)
		mid.Rsh(mid, 1)

		c, err := Cost(mid, q, t)
		if err != nil {
			return nil, err
		}
		switch c.Cmp(budget) {
		case 0:
			return mid, nil
		case -1:
			lo = mid
		default:
			hi = mid
		}
	}

	// Interval collapsed (or iterations exhausted): pick the endpoint whose
	// cost lands closer to the budget.
	cLo, err := Cost(lo, q, t)
	if err != nil {
		return nil, err
	}
	cHi, err := Cost(hi, q, t)
	if err != nil {
		return nil, err
	}
	if cHi.Lt(budget) {
		// Bound never bracketed the budget; hi is the best candidate.
		return hi, nil
	}
	dLo := new(uint256.Int).Sub(budget, cLo)
	dHi := new(uint256.Int).Sub(cHi, budget)
	if dHi.Lt(dLo) {
		return hi, nil
	}
	return lo, nil
}

// SellCost returns the collateral released by liquidating x units from a bin
// holding q when the market total is T.
//
// Preconditions: x <= q <= T. A bin at par (q = T) liquidates exactly at face
// value, which also covers selling the entire market supply (x = T is only
// reachable with q = T). As with Cost, rounding may not push the result
// negative; it is clamped to zero.
func SellCost(x, q, t *uint256.Int) (*uint256.Int, error) {
	if q.Gt(t) {
		return nil, ErrQuantityExceedsTotal
	}
	if x.Gt(q) {
		return nil, ErrAmountExceedsBin
	}
	if x.IsZero() {
		return new(uint256.Int), nil
	}
	if q.Eq(t) {
		return new(uint256.Int).Set(x), nil
	}

	// x <= q < T here, so T - x > 0 and the ratio is finite.
	tMinusX := new(uint256.Int).Sub(t, x)
	ratio, err := fixedpoint.Div(t, tMinusX)
	if err != nil {
		return nil, err
	}
	logTerm, err := fixedpoint.Ln(ratio)
	if err != nil {
		return nil, fmt.Errorf("log of supply ratio: %w", err)
	}

	// Revenue: x - (T-q)·ln(T/(T-x)), clamped at zero.
	discount, err := fixedpoint.Mul(new(uint256.Int).Sub(t, q), logTerm)
	if err != nil {
		return nil, err
	}
	if x.Lt(discount) {
		return new(uint256.Int), nil
	}
	return new(uint256.Int).Sub(x, discount), nil
}
