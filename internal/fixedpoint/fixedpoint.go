// Package fixedpoint provides deterministic 18-decimal unsigned fixed-point
// arithmetic over 256-bit integers. Every quantity, price and collateral
// amount in the engine is carried in this representation; no other package
// performs raw arithmetic on amounts.
//
// All operations are pure, bit-reproducible across platforms, and fail
// loudly (error, never wraparound) on overflow or underflow. Division
// truncates toward zero, matching the mulDiv discipline of on-chain
// fixed-point libraries: results never overstate a value.
package fixedpoint

import (
	"errors"

	"github.com/holiman/uint256"
)

// Decimals is the number of fractional digits carried by every amount.
const Decimals = 18

var (
	// One is the fixed-point representation of 1.0 (10^18).
	One = uint256.NewInt(1_000_000_000_000_000_000)

	two = uint256.NewInt(2_000_000_000_000_000_000)

	// ln(2) * 10^18, truncated.
	ln2 = uint256.NewInt(693_147_180_559_945_309)
)

var (
	ErrOverflow  = errors.New("fixedpoint: overflow")
	ErrUnderflow = errors.New("fixedpoint: underflow")
	ErrDivByZero = errors.New("fixedpoint: division by zero")
	ErrLogDomain = errors.New("fixedpoint: log argument below one")
)

// Add returns x + y, failing on 256-bit overflow.
func Add(x, y *uint256.Int) (*uint256.Int, error) {
	z, carry := new(uint256.Int).AddOverflow(x, y)
	if carry {
		return nil, ErrOverflow
	}
	return z, nil
}

// Sub returns x - y, failing if the result would be negative.
func Sub(x, y *uint256.Int) (*uint256.Int, error) {
	z, borrow := new(uint256.Int).SubOverflow(x, y)
	if borrow {
		return nil, ErrUnderflow
	}
	return z, nil
}

// MulDiv returns x * y / d computed with a 512-bit intermediate product,
// truncated toward zero. Fails if d is zero or the quotient exceeds 256 bits.
func MulDiv(x, y, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, ErrDivByZero
	}
	z, overflow := new(uint256.Int).MulDivOverflow(x, y, d)
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

// Mul returns the fixed-point product x * y / One.
func Mul(x, y *uint256.Int) (*uint256.Int, error) {
	return MulDiv(x, y, One)
}

// Div returns the fixed-point quotient x * One / y.
func Div(x, y *uint256.Int) (*uint256.Int, error) {
	return MulDiv(x, One, y)
}

// Ln returns the natural logarithm of x as a fixed-point value.
// The domain is restricted to x >= One: the pricing formulas only ever take
// logarithms of ratios >= 1, which keeps the result unsigned.
//
// The computation decomposes ln(x) = log2(x) * ln(2). The integer part of
// log2 comes from the bit length of x / One; fractional bits are produced
// one per iteration by repeated squaring of the mantissa, the classic
// binary-logarithm algorithm used by on-chain fixed-point libraries.
func Ln(x *uint256.Int) (*uint256.Int, error) {
	if x.Lt(One) {
		return nil, ErrLogDomain
	}

	// Integer part: n = floor(log2(x / One)).
	n := uint(new(uint256.Int).Div(x, One).BitLen() - 1)

	// log2 accumulator, fixed-point.
	log2 := new(uint256.Int).Mul(uint256.NewInt(uint64(n)), One)

	// Mantissa y = x / 2^n, in [One, 2*One).
	y := new(uint256.Int).Rsh(x, n)
	if y.Eq(One) {
		// Exact power of two.
		return Mul(log2, ln2)
	}

	// Each squaring doubles the mantissa's exponent; whenever it crosses 2
	// the current fractional bit is set and the mantissa is halved.
	for delta := new(uint256.Int).Rsh(One, 1); !delta.IsZero(); delta.Rsh(delta, 1) {
		y.Mul(y, y) // y < 2*One, so y^2 < 2^123: no overflow possible
		y.Div(y, One)
		if y.Cmp(two) >= 0 {
			log2.Add(log2, delta)
			y.Rsh(y, 1)
		}
	}

	return Mul(log2, ln2)
}
