package math

import (
	"errors"

	"github.com/holiman/uint256"
)

// ErrOverflow is returned when a result does not fit in 256 bits.
var ErrOverflow = errors.New("uint256 overflow")

// MaxDecimals bounds the token precision so 10^decimals always fits.
const MaxDecimals = 77

// MulDivFloor returns ⌊x·n/d⌋ with a 512-bit intermediate, so x·n never
// overflows before the division. d must be non-zero.
func MulDivFloor(x *uint256.Int, n, d uint64) (*uint256.Int, error) {
	if d == 0 {
		return nil, errors.New("division by zero")
	}
	z, overflow := new(uint256.Int).MulDivOverflow(x, uint256.NewInt(n), uint256.NewInt(d))
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

// ProportionalShare returns ⌊pool·weight/total⌋. The truncated remainder
// stays with the pool.
func ProportionalShare(pool *uint256.Int, weight, total uint64) (*uint256.Int, error) {
	if total == 0 {
		return new(uint256.Int), nil
	}
	return MulDivFloor(pool, weight, total)
}

// Pow10 returns 10^exp.
func Pow10(exp uint8) (*uint256.Int, error) {
	if exp > MaxDecimals {
		return nil, ErrOverflow
	}
	return new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(exp))), nil
}

// ScaleUnits converts whole token units into minor units: units·10^decimals.
func ScaleUnits(units *uint256.Int, decimals uint8) (*uint256.Int, error) {
	scale, err := Pow10(decimals)
	if err != nil {
		return nil, err
	}
	z, overflow := new(uint256.Int).MulOverflow(units, scale)
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}
