package fee

import (
	"FeeLedger/internal/ledger"
	fpmath "FeeLedger/internal/math"
	"fmt"

	"github.com/holiman/uint256"
)

// FeeRatio is the fraction of a transfer charged as fee.
// Invariant: denominator > 0 and numerator <= denominator.
type FeeRatio struct {
	numerator   uint64
	denominator uint64
}

// NewFeeRatio validates and builds a ratio
func NewFeeRatio(numerator, denominator uint64) (FeeRatio, error) {
	if denominator == 0 || numerator > denominator {
		return FeeRatio{}, fmt.Errorf("%w: %d/%d", ledger.ErrInvalidRatio, numerator, denominator)
	}
	return FeeRatio{numerator: numerator, denominator: denominator}, nil
}

func (r FeeRatio) Numerator() uint64   { return r.numerator }
func (r FeeRatio) Denominator() uint64 { return r.denominator }

// Apply returns ⌊amount·n/d⌋
func (r FeeRatio) Apply(amount *uint256.Int) (*uint256.Int, error) {
	return fpmath.MulDivFloor(amount, r.numerator, r.denominator)
}

func (r FeeRatio) String() string {
	return fmt.Sprintf("%d/%d", r.numerator, r.denominator)
}
