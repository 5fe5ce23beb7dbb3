package math_test

import (
	fpmath "FeeLedger/internal/math"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMulDivFloor_Truncates(t *testing.T) {
	cases := []struct {
		x, n, d, want uint64
	}{
		{5_000, 3, 200, 75},
		{1_000, 5, 100, 50},
		{99, 1, 100, 0},
		{199, 1, 100, 1},
		{7, 0, 3, 0},
		{7, 3, 3, 7},
	}
	for _, tc := range cases {
		got, err := fpmath.MulDivFloor(uint256.NewInt(tc.x), tc.n, tc.d)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got.Uint64(), "⌊%d·%d/%d⌋", tc.x, tc.n, tc.d)
	}
}

func TestMulDivFloor_WideIntermediate(t *testing.T) {
	ceiling := new(uint256.Int).SetAllOne()

	got, err := fpmath.MulDivFloor(ceiling, 1<<63, 1<<63)
	require.NoError(t, err)
	assert.True(t, got.Eq(ceiling), "x·n/n must equal x even when x·n exceeds 256 bits")
}

func TestMulDivFloor_ZeroDenominator(t *testing.T) {
	_, err := fpmath.MulDivFloor(uint256.NewInt(1), 1, 0)
	assert.Error(t, err)
}

func TestProportionalShare(t *testing.T) {
	share, err := fpmath.ProportionalShare(uint256.NewInt(100), 1, 3)
	require.NoError(t, err)
	assert.Equal(t, uint64(33), share.Uint64())

	share, err = fpmath.ProportionalShare(uint256.NewInt(100), 5, 0)
	require.NoError(t, err)
	assert.True(t, share.IsZero())
}

func TestScaleUnits(t *testing.T) {
	got, err := fpmath.ScaleUnits(uint256.NewInt(100), 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(10_000), got.Uint64())

	_, err = fpmath.ScaleUnits(uint256.NewInt(2), fpmath.MaxDecimals)
	assert.ErrorIs(t, err, fpmath.ErrOverflow)
}
