package revenue_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/creatorpay/pkg/revenue"
)

func TestComputeSplit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		gross       int64
		fee         float64
		wantFee     int64
		wantCreator int64
	}{
		{name: "default 70/30 split", gross: 10000, fee: 0.30, wantFee: 3000, wantCreator: 7000},
		{name: "zero amount", gross: 0, fee: 0.30, wantFee: 0, wantCreator: 0},
		{name: "zero fee", gross: 999, fee: 0, wantFee: 0, wantCreator: 999},
		{name: "full fee", gross: 999, fee: 1, wantFee: 999, wantCreator: 0},
		{name: "half rounds up to platform", gross: 5, fee: 0.5, wantFee: 3, wantCreator: 2},
		{name: "below half rounds down", gross: 1001, fee: 0.30, wantFee: 300, wantCreator: 701},
		{name: "above half rounds up", gross: 1002, fee: 0.30, wantFee: 301, wantCreator: 701},
		{name: "one cent at 30 percent", gross: 1, fee: 0.30, wantFee: 0, wantCreator: 1},
		{name: "two cents at 25 percent", gross: 2, fee: 0.25, wantFee: 1, wantCreator: 1},
		{name: "large amount does not overflow", gross: math.MaxInt64, fee: 1, wantFee: math.MaxInt64, wantCreator: 0},
		{name: "seven decimal fee below one ppm", gross: 1_000_000_000, fee: 0.0000004, wantFee: 400, wantCreator: 999_999_600},
		{name: "seven decimal fee keeps last digit", gross: 10_000_000, fee: 0.1234565, wantFee: 1_234_565, wantCreator: 8_765_435},
		{name: "eight decimal fee", gross: 100_000_000, fee: 0.12345678, wantFee: 12_345_678, wantCreator: 87_654_322},
		{name: "seven decimal fee rounds half up", gross: 5, fee: 0.1000001, wantFee: 1, wantCreator: 4},
		{name: "exact half at eight decimal fee", gross: 10_000_000, fee: 0.00000015, wantFee: 2, wantCreator: 9_999_998},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			split, err := revenue.ComputeSplit(tt.gross, tt.fee)
			require.NoError(t, err)
			assert.Equal(t, tt.gross, split.GrossAmount)
			assert.Equal(t, tt.wantFee, split.PlatformFeeAmount)
			assert.Equal(t, tt.wantCreator, split.CreatorEarnings)
		})
	}
}

func TestComputeSplit_SumInvariant(t *testing.T) {
	t.Parallel()

	fees := []float64{0, 0.01, 0.05, 0.1, 0.15, 0.2, 0.25, 0.3, 0.333, 0.5, 0.6667, 0.99, 1}
	for gross := int64(0); gross <= 2500; gross += 7 {
		for _, fee := range fees {
			split, err := revenue.ComputeSplit(gross, fee)
			require.NoError(t, err)
			require.Equal(t, gross, split.PlatformFeeAmount+split.CreatorEarnings, "gross=%d fee=%v", gross, fee)
			require.GreaterOrEqual(t, split.PlatformFeeAmount, int64(0))
			require.GreaterOrEqual(t, split.CreatorEarnings, int64(0))
		}
	}
}

func TestComputeSplit_Errors(t *testing.T) {
	t.Parallel()

	t.Run("negative amount", func(t *testing.T) {
		t.Parallel()
		_, err := revenue.ComputeSplit(-1, 0.3)
		assert.ErrorIs(t, err, revenue.ErrInvalidAmount)
	})

	t.Run("percent below zero", func(t *testing.T) {
		t.Parallel()
		_, err := revenue.ComputeSplit(100, -0.01)
		assert.ErrorIs(t, err, revenue.ErrInvalidPercent)
	})

	t.Run("percent above one", func(t *testing.T) {
		t.Parallel()
		_, err := revenue.ComputeSplit(100, 1.01)
		assert.ErrorIs(t, err, revenue.ErrInvalidPercent)
	})

	t.Run("NaN percent", func(t *testing.T) {
		t.Parallel()
		_, err := revenue.ComputeSplit(100, math.NaN())
		assert.ErrorIs(t, err, revenue.ErrInvalidPercent)
	})
}

func TestMustComputeSplit_Panics(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { revenue.MustComputeSplit(-5, 0.3) })
	assert.NotPanics(t, func() { revenue.MustComputeSplit(500, 0.3) })
}
