package feemarket

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitialBaseFee(t *testing.T) {
	fm := New(DefaultConfig)
	assert.Equal(t, DefaultConfig.InitialBaseFee, fm.CurrentBaseFee())
	assert.Equal(t, uint64(0), fm.Epoch())
}

func TestFullBlocksRaiseBaseFee(t *testing.T) {
	fm := New(DefaultConfig)

	prev := fm.CurrentBaseFee()
	for i := 0; i < 10; i++ {
		next := fm.ObserveBlock(1_000_000, 1_000_000)
		require.Equal(t, 1, next.Cmp(prev), "base fee must rise on a full block")

		// The per block move is capped at 12.5%, allow a wei of rounding
		limit := new(big.Int).Mul(prev, big.NewInt(1125))
		limit.Div(limit, big.NewInt(1000))
		limit.Add(limit, big.NewInt(1))
		require.LessOrEqual(t, next.Cmp(limit), 0, "base fee moved more than the cap")

		prev = next
	}
	assert.Equal(t, uint64(10), fm.Epoch(), "every fee change must bump the epoch")
}

func TestEmptyBlocksFloorAtMinimum(t *testing.T) {
	config := DefaultConfig
	config.MinBaseFee = big.NewInt(100)
	config.InitialBaseFee = big.NewInt(1000)
	fm := New(config)

	prev := fm.CurrentBaseFee()
	for i := 0; i < 100; i++ {
		next := fm.ObserveBlock(0, 1_000_000)
		require.LessOrEqual(t, next.Cmp(prev), 0, "base fee must not rise on an empty block")
		prev = next
	}
	assert.Equal(t, big.NewInt(100), fm.CurrentBaseFee())
}

func TestTargetUtilizationHoldsFee(t *testing.T) {
	fm := New(DefaultConfig)

	for i := 0; i < 5; i++ {
		fm.ObserveBlock(500_000, 1_000_000)
	}
	assert.Equal(t, DefaultConfig.InitialBaseFee, fm.CurrentBaseFee())
	assert.Equal(t, uint64(0), fm.Epoch())
}

func TestZeroGasLimitIgnored(t *testing.T) {
	fm := New(DefaultConfig)

	assert.Equal(t, DefaultConfig.InitialBaseFee, fm.ObserveBlock(0, 0))
	assert.Equal(t, uint64(0), fm.Epoch())
}

func TestPredictIsReadOnly(t *testing.T) {
	fm := New(DefaultConfig)
	fm.ObserveBlock(1_000_000, 1_000_000)

	current := fm.CurrentBaseFee()
	epoch := fm.Epoch()

	one := fm.Predict(1)
	three := fm.Predict(3)
	assert.Equal(t, 1, one.Cmp(current), "prediction must extrapolate a congested market upwards")
	assert.Equal(t, 1, three.Cmp(one), "a longer horizon must extrapolate further")

	assert.Equal(t, current, fm.CurrentBaseFee(), "Predict must not move the base fee")
	assert.Equal(t, epoch, fm.Epoch())
}

func TestPredictWithoutSamples(t *testing.T) {
	fm := New(DefaultConfig)
	assert.Equal(t, fm.CurrentBaseFee(), fm.Predict(5))
}

func TestEstimateFeeTiers(t *testing.T) {
	fm := New(DefaultConfig)
	fm.ObserveBlock(1_000_000, 1_000_000)

	low := fm.EstimateFee(TierLow)
	market := fm.EstimateFee(TierMarket)
	urgent := fm.EstimateFee(TierUrgent)

	assert.Equal(t, fm.CurrentBaseFee(), low)
	assert.Equal(t, 1, market.Cmp(low), "market must price above the current fee in congestion")
	assert.Equal(t, 1, urgent.Cmp(market), "urgent must price above market")
}

func TestAverageUtilization(t *testing.T) {
	fm := New(DefaultConfig)
	assert.Equal(t, 0.0, fm.AverageUtilization())

	fm.ObserveBlock(1_000_000, 1_000_000)
	fm.ObserveBlock(500_000, 1_000_000)
	assert.InDelta(t, 0.75, fm.AverageUtilization(), 1e-9)
}

func TestSanitizeZeroConfig(t *testing.T) {
	fm := New(Config{})
	assert.Equal(t, big.NewInt(1), fm.CurrentBaseFee(), "unset initial fee must fall back to the floor")
	fm.ObserveBlock(1_000_000, 1_000_000)
	assert.Equal(t, 1, fm.CurrentBaseFee().Cmp(big.NewInt(1)), "a congested market must move off the floor")
}
