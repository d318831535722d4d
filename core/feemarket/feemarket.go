// Copyright 2021 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

package feemarket

import (
	"math/big"
	"sync"

	"github.com/dominant-strategies/go-mempool/common"
	"github.com/dominant-strategies/go-mempool/metrics"
)

// fracScale is the fixed-point denominator used for fractional base fee
// adjustments, avoiding float arithmetic on the fee itself.
const fracScale = 1_000_000_000

var (
	feeMarketMetrics = metrics.NewGaugeVec("FeemarketGauges", "Fee market gauges")

	baseFeeGauge     = feeMarketMetrics.WithLabelValues("baseFee")
	utilizationGauge = feeMarketMetrics.WithLabelValues("utilization")
)

// PriorityTier selects the aggressiveness of a client-facing fee estimate.
type PriorityTier int

const (
	TierLow PriorityTier = iota
	TierMarket
	TierUrgent
)

// Config are the tuning parameters of the fee market controller.
type Config struct {
	WindowSize        int      // Number of recent block utilization samples retained
	TargetUtilization float64  // Utilization ratio the controller steers towards
	MaxChangeFraction float64  // Maximum fractional base fee change per observed block
	MinBaseFee        *big.Int // Base fee floor
	MaxBaseFee        *big.Int // Base fee ceiling
	InitialBaseFee    *big.Int // Base fee before any block has been observed
}

// DefaultConfig mirrors the EIP-1559 constants: half-full target with at most
// a 12.5% move per block.
var DefaultConfig = Config{
	WindowSize:        128,
	TargetUtilization: 0.5,
	MaxChangeFraction: 0.125,
	MinBaseFee:        big.NewInt(1),
	MaxBaseFee:        new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil),
	InitialBaseFee:    big.NewInt(1_000_000_000),
}

// sanitize checks the provided user configuration and changes anything that
// is unreasonable or unworkable.
func (config *Config) sanitize() Config {
	conf := *config
	if conf.WindowSize < 1 {
		conf.WindowSize = DefaultConfig.WindowSize
	}
	if conf.TargetUtilization <= 0 || conf.TargetUtilization >= 1 {
		conf.TargetUtilization = DefaultConfig.TargetUtilization
	}
	if conf.MaxChangeFraction <= 0 || conf.MaxChangeFraction >= 1 {
		conf.MaxChangeFraction = DefaultConfig.MaxChangeFraction
	}
	if conf.MinBaseFee == nil || conf.MinBaseFee.Sign() < 1 {
		conf.MinBaseFee = new(big.Int).Set(DefaultConfig.MinBaseFee)
	}
	if conf.MaxBaseFee == nil || conf.MaxBaseFee.Cmp(conf.MinBaseFee) < 0 {
		conf.MaxBaseFee = new(big.Int).Set(DefaultConfig.MaxBaseFee)
	}
	if conf.InitialBaseFee == nil || conf.InitialBaseFee.Cmp(conf.MinBaseFee) < 0 {
		conf.InitialBaseFee = new(big.Int).Set(conf.MinBaseFee)
	}
	return conf
}

// FeeMarket tracks network congestion over a sliding window of recent blocks
// and derives the current base fee from it. All methods are safe for
// concurrent use; reads take the fast path of copying a single big.Int.
type FeeMarket struct {
	config Config

	mu      sync.RWMutex
	baseFee *big.Int
	window  []float64 // Ring of recent utilization ratios
	cursor  int
	samples int
	epoch   uint64 // Bumped whenever the base fee changes, for cache invalidation
}

// New creates a fee market controller at the configured initial base fee.
func New(config Config) *FeeMarket {
	config = (&config).sanitize()
	fm := &FeeMarket{
		config:  config,
		baseFee: new(big.Int).Set(config.InitialBaseFee),
		window:  make([]float64, config.WindowSize),
	}
	if baseFeeGauge != nil {
		baseFeeGauge.Set(float64(fm.baseFee.Int64()))
	}
	return fm
}

// CurrentBaseFee returns the base fee derived from the last observed block.
func (fm *FeeMarket) CurrentBaseFee() *big.Int {
	fm.mu.RLock()
	defer fm.mu.RUnlock()

	return new(big.Int).Set(fm.baseFee)
}

// Epoch returns a counter that increments whenever the base fee moves. Cached
// values derived from the base fee are stale once the epoch changes.
func (fm *FeeMarket) Epoch() uint64 {
	fm.mu.RLock()
	defer fm.mu.RUnlock()

	return fm.epoch
}

// ObserveBlock feeds one produced or observed block into the controller and
// returns the new base fee. A zero gas limit is ignored as malformed input.
func (fm *FeeMarket) ObserveBlock(gasUsed, gasLimit uint64) *big.Int {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	if gasLimit == 0 {
		return new(big.Int).Set(fm.baseFee)
	}
	utilization := float64(gasUsed) / float64(gasLimit)
	if utilization > 1 {
		utilization = 1
	}
	fm.window[fm.cursor] = utilization
	fm.cursor = (fm.cursor + 1) % len(fm.window)
	if fm.samples < len(fm.window) {
		fm.samples++
	}

	next := fm.config.step(fm.baseFee, utilization)
	if next.Cmp(fm.baseFee) != 0 {
		fm.baseFee = next
		fm.epoch++
	}
	if baseFeeGauge != nil {
		baseFeeGauge.Set(float64(fm.baseFee.Int64()))
		utilizationGauge.Set(utilization)
	}
	return new(big.Int).Set(fm.baseFee)
}

// Predict extrapolates the base fee the given number of blocks ahead under
// the assumption that the most recent utilization persists. It is read-only
// and intended for client-facing estimation, never for admission decisions.
func (fm *FeeMarket) Predict(blocksAhead int) *big.Int {
	fm.mu.RLock()
	defer fm.mu.RUnlock()

	fee := new(big.Int).Set(fm.baseFee)
	if fm.samples == 0 || blocksAhead <= 0 {
		return fee
	}
	last := fm.window[(fm.cursor+len(fm.window)-1)%len(fm.window)]
	for i := 0; i < blocksAhead; i++ {
		fee = fm.config.step(fee, last)
	}
	return fee
}

// EstimateFee suggests a price for the given priority tier. Low pays the
// current base fee, Market covers the next predicted block, Urgent pays a
// 25% premium over two predicted blocks to survive a rising market.
func (fm *FeeMarket) EstimateFee(tier PriorityTier) *big.Int {
	switch tier {
	case TierLow:
		return fm.CurrentBaseFee()
	case TierUrgent:
		fee := fm.Predict(2)
		fee.Mul(fee, big.NewInt(125))
		return fee.Div(fee, common.Big100)
	default:
		return fm.Predict(1)
	}
}

// AverageUtilization reports the mean utilization across the retained window,
// exposed for observability.
func (fm *FeeMarket) AverageUtilization() float64 {
	fm.mu.RLock()
	defer fm.mu.RUnlock()

	if fm.samples == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < fm.samples; i++ {
		sum += fm.window[i]
	}
	return sum / float64(fm.samples)
}

// step applies one controller adjustment to fee for the given utilization.
// The move is proportional to the distance from target and hard-capped at
// MaxChangeFraction in either direction, then clamped into [floor, ceiling].
func (config *Config) step(fee *big.Int, utilization float64) *big.Int {
	target := config.TargetUtilization
	var frac float64
	if utilization > target {
		frac = config.MaxChangeFraction * (utilization - target) / (1 - target)
	} else {
		frac = -config.MaxChangeFraction * (target - utilization) / target
	}
	if frac > config.MaxChangeFraction {
		frac = config.MaxChangeFraction
	}
	if frac < -config.MaxChangeFraction {
		frac = -config.MaxChangeFraction
	}

	delta := new(big.Int).Mul(fee, big.NewInt(int64(frac*fracScale)))
	delta.Div(delta, big.NewInt(fracScale))
	if frac > 0 {
		// A congested market always moves, even at tiny fee levels.
		delta = common.BigMax(delta, common.Big1)
	}
	next := new(big.Int).Add(fee, delta)

	if next.Cmp(config.MinBaseFee) < 0 {
		return new(big.Int).Set(config.MinBaseFee)
	}
	if next.Cmp(config.MaxBaseFee) > 0 {
		return new(big.Int).Set(config.MaxBaseFee)
	}
	return next
}
