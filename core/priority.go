package core

import (
	"math/big"
	"sync"
	"time"

	"github.com/dominant-strategies/go-mempool/common"
	"github.com/dominant-strategies/go-mempool/core/feemarket"
	"github.com/dominant-strategies/go-mempool/core/types"
)

// BoostKind enumerates the configurable priority boosts. The set is closed on
// purpose: boosts are data, not runtime-injected hooks, so two nodes with the
// same configuration order transactions identically.
type BoostKind int

const (
	// BoostSender grants a flat bonus to every transaction from one address.
	BoostSender BoostKind = iota
	// BoostContractCreation grants a flat bonus to creation transactions (nil recipient).
	BoostContractCreation
	// BoostTipRatio grants a flat bonus when the effective tip exceeds the
	// current base fee by at least TipPercent percent.
	BoostTipRatio
)

// Boost is one configured priority bonus.
type Boost struct {
	Kind       BoostKind
	Sender     common.Address // BoostSender only
	TipPercent uint64         // BoostTipRatio only
	Amount     float64
}

// PriorityConfig are the weights combined into a transaction's priority score.
// Higher scores are selected first. All weights are configuration; none are
// hard-coded into the scoring function.
type PriorityConfig struct {
	TipWeight  float64 // Weight of the effective tip above the base fee, per gwei
	SizeWeight float64 // Weight of the inverse byte size (favors compact transactions)
	AgeWeight  float64 // Weight of pool residence, per second (prevents starvation)
	Boosts     []Boost
}

// DefaultPriorityConfig orders almost purely by effective tip, with a small
// age term so a starving transaction eventually outbids a marginally better
// newcomer.
var DefaultPriorityConfig = PriorityConfig{
	TipWeight:  1,
	SizeWeight: 1024,
	AgeWeight:  0.001,
}

// priorityManager computes the comparable ordering key used for block
// selection and capacity eviction. Scoring is pure; the fee-dependent part is
// memoized per transaction and invalidated when the fee market moves to a new
// base fee epoch.
type priorityManager struct {
	config    PriorityConfig
	feeMarket *feemarket.FeeMarket

	mu    sync.Mutex
	epoch uint64
	cache map[common.Hash]float64 // Fee-dependent score component per transaction
}

func newPriorityManager(config PriorityConfig, feeMarket *feemarket.FeeMarket) *priorityManager {
	return &priorityManager{
		config:    config,
		feeMarket: feeMarket,
		cache:     make(map[common.Hash]float64),
	}
}

// score returns the priority of a transaction at the given instant. Ties must
// be broken by hash via scoreLess, never by comparing floats for equality.
func (pm *priorityManager) score(tx *types.Transaction, now time.Time) float64 {
	pm.mu.Lock()
	epoch := pm.feeMarket.Epoch()
	if epoch != pm.epoch {
		// Base fee moved, every memoized tip component is stale.
		pm.cache = make(map[common.Hash]float64)
		pm.epoch = epoch
	}
	static, ok := pm.cache[tx.Hash()]
	if !ok {
		static = pm.staticScore(tx)
		pm.cache[tx.Hash()] = static
	}
	pm.mu.Unlock()

	age := now.Sub(tx.Time()).Seconds()
	if age < 0 {
		age = 0
	}
	return static + pm.config.AgeWeight*age
}

// staticScore computes the residence-independent score components.
func (pm *priorityManager) staticScore(tx *types.Transaction) float64 {
	baseFee := pm.feeMarket.CurrentBaseFee()
	tip := tx.EffectiveGasTip(baseFee)

	score := pm.config.TipWeight * bigToFloat(tip)
	if size := tx.Size(); size > 0 {
		score += pm.config.SizeWeight / float64(size)
	}
	for _, boost := range pm.config.Boosts {
		switch boost.Kind {
		case BoostSender:
			if tx.From() == boost.Sender {
				score += boost.Amount
			}
		case BoostContractCreation:
			if tx.To() == nil {
				score += boost.Amount
			}
		case BoostTipRatio:
			// tip * 100 >= baseFee * percent
			lhs := new(big.Int).Mul(tip, common.Big100)
			rhs := new(big.Int).Mul(baseFee, new(big.Int).SetUint64(boost.TipPercent))
			if lhs.Cmp(rhs) >= 0 {
				score += boost.Amount
			}
		}
	}
	return score
}

// forget drops the memoized component of a removed transaction.
func (pm *priorityManager) forget(hash common.Hash) {
	pm.mu.Lock()
	delete(pm.cache, hash)
	pm.mu.Unlock()
}

// scoreLess reports whether a ranks strictly below b. Equal scores fall back
// to the transaction hashes so that every instance of the pool produces the
// same total order.
func scoreLess(a, b *types.Transaction, scoreA, scoreB float64) bool {
	if scoreA != scoreB {
		return scoreA < scoreB
	}
	return a.Hash().Cmp(b.Hash()) < 0
}

func bigToFloat(v *big.Int) float64 {
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}
