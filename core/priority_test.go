package core

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dominant-strategies/go-mempool/core/feemarket"
	"github.com/dominant-strategies/go-mempool/core/types"
)

func newTestPriority(config PriorityConfig) (*priorityManager, *feemarket.FeeMarket) {
	fm := feemarket.New(feemarket.DefaultConfig)
	return newPriorityManager(config, fm), fm
}

func TestHigherTipScoresHigher(t *testing.T) {
	pm, _ := newTestPriority(DefaultPriorityConfig)
	now := time.Now()

	rich := poolTx(senderA, 0, 2_000_000)
	poor := poolTx(senderB, 0, 1000)
	assert.Greater(t, pm.score(rich, now), pm.score(poor, now))
}

func TestSmallerTransactionScoresHigher(t *testing.T) {
	pm, _ := newTestPriority(PriorityConfig{SizeWeight: 1024})
	now := time.Now()

	small := poolTx(senderA, 0, 1000)
	large := types.NewTransaction(&types.TxData{
		From:      senderA,
		Nonce:     1,
		Value:     big.NewInt(100),
		Payload:   make([]byte, 4096),
		Gas:       21000,
		GasFeeCap: big.NewInt(3_000_000_000),
		GasTipCap: big.NewInt(1000),
	})
	assert.Greater(t, pm.score(small, now), pm.score(large, now))
}

func TestAgeRaisesScore(t *testing.T) {
	pm, _ := newTestPriority(DefaultPriorityConfig)

	tx := poolTx(senderA, 0, 1000)
	now := time.Now()
	assert.Greater(t, pm.score(tx, now.Add(time.Hour)), pm.score(tx, now))
}

func TestSenderBoost(t *testing.T) {
	config := PriorityConfig{
		TipWeight: 1,
		Boosts:    []Boost{{Kind: BoostSender, Sender: senderA, Amount: 1_000_000_000}},
	}
	pm, _ := newTestPriority(config)
	now := time.Now()

	boosted := poolTx(senderA, 0, 1000)
	plain := poolTx(senderB, 0, 1000)
	assert.Greater(t, pm.score(boosted, now), pm.score(plain, now))
}

func TestContractCreationBoost(t *testing.T) {
	config := PriorityConfig{
		TipWeight: 1,
		Boosts:    []Boost{{Kind: BoostContractCreation, Amount: 1_000_000_000}},
	}
	pm, _ := newTestPriority(config)
	now := time.Now()

	create := types.NewTransaction(&types.TxData{
		From:      senderA,
		Nonce:     0,
		Value:     big.NewInt(100),
		Gas:       21000,
		GasFeeCap: big.NewInt(3_000_000_000),
		GasTipCap: big.NewInt(1000),
	})
	transfer := poolTx(senderA, 1, 1000)
	assert.Greater(t, pm.score(create, now), pm.score(transfer, now))
}

func TestTipRatioBoost(t *testing.T) {
	// Bonus for tipping at least half the base fee over market
	config := PriorityConfig{
		TipWeight: 1,
		Boosts:    []Boost{{Kind: BoostTipRatio, TipPercent: 50, Amount: 10_000_000_000}},
	}
	pm, _ := newTestPriority(config)
	now := time.Now()

	// Base fee starts at 1 gwei; half of it is 500M wei
	qualifying := poolTx(senderA, 0, 600_000_000)
	shy := poolTx(senderB, 0, 400_000_000)

	diff := pm.score(qualifying, now) - pm.score(shy, now)
	assert.Greater(t, diff, 10_000_000_000.0-1, "the tip ratio bonus must apply on top of the tip difference")
}

func TestEpochChangeInvalidatesScores(t *testing.T) {
	pm, fm := newTestPriority(PriorityConfig{TipWeight: 1})
	now := time.Now()

	// Effective tip is capped by feeCap - baseFee and shrinks as the fee rises
	tx := types.NewTransaction(&types.TxData{
		From:      senderA,
		Nonce:     0,
		Value:     big.NewInt(100),
		Gas:       21000,
		GasFeeCap: big.NewInt(1_100_000_000),
		GasTipCap: big.NewInt(1_000_000_000),
	})
	before := pm.score(tx, now)

	for i := 0; i < 3; i++ {
		fm.ObserveBlock(1_000_000, 1_000_000)
	}
	require.NotEqual(t, uint64(0), fm.Epoch())

	after := pm.score(tx, now)
	assert.Less(t, after, before, "a higher base fee must lower the memoized tip component")
}

func TestScoreLessTieBreak(t *testing.T) {
	a := poolTx(senderA, 0, 1000)
	b := poolTx(senderB, 0, 1000)

	// Equal scores must produce a deterministic, antisymmetric order
	assert.NotEqual(t, scoreLess(a, b, 5, 5), scoreLess(b, a, 5, 5))
	assert.False(t, scoreLess(a, a, 5, 5))

	// Unequal scores win regardless of hash order
	assert.True(t, scoreLess(a, b, 1, 2))
	assert.False(t, scoreLess(a, b, 2, 1))
}
