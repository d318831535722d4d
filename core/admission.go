package core

import (
	"math/big"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"

	"github.com/dominant-strategies/go-mempool/common"
	"github.com/dominant-strategies/go-mempool/core/feemarket"
	"github.com/dominant-strategies/go-mempool/core/types"
	"github.com/dominant-strategies/go-mempool/log"
)

const (
	// c_maxSpamCache bounds the number of senders with tracked arrival windows.
	c_maxSpamCache = 4096
)

// admission performs the stateless and stateful validity checks on incoming
// transactions before they touch the pool's data structures. Checks run
// cheapest first so obviously invalid submissions are rejected without a
// state read.
type admission struct {
	config    Config
	feeMarket *feemarket.FeeMarket
	state     StateReader
	validator Validator
	noncer    *txNoncer
	logger    *log.Logger

	// arrivals tracks recent submission timestamps per sender for the spam
	// window. Entries are pruned lazily on the next check.
	arrivals *lru.Cache

	// senderCount reports how many transactions a sender already has pooled.
	// Set by the pool, read under the pool lock.
	senderCount func(common.Address) int

	// occupied reports whether the sender already holds the given nonce slot.
	// Set by the pool, read under the pool lock.
	occupied func(common.Address, uint64) bool
}

func newAdmission(config Config, feeMarket *feemarket.FeeMarket, state StateReader, validator Validator, noncer *txNoncer, logger *log.Logger) *admission {
	arrivals, _ := lru.New(c_maxSpamCache)
	if validator == nil {
		validator = NoopValidator{}
	}
	return &admission{
		config:    config,
		feeMarket: feeMarket,
		state:     state,
		validator: validator,
		noncer:    noncer,
		logger:    logger,
		arrivals:  arrivals,
	}
}

// verify runs the full admission pipeline on one transaction. A nil return
// means the transaction may be inserted, replaced, or queued; the caller still
// resolves capacity and replacement rules. Callers hold the pool lock.
func (a *admission) verify(tx *types.Transaction) error {
	// Structural limits first, they only need the cached envelope.
	if tx.Size() > a.config.MaxTxSize {
		return ErrOversizedData
	}
	if tx.Gas() > a.config.MaxTxGas {
		return ErrGasLimit
	}
	// Field sanity.
	if tx.Value().Sign() < 0 {
		return ErrNegativeValue
	}
	if tx.GasTipCap().Cmp(tx.GasFeeCap()) > 0 {
		return ErrTipAboveFeeCap
	}
	// Fee floor against the live base fee and the configured minimum tip.
	baseFee := a.feeMarket.CurrentBaseFee()
	if tx.GasFeeCap().Cmp(baseFee) < 0 {
		return ErrUnderpriced
	}
	if tx.EffectiveGasTip(baseFee).Cmp(new(big.Int).SetUint64(a.config.PriceLimit)) < 0 {
		return ErrUnderpriced
	}
	// Rate limiting, no state access needed. A replacement of an already
	// occupied nonce slot does not grow the sender's footprint, so the
	// per-sender ceiling and the spam window do not apply to it.
	if a.occupied == nil || !a.occupied(tx.From(), tx.Nonce()) {
		if a.spamming(tx.From()) {
			return ErrSpamProtection
		}
		if a.senderCount != nil && uint64(a.senderCount(tx.From())) >= a.config.MaxPerSender {
			return ErrSenderLimit
		}
	}
	// State-backed checks last.
	stateNonce, err := a.state.GetNonce(tx.From())
	if err != nil {
		a.logger.WithFields(log.Fields{"tx": tx.Hash(), "err": err}).Debug("State unavailable during admission")
		return ErrStateUnavailable
	}
	if tx.Nonce() < stateNonce {
		return ErrNonceTooLow
	}
	if a.config.RequireContiguous {
		expected, err := a.noncer.get(tx.From())
		if err != nil {
			return ErrStateUnavailable
		}
		if tx.Nonce() > expected {
			return ErrNonceGapped
		}
	}
	balance, err := a.state.GetBalance(tx.From())
	if err != nil {
		a.logger.WithFields(log.Fields{"tx": tx.Hash(), "err": err}).Debug("State unavailable during admission")
		return ErrStateUnavailable
	}
	if balance.Cmp(tx.Cost()) < 0 {
		return ErrInsufficientFunds
	}
	// Pluggable semantic validation runs last, it is the one check whose cost
	// the pool does not control.
	if err := a.validator.Validate(tx, stateNonce); err != nil {
		if errors.Is(err, ErrDelayed) {
			return ErrStateUnavailable
		}
		return errors.Wrap(ErrValidationFailed, err.Error())
	}
	return nil
}

// spamming reports whether the sender exceeded the arrival rate window. Stale
// timestamps are pruned in place.
func (a *admission) spamming(from common.Address) bool {
	if a.config.SpamThreshold == 0 {
		return false
	}
	cutoff := time.Now().Add(-a.config.SpamWindow)
	var recent []time.Time
	if cached, ok := a.arrivals.Get(from); ok {
		for _, at := range cached.([]time.Time) {
			if at.After(cutoff) {
				recent = append(recent, at)
			}
		}
		a.arrivals.Add(from, recent)
	}
	return uint64(len(recent)) >= a.config.SpamThreshold
}

// recordArrival notes an accepted submission for the sender's spam window.
func (a *admission) recordArrival(from common.Address) {
	if a.config.SpamThreshold == 0 {
		return
	}
	var recent []time.Time
	if cached, ok := a.arrivals.Get(from); ok {
		recent = cached.([]time.Time)
	}
	a.arrivals.Add(from, append(recent, time.Now()))
}
