// Copyright 2014 The go-ethereum Authors
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

package core

import (
	"container/heap"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/dominant-strategies/go-mempool/common"
	"github.com/dominant-strategies/go-mempool/common/prque"
	"github.com/dominant-strategies/go-mempool/core/feemarket"
	"github.com/dominant-strategies/go-mempool/core/types"
	"github.com/dominant-strategies/go-mempool/log"
	"github.com/dominant-strategies/go-mempool/metrics"
)

const (
	// txSlotSize is used to calculate how many data slots a single transaction
	// takes up based on its size. The slots are used as DoS protection, ensuring
	// that validating a new transaction remains a constant operation (in reality
	// O(maxslots), where max slots are 4 currently).
	txSlotSize = 32 * 1024

	// c_maxIncludedCache bounds the number of recently included transaction
	// hashes remembered for status queries.
	c_maxIncludedCache = 8192
)

var (
	// evictionInterval is the time interval between pool sweeps for expired
	// future transactions.
	evictionInterval = time.Minute

	// statsReportInterval is the time interval to report transaction pool stats.
	statsReportInterval = 8 * time.Second
)

var (
	txpoolMetrics = metrics.NewGaugeVec("TxpoolGauges", "Txpool gauges")

	// Pending pool metrics
	pendingDiscardMeter   = txpoolMetrics.WithLabelValues("pending:discard")
	pendingReplaceMeter   = txpoolMetrics.WithLabelValues("pending:replace")
	pendingRateLimitMeter = txpoolMetrics.WithLabelValues("pending:rateLimit") // Dropped due to rate limiting
	pendingNofundsMeter   = txpoolMetrics.WithLabelValues("pending:noFunds")   // Dropped due to out-of-funds
	pendingEvictionMeter  = txpoolMetrics.WithLabelValues("pending:eviction")  // Dropped due to lifetime

	// Metrics for the queued pool
	queuedDiscardMeter   = txpoolMetrics.WithLabelValues("queued:discard")
	queuedReplaceMeter   = txpoolMetrics.WithLabelValues("queued:replace")
	queuedRateLimitMeter = txpoolMetrics.WithLabelValues("queued:ratelimit") // Dropped due to rate limiting
	queuedNofundsMeter   = txpoolMetrics.WithLabelValues("queued:nofund")    // Dropped due to out-of-funds
	queuedEvictionMeter  = txpoolMetrics.WithLabelValues("queued:eviction")  // Dropped due to lifetime

	// General tx metrics
	knownTxMeter       = txpoolMetrics.WithLabelValues("known")       // Known transaction
	invalidTxMeter     = txpoolMetrics.WithLabelValues("invalid")     // Invalid transaction
	underpricedTxMeter = txpoolMetrics.WithLabelValues("underpriced") // Underpriced transaction
	overflowedTxMeter  = txpoolMetrics.WithLabelValues("overflowed")  // Overflowed transaction
	includedTxMeter    = txpoolMetrics.WithLabelValues("included")    // Included in a block

	pendingTxGauge = txpoolMetrics.WithLabelValues("pending")
	queuedGauge    = txpoolMetrics.WithLabelValues("queued")
	slotsGauge     = txpoolMetrics.WithLabelValues("slots")
)

// TxStatus is the current status of a transaction as seen by the pool.
type TxStatus uint

const (
	TxStatusUnknown TxStatus = iota
	TxStatusQueued
	TxStatusPending
	TxStatusIncluded
)

// Config are the configuration parameters of the transaction pool.
type Config struct {
	PriceLimit uint64 // Minimum effective tip to enforce for acceptance into the pool
	PriceBump  uint64 // Minimum price bump percentage to replace an already existing transaction (nonce); 0 accepts any strictly higher priced replacement

	MaxTxSize uint64 // Maximum encoded byte size of a single transaction
	MaxTxGas  uint64 // Maximum gas a single transaction may request

	AccountSlots uint64 // Number of executable transaction slots guaranteed per account
	GlobalSlots  uint64 // Maximum number of executable transaction slots for all accounts
	AccountQueue uint64 // Maximum number of non-executable transaction slots permitted per account
	GlobalQueue  uint64 // Maximum number of non-executable transaction slots for all accounts
	MaxPerSender uint64 // Hard cap on pooled transactions per sender, across both partitions

	Lifetime      time.Duration // Maximum amount of time non-executable transactions are queued
	SpamWindow    time.Duration // Rolling window for the per-sender admission rate limit
	SpamThreshold uint64        // Admissions permitted per sender inside the spam window, 0 disables

	RequireContiguous bool // Reject rather than queue transactions ahead of the next nonce
}

// DefaultConfig contains the default configurations for the transaction pool.
var DefaultConfig = Config{
	PriceLimit: 1,
	PriceBump:  10,

	MaxTxSize: 4 * txSlotSize,
	MaxTxGas:  12_000_000,

	AccountSlots: 1,
	GlobalSlots:  9000 + 1024,
	AccountQueue: 1,
	GlobalQueue:  2048,
	MaxPerSender: 64,

	Lifetime:      3 * time.Hour,
	SpamWindow:    time.Minute,
	SpamThreshold: 0,
}

// sanitize checks the provided user configurations and changes anything that's
// unreasonable or unworkable.
func (config *Config) sanitize(logger *log.Logger) Config {
	conf := *config
	if conf.MaxTxSize < 1 {
		logger.WithFields(log.Fields{"provided": conf.MaxTxSize, "updated": DefaultConfig.MaxTxSize}).Warn("Sanitizing invalid txpool max transaction size")
		conf.MaxTxSize = DefaultConfig.MaxTxSize
	}
	if conf.MaxTxGas < 1 {
		logger.WithFields(log.Fields{"provided": conf.MaxTxGas, "updated": DefaultConfig.MaxTxGas}).Warn("Sanitizing invalid txpool max transaction gas")
		conf.MaxTxGas = DefaultConfig.MaxTxGas
	}
	if conf.AccountSlots < 1 {
		logger.WithFields(log.Fields{"provided": conf.AccountSlots, "updated": DefaultConfig.AccountSlots}).Warn("Sanitizing invalid txpool account slots")
		conf.AccountSlots = DefaultConfig.AccountSlots
	}
	if conf.GlobalSlots < 1 {
		logger.WithFields(log.Fields{"provided": conf.GlobalSlots, "updated": DefaultConfig.GlobalSlots}).Warn("Sanitizing invalid txpool global slots")
		conf.GlobalSlots = DefaultConfig.GlobalSlots
	}
	if conf.AccountQueue < 1 {
		logger.WithFields(log.Fields{"provided": conf.AccountQueue, "updated": DefaultConfig.AccountQueue}).Warn("Sanitizing invalid txpool account queue")
		conf.AccountQueue = DefaultConfig.AccountQueue
	}
	if conf.GlobalQueue < 1 {
		logger.WithFields(log.Fields{"provided": conf.GlobalQueue, "updated": DefaultConfig.GlobalQueue}).Warn("Sanitizing invalid txpool global queue")
		conf.GlobalQueue = DefaultConfig.GlobalQueue
	}
	if conf.MaxPerSender < 1 {
		logger.WithFields(log.Fields{"provided": conf.MaxPerSender, "updated": DefaultConfig.MaxPerSender}).Warn("Sanitizing invalid txpool per sender limit")
		conf.MaxPerSender = DefaultConfig.MaxPerSender
	}
	if conf.Lifetime < 1 {
		logger.WithFields(log.Fields{"provided": conf.Lifetime, "updated": DefaultConfig.Lifetime}).Warn("Sanitizing invalid txpool lifetime")
		conf.Lifetime = DefaultConfig.Lifetime
	}
	if conf.SpamThreshold > 0 && conf.SpamWindow < 1 {
		logger.WithFields(log.Fields{"provided": conf.SpamWindow, "updated": DefaultConfig.SpamWindow}).Warn("Sanitizing invalid txpool spam window")
		conf.SpamWindow = DefaultConfig.SpamWindow
	}
	return conf
}

// AddResult describes the successful outcome of a submission. A transaction
// rejected by admission produces an error instead and leaves the pool
// untouched.
type AddResult struct {
	Hash common.Hash

	Pending      bool               // Entered the executable partition
	Queued       bool               // Parked in the future queue
	Replaced     *types.Transaction // Same-nonce transaction it displaced, if any
	AlreadyKnown bool               // Identical transaction was already pooled; no-op
}

// TxPool contains all currently known transactions. Transactions enter the
// pool when they pass admission and exit when they are included in a block or
// become invalid or evicted.
//
// The pool separates executable transactions (which can be selected for the
// next block) and future transactions (whose nonce is still gapped).
// Transactions move between those two states over time as account nonces and
// balances move, and as gaps fill in.
type TxPool struct {
	config    Config
	feeMarket *feemarket.FeeMarket
	admission *admission
	priority  *priorityManager
	state     StateReader
	logger    *log.Logger

	mu sync.RWMutex

	pending map[common.Address]*txList   // All currently executable transactions
	queue   map[common.Address]*txList   // Queued but non-executable transactions
	beats   map[common.Address]time.Time // Last activity from each known account
	all     *txLookup                    // All transactions to allow lookups

	pendingNonces *txNoncer // Pending state tracking virtual nonces

	included *orderedmap.OrderedMap[common.Hash, time.Time] // Recently included hashes, FIFO bounded

	wg         sync.WaitGroup
	shutdownCh chan struct{}
}

// New creates a transaction pool around the given account state reader. The
// pool owns its fee market and starts a background loop that prunes expired
// future transactions and reports stats; call Stop to release it.
func New(config Config, feeConfig feemarket.Config, state StateReader, validator Validator, priorityConfig PriorityConfig, logger *log.Logger) *TxPool {
	if logger == nil {
		logger = log.Global()
	}
	config = (&config).sanitize(logger)

	feeMarket := feemarket.New(feeConfig)
	pool := &TxPool{
		config:     config,
		feeMarket:  feeMarket,
		state:      state,
		logger:     logger,
		pending:    make(map[common.Address]*txList),
		queue:      make(map[common.Address]*txList),
		beats:      make(map[common.Address]time.Time),
		all:        newTxLookup(),
		included:   orderedmap.New[common.Hash, time.Time](),
		shutdownCh: make(chan struct{}),
	}
	pool.pendingNonces = newTxNoncer(state)
	pool.priority = newPriorityManager(priorityConfig, feeMarket)
	pool.admission = newAdmission(config, feeMarket, state, validator, pool.pendingNonces, logger)
	pool.admission.senderCount = func(addr common.Address) int {
		count := 0
		if list := pool.pending[addr]; list != nil {
			count += list.Len()
		}
		if list := pool.queue[addr]; list != nil {
			count += list.Len()
		}
		return count
	}
	pool.admission.occupied = func(addr common.Address, nonce uint64) bool {
		if list := pool.pending[addr]; list != nil && list.Get(nonce) != nil {
			return true
		}
		if list := pool.queue[addr]; list != nil && list.Get(nonce) != nil {
			return true
		}
		return false
	}

	pool.wg.Add(1)
	go pool.loop()

	logger.WithField("config", config).Info("Transaction pool started")
	return pool
}

// FeeMarket exposes the pool's fee market for estimation queries.
func (pool *TxPool) FeeMarket() *feemarket.FeeMarket {
	return pool.feeMarket
}

// loop is the transaction pool's main event loop, waiting for and reacting to
// timed events from the outside world.
func (pool *TxPool) loop() {
	defer pool.wg.Done()

	var (
		prevPending, prevQueued int

		report = time.NewTicker(statsReportInterval)
		evict  = time.NewTicker(evictionInterval)
	)
	defer report.Stop()
	defer evict.Stop()

	for {
		select {
		case <-pool.shutdownCh:
			return

		case <-report.C:
			pending, queued := pool.Stats()
			if pending != prevPending || queued != prevQueued {
				pool.logger.WithFields(log.Fields{
					"executable": pending,
					"queued":     queued,
				}).Debug("Transaction pool status report")
				prevPending, prevQueued = pending, queued
			}

		case <-evict.C:
			if dropped := pool.PruneExpired(); dropped > 0 {
				pool.logger.WithFields(log.Fields{
					"count":    dropped,
					"lifetime": common.PrettyDuration(pool.config.Lifetime),
				}).Debug("Evicted expired future transactions")
			}
		}
	}
}

// Stop terminates the transaction pool's background loop.
func (pool *TxPool) Stop() {
	close(pool.shutdownCh)
	pool.wg.Wait()
	pool.logger.Info("Transaction pool stopped")
}

// Submit validates a transaction and inserts it into the pool. It either lands
// in the executable partition, is parked in the future queue, or is rejected
// with one of the admission errors. Submitting a transaction whose exact hash
// is already pooled is a reported no-op, not an error.
func (pool *TxPool) Submit(tx *types.Transaction) (AddResult, error) {
	if tx == nil {
		return AddResult{}, errors.New("nil transaction")
	}
	pool.mu.Lock()
	defer pool.mu.Unlock()

	return pool.add(tx)
}

// SubmitBatch adds a batch of transactions under a single pool lock, returning
// a result and an error slot per input, index aligned. Earlier transactions in
// the batch can unblock later ones from the same sender.
func (pool *TxPool) SubmitBatch(txs types.Transactions) ([]AddResult, []error) {
	results := make([]AddResult, len(txs))
	errs := make([]error, len(txs))

	pool.mu.Lock()
	defer pool.mu.Unlock()

	for i, tx := range txs {
		if tx == nil {
			errs[i] = errors.New("nil transaction")
			continue
		}
		results[i], errs[i] = pool.add(tx)
	}
	return results, errs
}

// add validates a transaction and inserts it into the non-executable queue for
// later pending promotion and execution, or into pending directly when it
// replaces an executable transaction. The caller holds the pool lock.
func (pool *TxPool) add(tx *types.Transaction) (AddResult, error) {
	// If the transaction is already known, discard it
	hash := tx.Hash()
	if pool.all.Get(hash) != nil {
		knownTxMeter.Add(1)
		return AddResult{Hash: hash, AlreadyKnown: true}, nil
	}
	// Run the admission pipeline before touching any pool state
	if err := pool.admission.verify(tx); err != nil {
		pool.logger.WithFields(log.Fields{"tx": hash, "err": err}).Trace("Discarding inadmissible transaction")
		switch {
		case errors.Is(err, ErrUnderpriced):
			underpricedTxMeter.Add(1)
		case errors.Is(err, ErrStateUnavailable):
			// Not a verdict on the transaction, keep it out of invalid counts
		default:
			invalidTxMeter.Add(1)
		}
		return AddResult{}, err
	}
	// If the pool is full, try to outbid the cheapest evictable transaction
	if uint64(pool.all.Slots()+numSlots(tx)) > pool.config.GlobalSlots+pool.config.GlobalQueue {
		if err := pool.makeRoom(tx); err != nil {
			overflowedTxMeter.Add(1)
			pool.logger.WithFields(log.Fields{"tx": hash, "err": err}).Trace("Discarding overflown transaction")
			return AddResult{}, err
		}
	}
	from := tx.From()
	// Try to replace an existing transaction in the pending pool
	if list := pool.pending[from]; list != nil && list.Overlaps(tx) {
		inserted, old := list.Add(tx, pool.config.PriceBump)
		if !inserted {
			pendingDiscardMeter.Add(1)
			return AddResult{}, ErrReplaceUnderpriced
		}
		if old != nil {
			pool.all.Remove(old.Hash())
			pool.priority.forget(old.Hash())
			pendingReplaceMeter.Add(1)
		}
		pool.all.Add(tx)
		pool.beats[from] = time.Now()
		pool.admission.recordArrival(from)
		pool.logger.WithFields(log.Fields{"tx": hash, "from": from, "nonce": tx.Nonce()}).Trace("Pooled replacement transaction")
		return AddResult{Hash: hash, Pending: true, Replaced: old}, nil
	}
	// New transaction isn't replacing a pending one, push into queue
	replaced, err := pool.enqueueTx(hash, tx)
	if err != nil {
		return AddResult{}, err
	}
	pool.admission.recordArrival(from)

	// Promote whatever the insertion made executable
	pool.promoteExecutables([]common.Address{from})

	result := AddResult{Hash: hash, Replaced: replaced}
	if list := pool.pending[from]; list != nil && list.Get(tx.Nonce()) == tx {
		result.Pending = true
	} else {
		result.Queued = true
	}
	pool.logger.WithFields(log.Fields{"tx": hash, "from": from, "nonce": tx.Nonce(), "pending": result.Pending}).Trace("Pooled new transaction")
	return result, nil
}

// enqueueTx inserts a new transaction into the non-executable transaction
// queue. The caller holds the pool lock.
func (pool *TxPool) enqueueTx(hash common.Hash, tx *types.Transaction) (*types.Transaction, error) {
	// Try to insert the transaction into the future queue
	from := tx.From()
	if pool.queue[from] == nil {
		pool.queue[from] = newTxList(false)
	}
	inserted, old := pool.queue[from].Add(tx, pool.config.PriceBump)
	if !inserted {
		// An older transaction was better, discard this
		queuedDiscardMeter.Add(1)
		return nil, ErrReplaceUnderpriced
	}
	// Discard any previous transaction and mark this
	if old != nil {
		pool.all.Remove(old.Hash())
		pool.priority.forget(old.Hash())
		queuedReplaceMeter.Add(1)
	} else {
		queuedGauge.Add(1)
	}
	pool.all.Add(tx)
	if _, ok := pool.beats[from]; !ok {
		pool.beats[from] = time.Now()
	}
	return old, nil
}

// promoteTx adds a transaction to the pending (processable) list of
// transactions and returns whether it was inserted or an older was better.
// The caller holds the pool lock.
func (pool *TxPool) promoteTx(addr common.Address, hash common.Hash, tx *types.Transaction) bool {
	// Try to insert the transaction into the pending queue
	if pool.pending[addr] == nil {
		pool.pending[addr] = newTxList(true)
	}
	list := pool.pending[addr]

	inserted, old := list.Add(tx, pool.config.PriceBump)
	if !inserted {
		// An older transaction was better, discard this
		pool.all.Remove(hash)
		pool.priority.forget(hash)
		pendingDiscardMeter.Add(1)
		return false
	}
	// Otherwise discard any previous transaction and mark this
	if old != nil {
		pool.all.Remove(old.Hash())
		pool.priority.forget(old.Hash())
		pendingReplaceMeter.Add(1)
	} else {
		pendingTxGauge.Add(1)
	}
	// Set the potentially new pending nonce and notify any subsystems of the new tx
	pool.beats[addr] = time.Now()
	pool.pendingNonces.set(addr, tx.Nonce()+1)

	return true
}

// makeRoom evicts low-priority pooled transactions until the candidate fits,
// failing with ErrPoolFull when the candidate does not outbid the cheapest
// victim. Only the highest-nonce tail of each sender's list is ever a victim,
// and future-queue tails are sacrificed before pending tails, so eviction
// never gaps an executable sequence. A lower-nonce transaction can therefore
// score below every victim yet stay pooled. The caller holds the pool lock.
func (pool *TxPool) makeRoom(tx *types.Transaction) error {
	now := time.Now()
	candidate := pool.priority.score(tx, now)

	for uint64(pool.all.Slots()+numSlots(tx)) > pool.config.GlobalSlots+pool.config.GlobalQueue {
		victim, victimScore := pool.cheapestTail(pool.queue, now)
		if victim == nil {
			victim, victimScore = pool.cheapestTail(pool.pending, now)
		}
		if victim == nil || !scoreLess(victim, tx, victimScore, candidate) {
			return ErrPoolFull
		}
		pool.logger.WithFields(log.Fields{"victim": victim.Hash(), "tx": tx.Hash()}).Trace("Evicting transaction for higher priority arrival")
		pool.removeTx(victim.Hash(), true)
	}
	return nil
}

// cheapestTail returns the lowest-priority highest-nonce transaction across
// the given partition. Only list tails are candidates, removing one never
// invalidates a lower nonce.
func (pool *TxPool) cheapestTail(partition map[common.Address]*txList, now time.Time) (*types.Transaction, float64) {
	var (
		victim *types.Transaction
		score  float64
	)
	for _, list := range partition {
		if list.Empty() {
			continue
		}
		tail := list.LastElement()
		tailScore := pool.priority.score(tail, now)
		if victim == nil || scoreLess(tail, victim, tailScore, score) {
			victim, score = tail, tailScore
		}
	}
	return victim, score
}

// removeTx removes a single transaction from the pool, moving all subsequent
// transactions back to the future queue. The caller holds the pool lock.
func (pool *TxPool) removeTx(hash common.Hash, outofbound bool) {
	// Fetch the transaction we wish to delete
	tx := pool.all.Get(hash)
	if tx == nil {
		return
	}
	addr := tx.From()

	// Remove it from the list of known transactions
	pool.all.Remove(hash)
	pool.priority.forget(hash)

	// Remove the transaction from the pending lists and reset the account nonce
	if pending := pool.pending[addr]; pending != nil {
		if removed, invalids := pending.Remove(tx); removed {
			// If no more pending transactions are left, remove the list
			if pending.Empty() {
				delete(pool.pending, addr)
			}
			// Postpone any invalidated transactions
			for _, tx := range invalids {
				pool.enqueueTx(tx.Hash(), tx)
			}
			// Update the account nonce if needed
			pool.pendingNonces.setIfLower(addr, tx.Nonce())
			// Reduce the pending counter
			pendingTxGauge.Sub(float64(len(invalids) + 1))
			queuedGauge.Add(float64(len(invalids)))
			return
		}
	}
	// Transaction is in the future queue
	if future := pool.queue[addr]; future != nil {
		if removed, _ := future.Remove(tx); removed {
			// Reduce the queued counter
			queuedGauge.Sub(1)
		}
		if future.Empty() {
			delete(pool.queue, addr)
			delete(pool.beats, addr)
		}
	}
}

// promoteExecutables moves transactions that have become processable from the
// future queue to the set of pending transactions. During this process, all
// invalidated transactions (low nonce, low balance) are deleted. The caller
// holds the pool lock.
func (pool *TxPool) promoteExecutables(accounts []common.Address) {
	// Iterate over all accounts and promote any executable transactions
	for _, addr := range accounts {
		list := pool.queue[addr]
		if list == nil {
			continue // Just in case someone calls with a non existing account
		}
		stateNonce, err := pool.state.GetNonce(addr)
		if err != nil {
			pool.logger.WithFields(log.Fields{"addr": addr, "err": err}).Debug("Skipping promotion, state unavailable")
			continue
		}
		// Drop all transactions that are deemed too old (low nonce)
		forwards := list.Forward(stateNonce)
		for _, tx := range forwards {
			hash := tx.Hash()
			pool.all.Remove(hash)
			pool.priority.forget(hash)
			pool.logger.WithField("tx", hash).Trace("Removed old queued transaction")
		}
		// Drop all transactions that are too costly (low balance or out of gas)
		balance, err := pool.state.GetBalance(addr)
		if err != nil {
			pool.logger.WithFields(log.Fields{"addr": addr, "err": err}).Debug("Skipping promotion, state unavailable")
			continue
		}
		drops, _ := list.Filter(balance, pool.config.MaxTxGas)
		for _, tx := range drops {
			hash := tx.Hash()
			pool.all.Remove(hash)
			pool.priority.forget(hash)
			pool.logger.WithField("tx", hash).Trace("Removed unpayable queued transaction")
		}
		queuedNofundsMeter.Add(float64(len(drops)))

		// Gather all executable transactions and promote them
		pendingNonce, err := pool.pendingNonces.get(addr)
		if err != nil {
			continue
		}
		readies := list.Ready(pendingNonce)
		promoted := 0
		for _, tx := range readies {
			if pool.promoteTx(addr, tx.Hash(), tx) {
				promoted++
			}
		}
		if promoted > 0 {
			pool.logger.WithFields(log.Fields{"from": addr, "count": promoted}).Trace("Promoted queued transactions")
		}
		// Drop all transactions over the allowed limit
		caps := list.Cap(int(pool.config.AccountQueue))
		for _, tx := range caps {
			hash := tx.Hash()
			pool.all.Remove(hash)
			pool.priority.forget(hash)
			pool.logger.WithField("tx", hash).Trace("Removed cap-exceeding queued transaction")
		}
		queuedRateLimitMeter.Add(float64(len(caps)))
		// Mark all the items dropped as removed
		queuedGauge.Sub(float64(len(forwards) + len(drops) + len(caps) + len(readies)))

		// Delete the entire queue entry if it became empty.
		if list.Empty() {
			delete(pool.queue, addr)
			if _, ok := pool.pending[addr]; !ok {
				delete(pool.beats, addr)
			}
		}
	}
}

// demoteUnexecutables removes invalid and processed transactions from the
// pools executable/pending queue and any subsequent transactions that become
// unexecutable are moved back into the future queue. The caller holds the
// pool lock.
func (pool *TxPool) demoteUnexecutables() {
	// Iterate over all accounts and demote any non-executable transactions
	for addr, list := range pool.pending {
		nonce, err := pool.state.GetNonce(addr)
		if err != nil {
			pool.logger.WithFields(log.Fields{"addr": addr, "err": err}).Debug("Skipping demotion, state unavailable")
			continue
		}
		// Drop all transactions that are deemed too old (low nonce)
		olds := list.Forward(nonce)
		for _, tx := range olds {
			hash := tx.Hash()
			pool.all.Remove(hash)
			pool.priority.forget(hash)
			pool.logger.WithField("tx", hash).Trace("Removed old pending transaction")
		}
		// Drop all transactions that are too costly (low balance or out of gas),
		// and queue any invalids back for later
		balance, err := pool.state.GetBalance(addr)
		if err != nil {
			pool.logger.WithFields(log.Fields{"addr": addr, "err": err}).Debug("Skipping demotion, state unavailable")
			continue
		}
		drops, invalids := list.Filter(balance, pool.config.MaxTxGas)
		for _, tx := range drops {
			hash := tx.Hash()
			pool.all.Remove(hash)
			pool.priority.forget(hash)
			pool.logger.WithField("tx", hash).Trace("Removed unpayable pending transaction")
		}
		pendingNofundsMeter.Add(float64(len(drops)))

		for _, tx := range invalids {
			pool.logger.WithField("tx", tx.Hash()).Trace("Demoting pending transaction")
			pool.enqueueTx(tx.Hash(), tx)
		}
		pendingTxGauge.Sub(float64(len(olds) + len(drops) + len(invalids)))

		// If there's a gap in front, alert (should never happen) and postpone all transactions
		if list.Len() > 0 && list.Get(nonce) == nil {
			gapped := list.Cap(0)
			for _, tx := range gapped {
				pool.logger.WithField("tx", tx.Hash()).Error("Demoting invalidated transaction")
				pool.enqueueTx(tx.Hash(), tx)
			}
			pendingTxGauge.Sub(float64(len(gapped)))
		}
		// Delete the entire pending entry if it became empty.
		if list.Empty() {
			delete(pool.pending, addr)
			pool.pendingNonces.forget(addr)
		}
	}
}

// truncatePending removes transactions from the pending queue if the pool is
// above the pending limit. The algorithm tries to reduce transaction counts by
// an approximately equal number for all for accounts with many pending
// transactions. The caller holds the pool lock.
func (pool *TxPool) truncatePending() {
	pending := uint64(0)
	for _, list := range pool.pending {
		pending += uint64(list.Len())
	}
	if pending <= pool.config.GlobalSlots {
		return
	}
	pendingBeforeCap := pending
	// Assemble a spam order to penalize large transactors first
	spammers := prque.New()
	for addr, list := range pool.pending {
		// Only evict transactions from high rollers
		if uint64(list.Len()) > pool.config.AccountSlots {
			spammers.Push(addr, int64(list.Len()))
		}
	}
	// Gradually drop transactions from offenders
	offenders := []common.Address{}
	for pending > pool.config.GlobalSlots && !spammers.Empty() {
		// Retrieve the next offender if not local address
		offender, _ := spammers.Pop()
		offenders = append(offenders, offender.(common.Address))

		// Equalize balances until all the same or below threshold
		if len(offenders) > 1 {
			// Calculate the equalization threshold for all current offenders
			threshold := pool.pending[offender.(common.Address)].Len()

			// Iteratively reduce all offenders until below limit or threshold reached
			for pending > pool.config.GlobalSlots && pool.pending[offenders[len(offenders)-2]].Len() > threshold {
				for i := 0; i < len(offenders)-1; i++ {
					list := pool.pending[offenders[i]]

					caps := list.Cap(list.Len() - 1)
					for _, tx := range caps {
						// Drop the transaction from the global pools too
						hash := tx.Hash()
						pool.all.Remove(hash)
						pool.priority.forget(hash)

						// Update the account nonce to the dropped transaction
						pool.pendingNonces.setIfLower(offenders[i], tx.Nonce())
						pool.logger.WithField("tx", hash).Trace("Removed fairness-exceeding pending transaction")
					}
					pending--
				}
			}
		}
	}
	// If still above threshold, reduce to limit or min allowance
	if pending > pool.config.GlobalSlots && len(offenders) > 0 {
		for pending > pool.config.GlobalSlots && uint64(pool.pending[offenders[len(offenders)-1]].Len()) > pool.config.AccountSlots {
			for _, addr := range offenders {
				list := pool.pending[addr]

				caps := list.Cap(list.Len() - 1)
				for _, tx := range caps {
					// Drop the transaction from the global pools too
					hash := tx.Hash()
					pool.all.Remove(hash)
					pool.priority.forget(hash)

					// Update the account nonce to the dropped transaction
					pool.pendingNonces.setIfLower(addr, tx.Nonce())
					pool.logger.WithField("tx", hash).Trace("Removed fairness-exceeding pending transaction")
				}
				pending--
			}
		}
	}
	pendingRateLimitMeter.Add(float64(pendingBeforeCap - pending))
	pendingTxGauge.Sub(float64(pendingBeforeCap - pending))
}

// truncateQueue drops the oldest transactions in the queue if the pool is
// above the global queue limit. The caller holds the pool lock.
func (pool *TxPool) truncateQueue() {
	queued := uint64(0)
	for _, list := range pool.queue {
		queued += uint64(list.Len())
	}
	if queued <= pool.config.GlobalQueue {
		return
	}
	// Sort all accounts with queued transactions by heartbeat
	addresses := make(addressesByHeartbeat, 0, len(pool.queue))
	for addr := range pool.queue {
		addresses = append(addresses, addressByHeartbeat{addr, pool.beats[addr]})
	}
	sort.Sort(addresses)

	// Drop transactions until the total is below the limit
	for drop := queued - pool.config.GlobalQueue; drop > 0 && len(addresses) > 0; {
		addr := addresses[len(addresses)-1]
		list := pool.queue[addr.address]

		addresses = addresses[:len(addresses)-1]

		// Drop all transactions if they are less than the overflow
		if size := uint64(list.Len()); size <= drop {
			for _, tx := range list.Flatten() {
				pool.removeTx(tx.Hash(), true)
			}
			drop -= size
			queuedRateLimitMeter.Add(float64(size))
			continue
		}
		// Otherwise drop only last few transactions
		txs := list.Flatten()
		for i := len(txs) - 1; i >= 0 && drop > 0; i-- {
			pool.removeTx(txs[i].Hash(), true)
			drop--
			queuedRateLimitMeter.Add(1)
		}
	}
}

// SelectForBlock returns the highest-priority executable transactions that fit
// the given gas budget and count, ordered by descending priority with nonce
// order preserved per sender. A transaction that would overflow the remaining
// gas removes its whole sender from consideration so the selection never
// contains a nonce gap. The pool is not mutated.
func (pool *TxPool) SelectForBlock(maxGas uint64, maxCount int) types.Transactions {
	now := time.Now()

	pool.mu.RLock()
	heads := make(selectionHeap, 0, len(pool.pending))
	for _, list := range pool.pending {
		txs := list.Flatten()
		if len(txs) == 0 {
			continue
		}
		heads = append(heads, &selectionCursor{txs: txs, score: pool.priority.score(txs[0], now)})
	}
	pool.mu.RUnlock()

	heap.Init(&heads)

	var (
		selected types.Transactions
		gasUsed  uint64
	)
	for heads.Len() > 0 {
		if maxCount > 0 && len(selected) >= maxCount {
			break
		}
		cursor := heads[0]
		tx := cursor.txs[0]
		if gasUsed+tx.Gas() > maxGas {
			// Skipping just this transaction would gap the sender, drop the
			// whole remaining sequence instead.
			heap.Pop(&heads)
			continue
		}
		selected = append(selected, tx)
		gasUsed += tx.Gas()

		if len(cursor.txs) == 1 {
			heap.Pop(&heads)
			continue
		}
		cursor.txs = cursor.txs[1:]
		cursor.score = pool.priority.score(cursor.txs[0], now)
		heap.Fix(&heads, 0)
	}
	return selected
}

// selectionCursor walks one sender's executable transactions in nonce order
// during block selection.
type selectionCursor struct {
	txs   types.Transactions
	score float64
}

// selectionHeap is a max-heap of sender cursors ordered by the priority of
// their current head transaction.
type selectionHeap []*selectionCursor

func (h selectionHeap) Len() int { return len(h) }
func (h selectionHeap) Less(i, j int) bool {
	return scoreLess(h[j].txs[0], h[i].txs[0], h[j].score, h[i].score)
}
func (h selectionHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *selectionHeap) Push(x interface{}) {
	*h = append(*h, x.(*selectionCursor))
}

func (h *selectionHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// OnBlock applies a newly processed block to the pool: the fee market observes
// the block's utilization, the included transactions are dropped and
// remembered, stale and unpayable transactions are demoted against the new
// account state, and anything the new state unblocked is promoted.
func (pool *TxPool) OnBlock(gasUsed, gasLimit uint64, included []common.Hash) {
	pool.feeMarket.ObserveBlock(gasUsed, gasLimit)

	pool.mu.Lock()
	defer pool.mu.Unlock()

	pool.removeIncluded(included)
	pool.demoteUnexecutables()

	accounts := make([]common.Address, 0, len(pool.queue))
	for addr := range pool.queue {
		accounts = append(accounts, addr)
	}
	pool.promoteExecutables(accounts)
	pool.truncatePending()
	pool.truncateQueue()
}

// RemoveIncluded drops the given transactions as included in a block. Their
// hashes are remembered so Status can report inclusion for a while.
func (pool *TxPool) RemoveIncluded(hashes []common.Hash) {
	pool.mu.Lock()
	defer pool.mu.Unlock()
	pool.removeIncluded(hashes)
}

func (pool *TxPool) removeIncluded(hashes []common.Hash) {
	highest := make(map[common.Address]uint64)
	for _, hash := range hashes {
		pool.recordIncluded(hash)
		includedTxMeter.Add(1)
		tx := pool.all.Get(hash)
		if tx == nil {
			continue
		}
		addr := tx.From()
		if nonce, ok := highest[addr]; !ok || tx.Nonce() > nonce {
			highest[addr] = tx.Nonce()
		}
	}
	for addr, nonce := range highest {
		// Inclusion consumed every nonce up to and including this one
		if current, err := pool.pendingNonces.get(addr); err == nil && current <= nonce {
			pool.pendingNonces.set(addr, nonce+1)
		}
		if list := pool.pending[addr]; list != nil {
			dropped := list.Forward(nonce + 1)
			for _, tx := range dropped {
				pool.all.Remove(tx.Hash())
				pool.priority.forget(tx.Hash())
			}
			pendingTxGauge.Sub(float64(len(dropped)))
			if list.Empty() {
				delete(pool.pending, addr)
			}
		}
		if list := pool.queue[addr]; list != nil {
			dropped := list.Forward(nonce + 1)
			for _, tx := range dropped {
				pool.all.Remove(tx.Hash())
				pool.priority.forget(tx.Hash())
			}
			queuedGauge.Sub(float64(len(dropped)))
			if list.Empty() {
				delete(pool.queue, addr)
				delete(pool.beats, addr)
			}
		}
	}
}

// recordIncluded remembers an included hash, evicting the oldest entries once
// the cache is full.
func (pool *TxPool) recordIncluded(hash common.Hash) {
	for pool.included.Len() >= c_maxIncludedCache {
		oldest := pool.included.Oldest()
		if oldest == nil {
			break
		}
		pool.included.Delete(oldest.Key)
	}
	pool.included.Set(hash, time.Now())
}

// RemoveInvalidated drops transactions that became invalid for reasons outside
// the pool's own bookkeeping; dependent same-sender transactions move back to
// the future queue.
func (pool *TxPool) RemoveInvalidated(hashes []common.Hash) {
	pool.mu.Lock()
	defer pool.mu.Unlock()

	for _, hash := range hashes {
		pool.removeTx(hash, true)
	}
}

// PruneExpired removes transactions from both partitions once their residence
// time exceeds the configured lifetime and returns how many were dropped.
// Expiring an executable transaction demotes any dependent higher nonces back
// into the future partition rather than dropping them.
func (pool *TxPool) PruneExpired() int {
	pool.mu.Lock()
	defer pool.mu.Unlock()

	cutoff := time.Now().Add(-pool.config.Lifetime)
	var expiredPending, expiredQueued []common.Hash
	for _, list := range pool.pending {
		for _, tx := range list.Flatten() {
			if tx.Time().Before(cutoff) {
				expiredPending = append(expiredPending, tx.Hash())
			}
		}
	}
	for _, list := range pool.queue {
		for _, tx := range list.Flatten() {
			if tx.Time().Before(cutoff) {
				expiredQueued = append(expiredQueued, tx.Hash())
			}
		}
	}
	var dropped int
	for _, hash := range expiredPending {
		pool.removeTx(hash, true)
		dropped++
	}
	for _, hash := range expiredQueued {
		// A pending expiry above may already have dropped this one.
		if pool.all.Get(hash) == nil {
			continue
		}
		pool.removeTx(hash, true)
		dropped++
	}
	pendingEvictionMeter.Add(float64(len(expiredPending)))
	queuedEvictionMeter.Add(float64(dropped - len(expiredPending)))
	return dropped
}

// Get returns a transaction if it is contained in the pool and nil otherwise.
func (pool *TxPool) Get(hash common.Hash) *types.Transaction {
	return pool.all.Get(hash)
}

// Has returns an indicator whether txpool has a transaction cached with the
// given hash.
func (pool *TxPool) Has(hash common.Hash) bool {
	return pool.all.Get(hash) != nil
}

// Status returns the partition a transaction currently occupies, or whether it
// was recently included in a block.
func (pool *TxPool) Status(hash common.Hash) TxStatus {
	pool.mu.RLock()
	defer pool.mu.RUnlock()

	if tx := pool.all.Get(hash); tx != nil {
		from := tx.From()
		if list := pool.pending[from]; list != nil && list.Get(tx.Nonce()) == tx {
			return TxStatusPending
		}
		return TxStatusQueued
	}
	if _, ok := pool.included.Get(hash); ok {
		return TxStatusIncluded
	}
	return TxStatusUnknown
}

// PendingNonce returns the next nonce the given sender should use, accounting
// for every executable transaction already pooled.
func (pool *TxPool) PendingNonce(addr common.Address) (uint64, error) {
	nonce, err := pool.pendingNonces.get(addr)
	if err != nil {
		return 0, ErrStateUnavailable
	}
	return nonce, nil
}

// Stats retrieves the current pool stats, namely the number of pending and the
// number of queued (non-executable) transactions.
func (pool *TxPool) Stats() (int, int) {
	pool.mu.RLock()
	defer pool.mu.RUnlock()

	pending := 0
	for _, list := range pool.pending {
		pending += list.Len()
	}
	queued := 0
	for _, list := range pool.queue {
		queued += list.Len()
	}
	return pending, queued
}

// Content retrieves the data content of the transaction pool, returning all
// the pending as well as queued transactions, grouped by account and sorted
// by nonce.
func (pool *TxPool) Content() (map[common.Address]types.Transactions, map[common.Address]types.Transactions) {
	pool.mu.RLock()
	defer pool.mu.RUnlock()

	pending := make(map[common.Address]types.Transactions)
	for addr, list := range pool.pending {
		pending[addr] = list.Flatten()
	}
	queued := make(map[common.Address]types.Transactions)
	for addr, list := range pool.queue {
		queued[addr] = list.Flatten()
	}
	return pending, queued
}

// ContentFrom retrieves the data content of the transaction pool, returning
// the pending as well as queued transactions of this address, sorted by nonce.
func (pool *TxPool) ContentFrom(addr common.Address) (types.Transactions, types.Transactions) {
	pool.mu.RLock()
	defer pool.mu.RUnlock()

	var pending types.Transactions
	if list, ok := pool.pending[addr]; ok {
		pending = list.Flatten()
	}
	var queued types.Transactions
	if list, ok := pool.queue[addr]; ok {
		queued = list.Flatten()
	}
	return pending, queued
}

// addressByHeartbeat is an account address tagged with its last activity
// timestamp.
type addressByHeartbeat struct {
	address   common.Address
	heartbeat time.Time
}

type addressesByHeartbeat []addressByHeartbeat

func (a addressesByHeartbeat) Len() int           { return len(a) }
func (a addressesByHeartbeat) Less(i, j int) bool { return a[i].heartbeat.Before(a[j].heartbeat) }
func (a addressesByHeartbeat) Swap(i, j int)      { a[i], a[j] = a[j], a[i] }

// txLookup is used internally by TxPool to track transactions while allowing
// lookup without mutex contention.
type txLookup struct {
	slots int
	lock  sync.RWMutex
	txs   map[common.Hash]*types.Transaction
}

// newTxLookup returns a new txLookup structure.
func newTxLookup() *txLookup {
	return &txLookup{
		txs: make(map[common.Hash]*types.Transaction),
	}
}

// Range calls f on each key and value present in the map. The callback passed
// should return the indicator whether the iteration needs to be continued.
func (t *txLookup) Range(f func(hash common.Hash, tx *types.Transaction) bool) {
	t.lock.RLock()
	defer t.lock.RUnlock()

	for key, value := range t.txs {
		if !f(key, value) {
			return
		}
	}
}

// Get returns a transaction if it exists in the lookup, or nil if not found.
func (t *txLookup) Get(hash common.Hash) *types.Transaction {
	t.lock.RLock()
	defer t.lock.RUnlock()

	return t.txs[hash]
}

// Count returns the current number of transactions in the lookup.
func (t *txLookup) Count() int {
	t.lock.RLock()
	defer t.lock.RUnlock()

	return len(t.txs)
}

// Slots returns the current number of slots used in the lookup.
func (t *txLookup) Slots() int {
	t.lock.RLock()
	defer t.lock.RUnlock()

	return t.slots
}

// Add adds a transaction to the lookup. Re-adding a known hash is a no-op so
// slot accounting stays exact.
func (t *txLookup) Add(tx *types.Transaction) {
	t.lock.Lock()
	defer t.lock.Unlock()

	if _, ok := t.txs[tx.Hash()]; ok {
		return
	}
	t.slots += numSlots(tx)
	slotsGauge.Set(float64(t.slots))

	t.txs[tx.Hash()] = tx
}

// Remove removes a transaction from the lookup.
func (t *txLookup) Remove(hash common.Hash) {
	t.lock.Lock()
	defer t.lock.Unlock()

	tx, ok := t.txs[hash]
	if !ok {
		return
	}
	t.slots -= numSlots(tx)
	slotsGauge.Set(float64(t.slots))

	delete(t.txs, hash)
}

// numSlots calculates the number of slots needed for a single transaction.
func numSlots(tx *types.Transaction) int {
	return int((tx.Size() + txSlotSize - 1) / txSlotSize)
}
