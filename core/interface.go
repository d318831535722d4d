package core

import (
	"math/big"

	"github.com/dominant-strategies/go-mempool/common"
	"github.com/dominant-strategies/go-mempool/core/types"
)

// StateReader provides the latest locally-known committed account state. The
// pool expects both calls to be fast, cached lookups; any latency behind them
// is owned by the implementation, not the pool.
type StateReader interface {
	GetNonce(addr common.Address) (uint64, error)
	GetBalance(addr common.Address) (*big.Int, error)
}

// Validator performs structural and signature validation of a candidate
// transaction, independent of pool state. A nil return admits the
// transaction; ErrDelayed signals the verdict cannot be produced right now
// and the candidate must be refused without being classified invalid.
type Validator interface {
	Validate(tx *types.Transaction, expectedNonce uint64) error
}

// NoopValidator admits everything. Used where the surrounding node performs
// signature checks before handing transactions to the pool.
type NoopValidator struct{}

func (NoopValidator) Validate(*types.Transaction, uint64) error { return nil }
