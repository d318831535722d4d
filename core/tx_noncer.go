// Copyright 2019 The go-ethereum Authors
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
	"sync"

	lru "github.com/hashicorp/golang-lru"

	"github.com/dominant-strategies/go-mempool/common"
)

const (
	// c_maxNonceCache is the maximum number of entries held in the nonce cache.
	c_maxNonceCache = 600
)

// txNoncer is a tiny virtual state database to manage the executable nonces of
// accounts in the pool, falling back to reading from the real state reader if
// an account is unknown.
type txNoncer struct {
	fallback StateReader
	nonces   *lru.Cache
	lock     sync.Mutex
}

// newTxNoncer creates a new virtual state database to track the pool nonces.
func newTxNoncer(state StateReader) *txNoncer {
	n := &txNoncer{
		fallback: state,
	}
	nonces, _ := lru.New(c_maxNonceCache)
	n.nonces = nonces

	return n
}

// get returns the current nonce of an account, falling back to the real state
// reader if the account is unknown. The error is the reader's and means no
// verdict can be produced for the account right now.
func (txn *txNoncer) get(addr common.Address) (uint64, error) {
	txn.lock.Lock()
	defer txn.lock.Unlock()

	if nonce, ok := txn.nonces.Get(addr); ok {
		return nonce.(uint64), nil
	}
	nonce, err := txn.fallback.GetNonce(addr)
	if err != nil {
		return 0, err
	}
	txn.nonces.Add(addr, nonce)
	return nonce, nil
}

// set inserts a new virtual nonce into the virtual state database to be
// returned whenever the pool requests it instead of reaching into the real
// state reader.
func (txn *txNoncer) set(addr common.Address, nonce uint64) {
	txn.lock.Lock()
	defer txn.lock.Unlock()
	txn.nonces.Add(addr, nonce)
}

// setIfLower updates the virtual nonce for an account if the new one is lower.
func (txn *txNoncer) setIfLower(addr common.Address, nonce uint64) {
	txn.lock.Lock()
	defer txn.lock.Unlock()

	if current, ok := txn.nonces.Peek(addr); ok && current.(uint64) <= nonce {
		return
	}
	txn.nonces.Add(addr, nonce)
}

// forget drops any virtual nonce tracked for the account, forcing the next
// get to consult the state reader again.
func (txn *txNoncer) forget(addr common.Address) {
	txn.lock.Lock()
	defer txn.lock.Unlock()
	txn.nonces.Remove(addr)
}
