// Copyright 2016 The go-ethereum Authors
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
	"math/big"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dominant-strategies/go-mempool/common"
	"github.com/dominant-strategies/go-mempool/core/types"
)

var listSender = common.BytesToAddress([]byte{0xaa})

// listTx builds a minimal transaction for list level tests.
func listTx(nonce uint64, gas uint64, feeCap int64) *types.Transaction {
	return types.NewTransaction(&types.TxData{
		From:      listSender,
		Nonce:     nonce,
		Value:     big.NewInt(1),
		Gas:       gas,
		GasFeeCap: big.NewInt(feeCap),
		GasTipCap: big.NewInt(feeCap),
	})
}

// Tests that transactions can be added to strict lists and list contents and
// nonce boundaries are correctly maintained.
func TestStrictTxListAdd(t *testing.T) {
	// Generate a list of transactions to insert
	txs := make(types.Transactions, 1024)
	for i := 0; i < len(txs); i++ {
		txs[i] = listTx(uint64(i), 21000, 100)
	}
	// Insert the transactions in a random order
	list := newTxList(true)
	for _, v := range rand.Perm(len(txs)) {
		inserted, _ := list.Add(txs[v], DefaultConfig.PriceBump)
		require.True(t, inserted)
	}
	// Verify internal state
	require.Equal(t, len(txs), list.Len())
	for i, tx := range txs {
		assert.Equal(t, tx, list.txs.items[tx.Nonce()], "item %d mismatch", i)
	}
	// Flatten must come back nonce sorted
	flat := list.Flatten()
	for i := 1; i < len(flat); i++ {
		assert.Less(t, flat[i-1].Nonce(), flat[i].Nonce())
	}
	assert.Equal(t, txs[len(txs)-1], list.LastElement())
}

func TestTxListReplacement(t *testing.T) {
	list := newTxList(true)

	old := listTx(0, 21000, 100)
	inserted, prev := list.Add(old, 10)
	require.True(t, inserted)
	require.Nil(t, prev)

	// Equal price must not replace
	inserted, _ = list.Add(listTx(0, 21000, 100), 10)
	assert.False(t, inserted)

	// Higher but below the bump threshold must not replace
	inserted, _ = list.Add(listTx(0, 21000, 105), 10)
	assert.False(t, inserted)

	// Meeting the bump threshold replaces and returns the old occupant
	better := listTx(0, 21000, 110)
	inserted, prev = list.Add(better, 10)
	require.True(t, inserted)
	assert.Equal(t, old, prev)
	assert.Equal(t, better, list.Get(0))
	assert.Equal(t, 1, list.Len())
}

func TestTxListForward(t *testing.T) {
	list := newTxList(false)
	for i := uint64(0); i < 10; i++ {
		list.Add(listTx(i, 21000, 100), 10)
	}
	removed := list.Forward(5)
	assert.Equal(t, 5, len(removed))
	assert.Equal(t, 5, list.Len())
	for _, tx := range removed {
		assert.Less(t, tx.Nonce(), uint64(5))
	}
}

func TestTxListReady(t *testing.T) {
	list := newTxList(false)
	for _, nonce := range []uint64{3, 4, 5, 8, 9} {
		list.Add(listTx(nonce, 21000, 100), 10)
	}
	// Nothing ready below the first stored nonce
	assert.Empty(t, list.Ready(2))

	// The contiguous run from the start nonce pops out, the gapped tail stays
	ready := list.Ready(3)
	require.Equal(t, 3, len(ready))
	for i, tx := range ready {
		assert.Equal(t, uint64(3+i), tx.Nonce())
	}
	assert.Equal(t, 2, list.Len())
}

func TestTxListCap(t *testing.T) {
	list := newTxList(false)
	for i := uint64(0); i < 10; i++ {
		list.Add(listTx(i, 21000, 100), 10)
	}
	drops := list.Cap(4)
	assert.Equal(t, 6, len(drops))
	assert.Equal(t, 4, list.Len())
	// The highest nonces are the ones dropped
	for _, tx := range drops {
		assert.GreaterOrEqual(t, tx.Nonce(), uint64(4))
	}
}

func TestTxListFilterStrict(t *testing.T) {
	list := newTxList(true)
	for i := uint64(0); i < 5; i++ {
		list.Add(listTx(i, 21000, 100), 10)
	}
	// Make the middle transaction unpayable; everything after it must also go
	expensive := listTx(2, 21000, 1000)
	list.Add(expensive, 900)

	costLimit := listTx(0, 21000, 100).Cost()
	removed, invalids := list.Filter(costLimit, 21000)

	require.Equal(t, 1, len(removed))
	assert.Equal(t, uint64(2), removed[0].Nonce())
	require.Equal(t, 2, len(invalids))
	for _, tx := range invalids {
		assert.Greater(t, tx.Nonce(), uint64(2))
	}
	assert.Equal(t, 2, list.Len())
}

func TestTxListRemoveStrict(t *testing.T) {
	list := newTxList(true)
	txs := make(types.Transactions, 5)
	for i := range txs {
		txs[i] = listTx(uint64(i), 21000, 100)
		list.Add(txs[i], 10)
	}
	removed, invalids := list.Remove(txs[2])
	require.True(t, removed)
	assert.Equal(t, 2, len(invalids), "higher nonces must be invalidated by a strict removal")
	assert.Equal(t, 2, list.Len())

	removed, _ = list.Remove(txs[2])
	assert.False(t, removed, "double removal must report absence")
}
