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

package types

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/dominant-strategies/go-mempool/common"
)

// TxData carries the caller-supplied fields of a transaction. It is consumed
// by NewTransaction and never referenced again; the resulting Transaction is
// immutable.
type TxData struct {
	From      common.Address
	Nonce     uint64
	To        *common.Address // nil means contract creation
	Value     *big.Int
	Payload   []byte
	Gas       uint64
	GasFeeCap *big.Int
	GasTipCap *big.Int
}

// Transaction is an immutable, content-addressed transaction as held by the
// pool. The hash is a deterministic function of every field except the
// arrival time, so two transactions with identical fields collide by design.
type Transaction struct {
	from      common.Address
	nonce     uint64
	to        *common.Address
	value     *big.Int
	payload   []byte
	gas       uint64
	gasFeeCap *big.Int
	gasTipCap *big.Int

	time time.Time // Time first seen locally

	// caches
	hash atomic.Value
	size atomic.Value
}

// NewTransaction creates a transaction from the given fields, stamping it
// with the local arrival time. Nil big.Int fields are treated as zero.
func NewTransaction(data *TxData) *Transaction {
	tx := &Transaction{
		from:      data.From,
		nonce:     data.Nonce,
		gas:       data.Gas,
		value:     new(big.Int),
		gasFeeCap: new(big.Int),
		gasTipCap: new(big.Int),
		time:      time.Now(),
	}
	if data.To != nil {
		to := *data.To
		tx.to = &to
	}
	if data.Value != nil {
		tx.value.Set(data.Value)
	}
	if data.GasFeeCap != nil {
		tx.gasFeeCap.Set(data.GasFeeCap)
	}
	if data.GasTipCap != nil {
		tx.gasTipCap.Set(data.GasTipCap)
	}
	if len(data.Payload) > 0 {
		tx.payload = make([]byte, len(data.Payload))
		copy(tx.payload, data.Payload)
	}
	return tx
}

// From returns the sender address of the transaction.
func (tx *Transaction) From() common.Address { return tx.from }

// Nonce returns the sender nonce of the transaction.
func (tx *Transaction) Nonce() uint64 { return tx.nonce }

// To returns the recipient address of the transaction.
// For contract-creation transactions it returns nil.
func (tx *Transaction) To() *common.Address {
	if tx.to == nil {
		return nil
	}
	to := *tx.to
	return &to
}

// Value returns the amount of the transaction.
func (tx *Transaction) Value() *big.Int { return new(big.Int).Set(tx.value) }

// Data returns the opaque payload of the transaction.
func (tx *Transaction) Data() []byte { return tx.payload }

// Gas returns the gas limit of the transaction.
func (tx *Transaction) Gas() uint64 { return tx.gas }

// GasFeeCap returns the fee cap per gas of the transaction.
func (tx *Transaction) GasFeeCap() *big.Int { return new(big.Int).Set(tx.gasFeeCap) }

// GasTipCap returns the tip cap per gas of the transaction.
func (tx *Transaction) GasTipCap() *big.Int { return new(big.Int).Set(tx.gasTipCap) }

// Time returns the time the transaction was first seen locally.
func (tx *Transaction) Time() time.Time { return tx.time }

// GasFeeCapIntCmp compares the fee cap of the transaction against the given value.
func (tx *Transaction) GasFeeCapIntCmp(other *big.Int) int {
	return tx.gasFeeCap.Cmp(other)
}

// GasTipCapIntCmp compares the tip cap of the transaction against the given value.
func (tx *Transaction) GasTipCapIntCmp(other *big.Int) int {
	return tx.gasTipCap.Cmp(other)
}

// Cost returns value + gas * feeCap, the maximum the sender can be charged.
func (tx *Transaction) Cost() *big.Int {
	total := new(big.Int).Mul(tx.gasFeeCap, new(big.Int).SetUint64(tx.gas))
	return total.Add(total, tx.value)
}

// EffectiveGasTip returns the miner tip per gas the transaction pays on top
// of the given base fee: min(tipCap, feeCap - baseFee). The result is
// negative when the fee cap no longer covers the base fee.
func (tx *Transaction) EffectiveGasTip(baseFee *big.Int) *big.Int {
	if baseFee == nil {
		return tx.GasTipCap()
	}
	effective := new(big.Int).Sub(tx.gasFeeCap, baseFee)
	return common.BigMin(effective, tx.GasTipCap())
}

// EffectiveGasTipCmp compares the effective tips of two transactions
// assuming the given base fee.
func (tx *Transaction) EffectiveGasTipCmp(other *Transaction, baseFee *big.Int) int {
	return tx.EffectiveGasTip(baseFee).Cmp(other.EffectiveGasTip(baseFee))
}

// Hash returns the content hash of the transaction, computing and caching it
// on first use.
func (tx *Transaction) Hash() common.Hash {
	if hash := tx.hash.Load(); hash != nil {
		return hash.(common.Hash)
	}
	h := common.BytesToHash(sha256sum(tx.encode()))
	tx.hash.Store(h)
	return h
}

// Size returns the encoded byte size of the transaction, caching it after the
// first call.
func (tx *Transaction) Size() uint64 {
	if size := tx.size.Load(); size != nil {
		return size.(uint64)
	}
	size := uint64(len(tx.encode()))
	tx.size.Store(size)
	return size
}

// encode produces the deterministic byte representation hashed and sized
// above. The arrival time is deliberately excluded.
func (tx *Transaction) encode() []byte {
	var buf bytes.Buffer
	buf.Write(tx.from.Bytes())
	binary.Write(&buf, binary.BigEndian, tx.nonce)
	if tx.to != nil {
		buf.WriteByte(1)
		buf.Write(tx.to.Bytes())
	} else {
		buf.WriteByte(0)
	}
	writeBig(&buf, tx.value)
	binary.Write(&buf, binary.BigEndian, tx.gas)
	writeBig(&buf, tx.gasFeeCap)
	writeBig(&buf, tx.gasTipCap)
	binary.Write(&buf, binary.BigEndian, uint32(len(tx.payload)))
	buf.Write(tx.payload)
	return buf.Bytes()
}

func writeBig(buf *bytes.Buffer, v *big.Int) {
	b := v.Bytes()
	binary.Write(buf, binary.BigEndian, uint8(len(b)))
	buf.Write(b)
}

func sha256sum(b []byte) []byte {
	sum := sha256.Sum256(b)
	return sum[:]
}

// Transactions implements DerivableList for a batch of transactions.
type Transactions []*Transaction

// Len returns the length of s.
func (s Transactions) Len() int { return len(s) }

// TxDifference returns a new set of transactions that are present in a but not in b.
func TxDifference(a, b Transactions) Transactions {
	keep := make(Transactions, 0, len(a))

	remove := make(map[common.Hash]struct{})
	for _, tx := range b {
		remove[tx.Hash()] = struct{}{}
	}
	for _, tx := range a {
		if _, ok := remove[tx.Hash()]; !ok {
			keep = append(keep, tx)
		}
	}
	return keep
}

// TxByNonce implements the sort interface to allow sorting a list of
// transactions by their nonces. This is usually only useful for sorting
// transactions from a single account, otherwise a nonce comparison doesn't
// make much sense.
type TxByNonce Transactions

func (s TxByNonce) Len() int           { return len(s) }
func (s TxByNonce) Less(i, j int) bool { return s[i].Nonce() < s[j].Nonce() }
func (s TxByNonce) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }
